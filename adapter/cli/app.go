package cli

import (
	"github.com/ins72/mewayz-good-sub001/adapter/api"
	internalApp "github.com/ins72/mewayz-good-sub001/internal/app"
	billingApp "github.com/ins72/mewayz-good-sub001/internal/billing/application"
	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	"github.com/ins72/mewayz-good-sub001/internal/billing/infrastructure/catalog"
	"github.com/ins72/mewayz-good-sub001/pkg/config"
)

// App holds the CLI application dependencies. Container-backed fields are
// nil when the database could not be reached.
type App struct {
	Config *config.Config
	Tokens *api.TokenManager

	Calculator   *domain.PriceCalculator
	Synchronizer *billingApp.Synchronizer
	AccessGate   *billingApp.AccessGate
	Container    *internalApp.Container
}

// NewApp creates an App without storage.
func NewApp(cfg *config.Config) *App {
	return &App{
		Config: cfg,
		Tokens: api.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer),
	}
}

// SetContainer attaches the wired services.
func (a *App) SetContainer(c *internalApp.Container) {
	a.Container = c
	a.Calculator = c.Calculator
	a.Synchronizer = c.Synchronizer
	a.AccessGate = c.AccessGate
}

// PriceCalculator returns the wired calculator, or one built from the
// configured catalog so pricing works without a database.
func (a *App) PriceCalculator() (*domain.PriceCalculator, error) {
	if a.Calculator != nil {
		return a.Calculator, nil
	}
	cat, err := catalog.Load(a.Config.BundleCatalogPath)
	if err != nil {
		return nil, err
	}
	a.Calculator = domain.NewPriceCalculator(cat, a.Config.BillingCurrency)
	return a.Calculator, nil
}

var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}
