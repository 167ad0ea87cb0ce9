package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ins72/mewayz-good-sub001/internal/billing/application"
	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	"github.com/ins72/mewayz-good-sub001/pkg/observability"
)

const maxBodyBytes = 1 << 20

// BillingHandler serves catalog, pricing, subscription and access
// requests.
type BillingHandler struct {
	sync   *application.Synchronizer
	gate   Authorizer
	logger *slog.Logger
}

// NewBillingHandler creates a new billing handler.
func NewBillingHandler(sync *application.Synchronizer, gate Authorizer, logger *slog.Logger) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{sync: sync, gate: gate, logger: logger}
}

// QuoteRequest is the body of POST /api/v1/pricing/quote.
type QuoteRequest struct {
	Bundles  []string `json:"bundles"`
	Interval string   `json:"interval"`
}

// SubscribeRequest is the body of POST /api/v1/subscription. Email
// defaults to the token's email claim.
type SubscribeRequest struct {
	Bundles  []string `json:"bundles"`
	Interval string   `json:"interval"`
	Email    string   `json:"email,omitempty"`
}

// ListBundles handles GET /api/v1/bundles
func (h *BillingHandler) ListBundles(w http.ResponseWriter, r *http.Request) {
	bundles := h.sync.Catalog().List()
	views := make([]application.BundleView, len(bundles))
	for i, b := range bundles {
		views[i] = application.NewBundleView(b)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bundles": views,
	})
}

// GetBundle handles GET /api/v1/bundles/{bundleID}
func (h *BillingHandler) GetBundle(w http.ResponseWriter, r *http.Request) {
	b, err := h.sync.Catalog().Get(r.PathValue("bundleID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, application.NewBundleView(b))
}

// Quote handles POST /api/v1/pricing/quote
func (h *BillingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	interval, err := domain.ParseBillingInterval(req.Interval)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	q, err := h.sync.Quote(req.Bundles, interval)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewQuoteView(q))
}

// GetSubscription handles GET /api/v1/subscription
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	view, err := h.sync.GetState(r.Context(), observability.UserIDFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Subscribe handles POST /api/v1/subscription
func (h *BillingHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	interval, err := domain.ParseBillingInterval(req.Interval)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = EmailFromContext(r.Context())
	}

	result, err := h.sync.Subscribe(r.Context(), application.SubscribeCommand{
		UserID:    observability.UserIDFromContext(r.Context()),
		Email:     email,
		BundleIDs: req.Bundles,
		Interval:  interval,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Action == application.SubscribeCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

// Cancel handles DELETE /api/v1/subscription
func (h *BillingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	view, err := h.sync.Cancel(r.Context(), observability.UserIDFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Authorize handles GET /api/v1/access/{service}. A denial is a normal
// 200 response; callers read the allowed flag.
func (h *BillingHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	decision, err := h.gate.Authorize(r.Context(), observability.UserIDFromContext(r.Context()), r.PathValue("service"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewDecisionView(decision))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
