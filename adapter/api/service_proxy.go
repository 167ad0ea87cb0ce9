package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"

	"github.com/ins72/mewayz-good-sub001/pkg/observability"
)

// UserIDHeader carries the authenticated user to upstream services.
const UserIDHeader = "X-User-ID"

// ServicePathPrefix is where gated services are mounted. A request to
// /api/v1/services/crm/contacts reaches the crm upstream as /contacts.
const ServicePathPrefix = "/api/v1/services/"

// NewServiceProxies builds one reverse proxy per service from a map of
// service name to upstream base URL.
func NewServiceProxies(upstreams map[string]string, logger *slog.Logger) (map[string]http.Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	names := make([]string, 0, len(upstreams))
	for name := range upstreams {
		names = append(names, name)
	}
	sort.Strings(names)

	proxies := make(map[string]http.Handler, len(upstreams))
	for _, name := range names {
		target, err := url.Parse(upstreams[name])
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("upstream for service %s: invalid url %q", name, upstreams[name])
		}
		proxies[name] = newServiceProxy(name, target, logger)
	}
	return proxies, nil
}

func newServiceProxy(service string, target *url.URL, logger *slog.Logger) http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			ctx := pr.In.Context()
			pr.Out.Header.Set(UserIDHeader, observability.UserIDFromContext(ctx))
			pr.Out.Header.Set(CorrelationIDHeader, observability.CorrelationIDFromContext(ctx))
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.ErrorContext(r.Context(), "service upstream failed",
				"service", service,
				"upstream", target.Host,
				"error", err,
			)
			writeError(w, http.StatusBadGateway, "service unavailable")
		},
	}
}
