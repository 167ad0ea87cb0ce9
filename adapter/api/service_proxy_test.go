package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceProxy_GatesBySubscription(t *testing.T) {
	type seen struct {
		path, user, correlation string
	}
	hits := make(chan seen, 4)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- seen{r.URL.Path, r.Header.Get(UserIDHeader), r.Header.Get(CorrelationIDHeader)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer upstream.Close()

	services, err := NewServiceProxies(map[string]string{"crm": upstream.URL}, nil)
	require.NoError(t, err)
	env := newTestEnvWithServices(t, services)
	token := env.token(t, "user-1", "user1@example.com")

	rec := env.do(t, http.MethodGet, "/api/v1/services/crm/contacts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/services/crm/contacts", token, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "no_subscription", decode[map[string]string](t, rec)["reason"])

	rec = env.do(t, http.MethodPost, "/api/v1/subscription", token, SubscribeRequest{Bundles: []string{"business"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = env.webhook(t, invoiceEvent("evt_1", "invoice.paid", "sub_1", time.Now()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/services/crm/contacts", token, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	got := <-hits
	assert.Equal(t, "/contacts", got.path)
	assert.Equal(t, "user-1", got.user)
	assert.Equal(t, rec.Header().Get(CorrelationIDHeader), got.correlation)
	assert.Empty(t, hits, "denied requests never reach the upstream")
}

func TestServiceProxy_UpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	services, err := NewServiceProxies(map[string]string{"crm": url}, nil)
	require.NoError(t, err)
	env := newTestEnvWithServices(t, services)
	token := env.token(t, "user-1", "user1@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/subscription", token, SubscribeRequest{Bundles: []string{"business"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	env.webhook(t, invoiceEvent("evt_1", "invoice.paid", "sub_1", time.Now()))

	rec = env.do(t, http.MethodGet, "/api/v1/services/crm/contacts", token, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestNewServiceProxies_InvalidURL(t *testing.T) {
	_, err := NewServiceProxies(map[string]string{"crm": "not a url"}, nil)
	assert.ErrorContains(t, err, "crm")

	proxies, err := NewServiceProxies(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, proxies)
}
