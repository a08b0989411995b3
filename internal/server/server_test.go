package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditledger/internal/authorization"
	billingservice "github.com/smallbiznis/creditledger/internal/billing/service"
	overviewservice "github.com/smallbiznis/creditledger/internal/billingoverview/service"
	"github.com/smallbiznis/creditledger/internal/cache"
	"github.com/smallbiznis/creditledger/internal/config"
	ledgerrepo "github.com/smallbiznis/creditledger/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/creditledger/internal/ledger/service"
	"github.com/smallbiznis/creditledger/internal/observability"
	obsmetrics "github.com/smallbiznis/creditledger/internal/observability/metrics"
	pricingrepo "github.com/smallbiznis/creditledger/internal/pricing/repository"
	pricingservice "github.com/smallbiznis/creditledger/internal/pricing/service"
	"github.com/smallbiznis/creditledger/internal/testutil"
	usagerepo "github.com/smallbiznis/creditledger/internal/usage/repository"
	usageservice "github.com/smallbiznis/creditledger/internal/usage/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.OpenDB(t)
	node := testutil.MustNode(t)
	cfg := testutil.BillingConfig()
	fakeClock := testutil.Clock()
	log := zap.NewNop()

	pricing := pricingservice.New(pricingservice.Params{
		DB: db, Log: log, GenID: node, Repo: pricingrepo.Provide(),
		Cache: cache.NewPricingRuleCache(), Config: cfg, Clock: fakeClock,
	})
	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB: db, Log: log, GenID: node, Repo: ledgerrepo.Provide(), Config: cfg, Clock: fakeClock,
	})
	usageRepo := usagerepo.Provide()
	recorder := usageservice.NewService(usageservice.ServiceParam{
		DB: db, Log: log, GenID: node, Resolver: pricing, Ledger: ledger,
		Repo: usageRepo, Config: cfg, Clock: fakeClock,
	})
	overview := overviewservice.NewService(overviewservice.Params{
		DB: db, Log: log, Clock: fakeClock, Ledger: ledger, UsageRepo: usageRepo, Config: cfg,
	})
	billing := billingservice.NewService(billingservice.Params{
		Log: log, Ledger: ledger, Pricing: pricing, Usage: recorder, Overview: overview,
	})

	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{
		Log: log, Config: config.Config{AuthorizationEnable: true}, Enforcer: enforcer,
	})

	engine := NewEngine(observability.Config{}, obsmetrics.NewHTTPMetrics())
	NewServer(ServerParams{
		Gin:        engine,
		Cfg:        config.Config{AuthorizationEnable: true},
		BillingSvc: billing,
		AuthzSvc:   authz,
	})
	return engine
}

type apiCall struct {
	method string
	path   string
	user   string
	role   string
	body   any
}

func do(t *testing.T, r http.Handler, call apiCall) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var body bytes.Buffer
	if call.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(call.body))
	}
	req := httptest.NewRequest(call.method, call.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if call.user != "" {
		req.Header.Set(HeaderUserID, call.user)
	}
	if call.role != "" {
		req.Header.Set(HeaderUserRole, call.role)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func errorType(body map[string]any) string {
	errObj, _ := body["error"].(map[string]any)
	typ, _ := errObj["type"].(string)
	return typ
}

func createRule(t *testing.T, r http.Handler) {
	t.Helper()
	w, _ := do(t, r, apiCall{
		method: http.MethodPost, path: "/admin/pricing", user: "ops", role: "admin",
		body: map[string]any{
			"provider":           "openai",
			"model_name":         "gpt-4o",
			"input_token_price":  "0.0014",
			"output_token_price": "0.0028",
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestMissingIdentityIsUnauthorized(t *testing.T) {
	r := newTestServer(t)

	w, body := do(t, r, apiCall{method: http.MethodGet, path: "/billing/info"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", errorType(body))
}

func TestAddCredits(t *testing.T) {
	r := newTestServer(t)

	w, body := do(t, r, apiCall{
		method: http.MethodPost, path: "/billing/credits", user: "u1",
		body: map[string]any{"amount": "100.00"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "credits added", body["message"])
	billing := body["billing"].(map[string]any)
	assert.Equal(t, "100", billing["balance"])

	w, body = do(t, r, apiCall{
		method: http.MethodPost, path: "/billing/credits", user: "u1",
		body: map[string]any{"amount": "-5"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", errorType(body))

	w, _ = do(t, r, apiCall{
		method: http.MethodPost, path: "/billing/credits", user: "u1",
		body: map[string]any{"amount": "abc"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordUsageStatuses(t *testing.T) {
	r := newTestServer(t)
	createRule(t, r)

	usage := map[string]any{
		"provider":      "openai",
		"model_name":    "gpt-4o",
		"input_tokens":  1000,
		"output_tokens": 500,
	}

	w, body := do(t, r, apiCall{method: http.MethodPost, path: "/billing/usage", user: "broke", body: usage})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "insufficient_credits", errorType(body))

	w, _ = do(t, r, apiCall{
		method: http.MethodPost, path: "/billing/credits", user: "u1",
		body: map[string]any{"amount": "100.00"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, body = do(t, r, apiCall{method: http.MethodPost, path: "/billing/usage", user: "u1", body: usage})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	record := body["usage"].(map[string]any)
	assert.Equal(t, "0.0028", record["total_cost"])
	assert.Equal(t, "charged", record["status"])

	w, body = do(t, r, apiCall{method: http.MethodGet, path: "/billing/info", user: "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "99.9972", body["billing"].(map[string]any)["balance"])

	unknown := map[string]any{"provider": "openai", "model_name": "nope", "input_tokens": 1, "output_tokens": 1}
	w, body = do(t, r, apiCall{method: http.MethodPost, path: "/billing/usage", user: "u1", body: unknown})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "pricing_unavailable", errorType(body))

	invalid := map[string]any{"provider": "", "model_name": "gpt-4o", "input_tokens": 1, "output_tokens": 1}
	w, _ = do(t, r, apiCall{method: http.MethodPost, path: "/billing/usage", user: "u1", body: invalid})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListUsagePagination(t *testing.T) {
	r := newTestServer(t)
	createRule(t, r)

	w, _ := do(t, r, apiCall{
		method: http.MethodPost, path: "/billing/credits", user: "u1",
		body: map[string]any{"amount": "10"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	for i := 0; i < 5; i++ {
		w, _ = do(t, r, apiCall{
			method: http.MethodPost, path: "/billing/usage", user: "u1",
			body: map[string]any{"provider": "openai", "model_name": "gpt-4o", "input_tokens": 100, "output_tokens": 100},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w, body := do(t, r, apiCall{method: http.MethodGet, path: "/billing/usage?page=2&limit=2", user: "u1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, body["usage"], 2)
	pagination := body["pagination"].(map[string]any)
	assert.EqualValues(t, 2, pagination["page"])
	assert.EqualValues(t, 5, pagination["total"])
	assert.EqualValues(t, 3, pagination["pages"])
	summary := body["summary"].(map[string]any)
	assert.EqualValues(t, 5, summary["record_count"])

	w, body = do(t, r, apiCall{method: http.MethodGet, path: "/billing/usage?page=0", user: "u1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", errorType(body))

	w, body = do(t, r, apiCall{method: http.MethodGet, path: "/billing/transactions?limit=10", user: "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 6, body["pagination"].(map[string]any)["total"])
}

func TestAdminRoutesRequireRole(t *testing.T) {
	r := newTestServer(t)

	adjust := map[string]any{"amount": "25", "description": "goodwill"}
	w, body := do(t, r, apiCall{
		method: http.MethodPost, path: "/admin/accounts/u1/adjustments", user: "u1", body: adjust,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", errorType(body))

	w, body = do(t, r, apiCall{
		method: http.MethodPost, path: "/admin/accounts/u1/adjustments", user: "ops", role: "admin", body: adjust,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "25", body["billing"].(map[string]any)["balance"])

	w, _ = do(t, r, apiCall{
		method: http.MethodPost, path: "/admin/accounts/u1/adjustments", user: "ops", role: "admin",
		body: map[string]any{"amount": "1"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = do(t, r, apiCall{method: http.MethodGet, path: "/admin/accounts/u1/reconcile", user: "aud", role: "auditor"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	recon := body["reconciliation"].(map[string]any)
	assert.Equal(t, "0", recon["drift"])

	w, _ = do(t, r, apiCall{method: http.MethodGet, path: "/admin/accounts/ghost/reconcile", user: "aud", role: "auditor"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, r, apiCall{method: http.MethodDelete, path: fmt.Sprintf("/admin/pricing/%d", 42), user: "ops", role: "admin"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthMetricsAndFallback(t *testing.T) {
	r := newTestServer(t)

	w, body := do(t, r, apiCall{method: http.MethodGet, path: "/health"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	w, _ = do(t, r, apiCall{method: http.MethodGet, path: "/metrics"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")

	w, body = do(t, r, apiCall{method: http.MethodGet, path: "/nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorType(body))
}
