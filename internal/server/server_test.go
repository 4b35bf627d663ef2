package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	batchsvc "github.com/smallbiznis/worksuite/internal/batchinvoice/service"
	"github.com/smallbiznis/worksuite/internal/billingtest"
	"github.com/smallbiznis/worksuite/internal/observability"
	billingdomain "github.com/smallbiznis/worksuite/internal/providers/billing/domain"
	"github.com/smallbiznis/worksuite/internal/providers/pdf"
	reconciliationsvc "github.com/smallbiznis/worksuite/internal/reconciliation/service"
	subscriptiondomain "github.com/smallbiznis/worksuite/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/worksuite/internal/subscription/repository"
	webhooksvc "github.com/smallbiznis/worksuite/internal/webhook/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "s3cret"

const paidPayload = `{
	"stripeSubscriptionId": "sub_1",
	"stripeInvoiceId": "in_123",
	"stripePaymentIntentId": "pi_1",
	"currency": "eur",
	"status": "paid"
}`

type testServer struct {
	env    *billingtest.Env
	engine *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := billingtest.New(t)
	cfg := env.Cfg
	cfg.Webhook.Secret = testSecret
	cfg.Issuer.Name = "Worksuite Coworking"
	log := zap.NewNop()

	engine := reconciliationsvc.NewEngine(reconciliationsvc.EngineParam{
		Log:        log,
		Cfg:        cfg,
		BillingCfg: env.BillingCfg,
		Ledger:     env.Ledger,
		Provider:   billingdomain.Noop{},
	})
	gateway := webhooksvc.NewGateway(webhooksvc.GatewayParam{
		Log:           log,
		Cfg:           cfg,
		Clock:         env.Clock,
		Subscriptions: env.Subscriptions,
		Engine:        engine,
		Ledger:        env.Ledger,
	})
	invoicer := batchsvc.NewInvoicer(batchsvc.InvoicerParam{
		Log:           log,
		Clock:         env.Clock,
		Cfg:           cfg,
		BillingCfg:    env.BillingCfg,
		Ledger:        env.Ledger,
		Bookings:      env.Bookings,
		Contacts:      env.Contacts,
		Subscriptions: env.Subscriptions,
		SubRepo:       subscriptionrepo.Provide(),
		Provider:      billingdomain.Noop{},
	})

	r := NewEngine(observability.Config{}, nil)
	NewServer(ServerParams{
		Gin:           r,
		Cfg:           cfg,
		Log:           log,
		Gateway:       gateway,
		Ledger:        env.Ledger,
		Accounts:      env.Accounts,
		Contacts:      env.Contacts,
		Bookings:      env.Bookings,
		Subscriptions: env.Subscriptions,
		Invoicer:      invoicer,
		Renderer:      pdf.New(),
		Clock:         env.Clock,
	})

	return &testServer{env: env, engine: r}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) seedSubscription(t *testing.T) subscriptiondomain.Subscription {
	t.Helper()
	contact := s.env.Contact(t, "Ana", "ana@example.com")
	vat := "21"
	return s.env.Subscription(t, subscriptiondomain.CreateSubscriptionRequest{
		ContactID:              contact.ID.String(),
		ExternalSubscriptionID: "sub_1",
		Description:            "Coworking desk",
		MonthlyAmount:          "50.00",
		VATPercent:             &vat,
	})
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func errorType(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, w)
	payload, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error payload: %s", w.Body.String())
	typ, _ := payload["type"].(string)
	return typ
}

func TestInvoiceWebhookRejectsWrongSecret(t *testing.T) {
	srv := newTestServer(t)
	srv.seedSubscription(t)

	w := srv.do(t, http.MethodPost, "/webhooks/billing/invoice", paidPayload, map[string]string{
		"X-Webhook-Secret": "wrong",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", errorType(t, w))
	assert.Equal(t, int64(0), srv.env.CountInvoices(t))
}

func TestInvoiceWebhookCreatesThenReportsDuplicate(t *testing.T) {
	srv := newTestServer(t)
	srv.seedSubscription(t)
	headers := map[string]string{"X-Webhook-Secret": testSecret}

	w := srv.do(t, http.MethodPost, "/webhooks/billing/invoice", paidPayload, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "created", body["status"])
	invoice, ok := body["invoice"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "F042", invoice["number"])

	headers["X-Delivery-Id"] = "retry-1"
	w = srv.do(t, http.MethodPost, "/webhooks/billing/invoice", paidPayload, headers)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, "duplicate", body["status"])
	assert.Equal(t, "retry-1", body["deliveryId"])
	assert.Equal(t, int64(1), srv.env.CountInvoices(t))
}

func TestInvoiceWebhookErrorStatuses(t *testing.T) {
	srv := newTestServer(t)
	sub := srv.seedSubscription(t)
	headers := map[string]string{"X-Webhook-Secret": testSecret}

	w := srv.do(t, http.MethodPost, "/webhooks/billing/invoice", `{"status":`, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", errorType(t, w))

	unknown := `{"stripeSubscriptionId":"sub_missing","stripeInvoiceId":"in_9","status":"paid"}`
	w = srv.do(t, http.MethodPost, "/webhooks/billing/invoice", unknown, headers)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.do(t, http.MethodPost, "/api/subscriptions/"+sub.ID.String()+"/deactivate", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodPost, "/webhooks/billing/invoice", paidPayload, headers)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, int64(0), srv.env.CountInvoices(t))
}

func TestInvoiceReadRoutes(t *testing.T) {
	srv := newTestServer(t)
	srv.seedSubscription(t)

	w := srv.do(t, http.MethodPost, "/webhooks/billing/invoice", paidPayload, map[string]string{
		"X-Webhook-Secret": testSecret,
	})
	require.Equal(t, http.StatusOK, w.Code)
	id := decodeBody(t, w)["invoice"].(map[string]any)["id"].(string)

	w = srv.do(t, http.MethodGet, "/api/invoices", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list, ok := decodeBody(t, w)["data"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)

	w = srv.do(t, http.MethodGet, "/api/invoices/"+id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	item := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, "F042", item["number"])
	assert.NotEmpty(t, item["lines"])

	w = srv.do(t, http.MethodGet, "/api/invoices/"+id+"/pdf", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Body.Bytes())

	w = srv.do(t, http.MethodGet, "/api/invoices/not-a-number", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodGet, "/api/invoices/12345", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBillingAccountRoutes(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/api/billing-accounts", `{"code":"R","name":"Rectificativas","prefix":"R"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = srv.do(t, http.MethodPost, "/api/billing-accounts", `{"code":"R","name":"Again","prefix":"R"}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = srv.do(t, http.MethodPost, "/api/billing-accounts", `{"code":"","name":"Nameless"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodPatch, "/api/billing-accounts/R", `{"active":false}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["data"].(map[string]any)["active"])

	w = srv.do(t, http.MethodPatch, "/api/billing-accounts/ZZ", `{"active":true}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.do(t, http.MethodGet, "/api/billing-accounts", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["data"].([]any), 2)
}

func TestBillingRunRoute(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/api/billing/runs", `{"period":"2026-13"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodPost, "/api/billing/runs", `{"period":"2026-02"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "2026-02", decodeBody(t, w)["data"].(map[string]any)["period"])
}

func TestHealthAndFallback(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorType(t, w))
}
