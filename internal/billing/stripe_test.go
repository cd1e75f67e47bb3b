package billing_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"github.com/alecgard/planboard/internal/billing"
)

type recordedRequest struct {
	Method         string
	Path           string
	Form           url.Values
	Authorization  string
	IdempotencyKey string
}

// stripeStub is a minimal HTTP stand-in for the Stripe API.
type stripeStub struct {
	mu        sync.Mutex
	requests  []recordedRequest
	responses map[string]stubResponse
}

type stubResponse struct {
	status int
	body   string
}

func newStripeStub(t *testing.T) (*stripeStub, *billing.StripeProvider) {
	t.Helper()
	stub := &stripeStub{responses: map[string]stubResponse{}}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		MaxNetworkRetries: stripe.Int64(0),
	})
	provider := billing.NewStripeProvider("sk_test_123", billing.StripeOptions{
		Backends: &stripe.Backends{API: backend, Connect: backend, Uploads: backend},
	})
	return stub, provider
}

func (s *stripeStub) on(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[method+" "+path] = stubResponse{status: status, body: body}
}

func (s *stripeStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	s.mu.Lock()
	s.requests = append(s.requests, recordedRequest{
		Method:         r.Method,
		Path:           r.URL.Path,
		Form:           r.Form,
		Authorization:  r.Header.Get("Authorization"),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	resp, ok := s.responses[r.Method+" "+r.URL.Path]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"unexpected request"}}`))
		return
	}
	w.WriteHeader(resp.status)
	_, _ = w.Write([]byte(resp.body))
}

func (s *stripeStub) last() recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func TestStripeProvider_CreateProduct(t *testing.T) {
	stub, p := newStripeStub(t)
	stub.on(http.MethodPost, "/v1/products", http.StatusOK, `{"id":"prod_123","object":"product","active":true}`)

	id, err := p.CreateProduct(context.Background(), billing.ProductInput{Name: "Starter", Description: "Small teams", PlanID: "plan-1"})
	require.NoError(t, err)
	require.Equal(t, "prod_123", id)

	req := stub.last()
	require.Equal(t, "Bearer sk_test_123", req.Authorization)
	require.Equal(t, "Starter", req.Form.Get("name"))
	require.Equal(t, "plan-1", req.Form.Get("metadata[plan_id]"))
}

func TestStripeProvider_CreatePrice(t *testing.T) {
	stub, p := newStripeStub(t)
	stub.on(http.MethodPost, "/v1/prices", http.StatusOK, `{"id":"price_1","object":"price","active":true}`)

	id, err := p.CreatePrice(context.Background(), billing.PriceInput{
		ProductID:  "prod_123",
		UnitAmount: 1499,
		Currency:   "usd",
		Interval:   "month",
		PlanID:     "plan-1",
		TrialDays:  14,
	})
	require.NoError(t, err)
	require.Equal(t, "price_1", id)

	form := stub.last().Form
	require.Equal(t, "prod_123", form.Get("product"))
	require.Equal(t, "1499", form.Get("unit_amount"))
	require.Equal(t, "month", form.Get("recurring[interval]"))
	require.Equal(t, "14", form.Get("metadata[trial_days]"))
}

func TestStripeProvider_DeactivatePrice(t *testing.T) {
	stub, p := newStripeStub(t)
	stub.on(http.MethodPost, "/v1/prices/price_old", http.StatusOK, `{"id":"price_old","object":"price","active":false}`)

	require.NoError(t, p.DeactivatePrice(context.Background(), "price_old"))
	require.Equal(t, "false", stub.last().Form.Get("active"))
}

func TestStripeProvider_CreateSubscription(t *testing.T) {
	stub, p := newStripeStub(t)
	stub.on(http.MethodPost, "/v1/subscriptions", http.StatusOK, `{
		"id": "sub_42",
		"object": "subscription",
		"status": "trialing",
		"customer": "cus_1",
		"trial_end": 1893456000,
		"items": {"object": "list", "data": [{"id": "si_1", "quantity": 1, "price": {"id": "price_1"}}]}
	}`)

	sub, err := p.CreateSubscription(context.Background(), billing.SubscriptionInput{
		CustomerID:     "cus_1",
		PriceID:        "price_1",
		TrialDays:      7,
		UserID:         "user-1",
		PlanID:         "plan-1",
		IdempotencyKey: "idem-abc",
	})
	require.NoError(t, err)
	require.Equal(t, "sub_42", sub.ID)
	require.Equal(t, billing.StatusTrialing, sub.Status)
	require.Equal(t, "price_1", sub.PriceID)
	require.Equal(t, "cus_1", sub.CustomerID)
	require.NotNil(t, sub.TrialEndsAt)
	require.Equal(t, int64(1893456000), sub.TrialEndsAt.Unix())

	req := stub.last()
	require.Equal(t, "idem-abc", req.IdempotencyKey)
	require.Equal(t, "price_1", req.Form.Get("items[0][price]"))
	require.Equal(t, "7", req.Form.Get("trial_period_days"))
}

func TestStripeProvider_CancelSubscription(t *testing.T) {
	stub, p := newStripeStub(t)
	stub.on(http.MethodDelete, "/v1/subscriptions/sub_42", http.StatusOK, `{"id":"sub_42","object":"subscription","status":"canceled"}`)

	require.NoError(t, p.CancelSubscription(context.Background(), "sub_42"))
	require.Equal(t, http.MethodDelete, stub.last().Method)
}

func TestStripeProvider_ScheduleCancel(t *testing.T) {
	stub, p := newStripeStub(t)
	stub.on(http.MethodPost, "/v1/subscriptions/sub_42", http.StatusOK,
		`{"id":"sub_42","object":"subscription","status":"active","cancel_at_period_end":true,"current_period_end":1893456000}`)

	sub, err := p.ScheduleCancel(context.Background(), "sub_42")
	require.NoError(t, err)
	require.True(t, sub.CancelAtPeriodEnd)
	require.Equal(t, billing.StatusActive, sub.Status)
	require.NotNil(t, sub.CurrentPeriodEnd)
	require.Equal(t, int64(1893456000), sub.CurrentPeriodEnd.Unix())

	req := stub.last()
	require.Equal(t, http.MethodPost, req.Method)
	require.Equal(t, "true", req.Form.Get("cancel_at_period_end"))
}

func TestStripeProvider_RemoteErrorCarriesMessage(t *testing.T) {
	stub, p := newStripeStub(t)
	stub.on(http.MethodPost, "/v1/customers", http.StatusPaymentRequired,
		`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`)

	_, err := p.CreateCustomer(context.Background(), billing.CustomerInput{Email: "a@example.com"})
	require.Error(t, err)

	var re *billing.RemoteError
	require.True(t, errors.As(err, &re))
	require.Equal(t, "create_customer", re.Op)
	require.Equal(t, "card_declined", re.Code)
	require.Equal(t, http.StatusPaymentRequired, re.Status)
	require.Equal(t, "Your card was declined.", billing.Message(err))
}

func TestStripeProvider_PingAndPaymentMethods(t *testing.T) {
	stub, p := newStripeStub(t)
	stub.on(http.MethodGet, "/v1/products", http.StatusOK, `{"object":"list","data":[],"has_more":false,"url":"/v1/products"}`)
	stub.on(http.MethodGet, "/v1/payment_methods", http.StatusOK,
		`{"object":"list","data":[{"id":"pm_1","object":"payment_method","type":"card"}],"has_more":false,"url":"/v1/payment_methods"}`)

	require.NoError(t, p.Ping(context.Background()))

	has, err := p.HasPaymentMethod(context.Background(), "cus_1")
	require.NoError(t, err)
	require.True(t, has)
	require.Equal(t, "cus_1", stub.last().Form.Get("customer"))

	has, err = p.HasPaymentMethod(context.Background(), "")
	require.NoError(t, err)
	require.False(t, has)
}

type callCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *callCounter) IncBillingCall(op, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op+":"+outcome]++
}

func TestStripeProvider_RecordsMetrics(t *testing.T) {
	stub, p := newStripeStub(t)
	stub.on(http.MethodPost, "/v1/products/prod_1", http.StatusOK, `{"id":"prod_1","object":"product"}`)
	counter := &callCounter{calls: map[string]int{}}
	p.SetMetrics(counter)

	require.NoError(t, p.DeactivateProduct(context.Background(), "prod_1"))
	require.Error(t, p.DeactivateProduct(context.Background(), "prod_missing"))

	require.Equal(t, 1, counter.calls["deactivate_product:ok"])
	require.Equal(t, 1, counter.calls["deactivate_product:error"])
}
