package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cucibersih/backend/internal/billing"
	"cucibersih/backend/internal/cache"
	"cucibersih/backend/internal/domain"
	"cucibersih/backend/internal/mailer"
	"cucibersih/backend/internal/service"
	"cucibersih/backend/internal/store/memory"
)

const testCronToken = "cron-token-for-tests"

type testEnv struct {
	api        *API
	repo       *memory.Store
	handler    http.Handler
	merchantID string
	token      string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := memory.NewSeeded()
	engine := billing.NewEngine(repo, cache.NoopSubscriptionCache{}, mailer.NoopMailer{}, []byte("test-secret-test-secret-test-1234"), "http://localhost:3000", "support@example.com", time.UTC)
	svc := service.New(repo, engine, mailer.NoopMailer{})
	auth := NewAuthManager("test-secret-test-secret-test-1234", 48*time.Hour)
	api := New(svc, engine, auth, testCronToken, "http://localhost:3000")

	merchant, err := svc.Register(context.Background(), domain.RegisterRequest{
		Name:     "Laundry Kenanga",
		Email:    "kenanga@example.com",
		Phone:    "+628777777777",
		Password: "rahasia-123",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	token, _, err := auth.Sign(domain.Actor{MerchantID: merchant.ID, Email: merchant.Email})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	return &testEnv{
		api:        api,
		repo:       repo,
		handler:    api.Handler(),
		merchantID: merchant.ID,
		token:      token,
	}
}

func (env *testEnv) activateSubscription(t *testing.T) {
	t.Helper()
	plan, err := env.repo.GetPlanByCode(context.Background(), "BULANAN")
	if err != nil {
		t.Fatalf("plan missing: %v", err)
	}
	if err := env.repo.ReplaceSubscription(context.Background(), domain.Subscription{
		MerchantID: env.merchantID,
		PlanID:     plan.ID,
		StartDate:  time.Now().AddDate(0, 0, -1),
		EndDate:    time.Now().AddDate(0, 0, 29),
		Status:     domain.SubscriptionStatusActive,
	}); err != nil {
		t.Fatalf("seed subscription failed: %v", err)
	}
}

func (env *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpointIsPublic(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestProtectedPathRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/v1/customers", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = env.do(http.MethodGet, "/api/v1/customers", "not-a-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bogus token, got %d", rec.Code)
	}
}

func TestLapsedSubscriptionGets403(t *testing.T) {
	env := newTestEnv(t)

	// never subscribed
	rec := env.do(http.MethodGet, "/api/v1/customers", env.token, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without subscription, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "langganan") {
		t.Fatalf("expected subscription-expired message, got %s", rec.Body.String())
	}

	// billing paths stay reachable so the merchant can renew
	rec = env.do(http.MethodGet, "/api/v1/plans", env.token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected plans to stay reachable, got %d", rec.Code)
	}

	// expired subscription behaves the same as none
	plan, _ := env.repo.GetPlanByCode(context.Background(), "BULANAN")
	if err := env.repo.ReplaceSubscription(context.Background(), domain.Subscription{
		MerchantID: env.merchantID,
		PlanID:     plan.ID,
		StartDate:  time.Now().AddDate(0, 0, -60),
		EndDate:    time.Now().AddDate(0, 0, -30),
		Status:     domain.SubscriptionStatusInactive,
	}); err != nil {
		t.Fatalf("seed expired subscription failed: %v", err)
	}
	rec = env.do(http.MethodGet, "/api/v1/customers", env.token, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for lapsed subscription, got %d", rec.Code)
	}
}

func TestAuthorizedRequestSlidesSession(t *testing.T) {
	env := newTestEnv(t)
	env.activateSubscription(t)

	rec := env.do(http.MethodPost, "/api/v1/customers", env.token,
		`{"name":"Jane","phone":"+6281234567890","gender":"Perempuan"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Refreshed-Token") == "" {
		t.Fatalf("expected a refreshed session token on the response")
	}

	var payload struct {
		Customer domain.Customer `json:"customer"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if payload.Customer.ID == "" || payload.Customer.Name != "Jane" {
		t.Fatalf("unexpected customer payload %+v", payload.Customer)
	}
}

func TestValidationErrorsReturnFieldMap(t *testing.T) {
	env := newTestEnv(t)
	env.activateSubscription(t)

	rec := env.do(http.MethodPost, "/api/v1/customers", env.token, `{"name":"J","phone":"123"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var payload struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if payload.Fields["name"] != "min" || payload.Fields["phone"] != "min" {
		t.Fatalf("expected field-level rules, got %+v", payload.Fields)
	}
}

func TestLoginIssuesTokenAndCookie(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/auth/login", "",
		`{"email":"kenanga@example.com","password":"rahasia-123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	if resp.AccessToken == "" || resp.Merchant.Email != "kenanga@example.com" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	var sessionSet bool
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == sessionCookie && cookie.Value != "" && cookie.HttpOnly {
			sessionSet = true
		}
	}
	if !sessionSet {
		t.Fatalf("expected http-only session cookie")
	}

	rec = env.do(http.MethodPost, "/api/v1/auth/login", "",
		`{"email":"kenanga@example.com","password":"salah-salah"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}
}

func TestSuccessfulLoginsDoNotCountTowardLockout(t *testing.T) {
	env := newTestEnv(t)

	good := `{"email":"kenanga@example.com","password":"rahasia-123"}`
	for i := 0; i < 8; i++ {
		rec := env.do(http.MethodPost, "/api/v1/auth/login", "", good)
		if rec.Code != http.StatusOK {
			t.Fatalf("login %d: expected 200, got %d: %s", i+1, rec.Code, rec.Body.String())
		}
	}

	// only failed attempts accumulate toward the 5-per-minute lockout
	bad := `{"email":"kenanga@example.com","password":"salah-salah"}`
	for i := 0; i < 5; i++ {
		rec := env.do(http.MethodPost, "/api/v1/auth/login", "", bad)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("failed login %d: expected 401, got %d", i+1, rec.Code)
		}
	}
	if rec := env.do(http.MethodPost, "/api/v1/auth/login", "", good); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d", rec.Code)
	}
}

func TestCronEndpointsRequireSharedSecret(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cron/billing-scan", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cron token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/cron/billing-scan", nil)
	req.Header.Set("X-Cron-Token", testCronToken)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with cron token, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestInvoiceDecisionOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	invoice, token, err := env.api.billing.PurchasePlan(ctx, env.merchantID, "BULANAN")
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	rec := env.do(http.MethodPost, "/api/v1/billing/proof", "",
		`{"token":"`+token+`","proof_url":"https://cdn.example.com/proof.jpg"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on proof upload, got %d: %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodPut, "/api/v1/billing/invoices/"+invoice.InvoiceID+"/decision",
		strings.NewReader(`{"status":"Diterima"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Cron-Token", testCronToken)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on decision, got %d: %s", rec.Code, rec.Body.String())
	}

	// replayed decision must not extend again
	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPut, "/api/v1/billing/invoices/"+invoice.InvoiceID+"/decision",
		strings.NewReader(`{"status":"Diterima"}`))
	req2.Header.Set("Content-Type", "application/json")
	req2.Header.Set("X-Cron-Token", testCronToken)
	env.handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusConflict {
		t.Fatalf("expected 409 on replayed decision, got %d", rec2.Code)
	}

	sub, err := env.repo.GetSubscription(ctx, env.merchantID)
	if err != nil {
		t.Fatalf("subscription missing after acceptance: %v", err)
	}
	if !sub.EndDate.After(time.Now().AddDate(0, 0, 29)) {
		t.Fatalf("expected subscription extended ~30 days, got %v", sub.EndDate)
	}

	// with the subscription active the protected surface opens up
	rec = env.do(http.MethodGet, "/api/v1/customers", env.token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after renewal, got %d", rec.Code)
	}
}

func TestUnknownInvoiceStatusRejected(t *testing.T) {
	env := newTestEnv(t)

	invoice, _, err := env.api.billing.PurchasePlan(context.Background(), env.merchantID, "BULANAN")
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPut, "/api/v1/billing/invoices/"+invoice.InvoiceID+"/decision",
		strings.NewReader(`{"status":"Dibatalkan"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Cron-Token", testCronToken)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRevenueReportXLSXDownload(t *testing.T) {
	env := newTestEnv(t)
	env.activateSubscription(t)
	ctx := context.Background()

	customer, _ := env.repo.CreateCustomer(ctx, domain.Customer{MerchantID: env.merchantID, Name: "Jane", Phone: "+6281234567890"})
	duration, _ := env.repo.CreateDuration(ctx, domain.Duration{MerchantID: env.merchantID, Name: "Reguler", Value: 3, Type: "hari"})
	wash, _ := env.repo.CreateService(ctx, domain.Service{
		MerchantID: env.merchantID,
		Name:       "Cuci Kering",
		Unit:       "kg",
		Prices:     []domain.ServicePrice{{DurationID: duration.ID, Price: 7000}},
	})
	day := time.Date(2026, 8, 10, 8, 0, 0, 0, time.UTC)
	order, err := env.repo.CreateOrder(ctx, domain.Order{
		MerchantID: env.merchantID,
		CustomerID: customer.ID,
		DurationID: duration.ID,
		CreatedAt:  day,
		Items:      []domain.OrderItem{{ServiceID: wash.ID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("seed order failed: %v", err)
	}
	if _, err := env.repo.UpdateOrderStatus(ctx, env.merchantID, order.ID, domain.OrderStatusSelesai, day); err != nil {
		t.Fatalf("complete order failed: %v", err)
	}

	rec := env.do(http.MethodGet, "/api/v1/reports/revenue/xlsx?from=2026-08-10&to=2026-08-12", env.token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("expected xlsx content type, got %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "laporan-pendapatan") {
		t.Fatalf("expected attachment disposition, got %q", cd)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected workbook bytes")
	}

	rec = env.do(http.MethodGet, "/api/v1/reports/revenue?from=2026-08-12&to=2026-08-10", env.token, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for reversed range, got %d", rec.Code)
	}
}
