package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	validator "github.com/go-playground/validator/v10"

	"cucibersih/backend/internal/billing"
	"cucibersih/backend/internal/domain"
	"cucibersih/backend/internal/service"
	"cucibersih/backend/internal/store"
)

const sessionCookie = "cb_session"

type API struct {
	service       *service.Service
	billing       *billing.Engine
	auth          *AuthManager
	cronToken     string
	allowedOrigin string
	validate      *validator.Validate
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, engine *billing.Engine, auth *AuthManager, cronToken, allowedOrigin string) *API {
	return &API{
		service:       svc,
		billing:       engine,
		auth:          auth,
		cronToken:     cronToken,
		allowedOrigin: allowedOrigin,
		validate:      validator.New(),
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/register", a.handleRegister)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/password-reset", a.handlePasswordResetRequest)
	mux.HandleFunc("/api/v1/auth/password-reset/confirm", a.handlePasswordResetConfirm)
	mux.HandleFunc("/api/v1/billing/proof", a.handleProofUpload)
	mux.HandleFunc("/api/v1/cron/billing-scan", a.handleBillingScan)
	mux.HandleFunc("/api/v1/billing/invoices/", a.handleInvoiceActions)

	mux.HandleFunc("/api/v1/merchant/profile", a.requireAuth(a.handleProfile))
	mux.HandleFunc("/api/v1/customers", a.requireAuth(a.handleCustomers))
	mux.HandleFunc("/api/v1/customers/", a.requireAuth(a.handleCustomerActions))
	mux.HandleFunc("/api/v1/durations", a.requireAuth(a.handleDurations))
	mux.HandleFunc("/api/v1/durations/", a.requireAuth(a.handleDurationActions))
	mux.HandleFunc("/api/v1/services", a.requireAuth(a.handleServices))
	mux.HandleFunc("/api/v1/services/", a.requireAuth(a.handleServiceActions))
	mux.HandleFunc("/api/v1/notes", a.requireAuth(a.handleNotes))
	mux.HandleFunc("/api/v1/printers", a.requireAuth(a.handlePrinters))
	mux.HandleFunc("/api/v1/printers/", a.requireAuth(a.handlePrinterActions))
	mux.HandleFunc("/api/v1/transactions", a.requireAuth(a.handleTransactions))
	mux.HandleFunc("/api/v1/transactions/", a.requireAuth(a.handleTransactionActions))
	mux.HandleFunc("/api/v1/payments", a.requireAuth(a.handlePayments))
	mux.HandleFunc("/api/v1/plans", a.requireAuth(a.handlePlans))
	mux.HandleFunc("/api/v1/billing/subscribe", a.requireAuth(a.handleSubscribe))
	mux.HandleFunc("/api/v1/billing/subscription", a.requireAuth(a.handleSubscription))
	mux.HandleFunc("/api/v1/billing/invoices", a.requireAuth(a.handleInvoiceList))
	mux.HandleFunc("/api/v1/reports/revenue", a.requireAuth(a.handleRevenueReport))
	mux.HandleFunc("/api/v1/reports/revenue/xlsx", a.requireAuth(a.handleRevenueReportXLSX))
	mux.HandleFunc("/api/v1/dashboard", a.requireAuth(a.handleDashboard))

	return a.withMiddleware(mux)
}

// billingExemptPrefixes are authenticated paths that stay reachable after the
// subscription lapses, so an expired merchant can still pay for a renewal.
var billingExemptPrefixes = []string{
	"/api/v1/plans",
	"/api/v1/billing/",
	"/api/v1/merchant/profile",
}

func subscriptionExempt(path string) bool {
	for _, prefix := range billingExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		// The token claim is never trusted for subscription validity; the
		// cached store-backed value decides.
		if !subscriptionExempt(r.URL.Path) {
			sub, err := a.billing.CurrentSubscription(r.Context(), actor.MerchantID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if err != nil || sub.EndDate.Before(time.Now()) {
				writeError(w, http.StatusForbidden, errors.New("langganan Anda telah berakhir, silakan perpanjang paket"))
				return
			}
			actor.SubscriptionEnd = sub.EndDate
		}

		// sliding session: every authenticated request gets a fresh token
		if refreshed, expiresAt, err := a.auth.Sign(actor); err == nil {
			w.Header().Set("X-Refreshed-Token", refreshed)
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    refreshed,
				Path:     "/",
				Expires:  expiresAt,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func bearerToken(r *http.Request) string {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		return strings.TrimSpace(authorization[len("Bearer "):])
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func (a *API) requireCronToken(w http.ResponseWriter, r *http.Request) bool {
	provided := strings.TrimSpace(r.Header.Get("X-Cron-Token"))
	if a.cronToken == "" || provided != a.cronToken {
		writeError(w, http.StatusUnauthorized, errors.New("invalid cron token"))
		return false
	}
	return true
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.RegisterRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	merchant, err := a.service.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, errors.New("email sudah terdaftar"))
			return
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"merchant": merchant})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	merchant, subscriptionEnd, err := a.service.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, store.ErrInvalidInput) {
			writeError(w, http.StatusUnauthorized, errors.New("email atau kata sandi salah"))
			return
		}
		writeStoreError(w, err)
		return
	}
	a.loginLimiter.Reset(clientKey(r))

	actor := domain.Actor{
		MerchantID:      merchant.ID,
		Email:           merchant.Email,
		SubscriptionEnd: subscriptionEnd,
	}
	token, expiresAt, err := a.auth.Sign(actor)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, domain.LoginResponse{
		AccessToken:     token,
		ExpiresAt:       expiresAt.Format(time.RFC3339),
		Merchant:        *merchant,
		SubscriptionEnd: subscriptionEnd,
	})
}

func (a *API) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.PasswordResetRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	err := a.service.RequestPasswordReset(r.Context(), req.Email)
	switch {
	case errors.Is(err, store.ErrCooldown):
		writeError(w, http.StatusTooManyRequests, errors.New("tunggu 60 detik sebelum meminta kode baru"))
		return
	case errors.Is(err, store.ErrNotFound):
		// do not reveal whether the address exists
	case err != nil:
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "jika email terdaftar, kode reset telah dikirim",
	})
}

func (a *API) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.PasswordResetConfirm
	if !a.decodeValid(w, r, &req) {
		return
	}

	if err := a.service.ConfirmPasswordReset(r.Context(), req); err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusBadRequest, errors.New("kode tidak berlaku"))
			return
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "kata sandi berhasil diganti"})
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		merchant, err := a.service.GetProfile(r.Context())
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"merchant": merchant})
	case http.MethodPut, http.MethodPatch:
		var req domain.MerchantUpdateRequest
		if !a.decodeValid(w, r, &req) {
			return
		}
		merchant, err := a.service.UpdateProfile(r.Context(), req)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"merchant": merchant})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Cron-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

// Reset clears a client's attempt history, so only failed logins count
// toward the lockout.
func (l *attemptLimiter) Reset(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

// decodeValid decodes the JSON body into dest and runs the validator tags.
// Validation failures answer 400 with a field → rule map and return false.
func (a *API) decodeValid(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	if err := a.validate.Struct(dest); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[strings.ToLower(fe.Field())] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": fields,
			})
			return false
		}
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveInt(raw string, fallback int, max int) int {
	value := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			value = parsed
		}
	}
	if max > 0 && value > max {
		return max
	}
	return value
}

// writeStoreError maps the store sentinels onto HTTP statuses. Everything
// unrecognized is a 500 with a generic body.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrCooldown):
		writeError(w, http.StatusTooManyRequests, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic so internals (SQL text, file paths) never leak.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
