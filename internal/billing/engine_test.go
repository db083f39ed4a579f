package billing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"cucibersih/backend/internal/cache"
	"cucibersih/backend/internal/domain"
	"cucibersih/backend/internal/mailer"
	"cucibersih/backend/internal/store"
	"cucibersih/backend/internal/store/memory"
)

type mailRecorder struct {
	mu       sync.Mutex
	messages []mailer.Message
}

func (m *mailRecorder) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mailRecorder) sent() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.messages...)
}

func newTestEngine(t *testing.T) (*Engine, *memory.Store, *mailRecorder, string) {
	t.Helper()
	repo := memory.NewSeeded()
	mail := &mailRecorder{}
	engine := NewEngine(repo, cache.NoopSubscriptionCache{}, mail, []byte("test-secret-test-secret-test-1234"), "http://localhost:3000", "support@example.com", time.UTC)

	merchant, err := repo.CreateMerchant(context.Background(), domain.MerchantAccount{
		Merchant: domain.Merchant{
			Name:  "Laundry Anggrek",
			Email: "anggrek@example.com",
			Phone: "+628444444444",
		},
		PasswordHash: "$2a$10$placeholderplaceholderplace",
	})
	if err != nil {
		t.Fatalf("seed merchant failed: %v", err)
	}
	return engine, repo, mail, merchant.ID
}

func TestPurchaseProofDecideLifecycle(t *testing.T) {
	engine, repo, mail, merchantID := newTestEngine(t)
	ctx := context.Background()

	invoice, token, err := engine.PurchasePlan(ctx, merchantID, "BULANAN")
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if invoice.Status != domain.InvoiceStatusMenungguPembayaran {
		t.Fatalf("expected Menunggu Pembayaran, got %q", invoice.Status)
	}
	if !strings.HasPrefix(invoice.InvoiceID, "CBG-") {
		t.Fatalf("expected CBG invoice id, got %q", invoice.InvoiceID)
	}
	if invoice.Amount != 99000 {
		t.Fatalf("expected plan price on invoice, got %d", invoice.Amount)
	}
	if len(mail.sent()) != 1 || mail.sent()[0].To != "anggrek@example.com" {
		t.Fatalf("expected invoice mail to merchant, got %+v", mail.sent())
	}

	// a second purchase while the invoice is open is rejected
	if _, _, err := engine.PurchasePlan(ctx, merchantID, "BULANAN"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on open invoice, got %v", err)
	}

	uploaded, err := engine.UploadProof(ctx, token, "https://cdn.example.com/proof.jpg")
	if err != nil {
		t.Fatalf("upload proof failed: %v", err)
	}
	if uploaded.Status != domain.InvoiceStatusMenungguKonfirmasi || uploaded.ProofURL == "" {
		t.Fatalf("unexpected invoice after proof upload %+v", uploaded)
	}

	// re-upload against a non-pending invoice is a conflict
	if _, err := engine.UploadProof(ctx, token, "https://cdn.example.com/proof2.jpg"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on duplicate proof, got %v", err)
	}

	before := time.Now()
	decided, err := engine.Decide(ctx, invoice.InvoiceID, domain.InvoiceStatusDiterima)
	if err != nil {
		t.Fatalf("decide failed: %v", err)
	}
	if decided.Status != domain.InvoiceStatusDiterima || decided.DecidedAt == nil {
		t.Fatalf("unexpected decided invoice %+v", decided)
	}

	sub, err := repo.GetSubscription(ctx, merchantID)
	if err != nil {
		t.Fatalf("subscription missing after acceptance: %v", err)
	}
	wantEnd := before.AddDate(0, 0, 30)
	if sub.EndDate.Before(wantEnd.Add(-time.Minute)) || sub.EndDate.After(wantEnd.Add(time.Minute)) {
		t.Fatalf("expected end ~30 days out, got %v", sub.EndDate)
	}
	if sub.Status != domain.SubscriptionStatusActive {
		t.Fatalf("expected active subscription, got %q", sub.Status)
	}
}

func TestDecideTerminalStateIsFinal(t *testing.T) {
	engine, _, _, merchantID := newTestEngine(t)
	ctx := context.Background()

	invoice, token, err := engine.PurchasePlan(ctx, merchantID, "BULANAN")
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if _, err := engine.UploadProof(ctx, token, "https://cdn.example.com/proof.jpg"); err != nil {
		t.Fatalf("upload proof failed: %v", err)
	}
	if _, err := engine.Decide(ctx, invoice.InvoiceID, domain.InvoiceStatusDiterima); err != nil {
		t.Fatalf("decide failed: %v", err)
	}

	// a replayed acceptance must not extend the subscription again
	if _, err := engine.Decide(ctx, invoice.InvoiceID, domain.InvoiceStatusDiterima); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on re-decide, got %v", err)
	}
	if _, err := engine.Decide(ctx, invoice.InvoiceID, domain.InvoiceStatusDitolak); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict flipping a terminal state, got %v", err)
	}
}

func TestDecideRejectsUnknownStatus(t *testing.T) {
	engine, _, _, merchantID := newTestEngine(t)
	ctx := context.Background()

	invoice, _, err := engine.PurchasePlan(ctx, merchantID, "BULANAN")
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if _, err := engine.Decide(ctx, invoice.InvoiceID, "Dibatalkan"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown status, got %v", err)
	}
}

func TestDecideRejectedSendsCancellation(t *testing.T) {
	engine, repo, mail, merchantID := newTestEngine(t)
	ctx := context.Background()

	invoice, token, err := engine.PurchasePlan(ctx, merchantID, "BULANAN")
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if _, err := engine.UploadProof(ctx, token, "https://cdn.example.com/proof.jpg"); err != nil {
		t.Fatalf("upload proof failed: %v", err)
	}

	if _, err := engine.Decide(ctx, invoice.InvoiceID, domain.InvoiceStatusDitolak); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	if _, err := repo.GetSubscription(ctx, merchantID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("rejection must not create a subscription, got %v", err)
	}

	messages := mail.sent()
	last := messages[len(messages)-1]
	if last.To != "anggrek@example.com" || !strings.Contains(last.Subject, "ditolak") {
		t.Fatalf("expected rejection mail to merchant, got %+v", last)
	}
}

func TestZeroDurationPlanEndsAtAcceptance(t *testing.T) {
	engine, repo, _, merchantID := newTestEngine(t)
	ctx := context.Background()

	invoice, token, err := engine.PurchasePlan(ctx, merchantID, "TRIAL")
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if _, err := engine.UploadProof(ctx, token, "https://cdn.example.com/proof.jpg"); err != nil {
		t.Fatalf("upload proof failed: %v", err)
	}

	before := time.Now()
	if _, err := engine.Decide(ctx, invoice.InvoiceID, domain.InvoiceStatusDiterima); err != nil {
		t.Fatalf("decide failed: %v", err)
	}

	sub, err := repo.GetSubscription(ctx, merchantID)
	if err != nil {
		t.Fatalf("subscription missing: %v", err)
	}
	if sub.EndDate.Before(before.Add(-time.Minute)) || sub.EndDate.After(before.Add(time.Minute)) {
		t.Fatalf("expected end at acceptance time, got %v", sub.EndDate)
	}
}

func TestProofTokenIsScoped(t *testing.T) {
	engine, _, _, merchantID := newTestEngine(t)
	ctx := context.Background()

	if _, _, err := engine.PurchasePlan(ctx, merchantID, "BULANAN"); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	if _, err := engine.UploadProof(ctx, "not-a-token", "https://cdn.example.com/proof.jpg"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for bogus token, got %v", err)
	}

	other := NewEngine(memory.NewSeeded(), cache.NoopSubscriptionCache{}, mailer.NoopMailer{}, []byte("another-secret-another-secret-12"), "http://localhost:3000", "support@example.com", time.UTC)
	foreign, err := other.ProofUploadToken("CBG-999", "x@example.com")
	if err != nil {
		t.Fatalf("sign foreign token failed: %v", err)
	}
	if _, err := engine.UploadProof(ctx, foreign, "https://cdn.example.com/proof.jpg"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for foreign-signed token, got %v", err)
	}
}

func TestDailyScanIssuesRenewalsAndClosures(t *testing.T) {
	engine, repo, mail, merchantID := newTestEngine(t)
	ctx := context.Background()

	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	engine.SetClock(func() time.Time { return now })

	plan, err := repo.GetPlanByCode(ctx, "BULANAN")
	if err != nil {
		t.Fatalf("plan missing: %v", err)
	}

	// subscription ending in exactly five days
	if err := repo.ReplaceSubscription(ctx, domain.Subscription{
		MerchantID: merchantID,
		PlanID:     plan.ID,
		StartDate:  now.AddDate(0, 0, -25),
		EndDate:    now.AddDate(0, 0, 5),
		Status:     domain.SubscriptionStatusActive,
	}); err != nil {
		t.Fatalf("seed subscription failed: %v", err)
	}

	// merchant whose subscription ended yesterday
	closed, err := repo.CreateMerchant(ctx, domain.MerchantAccount{
		Merchant: domain.Merchant{
			Name:  "Laundry Tutup",
			Email: "tutup@example.com",
			Phone: "+628555555555",
		},
		PasswordHash: "$2a$10$placeholderplaceholderplace",
	})
	if err != nil {
		t.Fatalf("seed closed merchant failed: %v", err)
	}
	if err := repo.ReplaceSubscription(ctx, domain.Subscription{
		MerchantID: closed.ID,
		PlanID:     plan.ID,
		StartDate:  now.AddDate(0, 0, -31),
		EndDate:    now.AddDate(0, 0, -1),
		Status:     domain.SubscriptionStatusInactive,
	}); err != nil {
		t.Fatalf("seed closed subscription failed: %v", err)
	}

	result, err := engine.RunDailyScan(ctx)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if result.RenewalInvoices != 1 || result.RemindersSent != 1 || result.ClosureNotices != 1 {
		t.Fatalf("unexpected scan result %+v", result)
	}

	invoices, err := repo.ListBillingInvoices(ctx, merchantID)
	if err != nil || len(invoices) != 1 {
		t.Fatalf("expected one renewal invoice, got %d (%v)", len(invoices), err)
	}
	if invoices[0].Amount != plan.Price {
		t.Fatalf("renewal invoice should carry the plan price, got %d", invoices[0].Amount)
	}

	var reminder, closure bool
	for _, msg := range mail.sent() {
		if msg.To == "anggrek@example.com" && strings.Contains(msg.Subject, "berakhir") {
			reminder = true
		}
		if msg.To == "tutup@example.com" && strings.Contains(msg.Subject, "dinonaktifkan") {
			closure = true
		}
	}
	if !reminder || !closure {
		t.Fatalf("expected reminder and closure mails, got %+v", mail.sent())
	}

	// a second scan the same day must not duplicate the invoice
	again, err := engine.RunDailyScan(ctx)
	if err != nil {
		t.Fatalf("second scan failed: %v", err)
	}
	if again.RenewalInvoices != 0 {
		t.Fatalf("expected no duplicate renewal invoice, got %d", again.RenewalInvoices)
	}
}

// flakyRepo fails selected calls a set number of times to exercise decision
// retries after transient store errors.
type flakyRepo struct {
	store.Repository
	planErrs   int
	acceptErrs int
}

func (f *flakyRepo) GetPlanByID(ctx context.Context, id string) (*domain.Plan, error) {
	if f.planErrs > 0 {
		f.planErrs--
		return nil, errors.New("connection reset")
	}
	return f.Repository.GetPlanByID(ctx, id)
}

func (f *flakyRepo) AcceptInvoice(ctx context.Context, invoiceID string, sub domain.Subscription, at time.Time) (*domain.BillingInvoice, error) {
	if f.acceptErrs > 0 {
		f.acceptErrs--
		return nil, errors.New("connection reset")
	}
	return f.Repository.AcceptInvoice(ctx, invoiceID, sub, at)
}

func TestDecideSurvivesTransientStoreFailures(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSeeded()
	flaky := &flakyRepo{Repository: repo, planErrs: 1, acceptErrs: 1}
	engine := NewEngine(flaky, cache.NoopSubscriptionCache{}, mailer.NoopMailer{}, []byte("test-secret-test-secret-test-1234"), "http://localhost:3000", "support@example.com", time.UTC)

	merchant, err := repo.CreateMerchant(ctx, domain.MerchantAccount{
		Merchant: domain.Merchant{
			Name:  "Laundry Flamboyan",
			Email: "flamboyan@example.com",
			Phone: "+628555555555",
		},
		PasswordHash: "$2a$10$placeholderplaceholderplace",
	})
	if err != nil {
		t.Fatalf("seed merchant failed: %v", err)
	}

	invoice, token, err := engine.PurchasePlan(ctx, merchant.ID, "BULANAN")
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if _, err := engine.UploadProof(ctx, token, "https://cdn.example.com/proof.jpg"); err != nil {
		t.Fatalf("upload proof failed: %v", err)
	}

	// the plan lookup fails once, then the acceptance write fails once;
	// neither attempt may commit the decision or write a subscription
	for attempt := 1; attempt <= 2; attempt++ {
		if _, err := engine.Decide(ctx, invoice.InvoiceID, domain.InvoiceStatusDiterima); err == nil {
			t.Fatalf("attempt %d: expected decide to fail", attempt)
		}
		current, err := repo.GetBillingInvoice(ctx, invoice.InvoiceID)
		if err != nil {
			t.Fatalf("attempt %d: invoice lookup failed: %v", attempt, err)
		}
		if current.Status != domain.InvoiceStatusMenungguKonfirmasi {
			t.Fatalf("attempt %d: invoice must stay undecided, got %q", attempt, current.Status)
		}
		if _, err := repo.GetSubscription(ctx, merchant.ID); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("attempt %d: no subscription may be written, got %v", attempt, err)
		}
	}

	decided, err := engine.Decide(ctx, invoice.InvoiceID, domain.InvoiceStatusDiterima)
	if err != nil {
		t.Fatalf("retry after transient failures failed: %v", err)
	}
	if decided.Status != domain.InvoiceStatusDiterima || decided.DecidedAt == nil {
		t.Fatalf("unexpected decided invoice %+v", decided)
	}
	sub, err := repo.GetSubscription(ctx, merchant.ID)
	if err != nil {
		t.Fatalf("subscription missing after retry: %v", err)
	}
	if sub.PlanID != invoice.PlanID || sub.Status != domain.SubscriptionStatusActive {
		t.Fatalf("expected active subscription on the invoiced plan, got %+v", sub)
	}
}
