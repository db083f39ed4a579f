package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"cucibersih/backend/internal/cache"
	"cucibersih/backend/internal/domain"
	"cucibersih/backend/internal/mailer"
	"cucibersih/backend/internal/store"
	"cucibersih/backend/internal/xid"
)

const (
	invoiceDueDays  = 3
	proofTokenTTL   = 72 * time.Hour
	renewalLeadDays = 5
	closedGraceDays = 1
	subscriptionTTL = 5 * time.Minute
)

// Engine owns the subscription/invoice lifecycle: purchase, proof upload,
// admin decision and the daily renewal scan. Mail delivery is best-effort;
// a failed send is logged and never rolls back a state change.
type Engine struct {
	repo         store.Repository
	subs         cache.SubscriptionCache
	mail         mailer.Mailer
	tokenSecret  []byte
	appBaseURL   string
	supportEmail string
	loc          *time.Location
	now          func() time.Time
}

func NewEngine(repo store.Repository, subs cache.SubscriptionCache, mail mailer.Mailer, tokenSecret []byte, appBaseURL, supportEmail string, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		repo:         repo,
		subs:         subs,
		mail:         mail,
		tokenSecret:  tokenSecret,
		appBaseURL:   appBaseURL,
		supportEmail: supportEmail,
		loc:          loc,
		now:          time.Now,
	}
}

// SetClock overrides the engine clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// CurrentSubscription returns the merchant's subscription, consulting the
// cache first and falling back to the store. The cached value is the source
// the auth middleware trusts instead of the token claim.
func (e *Engine) CurrentSubscription(ctx context.Context, merchantID string) (*domain.Subscription, error) {
	if cached, ok, err := e.subs.Get(ctx, merchantID); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[billing] WARN: subscription cache read failed for %s: %v", merchantID, err)
	}

	sub, err := e.repo.GetSubscription(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if err := e.subs.Set(ctx, merchantID, sub, subscriptionTTL); err != nil {
		log.Printf("[billing] WARN: subscription cache write failed for %s: %v", merchantID, err)
	}
	return sub, nil
}

// PurchasePlan opens a billing invoice for the given plan. At most one open
// invoice may exist per merchant; a second purchase while one is pending is a
// conflict. Returns the invoice and the proof-upload token mailed to the
// merchant.
func (e *Engine) PurchasePlan(ctx context.Context, merchantID, planCode string) (*domain.BillingInvoice, string, error) {
	plan, err := e.repo.GetPlanByCode(ctx, planCode)
	if err != nil {
		return nil, "", err
	}

	open, err := e.repo.HasOpenInvoice(ctx, merchantID)
	if err != nil {
		return nil, "", err
	}
	if open {
		return nil, "", fmt.Errorf("an unpaid invoice already exists: %w", store.ErrConflict)
	}

	merchant, err := e.repo.GetMerchantByID(ctx, merchantID)
	if err != nil {
		return nil, "", err
	}

	now := e.now().In(e.loc)
	invoice := domain.BillingInvoice{
		InvoiceID:  xid.Numbered("CBG"),
		MerchantID: merchantID,
		PlanID:     plan.ID,
		Amount:     plan.Price,
		Status:     domain.InvoiceStatusMenungguPembayaran,
		DueDate:    now.AddDate(0, 0, invoiceDueDays),
		CreatedAt:  now,
	}
	created, err := e.repo.CreateBillingInvoice(ctx, invoice)
	if err != nil {
		return nil, "", err
	}

	token, err := e.ProofUploadToken(created.InvoiceID, merchant.Email)
	if err != nil {
		return nil, "", err
	}

	e.sendMail(ctx, merchant.Email,
		fmt.Sprintf("Tagihan %s - %s", created.InvoiceID, plan.Name),
		fmt.Sprintf("Halo %s,\n\nTagihan %s untuk paket %s sebesar Rp%d telah dibuat.\nJatuh tempo: %s.\n\nUnggah bukti pembayaran di:\n%s/billing/upload-proof?token=%s\n",
			merchant.Name, created.InvoiceID, plan.Name, plan.Price,
			created.DueDate.Format("2 January 2006"), e.appBaseURL, token))

	return created, token, nil
}

type proofClaims struct {
	InvoiceID string `json:"invoice_id"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// ProofUploadToken signs a short-lived token scoped to one invoice. It is the
// only credential accepted by the unauthenticated proof-upload endpoint.
func (e *Engine) ProofUploadToken(invoiceID, email string) (string, error) {
	now := e.now()
	claims := proofClaims{
		InvoiceID: invoiceID,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(proofTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.tokenSecret)
}

func (e *Engine) parseProofToken(token string) (*proofClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &proofClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return e.tokenSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid proof token: %w", store.ErrInvalidInput)
	}
	claims, ok := parsed.Claims.(*proofClaims)
	if !ok || !parsed.Valid || claims.InvoiceID == "" {
		return nil, fmt.Errorf("invalid proof token: %w", store.ErrInvalidInput)
	}
	return claims, nil
}

// UploadProof records a payment proof against the invoice named in the token
// and moves it to Menunggu Konfirmasi. Support staff get a notification mail.
func (e *Engine) UploadProof(ctx context.Context, token, proofURL string) (*domain.BillingInvoice, error) {
	claims, err := e.parseProofToken(token)
	if err != nil {
		return nil, err
	}

	updated, err := e.repo.MarkProofUploaded(ctx, claims.InvoiceID, proofURL)
	if err != nil {
		return nil, err
	}

	e.sendMail(ctx, e.supportEmail,
		fmt.Sprintf("Bukti pembayaran masuk: %s", updated.InvoiceID),
		fmt.Sprintf("Bukti pembayaran untuk tagihan %s telah diunggah oleh %s.\nBukti: %s\nMohon diperiksa dan dikonfirmasi.\n",
			updated.InvoiceID, claims.Email, proofURL))

	return updated, nil
}

// Decide applies the admin decision on an invoice. Only Diterima and Ditolak
// are accepted; deciding an already-decided invoice is a conflict, so an
// accepted invoice can never extend the subscription twice. All lookups run
// before the decision is written, and acceptance writes the decision and the
// subscription in one store transaction: a failure anywhere leaves the
// invoice undecided so the decision can be retried.
func (e *Engine) Decide(ctx context.Context, invoiceID, status string) (*domain.BillingInvoice, error) {
	if status != domain.InvoiceStatusDiterima && status != domain.InvoiceStatusDitolak {
		return nil, fmt.Errorf("unknown decision %q: %w", status, store.ErrInvalidInput)
	}
	now := e.now().In(e.loc)

	invoice, err := e.repo.GetBillingInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	merchant, err := e.repo.GetMerchantByID(ctx, invoice.MerchantID)
	if err != nil {
		return nil, err
	}
	plan, err := e.repo.GetPlanByID(ctx, invoice.PlanID)
	if err != nil {
		return nil, err
	}

	if status == domain.InvoiceStatusDitolak {
		decided, err := e.repo.DecideInvoice(ctx, invoiceID, status, now)
		if err != nil {
			return nil, err
		}
		e.sendMail(ctx, merchant.Email,
			fmt.Sprintf("Tagihan %s ditolak", decided.InvoiceID),
			fmt.Sprintf("Halo %s,\n\nBukti pembayaran untuk tagihan %s tidak dapat kami terima.\nSilakan hubungi %s untuk informasi lebih lanjut.\n",
				merchant.Name, decided.InvoiceID, e.supportEmail))
		return decided, nil
	}

	sub, err := e.nextSubscription(ctx, invoice.MerchantID, plan, now)
	if err != nil {
		return nil, err
	}
	decided, err := e.repo.AcceptInvoice(ctx, invoiceID, sub, now)
	if err != nil {
		return nil, err
	}

	if err := e.subs.Invalidate(ctx, invoice.MerchantID); err != nil {
		log.Printf("[billing] WARN: subscription cache invalidation failed for %s: %v", invoice.MerchantID, err)
	}
	e.sendMail(ctx, merchant.Email,
		fmt.Sprintf("Pembayaran %s diterima", decided.InvoiceID),
		fmt.Sprintf("Halo %s,\n\nPembayaran untuk paket %s telah kami terima.\nLangganan Anda aktif sampai %s.\n",
			merchant.Name, plan.Name, sub.EndDate.Format("2 January 2006")))

	return decided, nil
}

// nextSubscription computes the row an acceptance writes. A zero-duration
// plan starts (and ends) its clock at acceptance time; paid plans extend from
// the current end when it is still in the future, otherwise from now. The
// start date survives renewals and plan changes.
func (e *Engine) nextSubscription(ctx context.Context, merchantID string, plan *domain.Plan, now time.Time) (domain.Subscription, error) {
	current, err := e.repo.GetSubscription(ctx, merchantID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.Subscription{}, err
	}
	hasCurrent := err == nil

	var newEnd time.Time
	switch {
	case plan.DurationDays == 0:
		newEnd = now
	case hasCurrent && current.EndDate.After(now):
		newEnd = current.EndDate.AddDate(0, 0, plan.DurationDays)
	default:
		newEnd = now.AddDate(0, 0, plan.DurationDays)
	}

	start := now
	if hasCurrent {
		start = current.StartDate
	}
	return domain.Subscription{
		MerchantID: merchantID,
		PlanID:     plan.ID,
		PlanCode:   plan.Code,
		StartDate:  start,
		EndDate:    newEnd,
		Status:     domain.SubscriptionStatusActive,
	}, nil
}

// ScanResult summarizes one daily scan run.
type ScanResult struct {
	RenewalInvoices int `json:"renewal_invoices"`
	RemindersSent   int `json:"reminders_sent"`
	ClosureNotices  int `json:"closure_notices"`
}

// RunDailyScan issues renewal invoices for subscriptions ending in exactly
// five calendar days and sends account-closed notices for those that ended
// exactly one day ago. Day arithmetic uses the engine timezone.
func (e *Engine) RunDailyScan(ctx context.Context) (*ScanResult, error) {
	now := e.now().In(e.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.loc)
	result := &ScanResult{}

	ending, err := e.repo.ListSubscriptionsEndingOn(ctx, today.AddDate(0, 0, renewalLeadDays))
	if err != nil {
		return nil, err
	}
	for _, sub := range ending {
		open, err := e.repo.HasOpenInvoice(ctx, sub.MerchantID)
		if err != nil {
			return nil, err
		}
		if open {
			continue
		}

		plan, err := e.repo.GetPlanByID(ctx, sub.PlanID)
		if err != nil {
			log.Printf("[billing] WARN: plan %s missing for merchant %s, skipping renewal", sub.PlanID, sub.MerchantID)
			continue
		}
		if plan.DurationDays == 0 {
			// on-boarding plans are not auto-renewed
			continue
		}
		merchant, err := e.repo.GetMerchantByID(ctx, sub.MerchantID)
		if err != nil {
			log.Printf("[billing] WARN: merchant %s missing, skipping renewal", sub.MerchantID)
			continue
		}

		invoice := domain.BillingInvoice{
			InvoiceID:  xid.Numbered("CBG"),
			MerchantID: sub.MerchantID,
			PlanID:     plan.ID,
			Amount:     plan.Price,
			Status:     domain.InvoiceStatusMenungguPembayaran,
			DueDate:    sub.EndDate,
			CreatedAt:  now,
		}
		created, err := e.repo.CreateBillingInvoice(ctx, invoice)
		if err != nil {
			return nil, err
		}
		result.RenewalInvoices++

		token, err := e.ProofUploadToken(created.InvoiceID, merchant.Email)
		if err != nil {
			return nil, err
		}
		e.sendMail(ctx, merchant.Email,
			fmt.Sprintf("Langganan berakhir %s - perpanjang sekarang", sub.EndDate.In(e.loc).Format("2 January 2006")),
			fmt.Sprintf("Halo %s,\n\nLangganan paket %s Anda berakhir pada %s.\nTagihan perpanjangan %s sebesar Rp%d telah dibuat.\n\nUnggah bukti pembayaran di:\n%s/billing/upload-proof?token=%s\n",
				merchant.Name, plan.Name, sub.EndDate.In(e.loc).Format("2 January 2006"),
				created.InvoiceID, plan.Price, e.appBaseURL, token))
		result.RemindersSent++
	}

	ended, err := e.repo.ListSubscriptionsEndedOn(ctx, today.AddDate(0, 0, -closedGraceDays))
	if err != nil {
		return nil, err
	}
	for _, sub := range ended {
		merchant, err := e.repo.GetMerchantByID(ctx, sub.MerchantID)
		if err != nil {
			continue
		}
		e.sendMail(ctx, merchant.Email,
			"Akun CuciBersih Anda dinonaktifkan",
			fmt.Sprintf("Halo %s,\n\nLangganan Anda telah berakhir dan akun Anda dinonaktifkan.\nPerpanjang langganan untuk mengaktifkan kembali akses Anda.\n",
				merchant.Name))
		result.ClosureNotices++
	}

	return result, nil
}

func (e *Engine) sendMail(ctx context.Context, to, subject, body string) {
	if to == "" {
		return
	}
	if err := e.mail.Send(ctx, mailer.Message{To: to, Subject: subject, Body: body}); err != nil {
		log.Printf("[billing] WARN: mail %q to %s failed: %v", subject, to, err)
	}
}
