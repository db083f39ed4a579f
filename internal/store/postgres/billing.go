package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"cucibersih/backend/internal/domain"
	"cucibersih/backend/internal/store"
)

func (s *Store) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, price, duration_days
		FROM plans
		ORDER BY price ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := make([]domain.Plan, 0, 4)
	for rows.Next() {
		var p domain.Plan
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Price, &p.DurationDays); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *Store) GetPlanByCode(ctx context.Context, code string) (*domain.Plan, error) {
	var p domain.Plan
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, price, duration_days
		FROM plans
		WHERE code = $1
	`, code).Scan(&p.ID, &p.Code, &p.Name, &p.Price, &p.DurationDays)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetPlanByID(ctx context.Context, id string) (*domain.Plan, error) {
	var p domain.Plan
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, price, duration_days
		FROM plans
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Code, &p.Name, &p.Price, &p.DurationDays)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetSubscription(ctx context.Context, merchantID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := s.db.QueryRowContext(ctx, `
		SELECT s.merchant_id, s.plan_id, p.code, s.start_date, s.end_date, s.status
		FROM subscriptions s
		JOIN plans p ON p.id = s.plan_id
		WHERE s.merchant_id = $1
	`, merchantID).Scan(&sub.MerchantID, &sub.PlanID, &sub.PlanCode, &sub.StartDate, &sub.EndDate, &sub.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sub.StartDate = sub.StartDate.UTC()
	sub.EndDate = sub.EndDate.UTC()
	return &sub, nil
}

// ReplaceSubscription swaps a merchant's subscription row atomically so two
// concurrent plan changes cannot leave two rows behind.
func (s *Store) ReplaceSubscription(ctx context.Context, sub domain.Subscription) error {
	if sub.MerchantID == "" || sub.PlanID == "" {
		return store.ErrInvalidInput
	}
	if sub.Status == "" {
		sub.Status = domain.SubscriptionStatusActive
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM subscriptions WHERE merchant_id = $1
	`, sub.MerchantID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO subscriptions (merchant_id, plan_id, start_date, end_date, status, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, sub.MerchantID, sub.PlanID, sub.StartDate, sub.EndDate, sub.Status)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) CreateBillingInvoice(ctx context.Context, invoice domain.BillingInvoice) (*domain.BillingInvoice, error) {
	if invoice.InvoiceID == "" || invoice.MerchantID == "" || invoice.PlanID == "" {
		return nil, store.ErrInvalidInput
	}
	if invoice.Status == "" {
		invoice.Status = domain.InvoiceStatusMenungguPembayaran
	}
	if !domain.ValidInvoiceStatus(invoice.Status) {
		return nil, store.ErrInvalidInput
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO billing_invoices (
			invoice_id, merchant_id, plan_id, amount, status, due_date, proof_url, decided_at, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULL,$8)
	`, invoice.InvoiceID, invoice.MerchantID, invoice.PlanID, invoice.Amount,
		invoice.Status, invoice.DueDate, nullIfEmpty(invoice.ProofURL), invoice.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := invoice
	return &created, nil
}

func (s *Store) GetBillingInvoice(ctx context.Context, invoiceID string) (*domain.BillingInvoice, error) {
	var inv domain.BillingInvoice
	var proof sql.NullString
	var decidedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT invoice_id, merchant_id, plan_id, amount, status, due_date, proof_url, decided_at, created_at
		FROM billing_invoices
		WHERE invoice_id = $1
	`, invoiceID).Scan(&inv.InvoiceID, &inv.MerchantID, &inv.PlanID, &inv.Amount,
		&inv.Status, &inv.DueDate, &proof, &decidedAt, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if proof.Valid {
		inv.ProofURL = proof.String
	}
	if decidedAt.Valid {
		at := decidedAt.Time.UTC()
		inv.DecidedAt = &at
	}
	inv.DueDate = inv.DueDate.UTC()
	inv.CreatedAt = inv.CreatedAt.UTC()
	return &inv, nil
}

func (s *Store) ListBillingInvoices(ctx context.Context, merchantID string) ([]domain.BillingInvoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_id, merchant_id, plan_id, amount, status, due_date, proof_url, decided_at, created_at
		FROM billing_invoices
		WHERE merchant_id = $1
		ORDER BY created_at DESC
	`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.BillingInvoice, 0, 8)
	for rows.Next() {
		var inv domain.BillingInvoice
		var proof sql.NullString
		var decidedAt sql.NullTime
		if err := rows.Scan(&inv.InvoiceID, &inv.MerchantID, &inv.PlanID, &inv.Amount,
			&inv.Status, &inv.DueDate, &proof, &decidedAt, &inv.CreatedAt); err != nil {
			return nil, err
		}
		if proof.Valid {
			inv.ProofURL = proof.String
		}
		if decidedAt.Valid {
			at := decidedAt.Time.UTC()
			inv.DecidedAt = &at
		}
		inv.DueDate = inv.DueDate.UTC()
		inv.CreatedAt = inv.CreatedAt.UTC()
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Store) MarkProofUploaded(ctx context.Context, invoiceID, proofURL string) (*domain.BillingInvoice, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE billing_invoices
		SET status = $2, proof_url = $3
		WHERE invoice_id = $1 AND status = $4
	`, invoiceID, domain.InvoiceStatusMenungguKonfirmasi, proofURL, domain.InvoiceStatusMenungguPembayaran)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Either the invoice does not exist or it already left the initial
		// state; distinguish for the caller.
		if _, err := s.GetBillingInvoice(ctx, invoiceID); err != nil {
			return nil, err
		}
		return nil, store.ErrConflict
	}
	return s.GetBillingInvoice(ctx, invoiceID)
}

func (s *Store) DecideInvoice(ctx context.Context, invoiceID, status string, at time.Time) (*domain.BillingInvoice, error) {
	if status != domain.InvoiceStatusDiterima && status != domain.InvoiceStatusDitolak {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `
		SELECT status
		FROM billing_invoices
		WHERE invoice_id = $1
		FOR UPDATE
	`, invoiceID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	// Terminal states are final: re-deciding must not re-run side effects.
	if current == domain.InvoiceStatusDiterima || current == domain.InvoiceStatusDitolak {
		return nil, store.ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE billing_invoices
		SET status = $2, decided_at = $3
		WHERE invoice_id = $1
	`, invoiceID, status, at)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetBillingInvoice(ctx, invoiceID)
}

// AcceptInvoice marks the invoice Diterima and swaps the merchant's
// subscription row in the same transaction. If anything fails the invoice
// stays undecided and the decision can be retried.
func (s *Store) AcceptInvoice(ctx context.Context, invoiceID string, sub domain.Subscription, at time.Time) (*domain.BillingInvoice, error) {
	if sub.MerchantID == "" || sub.PlanID == "" {
		return nil, store.ErrInvalidInput
	}
	if sub.Status == "" {
		sub.Status = domain.SubscriptionStatusActive
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `
		SELECT status
		FROM billing_invoices
		WHERE invoice_id = $1
		FOR UPDATE
	`, invoiceID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if current == domain.InvoiceStatusDiterima || current == domain.InvoiceStatusDitolak {
		return nil, store.ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE billing_invoices
		SET status = $2, decided_at = $3
		WHERE invoice_id = $1
	`, invoiceID, domain.InvoiceStatusDiterima, at)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM subscriptions WHERE merchant_id = $1
	`, sub.MerchantID)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO subscriptions (merchant_id, plan_id, start_date, end_date, status, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, sub.MerchantID, sub.PlanID, sub.StartDate, sub.EndDate, sub.Status)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetBillingInvoice(ctx, invoiceID)
}

func (s *Store) HasOpenInvoice(ctx context.Context, merchantID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM billing_invoices
		WHERE merchant_id = $1 AND status IN ($2, $3)
	`, merchantID, domain.InvoiceStatusMenungguPembayaran, domain.InvoiceStatusMenungguKonfirmasi).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) ListSubscriptionsEndingOn(ctx context.Context, day time.Time) ([]domain.Subscription, error) {
	start, end := dayBounds(day)
	return s.listSubscriptionsInWindow(ctx, start, end)
}

func (s *Store) ListSubscriptionsEndedOn(ctx context.Context, day time.Time) ([]domain.Subscription, error) {
	start, end := dayBounds(day)
	return s.listSubscriptionsInWindow(ctx, start, end)
}

func (s *Store) listSubscriptionsInWindow(ctx context.Context, start, end time.Time) ([]domain.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.merchant_id, s.plan_id, p.code, s.start_date, s.end_date, s.status
		FROM subscriptions s
		JOIN plans p ON p.id = s.plan_id
		WHERE s.end_date >= $1 AND s.end_date < $2
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]domain.Subscription, 0, 16)
	for rows.Next() {
		var sub domain.Subscription
		if err := rows.Scan(&sub.MerchantID, &sub.PlanID, &sub.PlanCode, &sub.StartDate, &sub.EndDate, &sub.Status); err != nil {
			return nil, err
		}
		sub.StartDate = sub.StartDate.UTC()
		sub.EndDate = sub.EndDate.UTC()
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return subs, nil
}
