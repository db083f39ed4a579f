package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cucibersih/backend/internal/domain"
	"cucibersih/backend/internal/store"
	"cucibersih/backend/internal/xid"
)

// CreateOrder inserts the order header, its immutable line items and the
// initial Belum Dibayar payment row in one transaction. Line prices are
// resolved from service_durations using the order's duration, and stored on
// the item so later price-list edits never change this order's total.
func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.MerchantID == "" || order.CustomerID == "" || order.DurationID == "" || len(order.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if order.ID == "" {
		order.ID = xid.New("trx")
	}
	if order.InvoiceNumber == "" {
		order.InvoiceNumber = xid.Numbered("INV")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.Status = domain.OrderStatusDiproses

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var customerName string
	err = tx.QueryRowContext(ctx, `
		SELECT name FROM customers WHERE merchant_id = $1 AND id = $2
	`, order.MerchantID, order.CustomerID).Scan(&customerName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	order.CustomerName = customerName

	var durationName string
	var durationValue int
	var durationType string
	err = tx.QueryRowContext(ctx, `
		SELECT name, value, type FROM durations WHERE merchant_id = $1 AND id = $2
	`, order.MerchantID, order.DurationID).Scan(&durationName, &durationValue, &durationType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	order.DurationName = durationName
	if durationType == "jam" {
		order.EstimatedDone = order.CreatedAt.Add(time.Duration(durationValue) * time.Hour)
	} else {
		order.EstimatedDone = order.CreatedAt.Add(time.Duration(durationValue) * 24 * time.Hour)
	}

	total := int64(0)
	priced := make([]domain.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		if item.Qty <= 0 {
			return nil, store.ErrInvalidInput
		}
		var serviceName string
		var price int64
		err = tx.QueryRowContext(ctx, `
			SELECT sv.name, sd.price
			FROM services sv
			JOIN service_durations sd ON sd.service_id = sv.id
			WHERE sv.merchant_id = $1 AND sv.id = $2 AND sd.duration_id = $3
		`, order.MerchantID, item.ServiceID, order.DurationID).Scan(&serviceName, &price)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("service %s has no price for the requested duration: %w", item.ServiceID, store.ErrInvalidInput)
			}
			return nil, err
		}
		subtotal := int64(float64(price) * item.Qty)
		priced = append(priced, domain.OrderItem{
			ServiceID:   item.ServiceID,
			ServiceName: serviceName,
			Qty:         item.Qty,
			Price:       price,
			Subtotal:    subtotal,
		})
		total += subtotal
	}
	order.Items = priced
	order.Total = total

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, merchant_id, invoice_number, customer_id, duration_id,
			status, estimated_done, completed_at, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULL,$8,now())
	`, order.ID, order.MerchantID, order.InvoiceNumber, order.CustomerID, order.DurationID,
		order.Status, order.EstimatedDone, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, service_id, qty, price)
			VALUES ($1,$2,$3,$4)
		`, order.ID, item.ServiceID, item.Qty, item.Price)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (
			id, merchant_id, invoice_number, status, amount_due, amount_paid, change_given, paid_at, created_at
		)
		VALUES ($1,$2,$3,$4,$5,0,0,NULL,$6)
	`, xid.New("pay"), order.MerchantID, order.InvoiceNumber, domain.PaymentStatusBelumDibayar, order.Total, order.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := order
	return &created, nil
}

func (s *Store) GetOrderByID(ctx context.Context, merchantID, orderID string) (*domain.Order, error) {
	return s.findOrder(ctx, merchantID, "t.id", orderID)
}

func (s *Store) GetOrderByInvoice(ctx context.Context, merchantID, invoiceNumber string) (*domain.Order, error) {
	return s.findOrder(ctx, merchantID, "t.invoice_number", invoiceNumber)
}

func (s *Store) findOrder(ctx context.Context, merchantID, column, value string) (*domain.Order, error) {
	if column != "t.id" && column != "t.invoice_number" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	var o domain.Order
	var completedAt sql.NullTime
	query := fmt.Sprintf(`
		SELECT t.id, t.merchant_id, t.invoice_number, t.customer_id, c.name,
			t.duration_id, d.name, t.status, t.estimated_done, t.completed_at, t.created_at
		FROM transactions t
		JOIN customers c ON c.id = t.customer_id
		JOIN durations d ON d.id = t.duration_id
		WHERE t.merchant_id = $1 AND %s = $2
	`, column)

	err := s.db.QueryRowContext(ctx, query, merchantID, value).Scan(
		&o.ID, &o.MerchantID, &o.InvoiceNumber, &o.CustomerID, &o.CustomerName,
		&o.DurationID, &o.DurationName, &o.Status, &o.EstimatedDone, &completedAt, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if completedAt.Valid {
		at := completedAt.Time.UTC()
		o.CompletedAt = &at
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.EstimatedDone = o.EstimatedDone.UTC()

	items, total, err := s.listOrderItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	o.Total = total
	return &o, nil
}

func (s *Store) listOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ti.service_id, sv.name, ti.qty, ti.price
		FROM transaction_items ti
		JOIN services sv ON sv.id = ti.service_id
		WHERE ti.transaction_id = $1
		ORDER BY ti.id ASC
	`, orderID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0, 4)
	total := int64(0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ServiceID, &item.ServiceName, &item.Qty, &item.Price); err != nil {
			return nil, 0, err
		}
		item.Subtotal = int64(float64(item.Price) * item.Qty)
		total += item.Subtotal
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Store) ListOrders(ctx context.Context, merchantID string, filter store.OrderFilter) ([]domain.Order, int, error) {
	if filter.Limit < 1 {
		filter.Limit = 10
	}
	if filter.Page < 1 {
		filter.Page = 1
	}

	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM transactions
		WHERE merchant_id = $1 AND ($2 = '' OR status = $2)
	`, merchantID, filter.Status).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.merchant_id, t.invoice_number, t.customer_id, c.name,
			t.duration_id, d.name, t.status, t.estimated_done, t.completed_at, t.created_at
		FROM transactions t
		JOIN customers c ON c.id = t.customer_id
		JOIN durations d ON d.id = t.duration_id
		WHERE t.merchant_id = $1 AND ($2 = '' OR t.status = $2)
		ORDER BY t.created_at DESC
		LIMIT $3 OFFSET $4
	`, merchantID, filter.Status, filter.Limit, (filter.Page-1)*filter.Limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, filter.Limit)
	for rows.Next() {
		var o domain.Order
		var completedAt sql.NullTime
		if err := rows.Scan(&o.ID, &o.MerchantID, &o.InvoiceNumber, &o.CustomerID, &o.CustomerName,
			&o.DurationID, &o.DurationName, &o.Status, &o.EstimatedDone, &completedAt, &o.CreatedAt); err != nil {
			return nil, 0, err
		}
		if completedAt.Valid {
			at := completedAt.Time.UTC()
			o.CompletedAt = &at
		}
		o.CreatedAt = o.CreatedAt.UTC()
		o.EstimatedDone = o.EstimatedDone.UTC()
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range orders {
		items, lineTotal, err := s.listOrderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, 0, err
		}
		orders[i].Items = items
		orders[i].Total = lineTotal
	}
	return orders, total, nil
}

// UpdateOrderStatus moves an order strictly forward through
// Diproses -> Siap Diambil -> Selesai and stamps completed_at on Selesai.
func (s *Store) UpdateOrderStatus(ctx context.Context, merchantID, orderID, status string, at time.Time) (*domain.Order, error) {
	if domain.OrderStatusRank(status) == 0 {
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
		FROM transactions
		WHERE merchant_id = $1 AND id = $2
		FOR UPDATE
	`, merchantID, orderID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if domain.OrderStatusRank(status) <= domain.OrderStatusRank(current) {
		return nil, store.ErrConflict
	}

	var completedAt any
	if status == domain.OrderStatusSelesai {
		completedAt = at
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $3, completed_at = $4, updated_at = now()
		WHERE merchant_id = $1 AND id = $2
	`, merchantID, orderID, status, completedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetOrderByID(ctx, merchantID, orderID)
}

func (s *Store) GetPaymentByInvoice(ctx context.Context, merchantID, invoiceNumber string) (*domain.Payment, error) {
	var p domain.Payment
	var paidAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, merchant_id, invoice_number, status, amount_due, amount_paid, change_given, paid_at
		FROM payments
		WHERE merchant_id = $1 AND invoice_number = $2
	`, merchantID, invoiceNumber).Scan(&p.ID, &p.MerchantID, &p.InvoiceNumber, &p.Status,
		&p.AmountDue, &p.AmountPaid, &p.ChangeGiven, &paidAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if paidAt.Valid {
		at := paidAt.Time.UTC()
		p.PaidAt = &at
	}
	return &p, nil
}

// SettlePayment marks the invoice Lunas exactly once and returns the change
// due. Underpayment and double settlement are rejected.
func (s *Store) SettlePayment(ctx context.Context, merchantID, invoiceNumber string, amountPaid int64, at time.Time) (*domain.Payment, error) {
	if amountPaid < 1 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var p domain.Payment
	err = tx.QueryRowContext(ctx, `
		SELECT id, merchant_id, invoice_number, status, amount_due
		FROM payments
		WHERE merchant_id = $1 AND invoice_number = $2
		FOR UPDATE
	`, merchantID, invoiceNumber).Scan(&p.ID, &p.MerchantID, &p.InvoiceNumber, &p.Status, &p.AmountDue)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if p.Status == domain.PaymentStatusLunas {
		return nil, store.ErrConflict
	}
	if amountPaid < p.AmountDue {
		return nil, store.ErrInvalidInput
	}

	p.Status = domain.PaymentStatusLunas
	p.AmountPaid = amountPaid
	p.ChangeGiven = amountPaid - p.AmountDue
	p.PaidAt = &at

	_, err = tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $3, amount_paid = $4, change_given = $5, paid_at = $6
		WHERE merchant_id = $1 AND invoice_number = $2
	`, merchantID, invoiceNumber, p.Status, p.AmountPaid, p.ChangeGiven, at)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &p, nil
}
