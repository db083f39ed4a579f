package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"cucibersih/backend/internal/domain"
	"cucibersih/backend/internal/store"
	"cucibersih/backend/internal/xid"
)

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.MerchantID == "" || customer.Name == "" || customer.Phone == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, merchant_id, name, phone, email, address, gender, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
	`, customer.ID, customer.MerchantID, customer.Name, customer.Phone,
		nullIfEmpty(customer.Email), nullIfEmpty(customer.Address), nullIfEmpty(customer.Gender), customer.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, merchantID, customerID string) (*domain.Customer, error) {
	var c domain.Customer
	var email, address, gender sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, merchant_id, name, phone, email, address, gender, created_at
		FROM customers
		WHERE merchant_id = $1 AND id = $2
	`, merchantID, customerID).Scan(&c.ID, &c.MerchantID, &c.Name, &c.Phone, &email, &address, &gender, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.Email = email.String
	c.Address = address.String
	c.Gender = gender.String
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context, merchantID string, filter store.CustomerFilter) ([]domain.Customer, int, error) {
	if filter.Limit < 1 {
		filter.Limit = 10
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	search := "%" + strings.TrimSpace(filter.Search) + "%"

	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM customers
		WHERE merchant_id = $1 AND (name ILIKE $2 OR phone ILIKE $2)
	`, merchantID, search).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, merchant_id, name, phone, email, address, gender, created_at
		FROM customers
		WHERE merchant_id = $1 AND (name ILIKE $2 OR phone ILIKE $2)
		ORDER BY name ASC
		LIMIT $3 OFFSET $4
	`, merchantID, search, filter.Limit, (filter.Page-1)*filter.Limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, filter.Limit)
	for rows.Next() {
		var c domain.Customer
		var email, address, gender sql.NullString
		if err := rows.Scan(&c.ID, &c.MerchantID, &c.Name, &c.Phone, &email, &address, &gender, &c.CreatedAt); err != nil {
			return nil, 0, err
		}
		c.Email = email.String
		c.Address = address.String
		c.Gender = gender.String
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return customers, total, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || customer.Name == "" || customer.Phone == "" {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $3, phone = $4, email = $5, address = $6, gender = $7, updated_at = now()
		WHERE merchant_id = $1 AND id = $2
	`, customer.MerchantID, customer.ID, customer.Name, customer.Phone,
		nullIfEmpty(customer.Email), nullIfEmpty(customer.Address), nullIfEmpty(customer.Gender))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, merchantID, customerID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM customers
		WHERE merchant_id = $1 AND id = $2
	`, merchantID, customerID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateDuration(ctx context.Context, duration domain.Duration) (*domain.Duration, error) {
	if duration.MerchantID == "" || duration.Name == "" || duration.Value < 1 {
		return nil, store.ErrInvalidInput
	}
	if duration.Type != "hari" && duration.Type != "jam" {
		return nil, store.ErrInvalidInput
	}
	if duration.ID == "" {
		duration.ID = xid.New("dur")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO durations (id, merchant_id, name, value, type, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
	`, duration.ID, duration.MerchantID, duration.Name, duration.Value, duration.Type)
	if err != nil {
		return nil, err
	}
	created := duration
	return &created, nil
}

func (s *Store) GetDurationByID(ctx context.Context, merchantID, durationID string) (*domain.Duration, error) {
	var d domain.Duration
	err := s.db.QueryRowContext(ctx, `
		SELECT id, merchant_id, name, value, type
		FROM durations
		WHERE merchant_id = $1 AND id = $2
	`, merchantID, durationID).Scan(&d.ID, &d.MerchantID, &d.Name, &d.Value, &d.Type)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *Store) ListDurations(ctx context.Context, merchantID string) ([]domain.Duration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, merchant_id, name, value, type
		FROM durations
		WHERE merchant_id = $1
		ORDER BY type, value
	`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	durations := make([]domain.Duration, 0, 8)
	for rows.Next() {
		var d domain.Duration
		if err := rows.Scan(&d.ID, &d.MerchantID, &d.Name, &d.Value, &d.Type); err != nil {
			return nil, err
		}
		durations = append(durations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return durations, nil
}

func (s *Store) UpdateDuration(ctx context.Context, duration domain.Duration) (*domain.Duration, error) {
	if duration.ID == "" || duration.Name == "" || duration.Value < 1 {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE durations
		SET name = $3, value = $4, type = $5, updated_at = now()
		WHERE merchant_id = $1 AND id = $2
	`, duration.MerchantID, duration.ID, duration.Name, duration.Value, duration.Type)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := duration
	return &updated, nil
}

func (s *Store) DeleteDuration(ctx context.Context, merchantID, durationID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var references int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM service_durations sd
		JOIN services sv ON sv.id = sd.service_id
		WHERE sv.merchant_id = $1 AND sd.duration_id = $2
	`, merchantID, durationID).Scan(&references)
	if err != nil {
		return err
	}
	if references > 0 {
		return store.ErrConflict
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM durations
		WHERE merchant_id = $1 AND id = $2
	`, merchantID, durationID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	return tx.Commit()
}

func (s *Store) CreateService(ctx context.Context, service domain.Service) (*domain.Service, error) {
	if service.MerchantID == "" || service.Name == "" || len(service.Prices) == 0 {
		return nil, store.ErrInvalidInput
	}
	if service.ID == "" {
		service.ID = xid.New("svc")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO services (id, merchant_id, name, unit, created_at, updated_at)
		VALUES ($1,$2,$3,$4,now(),now())
	`, service.ID, service.MerchantID, service.Name, service.Unit)
	if err != nil {
		return nil, err
	}

	for _, price := range service.Prices {
		if price.DurationID == "" || price.Price < 1 {
			return nil, store.ErrInvalidInput
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO service_durations (service_id, duration_id, price)
			VALUES ($1,$2,$3)
		`, service.ID, price.DurationID, price.Price)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := service
	return &created, nil
}

func (s *Store) GetServiceByID(ctx context.Context, merchantID, serviceID string) (*domain.Service, error) {
	var sv domain.Service
	err := s.db.QueryRowContext(ctx, `
		SELECT id, merchant_id, name, unit
		FROM services
		WHERE merchant_id = $1 AND id = $2
	`, merchantID, serviceID).Scan(&sv.ID, &sv.MerchantID, &sv.Name, &sv.Unit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	prices, err := s.listServicePrices(ctx, sv.ID)
	if err != nil {
		return nil, err
	}
	sv.Prices = prices
	return &sv, nil
}

func (s *Store) listServicePrices(ctx context.Context, serviceID string) ([]domain.ServicePrice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sd.duration_id, d.name, sd.price
		FROM service_durations sd
		JOIN durations d ON d.id = sd.duration_id
		WHERE sd.service_id = $1
		ORDER BY d.type, d.value
	`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prices := make([]domain.ServicePrice, 0, 4)
	for rows.Next() {
		var p domain.ServicePrice
		if err := rows.Scan(&p.DurationID, &p.DurationName, &p.Price); err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return prices, nil
}

func (s *Store) ListServices(ctx context.Context, merchantID string) ([]domain.Service, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, merchant_id, name, unit
		FROM services
		WHERE merchant_id = $1
		ORDER BY name
	`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.Service, 0, 16)
	for rows.Next() {
		var sv domain.Service
		if err := rows.Scan(&sv.ID, &sv.MerchantID, &sv.Name, &sv.Unit); err != nil {
			return nil, err
		}
		services = append(services, sv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range services {
		prices, err := s.listServicePrices(ctx, services[i].ID)
		if err != nil {
			return nil, err
		}
		services[i].Prices = prices
	}
	return services, nil
}

func (s *Store) UpdateService(ctx context.Context, service domain.Service) (*domain.Service, error) {
	if service.ID == "" || service.Name == "" || len(service.Prices) == 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE services
		SET name = $3, unit = $4, updated_at = now()
		WHERE merchant_id = $1 AND id = $2
	`, service.MerchantID, service.ID, service.Name, service.Unit)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	// Prices are replaced wholesale; order items keep their own captured
	// price so historical totals are unaffected.
	_, err = tx.ExecContext(ctx, `DELETE FROM service_durations WHERE service_id = $1`, service.ID)
	if err != nil {
		return nil, err
	}
	for _, price := range service.Prices {
		if price.DurationID == "" || price.Price < 1 {
			return nil, store.ErrInvalidInput
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO service_durations (service_id, duration_id, price)
			VALUES ($1,$2,$3)
		`, service.ID, price.DurationID, price.Price)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	updated := service
	return &updated, nil
}

func (s *Store) DeleteService(ctx context.Context, merchantID, serviceID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `DELETE FROM service_durations WHERE service_id = $1`, serviceID)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM services
		WHERE merchant_id = $1 AND id = $2
	`, merchantID, serviceID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	return tx.Commit()
}

func (s *Store) GetNote(ctx context.Context, merchantID string) (*domain.Note, error) {
	var note domain.Note
	err := s.db.QueryRowContext(ctx, `
		SELECT merchant_id, content, updated_at
		FROM notes
		WHERE merchant_id = $1
	`, merchantID).Scan(&note.MerchantID, &note.Content, &note.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	note.UpdatedAt = note.UpdatedAt.UTC()
	return &note, nil
}

func (s *Store) UpsertNote(ctx context.Context, note domain.Note) (*domain.Note, error) {
	if note.MerchantID == "" {
		return nil, store.ErrInvalidInput
	}
	if note.UpdatedAt.IsZero() {
		note.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (merchant_id, content, updated_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (merchant_id)
		DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at
	`, note.MerchantID, note.Content, note.UpdatedAt)
	if err != nil {
		return nil, err
	}
	saved := note
	return &saved, nil
}

func (s *Store) ListPrinters(ctx context.Context, merchantID string) ([]domain.PrinterDevice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, merchant_id, name, address, is_active, created_at
		FROM printer_devices
		WHERE merchant_id = $1
		ORDER BY created_at ASC
	`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := make([]domain.PrinterDevice, 0, 4)
	for rows.Next() {
		var d domain.PrinterDevice
		if err := rows.Scan(&d.ID, &d.MerchantID, &d.Name, &d.Address, &d.IsActive, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.CreatedAt = d.CreatedAt.UTC()
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return devices, nil
}

// RegisterPrinter inserts an active device. Any previously active device for
// the merchant is deactivated in the same transaction so "at most one active"
// holds even under concurrent registrations.
func (s *Store) RegisterPrinter(ctx context.Context, device domain.PrinterDevice) (*domain.PrinterDevice, error) {
	if device.MerchantID == "" || device.Name == "" || device.Address == "" {
		return nil, store.ErrInvalidInput
	}
	if device.ID == "" {
		device.ID = xid.New("prn")
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}
	device.IsActive = true

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE printer_devices
		SET is_active = false, updated_at = now()
		WHERE merchant_id = $1 AND is_active = true
	`, device.MerchantID)
	if err != nil {
		return nil, err
	}

	// re-registering an existing address updates the device in place
	err = tx.QueryRowContext(ctx, `
		INSERT INTO printer_devices (id, merchant_id, name, address, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,true,$5,now())
		ON CONFLICT (merchant_id, address)
		DO UPDATE SET name = EXCLUDED.name, is_active = true, updated_at = now()
		RETURNING id, created_at
	`, device.ID, device.MerchantID, device.Name, device.Address, device.CreatedAt).Scan(&device.ID, &device.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := device
	return &created, nil
}

func (s *Store) ActivatePrinter(ctx context.Context, merchantID, deviceID string) (*domain.PrinterDevice, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE printer_devices
		SET is_active = false, updated_at = now()
		WHERE merchant_id = $1 AND is_active = true
	`, merchantID)
	if err != nil {
		return nil, err
	}

	var d domain.PrinterDevice
	err = tx.QueryRowContext(ctx, `
		UPDATE printer_devices
		SET is_active = true, updated_at = now()
		WHERE merchant_id = $1 AND id = $2
		RETURNING id, merchant_id, name, address, is_active, created_at
	`, merchantID, deviceID).Scan(&d.ID, &d.MerchantID, &d.Name, &d.Address, &d.IsActive, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}
