package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"cucibersih/backend/internal/domain"
	"cucibersih/backend/internal/store"
	"cucibersih/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateMerchant(ctx context.Context, acct domain.MerchantAccount) (*domain.Merchant, error) {
	if acct.Email == "" || acct.Name == "" || acct.PasswordHash == "" {
		return nil, store.ErrInvalidInput
	}
	if acct.ID == "" {
		acct.ID = xid.New("mch")
	}
	if acct.ReferralCode == "" {
		acct.ReferralCode = xid.ReferralCode()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO merchants (
			id, name, email, phone, password_hash, address, logo_url,
			referral_code, referral_points, is_deleted, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,false,$9,now())
	`, acct.ID, acct.Name, strings.ToLower(acct.Email), acct.Phone, acct.PasswordHash,
		acct.Address, nullIfEmpty(acct.LogoURL), acct.ReferralCode, acct.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := acct.Merchant
	return &created, nil
}

func (s *Store) GetMerchantByEmail(ctx context.Context, email string) (*domain.MerchantAccount, error) {
	var acct domain.MerchantAccount
	var logo sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, password_hash, address, logo_url,
			referral_code, referral_points, created_at
		FROM merchants
		WHERE email = $1 AND is_deleted = false
	`, strings.ToLower(strings.TrimSpace(email))).Scan(
		&acct.ID, &acct.Name, &acct.Email, &acct.Phone, &acct.PasswordHash,
		&acct.Address, &logo, &acct.ReferralCode, &acct.ReferralPoints, &acct.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if logo.Valid {
		acct.LogoURL = logo.String
	}
	acct.CreatedAt = acct.CreatedAt.UTC()
	return &acct, nil
}

func (s *Store) GetMerchantByID(ctx context.Context, id string) (*domain.Merchant, error) {
	var m domain.Merchant
	var logo sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, address, logo_url, referral_code, referral_points, created_at
		FROM merchants
		WHERE id = $1 AND is_deleted = false
	`, id).Scan(&m.ID, &m.Name, &m.Email, &m.Phone, &m.Address, &logo, &m.ReferralCode, &m.ReferralPoints, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if logo.Valid {
		m.LogoURL = logo.String
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func (s *Store) UpdateMerchant(ctx context.Context, merchant domain.Merchant) (*domain.Merchant, error) {
	if merchant.ID == "" || merchant.Name == "" {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE merchants
		SET name = $2, phone = $3, address = $4, logo_url = $5, updated_at = now()
		WHERE id = $1 AND is_deleted = false
	`, merchant.ID, merchant.Name, merchant.Phone, merchant.Address, nullIfEmpty(merchant.LogoURL))
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
	updated := merchant
	return &updated, nil
}

func (s *Store) UpdateMerchantPassword(ctx context.Context, merchantID string, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE merchants
		SET password_hash = $2, updated_at = now()
		WHERE id = $1 AND is_deleted = false
	`, merchantID, passwordHash)
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

func (s *Store) AddReferralPoint(ctx context.Context, referralCode string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE merchants
		SET referral_points = referral_points + 1, updated_at = now()
		WHERE referral_code = $1 AND is_deleted = false
	`, referralCode)
	return err
}

func (s *Store) CreatePasswordReset(ctx context.Context, reset domain.PasswordReset) error {
	if reset.MerchantID == "" || reset.Code == "" {
		return store.ErrInvalidInput
	}
	if reset.CreatedAt.IsZero() {
		reset.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var lastRequested sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT MAX(created_at)
		FROM password_resets
		WHERE merchant_id = $1
	`, reset.MerchantID).Scan(&lastRequested)
	if err != nil {
		return err
	}
	if lastRequested.Valid && reset.CreatedAt.Sub(lastRequested.Time) < 60*time.Second {
		return store.ErrCooldown
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM password_resets
		WHERE merchant_id = $1 AND used_at IS NULL
	`, reset.MerchantID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO password_resets (merchant_id, reset_code, expires_at, used_at, created_at)
		VALUES ($1,$2,$3,NULL,$4)
	`, reset.MerchantID, reset.Code, reset.ExpiresAt, reset.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) ConsumePasswordReset(ctx context.Context, merchantID string, code string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var expiresAt time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT expires_at
		FROM password_resets
		WHERE merchant_id = $1 AND reset_code = $2 AND used_at IS NULL
		FOR UPDATE
	`, merchantID, code).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if at.After(expiresAt) {
		return store.ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE password_resets
		SET used_at = $3
		WHERE merchant_id = $1 AND reset_code = $2
	`, merchantID, code, at)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

// dayBounds returns the [start, end) UTC window covering the calendar day of t.
func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.Add(24 * time.Hour)
}
