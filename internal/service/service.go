package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"cucibersih/backend/internal/domain"
	"cucibersih/backend/internal/mailer"
	"cucibersih/backend/internal/store"
	"cucibersih/backend/internal/xid"
)

const resetCodeTTL = 10 * time.Minute

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// SubscriptionSource resolves the current subscription for a merchant.
// Satisfied by billing.Engine.
type SubscriptionSource interface {
	CurrentSubscription(ctx context.Context, merchantID string) (*domain.Subscription, error)
}

type Service struct {
	repo store.Repository
	subs SubscriptionSource
	mail mailer.Mailer
	now  func() time.Time
}

func New(repo store.Repository, subs SubscriptionSource, mail mailer.Mailer) *Service {
	return &Service{
		repo: repo,
		subs: subs,
		mail: mail,
		now:  time.Now,
	}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Merchant, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || req.Email == "" || req.Phone == "" || len(req.Password) < 8 {
		return nil, store.ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := domain.MerchantAccount{
		Merchant: domain.Merchant{
			ID:           xid.New("mch"),
			Name:         req.Name,
			Email:        req.Email,
			Phone:        req.Phone,
			Address:      strings.TrimSpace(req.Address),
			ReferralCode: xid.ReferralCode(),
			CreatedAt:    s.now().UTC(),
		},
		PasswordHash: string(hash),
	}

	created, err := s.repo.CreateMerchant(ctx, account)
	if err != nil {
		return nil, err
	}

	if code := strings.TrimSpace(req.ReferralCode); code != "" {
		if err := s.repo.AddReferralPoint(ctx, code); err != nil {
			log.Printf("[service] WARN: referral point for code %s not recorded: %v", code, err)
		}
	}

	return created, nil
}

// Login verifies credentials and returns the merchant plus the current
// subscription end (zero when the merchant has never subscribed).
func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.Merchant, time.Time, error) {
	account, err := s.repo.GetMerchantByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, time.Time{}, fmt.Errorf("invalid credentials: %w", store.ErrInvalidInput)
		}
		return nil, time.Time{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		return nil, time.Time{}, fmt.Errorf("invalid credentials: %w", store.ErrInvalidInput)
	}

	var subscriptionEnd time.Time
	if sub, err := s.subs.CurrentSubscription(ctx, account.ID); err == nil {
		subscriptionEnd = sub.EndDate
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, time.Time{}, err
	}

	merchant := account.Merchant
	return &merchant, subscriptionEnd, nil
}

func (s *Service) GetProfile(ctx context.Context) (*domain.Merchant, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.repo.GetMerchantByID(ctx, actor.MerchantID)
}

func (s *Service) UpdateProfile(ctx context.Context, req domain.MerchantUpdateRequest) (*domain.Merchant, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, store.ErrNotFound
	}
	existing, err := s.repo.GetMerchantByID(ctx, actor.MerchantID)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		if phone == "" {
			return nil, store.ErrInvalidInput
		}
		updated.Phone = phone
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	if req.LogoURL != nil {
		updated.LogoURL = strings.TrimSpace(*req.LogoURL)
	}

	return s.repo.UpdateMerchant(ctx, updated)
}

// RequestPasswordReset issues a 6-digit code valid for ten minutes and mails
// it. A second request inside the 60-second cooldown is rejected by the store.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	account, err := s.repo.GetMerchantByEmail(ctx, email)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	code := xid.ResetCode()
	if err := s.repo.CreatePasswordReset(ctx, domain.PasswordReset{
		MerchantID: account.ID,
		Code:       code,
		ExpiresAt:  now.Add(resetCodeTTL),
		CreatedAt:  now,
	}); err != nil {
		return err
	}

	if err := s.mail.Send(ctx, mailer.Message{
		To:      account.Email,
		Subject: "Kode reset kata sandi CuciBersih",
		Body: fmt.Sprintf("Halo %s,\n\nKode reset kata sandi Anda: %s\nKode berlaku 10 menit dan hanya dapat dipakai sekali.\n",
			account.Name, code),
	}); err != nil {
		log.Printf("[service] WARN: reset code mail to %s failed: %v", account.Email, err)
	}
	return nil
}

// ConfirmPasswordReset consumes the code and replaces the password hash.
func (s *Service) ConfirmPasswordReset(ctx context.Context, req domain.PasswordResetConfirm) error {
	account, err := s.repo.GetMerchantByEmail(ctx, req.Email)
	if err != nil {
		return err
	}

	if err := s.repo.ConsumePasswordReset(ctx, account.ID, strings.TrimSpace(req.Code), s.now().UTC()); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.UpdateMerchantPassword(ctx, account.ID, string(hash))
}

func mustActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("no authenticated merchant on context")
	}
	return actor, nil
}
