package httpapi

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"cucibersih/backend/internal/domain"
)

// AuthManager signs and verifies merchant session tokens. Tokens slide: the
// middleware re-signs a fresh token on every authenticated request so an
// active merchant is never logged out, while an idle session dies after the
// TTL.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
	Email           string    `json:"email"`
	SubscriptionEnd time.Time `json:"subscription_end"`
}

func NewAuthManager(secret string, tokenTTL time.Duration) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 48 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

// Sign issues a session token for the merchant. The subscription end in the
// claims is informational for clients; authorization always re-checks the
// store-backed value.
func (a *AuthManager) Sign(actor domain.Actor) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(a.tokenTTL)
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   actor.MerchantID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "cucibersih",
		},
		Email:           actor.Email,
		SubscriptionEnd: actor.SubscriptionEnd,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{
		MerchantID:      sub,
		Email:           claims.Email,
		SubscriptionEnd: claims.SubscriptionEnd,
	}, nil
}
