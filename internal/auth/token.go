package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"repairscribe/internal/apperr"
	"repairscribe/internal/models"
)

var (
	ErrInvalidToken = apperr.New(apperr.KindAuth, "Invalid token")
	ErrExpiredToken = apperr.New(apperr.KindAuth, "Token expired")

	errMissingSecret = errors.New("jwt signing secret must be configured")
)

// Claims are the signed contents of a session token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// TokenIssuer mints and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer refuses an empty secret so that a misconfigured process
// fails at startup rather than on the first request.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errMissingSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a token for the user valid for the configured lifetime.
func (t *TokenIssuer) Issue(userID, email string) (string, error) {
	return t.issueAt(userID, email, t.now())
}

func (t *TokenIssuer) issueAt(userID, email string, issuedAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(t.ttl)),
		},
		UserID: userID,
		Email:  email,
	})
	return token.SignedString(t.secret)
}

// Verify checks signature and expiry and returns the embedded identity.
func (t *TokenIssuer) Verify(tokenString string) (*models.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Sentinel(ErrExpiredToken, err)
		}
		return nil, apperr.Sentinel(ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return &models.Identity{UserID: claims.UserID, Email: claims.Email}, nil
}
