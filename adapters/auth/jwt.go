// Package auth verifies bearer tokens and carries the authenticated user
// through request contexts.
// Tokens are stateless, so any instance can verify them.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	domainauth "github.com/tinytb/web3.storage/domain/auth"
	"github.com/tinytb/web3.storage/domain/billing"
)

// DefaultIssuer is used when no issuer is configured.
const DefaultIssuer = "w3api"

// Claims represents the JWT claims of a user token.
type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// TokenService provides stateless JWT token operations.
// Thread-safe and suitable for concurrent use.
type TokenService struct {
	secret     []byte
	issuer     string
	expiration time.Duration
	now        func() time.Time
}

// NewTokenService creates a new JWT token service.
// If secret is empty, a random 32-byte secret is generated and tokens will
// not survive a restart.
func NewTokenService(secret, issuer string, expiration time.Duration) *TokenService {
	var secretBytes []byte
	if secret == "" {
		secretBytes = make([]byte, 32)
		rand.Read(secretBytes)
	} else {
		secretBytes = []byte(secret)
	}

	if issuer == "" {
		issuer = DefaultIssuer
	}
	if expiration == 0 {
		expiration = 24 * time.Hour
	}

	return &TokenService{
		secret:     secretBytes,
		issuer:     issuer,
		expiration: expiration,
		now:        time.Now,
	}
}

// GenerateToken creates a new JWT token for the given user.
func (s *TokenService) GenerateToken(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("user id is required")
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.expiration)

	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims.
// Failures are *domainauth.Error.
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domainauth.Wrap(domainauth.ReasonExpired, err)
		}
		return nil, domainauth.Wrap(domainauth.ReasonInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, domainauth.ErrInvalidToken
	}

	return claims, nil
}

// Authenticate turns an Authorization header value into a verified user.
func (s *TokenService) Authenticate(header string) (billing.User, error) {
	raw, err := domainauth.ParseBearer(header)
	if err != nil {
		return billing.User{}, err
	}

	claims, err := s.ValidateToken(raw)
	if err != nil {
		return billing.User{}, err
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return billing.User{}, domainauth.ErrNoSubject
	}

	return billing.User{ID: userID, Issuer: claims.Issuer}, nil
}

// GenerateSecret generates a random secret suitable for JWT signing.
func GenerateSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
