package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of an issued session token.
const DefaultTokenTTL = time.Hour

var (
	ErrTokenMissing = errors.New("token missing")
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

// Identity is the user a verified token speaks for.
type Identity struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
}

// Claims is the JWT payload: the identity plus the registered iat/exp claims.
type Claims struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens. Nothing is stored server side;
// rotating Secret invalidates every outstanding token.
type TokenIssuer struct {
	Secret []byte
	TTL    time.Duration

	// now is overridable in tests.
	now func() time.Time
}

func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{Secret: secret, TTL: ttl, now: time.Now}
}

func (t *TokenIssuer) clock() time.Time {
	if t.now == nil {
		return time.Now()
	}
	return t.now()
}

// Issue returns a signed token for the user, valid for TTL from now.
func (t *TokenIssuer) Issue(userID int, username string) (string, error) {
	now := t.clock()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.TTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of tokenStr. The returned error is one of
// ErrTokenMissing, ErrTokenInvalid or ErrTokenExpired.
func (t *TokenIssuer) Verify(tokenStr string) (Identity, error) {
	if tokenStr == "" {
		return Identity{}, ErrTokenMissing
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (interface{}, error) { return t.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.clock),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Identity{}, ErrTokenExpired
	case err != nil:
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	case !token.Valid:
		return Identity{}, ErrTokenInvalid
	}

	return Identity{UserID: claims.UserID, Username: claims.Username}, nil
}
