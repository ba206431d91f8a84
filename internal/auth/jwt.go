package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// maxJWTLen bounds the token before any base64 or JSON decoding happens.
const maxJWTLen = 16 * 1024

// Claims is what the relay reads from an admission token. Only the
// registered claims are validated; Name is informational.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier accepts HMAC-signed tokens that carry an exp claim.
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		now:    time.Now,
	}
}

func (v *JWTVerifier) Verify(token string) error {
	_, err := v.Claims(token)
	return err
}

// Claims verifies token and returns its claims. Every failure wraps
// ErrInvalidCredentials; the jwt sentinel (jwt.ErrTokenExpired and so on) is
// wrapped alongside it.
func (v *JWTVerifier) Claims(token string) (*Claims, error) {
	if token == "" || len(v.secret) == 0 {
		return nil, ErrInvalidCredentials
	}
	if len(token) > maxJWTLen {
		return nil, fmt.Errorf("%w: token too long", ErrInvalidCredentials)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)

	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}
