package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the role carried by admin session tokens.
const RoleAdmin = "admin"

// DefaultTokenExpiry is used when no expiry is configured.
const DefaultTokenExpiry = 12 * time.Hour

// ErrAuthDisabled is returned when tokens are requested without a signing secret.
var ErrAuthDisabled = errors.New("token signing is not configured")

// JWTClaims represents the JWT token claims.
type JWTClaims struct {
	// Role is the granted role, currently always admin.
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware issues and validates HS256 session tokens.
type AuthMiddleware struct {
	secretKey []byte
	expiry    time.Duration
	now       func() time.Time
}

// NewAuthMiddleware creates a new authentication middleware.
//
// Parameters:
//   secretKey: Secret key for signing tokens. Empty disables issuing.
//   expiry: Token lifetime; zero uses DefaultTokenExpiry.
//
// Returns:
//   *AuthMiddleware: Initialized middleware.
func NewAuthMiddleware(secretKey string, expiry time.Duration) *AuthMiddleware {
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}
	return &AuthMiddleware{
		secretKey: []byte(secretKey),
		expiry:    expiry,
		now:       time.Now,
	}
}

// Enabled reports whether a signing secret is configured.
func (am *AuthMiddleware) Enabled() bool {
	return len(am.secretKey) > 0
}

// GenerateToken creates a signed token for subject with the given role.
//
// Returns:
//   string: Signed token string.
//   time.Time: Expiry of the token.
//   error: Error if generation fails.
func (am *AuthMiddleware) GenerateToken(subject, role string) (string, time.Time, error) {
	if !am.Enabled() {
		return "", time.Time{}, ErrAuthDisabled
	}

	now := am.now()
	expiresAt := now.Add(am.expiry)
	claims := &JWTClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(am.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns claims.
//
// Parameters:
//   tokenString: Token string to validate.
//
// Returns:
//   *JWTClaims: Token claims.
//   error: Error if validation fails.
func (am *AuthMiddleware) ValidateToken(tokenString string) (*JWTClaims, error) {
	if !am.Enabled() {
		return nil, ErrAuthDisabled
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return am.secretKey, nil
	}, jwt.WithTimeFunc(am.now))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
