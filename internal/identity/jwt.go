package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// JWTValidator verifies HMAC-signed identity tokens and extracts the caller
// claims the engine relies on.
type JWTValidator struct {
	signingKey []byte
}

// NewJWTValidator builds a validator around the shared signing key.
func NewJWTValidator(signingKey string) *JWTValidator {
	return &JWTValidator{signingKey: []byte(signingKey)}
}

// Validate parses the token and returns the caller identity. phone_number is
// mandatory; everything else is optional.
func (v *JWTValidator) Validate(tokenString string) (Auth, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return Auth{}, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Auth{}, fmt.Errorf("invalid token claims")
	}

	auth := Auth{
		PhoneNumber: stringClaim(claims, "phone_number"),
		UID:         stringClaim(claims, "sub"),
		DisplayName: stringClaim(claims, "name"),
	}
	if auth.PhoneNumber == "" {
		return Auth{}, fmt.Errorf("token missing phone_number claim")
	}
	if custom, ok := claims["custom"].(map[string]any); ok {
		auth.CustomClaims = custom
	}
	return auth, nil
}

func stringClaim(claims jwt.MapClaims, name string) string {
	if v, ok := claims[name].(string); ok {
		return v
	}
	return ""
}
