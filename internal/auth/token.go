package auth

import (
	"fmt"
	"strings"

	"github.com/affordeals/storefront/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier checks HS256 bearer tokens issued by the identity provider.
// Claims used: user_id (number), email, is_staff.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier for the shared signing secret
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// ParseBearer extracts the token from an Authorization header value
func ParseBearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Verify validates the signature and expiry and returns the identity in the claims
func (v *TokenVerifier) Verify(tokenString string) (*Identity, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: token verification is not configured", models.ErrUnauthenticated)
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: token is invalid: %v", models.ErrUnauthenticated, err)
	}

	userID, ok := claims["user_id"].(float64)
	if !ok || userID <= 0 {
		return nil, fmt.Errorf("%w: token has no user_id", models.ErrUnauthenticated)
	}

	id := &Identity{UserID: int64(userID)}
	id.Email, _ = claims["email"].(string)
	id.Staff, _ = claims["is_staff"].(bool)
	return id, nil
}
