package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"rtchat/internal/domain"
)

// TokenService wraps JWT creation and validation. Tokens carry the user id
// as subject.
type TokenService struct {
	secret    []byte
	expiresIn time.Duration
}

func NewTokenService(secret string, expiresIn time.Duration) *TokenService {
	return &TokenService{
		secret:    []byte(secret),
		expiresIn: expiresIn,
	}
}

// CreateForUser creates a signed token for the given user id.
func (t *TokenService) CreateForUser(userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(t.expiresIn).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify validates a token and returns the user id it was issued for.
// Expired tokens map to domain.ErrCredentialExpired, anything else invalid
// to domain.ErrInvalidCredential, so the gateway can distinguish the two for
// client UX.
func (t *TokenService) Verify(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", domain.ErrCredentialExpired
		}
		return "", domain.ErrInvalidCredential
	}
	if !token.Valid {
		return "", domain.ErrInvalidCredential
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", domain.ErrInvalidCredential
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", domain.ErrInvalidCredential
	}
	return sub, nil
}
