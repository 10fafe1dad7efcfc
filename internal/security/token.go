package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	PurposeAccess  = "access"
	PurposeRefresh = "refresh"
)

var ErrWrongPurpose = errors.New("token purpose mismatch")

// TokenService wraps JWT creation and validation. Tokens carry the user ID in
// "sub" and their purpose in "type".
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// CreateAccess issues a short-lived access token for the user.
func (t *TokenService) CreateAccess(userID string) (string, error) {
	return t.CreateWithTTL(userID, PurposeAccess, t.accessTTL)
}

// CreateRefresh issues a long-lived refresh token. It is never accepted by
// ParseAccess.
func (t *TokenService) CreateRefresh(userID string) (string, error) {
	return t.CreateWithTTL(userID, PurposeRefresh, t.refreshTTL)
}

// CreateWithTTL creates a token with an explicit purpose and TTL.
func (t *TokenService) CreateWithTTL(userID, purpose string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  userID,
		"type": purpose,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse validates signature and expiry and returns the claims.
func (t *TokenService) Parse(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok {
		return claims, nil
	}
	return nil, jwt.ErrTokenMalformed
}

// ParseAccess validates an access token and returns its subject user ID.
func (t *TokenService) ParseAccess(tokenStr string) (string, error) {
	return t.parsePurpose(tokenStr, PurposeAccess)
}

// ParseRefresh validates a refresh token and returns its subject user ID.
func (t *TokenService) ParseRefresh(tokenStr string) (string, error) {
	return t.parsePurpose(tokenStr, PurposeRefresh)
}

func (t *TokenService) parsePurpose(tokenStr, want string) (string, error) {
	claims, err := t.Parse(tokenStr)
	if err != nil {
		return "", err
	}
	if purpose, _ := claims["type"].(string); purpose != want {
		return "", ErrWrongPurpose
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", jwt.ErrTokenInvalidSubject
	}
	return sub, nil
}
