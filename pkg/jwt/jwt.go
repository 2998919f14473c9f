package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"gameshelf/backend/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrWrongTokenType = errors.New("wrong token type")
)

// Claims are the claims carried by both token types. Version is only set on
// refresh tokens and must match the user's current token version.
type Claims struct {
	Type    TokenType `json:"typ"`
	Version int       `json:"ver,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject as a user id.
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return uint(id), nil
}

// GenerateToken creates a new access token for a given user ID.
func GenerateToken(userID uint) (string, error) {
	return sign(AccessToken, userID, 0, config.AppConfig.AccessTokenTTL, config.AppConfig.JWTSecret)
}

// GenerateRefreshToken creates a refresh token bound to the user's token version.
func GenerateRefreshToken(userID uint, version int) (string, error) {
	return sign(RefreshToken, userID, version, config.AppConfig.RefreshTokenTTL, config.AppConfig.JWTRefreshSecret)
}

// ParseToken validates an access token.
func ParseToken(tokenString string) (*Claims, error) {
	return parse(tokenString, AccessToken, config.AppConfig.JWTSecret)
}

// ParseRefreshToken validates a refresh token. The caller still has to compare
// the version with the user's current one.
func ParseRefreshToken(tokenString string) (*Claims, error) {
	return parse(tokenString, RefreshToken, config.AppConfig.JWTRefreshSecret)
}

func sign(typ TokenType, userID uint, version int, ttl time.Duration, secret string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Type:    typ,
		Version: version,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

func parse(tokenString string, want TokenType, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != want {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
