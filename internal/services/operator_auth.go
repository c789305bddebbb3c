package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// OperatorAuth issues and verifies the bearer tokens of the operator API.
type OperatorAuth struct {
	jwtSecret string
	jwtExpiry time.Duration
}

type OperatorClaims struct {
	Subject   string
	ExpiresAt time.Time
}

func NewOperatorAuth(jwtSecret string, jwtExpiry time.Duration) *OperatorAuth {
	if jwtExpiry <= 0 {
		jwtExpiry = 24 * time.Hour
	}
	return &OperatorAuth{jwtSecret: jwtSecret, jwtExpiry: jwtExpiry}
}

func (a *OperatorAuth) IssueToken(subject string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("subject is required")
	}
	expiresAt := time.Now().Add(a.jwtExpiry)
	claims := jwt.MapClaims{
		"sub":   subject,
		"scope": "operator",
		"exp":   expiresAt.Unix(),
		"iat":   time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.jwtSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (a *OperatorAuth) VerifyToken(tokenString string) (*OperatorClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if scope, _ := claims["scope"].(string); scope != "operator" {
		return nil, ErrInvalidToken
	}
	subject, ok := claims["sub"].(string)
	if !ok || subject == "" {
		return nil, ErrInvalidToken
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrInvalidToken
	}

	return &OperatorClaims{Subject: subject, ExpiresAt: exp.Time}, nil
}
