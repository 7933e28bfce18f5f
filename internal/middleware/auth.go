package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "lightsync"

// OperatorClaims токен оператора, которому разрешена запись уровней света
type OperatorClaims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// TokenAuth проверяет Bearer JWT (HS256). Пустой секрет отключает проверку.
type TokenAuth struct {
	secret []byte
}

func NewTokenAuth(secret []byte) *TokenAuth {
	return &TokenAuth{secret: secret}
}

// Enabled включена ли проверка
func (a *TokenAuth) Enabled() bool { return len(a.secret) > 0 }

// Issue подписывает токен оператора со сроком жизни ttl
func (a *TokenAuth) Issue(operator string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", errors.New("token auth disabled: empty secret")
	}
	now := time.Now()
	claims := &OperatorClaims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   operator,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Validate разбирает токен и возвращает оператора
func (a *TokenAuth) Validate(token string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Handler пропускает запрос только с действительным токеном
func (a *TokenAuth) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := a.Validate(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("operator", claims.Operator)
		c.Next()
	}
}
