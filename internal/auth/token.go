// Package auth: JWT-сессии, пароли/PIN и синтетические email учёток.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/psds-microservice/workshop-service/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// Claims: профиль сессии внутри токена.
type Claims struct {
	AccountID string     `json:"account_id"`
	Role      model.Role `json:"role"`
	Slug      string     `json:"slug"`
	Name      string     `json:"name"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: now}
}

// Generate подписывает HS256 токен для учётки.
func (i *Issuer) Generate(a *model.Account) (string, time.Time, error) {
	issued := i.now()
	exp := issued.Add(i.ttl)
	claims := Claims{
		AccountID: a.ID,
		Role:      a.Role,
		Slug:      a.Slug,
		Name:      a.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tok, exp, nil
}

// Parse проверяет токен. Для просроченного токена с верной подписью
// возвращает и claims, и ошибку jwt.ErrTokenExpired.
func (i *Issuer) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if errors.Is(err, jwt.ErrTokenExpired) && claims.Role.Valid() {
		// подпись верна, истёк только срок: роль нужна для ссылки на вход
		return claims, err
	}
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if !claims.Role.Valid() || claims.AccountID == "" {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

func HashPassword(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
