// Package identity verifies bearer tokens for the messaging core. Token
// issuance belongs to the platform's auth service; this implementation shares
// its HS256 secret and claim layout.
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/meridian-apps/casecomms/src/api/apperr"
	"github.com/meridian-apps/casecomms/src/api/types"
)

type Claims struct {
	UserID uint64
	Email  string
}

type Verifier interface {
	VerifyToken(ctx context.Context, token string) (Claims, error)
	IsActiveUser(ctx context.Context, userID uint64) (bool, error)
}

type JWT struct {
	secret []byte
	db     *gorm.DB
}

func NewJWT(secret []byte, db *gorm.DB) *JWT {
	return &JWT{secret: secret, db: db}
}

func (j *JWT) VerifyToken(_ context.Context, token string) (Claims, error) {
	tok, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil || !tok.Valid {
		return Claims{}, apperr.ErrUnauthenticated
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, apperr.ErrUnauthenticated
	}
	sub, ok := mc["sub"].(float64)
	if !ok || sub <= 0 {
		return Claims{}, apperr.ErrUnauthenticated
	}
	email, _ := mc["email"].(string)
	return Claims{UserID: uint64(sub), Email: email}, nil
}

func (j *JWT) IsActiveUser(ctx context.Context, userID uint64) (bool, error) {
	var n int64
	err := j.db.WithContext(ctx).Model(&types.User{}).
		Where("id = ? AND active = ?", userID, true).Count(&n).Error
	return n > 0, err
}

// Issue signs a token for the given user. Kept here so the dev login endpoint
// and tests produce tokens with the exact claim layout VerifyToken expects.
func (j *JWT) Issue(userID uint64, email string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   float64(userID),
		"email": email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}
