package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/meridian-apps/casecomms/src/api/apperr"
	"github.com/meridian-apps/casecomms/src/api/types"
)

func newJWT(t *testing.T) *JWT {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&types.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, u := range []types.User{
		{ID: 1, Email: "alice@example.com", Active: true},
		{ID: 2, Email: "dave@example.com", Active: false},
	} {
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return NewJWT([]byte("test-secret"), db)
}

func TestTokenRoundTrip(t *testing.T) {
	j := newJWT(t)

	token, err := j.Issue(1, "alice@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := j.VerifyToken(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != 1 || claims.Email != "alice@example.com" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	j := newJWT(t)

	cases := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := j.VerifyToken(context.Background(), tc.token); !apperr.IsUnauthenticated(err) {
				t.Errorf("got %v, want unauthenticated", err)
			}
		})
	}

	// Token signed with a different secret.
	other := NewJWT([]byte("other-secret"), nil)
	token, err := other.Issue(1, "alice@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := j.VerifyToken(context.Background(), token); !apperr.IsUnauthenticated(err) {
		t.Errorf("wrong secret: got %v, want unauthenticated", err)
	}

	// Expired token.
	expired, err := j.Issue(1, "alice@example.com", -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := j.VerifyToken(context.Background(), expired); !apperr.IsUnauthenticated(err) {
		t.Errorf("expired: got %v, want unauthenticated", err)
	}
}

func TestIsActiveUser(t *testing.T) {
	j := newJWT(t)
	ctx := context.Background()

	if ok, _ := j.IsActiveUser(ctx, 1); !ok {
		t.Error("active user reported inactive")
	}
	if ok, _ := j.IsActiveUser(ctx, 2); ok {
		t.Error("deactivated user reported active")
	}
	if ok, _ := j.IsActiveUser(ctx, 999); ok {
		t.Error("unknown user reported active")
	}
}
