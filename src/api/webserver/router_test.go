package webserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/meridian-apps/casecomms/src/api/apperr"
	"github.com/meridian-apps/casecomms/src/api/audit"
	"github.com/meridian-apps/casecomms/src/api/authz"
	"github.com/meridian-apps/casecomms/src/api/config"
	"github.com/meridian-apps/casecomms/src/api/directory"
	"github.com/meridian-apps/casecomms/src/api/gateway"
	"github.com/meridian-apps/casecomms/src/api/hierarchy"
	"github.com/meridian-apps/casecomms/src/api/identity"
	zaplog "github.com/meridian-apps/casecomms/src/api/logger"
	"github.com/meridian-apps/casecomms/src/api/roster"
	"github.com/meridian-apps/casecomms/src/api/store"
	"github.com/meridian-apps/casecomms/src/api/types"
	"github.com/meridian-apps/casecomms/src/api/workflow"
)

type nullStorage struct{}

func (nullStorage) Store(_ context.Context, _ string, r io.Reader) (string, int64, error) {
	n, err := io.Copy(io.Discard, r)
	return uuid.NewString(), n, err
}

func (nullStorage) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, apperr.ErrNotFound
}

func (nullStorage) Remove(context.Context, string) error { return nil }

func newTestRouter(t *testing.T) (*gin.Engine, *identity.JWT) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&types.User{}, &types.Role{}, &types.Team{},
		&types.Channel{}, &types.ChannelMember{},
		&types.Message{}, &types.Attachment{},
		&types.ChannelRequest{}, &types.ChannelRequestMember{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, u := range []types.User{
		{ID: 1, FirstName: "Alice", Email: "alice@example.com", Active: true},
		{ID: 2, FirstName: "Bob", Email: "bob@example.com", Active: true},
		{ID: 3, FirstName: "Carol", Email: "carol@example.com", Active: true},
	} {
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	log := zaplog.Nop()
	ros := roster.NewDB(db)
	hier := hierarchy.NewDB(db)
	gate := authz.NewGate(hier)
	dir := directory.New(db, ros, gate, log)
	wf := workflow.New(db, dir, gate, hier, log)
	st := store.New(db, dir, ros, nullStorage{}, log)
	verifier := identity.NewJWT([]byte("test-secret"), db)
	hub := gateway.NewHub(dir, log)

	router := New(Deps{
		Cfg:      config.Config{MsgRate: 100, MaxFileSize: 1 << 20},
		DB:       db,
		Verifier: verifier,
		Dir:      dir,
		Workflow: wf,
		Store:    st,
		Hub:      hub,
		Audit:    audit.Nop{},
		Log:      log,
	})
	return router, verifier
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/channels", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: got %d, want 401", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/v1/channels", "bogus", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: got %d, want 401", w.Code)
	}
}

func TestDirectMessageFlow(t *testing.T) {
	router, verifier := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/auth/login", "", gin.H{"email": "alice@example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: got %d: %s", w.Code, w.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	w = doJSON(t, router, http.MethodPost, "/v1/channels", login.Token, gin.H{"variant": "direct", "peerId": 2})
	if w.Code != http.StatusCreated {
		t.Fatalf("create channel: got %d: %s", w.Code, w.Body.String())
	}
	var ch types.Channel
	if err := json.Unmarshal(w.Body.Bytes(), &ch); err != nil {
		t.Fatalf("decode channel: %v", err)
	}

	path := fmt.Sprintf("/v1/channels/%d/messages", ch.ID)
	w = doJSON(t, router, http.MethodPost, path, login.Token, gin.H{"body": "hello bob"})
	if w.Code != http.StatusCreated {
		t.Fatalf("send: got %d: %s", w.Code, w.Body.String())
	}

	bobToken, err := verifier.Issue(2, "bob@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	w = doJSON(t, router, http.MethodGet, path, bobToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: got %d: %s", w.Code, w.Body.String())
	}
	var listing struct {
		Messages []store.ResolvedMessage `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Messages) != 1 || listing.Messages[0].Content != "hello bob" {
		t.Errorf("listing = %+v", listing.Messages)
	}
	if listing.Messages[0].Sender.FirstName != "Alice" {
		t.Errorf("sender not resolved: %+v", listing.Messages[0].Sender)
	}

	// Carol is outside the channel: reads mask it as missing, sends are refused.
	carolToken, err := verifier.Issue(3, "carol@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/v1/channels/%d", ch.ID), carolToken, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("masked get: got %d, want 404", w.Code)
	}
	w = doJSON(t, router, http.MethodPost, path, carolToken, gin.H{"body": "let me in"})
	if w.Code != http.StatusForbidden {
		t.Errorf("outsider send: got %d, want 403", w.Code)
	}
}
