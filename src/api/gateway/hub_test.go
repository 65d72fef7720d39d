package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/meridian-apps/casecomms/src/api/authz"
	"github.com/meridian-apps/casecomms/src/api/directory"
	"github.com/meridian-apps/casecomms/src/api/hierarchy"
	zaplog "github.com/meridian-apps/casecomms/src/api/logger"
	"github.com/meridian-apps/casecomms/src/api/roster"
	"github.com/meridian-apps/casecomms/src/api/types"
)

const (
	uAlice = 1
	uBob   = 2
	uCarol = 3
)

func newHub(t *testing.T) (*Hub, *directory.Service) {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&types.User{}, &types.Role{}, &types.Team{},
		&types.Channel{}, &types.ChannelMember{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, u := range []types.User{
		{ID: uAlice, Email: "alice@example.com", Active: true},
		{ID: uBob, Email: "bob@example.com", Active: true},
		{ID: uCarol, Email: "carol@example.com", Active: true},
	} {
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	dir := directory.New(db, roster.NewDB(db), authz.NewGate(hierarchy.NewDB(db)), zaplog.Nop())
	return NewHub(dir, zaplog.Nop()), dir
}

// testClient builds a hub client without a network connection; the pumps are
// never started, so frames accumulate in the send buffer.
func testClient(hub *Hub, userID uint64) *Client {
	return NewClient(hub, nil, userID)
}

func drain(t *testing.T, c *Client) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case raw := <-c.send:
			var env Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				t.Fatalf("bad envelope: %v", err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func directChannel(t *testing.T, dir *directory.Service, a, b uint64) uint64 {
	t.Helper()
	ch, err := dir.Create(context.Background(), directory.CreateSpec{Variant: types.VariantDirect, PeerID: b}, a, directory.CreateOpts{})
	if err != nil {
		t.Fatalf("create direct channel: %v", err)
	}
	return ch.ID
}

func TestInitialSubscription(t *testing.T) {
	hub, dir := newHub(t)
	chID := directChannel(t, dir, uAlice, uBob)

	alice := testClient(hub, uAlice)
	hub.subscribeInitial(context.Background(), alice)

	if !hub.InRoom(chID, alice) {
		t.Error("connection not subscribed to existing channel")
	}

	carol := testClient(hub, uCarol)
	hub.subscribeInitial(context.Background(), carol)
	if hub.InRoom(chID, carol) {
		t.Error("outsider subscribed to a channel they cannot access")
	}
}

func TestJoinChannelRechecksAccess(t *testing.T) {
	hub, dir := newHub(t)
	chID := directChannel(t, dir, uAlice, uBob)
	ctx := context.Background()

	carol := testClient(hub, uCarol)
	if err := hub.JoinChannel(ctx, carol, chID); err != nil {
		t.Fatalf("join: %v", err)
	}
	if hub.InRoom(chID, carol) {
		t.Error("denied join still added the connection to the room")
	}
	envs := drain(t, carol)
	if len(envs) != 1 || envs[0].Event != EvError {
		t.Errorf("denied join should emit an error event, got %+v", envs)
	}

	bob := testClient(hub, uBob)
	if err := hub.JoinChannel(ctx, bob, chID); err != nil {
		t.Fatalf("join: %v", err)
	}
	if !hub.InRoom(chID, bob) {
		t.Error("member join failed")
	}
	envs = drain(t, bob)
	if len(envs) != 1 || envs[0].Event != EvJoined {
		t.Errorf("join ack missing, got %+v", envs)
	}

	hub.LeaveChannel(bob, chID)
	if hub.InRoom(chID, bob) {
		t.Error("leave did not remove the connection")
	}
}

func TestBroadcastReachesRoomOnly(t *testing.T) {
	hub, dir := newHub(t)
	chID := directChannel(t, dir, uAlice, uBob)
	ctx := context.Background()

	alice := testClient(hub, uAlice)
	bob := testClient(hub, uBob)
	carol := testClient(hub, uCarol)
	hub.subscribeInitial(ctx, alice)
	hub.subscribeInitial(ctx, bob)
	hub.subscribeInitial(ctx, carol)

	hub.BroadcastMessage(chID, map[string]string{"content": "hello"})

	for _, tc := range []struct {
		name   string
		client *Client
		want   int
	}{
		{"alice", alice, 1},
		{"bob", bob, 1},
		{"carol", carol, 0},
	} {
		envs := drain(t, tc.client)
		if len(envs) != tc.want {
			t.Errorf("%s received %d frames, want %d", tc.name, len(envs), tc.want)
			continue
		}
		if tc.want == 1 && envs[0].Event != EvNewMessage {
			t.Errorf("%s got event %s, want %s", tc.name, envs[0].Event, EvNewMessage)
		}
	}
}

func TestTypingPresence(t *testing.T) {
	hub, dir := newHub(t)
	chID := directChannel(t, dir, uAlice, uBob)
	ctx := context.Background()

	alice := testClient(hub, uAlice)
	bob := testClient(hub, uBob)
	hub.subscribeInitial(ctx, alice)
	hub.subscribeInitial(ctx, bob)

	if err := hub.TypingStart(ctx, alice, chID); err != nil {
		t.Fatalf("typing start: %v", err)
	}
	if got := hub.TypingUsers(chID); len(got) != 1 || got[0] != uAlice {
		t.Errorf("typing users = %v, want [alice]", got)
	}

	// Only the other member is notified, not the typist.
	envs := drain(t, bob)
	if len(envs) != 1 || envs[0].Event != EvUserTyping || envs[0].UserID != uAlice {
		t.Errorf("bob's notification wrong: %+v", envs)
	}
	if envs := drain(t, alice); len(envs) != 0 {
		t.Errorf("typist notified about self: %+v", envs)
	}

	if err := hub.TypingStop(ctx, alice, chID); err != nil {
		t.Fatalf("typing stop: %v", err)
	}
	if got := hub.TypingUsers(chID); len(got) != 0 {
		t.Errorf("typing users after stop = %v, want none", got)
	}
	envs = drain(t, bob)
	if len(envs) != 1 || envs[0].Event != EvUserStoppedTyping {
		t.Errorf("stop notification wrong: %+v", envs)
	}

	// Outsiders cannot signal typing into the channel.
	carol := testClient(hub, uCarol)
	if err := hub.TypingStart(ctx, carol, chID); err != nil {
		t.Fatalf("typing start: %v", err)
	}
	if got := hub.TypingUsers(chID); len(got) != 0 {
		t.Errorf("outsider recorded as typing: %v", got)
	}
}

func TestDisconnectPurgesState(t *testing.T) {
	hub, dir := newHub(t)
	chID := directChannel(t, dir, uAlice, uBob)
	ctx := context.Background()

	alice := testClient(hub, uAlice)
	bob := testClient(hub, uBob)
	hub.subscribeInitial(ctx, alice)
	hub.subscribeInitial(ctx, bob)

	if err := hub.TypingStart(ctx, alice, chID); err != nil {
		t.Fatalf("typing start: %v", err)
	}
	drain(t, bob)

	hub.dropClient(alice)

	if hub.InRoom(chID, alice) {
		t.Error("dropped connection still in room")
	}
	if got := hub.TypingUsers(chID); len(got) != 0 {
		t.Errorf("typing presence survived disconnect: %v", got)
	}
	// The room learns the typist is gone.
	envs := drain(t, bob)
	if len(envs) != 1 || envs[0].Event != EvUserStoppedTyping || envs[0].UserID != uAlice {
		t.Errorf("disconnect stop notification wrong: %+v", envs)
	}

	// Frames to the dropped client are discarded, not a panic.
	hub.BroadcastMessage(chID, map[string]string{"content": "after"})
}

func TestDetachAfterShutdownDoesNotBlock(t *testing.T) {
	hub, dir := newHub(t)
	directChannel(t, dir, uAlice, uBob)

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(ran)
	}()

	alice := testClient(hub, uAlice)
	hub.Register <- alice

	cancel()
	<-ran

	// A connection dropping after shutdown hands itself back to a hub that no
	// longer drains Unregister; detach must still return.
	detached := make(chan struct{})
	go func() {
		alice.detach()
		close(detached)
	}()
	select {
	case <-detached:
	case <-time.After(time.Second):
		t.Fatal("detach blocked after hub shutdown")
	}
	if _, ok := <-alice.send; ok {
		t.Error("send queue left open after post-shutdown detach")
	}
}
