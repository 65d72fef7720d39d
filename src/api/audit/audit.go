// Package audit publishes mutation events to a redis stream. Record has no
// error return; failures are logged and swallowed so an audit outage cannot
// abort the operation that triggered it.
package audit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const stream = "casecomms.audit"

type Event struct {
	Action  string
	ActorID uint64
	Object  string
	Detail  map[string]any
}

type Recorder interface {
	Record(ctx context.Context, ev Event)
}

type Stream struct {
	rdb *redis.Client
	log *zap.SugaredLogger
}

func NewStream(rdb *redis.Client, log *zap.SugaredLogger) *Stream {
	return &Stream{rdb: rdb, log: log.With("component", "audit")}
}

func (s *Stream) Record(ctx context.Context, ev Event) {
	values := map[string]any{
		"action": ev.Action,
		"actor":  ev.ActorID,
		"object": ev.Object,
		"time":   time.Now().Unix(),
	}
	for k, v := range ev.Detail {
		values["d_"+k] = v
	}
	if err := s.rdb.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Err(); err != nil {
		s.log.Warnw("audit record dropped", "action", ev.Action, "err", err)
	}
}

// Nop discards all events. Used by tests.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}
