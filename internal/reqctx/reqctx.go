// Package reqctx carries the per-request context (the triggering event and
// the bound reply function) through context.Context, so helpers deep in a
// handler's call graph can reach it without threading parameters.
package reqctx

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/keshon/botcore/internal/event"
)

// ReplyFunc sends text back to wherever the current request came from.
type ReplyFunc func(ctx context.Context, msg event.Message) error

// RequestContext is immutable for the lifetime of one dispatch.
type RequestContext struct {
	ID      string
	Handler string
	Event   *event.Event
	Reply   ReplyFunc
	Started time.Time
}

type ctxKey struct{}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a new lexically sortable dispatch id.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// New builds a RequestContext for ev, assigning an ID.
func New(handler string, ev *event.Event, reply ReplyFunc) *RequestContext {
	return &RequestContext{
		ID:      NewID(),
		Handler: handler,
		Event:   ev,
		Reply:   reply,
		Started: time.Now(),
	}
}

// With returns a child of ctx carrying rc.
func With(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// From returns the RequestContext installed in ctx, if any.
func From(ctx context.Context) (*RequestContext, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(ctxKey{}).(*RequestContext)
	return rc, ok && rc != nil
}

// Current is From without the ok flag; nil outside a request.
func Current(ctx context.Context) *RequestContext {
	rc, _ := From(ctx)
	return rc
}

// Run executes fn with rc installed. The scope ends when fn returns or
// panics; the caller's ctx never observes rc.
func Run(ctx context.Context, rc *RequestContext, fn func(ctx context.Context) error) error {
	return fn(With(ctx, rc))
}
