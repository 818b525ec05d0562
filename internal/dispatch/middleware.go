package dispatch

import (
	"context"

	"github.com/keshon/botcore/internal/event"
	"github.com/keshon/botcore/internal/plugin"
)

// Middleware wraps a handler (e.g. logging, permission check, metrics).
type Middleware func(Handler) Handler

// Apply applies middlewares in order; the first in the list is the outermost.
func Apply(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Unwrappable is implemented by wrapped handlers so the dispatcher can reach
// optional interfaces such as ErrorHook on the underlying handler.
type Unwrappable interface {
	Handler
	Unwrap() Handler
}

// Wrapped wraps a handler with a custom HandleFunc. Used by middleware.
type Wrapped struct {
	Inner      Handler
	HandleFunc func(ctx context.Context, ev *event.Event, args string) error
}

// Descriptor delegates to the inner handler.
func (w *Wrapped) Descriptor() plugin.Descriptor { return w.Inner.Descriptor() }

// Handle runs the wrapper's HandleFunc.
func (w *Wrapped) Handle(ctx context.Context, ev *event.Event, args string) error {
	if w.HandleFunc != nil {
		return w.HandleFunc(ctx, ev, args)
	}
	return w.Inner.Handle(ctx, ev, args)
}

// Unwrap returns the inner handler.
func (w *Wrapped) Unwrap() Handler { return w.Inner }

// Wrap returns a handler that runs fn instead of h.Handle.
func Wrap(h Handler, fn func(ctx context.Context, ev *event.Event, args string) error) Handler {
	return &Wrapped{Inner: h, HandleFunc: fn}
}

// Root unwraps a handler until the underlying handler is reached.
func Root(h Handler) Handler {
	for {
		if u, ok := h.(Unwrappable); ok {
			h = u.Unwrap()
		} else {
			return h
		}
	}
}

// rootAny is Root that also looks through messageAdapter to the message
// handler itself.
func rootAny(h Handler) any {
	h = Root(h)
	if m, ok := h.(messageAdapter); ok {
		return m.MessageHandler
	}
	return h
}
