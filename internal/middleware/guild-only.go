package middleware

import (
	"context"

	"github.com/keshon/botcore/internal/dispatch"
	"github.com/keshon/botcore/internal/event"
)

const (
	MsgGroupOnly   = "This command only works in group chats."
	MsgPrivateOnly = "Please send this command to me in a private message."
)

// WithGroupOnly wraps a command to enforce group-only access
func WithGroupOnly() dispatch.Middleware {
	return func(h dispatch.Handler) dispatch.Handler {
		return dispatch.Wrap(h, func(ctx context.Context, ev *event.Event, args string) error {
			if !ev.IsGroup() {
				return dispatch.Finish(ctx, MsgGroupOnly)
			}
			return h.Handle(ctx, ev, args)
		})
	}
}

// WithPrivateOnly wraps a command so it only runs in private chats
func WithPrivateOnly() dispatch.Middleware {
	return func(h dispatch.Handler) dispatch.Handler {
		return dispatch.Wrap(h, func(ctx context.Context, ev *event.Event, args string) error {
			if ev.IsGroup() {
				return dispatch.Finish(ctx, MsgPrivateOnly)
			}
			return h.Handle(ctx, ev, args)
		})
	}
}
