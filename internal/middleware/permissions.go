package middleware

import (
	"context"

	"github.com/keshon/botcore/internal/dispatch"
	"github.com/keshon/botcore/internal/event"
	"github.com/keshon/botcore/internal/services"
)

const MsgAdminOnly = "Only bot administrators can use this command."

// WithAdminOnly refuses the command for anyone admins does not know. A nil
// admins refuses everyone.
func WithAdminOnly(admins services.Admins) dispatch.Middleware {
	return func(h dispatch.Handler) dispatch.Handler {
		return dispatch.Wrap(h, func(ctx context.Context, ev *event.Event, args string) error {
			if admins == nil || !admins.IsAdmin(ev.UserID) {
				return dispatch.Finish(ctx, MsgAdminOnly)
			}
			return h.Handle(ctx, ev, args)
		})
	}
}
