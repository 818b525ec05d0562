package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/keshon/botcore/internal/audit"
	"github.com/keshon/botcore/internal/dispatch"
	"github.com/keshon/botcore/internal/event"
	"github.com/keshon/botcore/internal/reqctx"
)

// WithCommandLogger wraps a command to log its execution and publish an
// audit record. pub may be nil.
func WithCommandLogger(pub audit.Publisher, logger *log.Logger) dispatch.Middleware {
	return func(h dispatch.Handler) dispatch.Handler {
		return dispatch.Wrap(h, func(ctx context.Context, ev *event.Event, args string) error {
			err := h.Handle(ctx, ev, args)

			rec := audit.Record{
				GroupID:   ev.GroupID,
				ChannelID: ev.ChannelID,
				UserID:    ev.UserID,
				Username:  ev.Username,
				Command:   h.Descriptor().Name,
				Param:     args,
				Failed:    err != nil && !errors.Is(err, dispatch.ErrFinished),
				Time:      time.Now(),
			}
			if rc := reqctx.Current(ctx); rc != nil {
				rec.Dispatch = rc.ID
			}

			logger.Info("command", "dispatch", rec.Dispatch, "command", rec.Command, "user", ev.UserID, "group", ev.GroupID, "failed", rec.Failed)
			if pub != nil {
				if e := pub.Publish(ctx, rec); e != nil {
					logger.Warn("failed to publish command record", "command", rec.Command, "err", e)
				}
			}
			return err
		})
	}
}
