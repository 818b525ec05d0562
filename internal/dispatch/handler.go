package dispatch

import (
	"context"

	"github.com/keshon/botcore/internal/event"
	"github.com/keshon/botcore/internal/plugin"
)

// Handler is a command handler. args is the plain text after the trigger,
// trimmed.
type Handler interface {
	Descriptor() plugin.Descriptor
	Handle(ctx context.Context, ev *event.Event, args string) error
}

// MessageHandler runs on every group message.
type MessageHandler interface {
	Descriptor() plugin.Descriptor
	HandleMessage(ctx context.Context, ev *event.Event) error
}

// ErrorHook lets a handler decide how an unexpected error is reported to
// the user. Without it the dispatcher sends a generic notice.
type ErrorHook interface {
	HandleError(ctx context.Context, err error)
}

// messageAdapter lets message handlers share the command middleware chain.
type messageAdapter struct {
	MessageHandler
}

func (m messageAdapter) Handle(ctx context.Context, ev *event.Event, _ string) error {
	return m.HandleMessage(ctx, ev)
}
