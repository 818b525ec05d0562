package dispatch

import (
	"context"
	"errors"

	"github.com/keshon/botcore/internal/event"
	"github.com/keshon/botcore/internal/reqctx"
)

var (
	// ErrFinished ends the current turn. Handlers return it (usually via
	// Finish) after sending their final reply; the dispatcher treats it as
	// success.
	ErrFinished = errors.New("dispatch: finished")

	// ErrNoRequest is returned by the send helpers outside a dispatch.
	ErrNoRequest = errors.New("dispatch: no request in context")
)

// Send sends text to the current request's destination through the output
// limiter.
func Send(ctx context.Context, text string) error {
	return SendMessage(ctx, event.Message{Text: text})
}

// Reply sends text addressed to the user who triggered the request.
func Reply(ctx context.Context, text string) error {
	rc := reqctx.Current(ctx)
	if rc == nil {
		return ErrNoRequest
	}
	msg := event.Message{Text: text}
	if rc.Event != nil {
		msg.Mention = rc.Event.UserID
	}
	return SendMessage(ctx, msg)
}

// SendMessage sends a prepared message for the current request.
func SendMessage(ctx context.Context, msg event.Message) error {
	rc := reqctx.Current(ctx)
	if rc == nil || rc.Reply == nil {
		return ErrNoRequest
	}
	return rc.Reply(ctx, msg)
}

// Finish sends text and returns ErrFinished. Delivery failures are already
// logged by the limiter and do not change the result.
//
//	return dispatch.Finish(ctx, "done")
func Finish(ctx context.Context, text string) error {
	_ = Send(ctx, text)
	return ErrFinished
}

// FinishReply is Finish with the sender mentioned.
func FinishReply(ctx context.Context, text string) error {
	_ = Reply(ctx, text)
	return ErrFinished
}

// CurrentEvent returns the event being handled, or nil.
func CurrentEvent(ctx context.Context) *event.Event {
	if rc := reqctx.Current(ctx); rc != nil {
		return rc.Event
	}
	return nil
}
