// Package dispatchtest provides a recording deliverer and a ready-made
// dispatcher for handler tests.
package dispatchtest

import (
	"context"
	"sync"
	"testing"

	"github.com/keshon/botcore/internal/capability"
	"github.com/keshon/botcore/internal/dispatch"
	"github.com/keshon/botcore/internal/event"
	"github.com/keshon/botcore/internal/logger"
	"github.com/keshon/botcore/internal/outbound"
)

const (
	SelfID  = "bot"
	Group   = "g1"
	Channel = "c1"
)

// Sent is one delivered message.
type Sent struct {
	Dest string
	Msg  event.Message
}

// Recorder is an event.Deliverer that keeps everything it is given.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	Err  error
}

func (r *Recorder) Deliver(_ context.Context, dest string, msg event.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, Sent{Dest: dest, Msg: msg})
	return nil
}

func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

func (r *Recorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, s := range r.sent {
		out = append(out, s.Msg.Text)
	}
	return out
}

// Last returns the most recent message, or the zero Message.
func (r *Recorder) Last() event.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return event.Message{}
	}
	return r.sent[len(r.sent)-1].Msg
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

// New returns a dispatcher without a send floor that delivers into a Recorder.
func New(t testing.TB, reg *capability.Registry, opts ...dispatch.Option) (*dispatch.Dispatcher, *Recorder) {
	t.Helper()
	rec := &Recorder{}
	limiter := outbound.NewLimiter(outbound.WithMinInterval(0), outbound.WithLogger(logger.Discard()))
	opts = append([]dispatch.Option{dispatch.WithLogger(logger.Discard())}, opts...)
	return dispatch.New(reg, limiter, rec, opts...), rec
}

// GroupEvent is a message from user in the test group.
func GroupEvent(user, text string) *event.Event {
	return &event.Event{GroupID: Group, ChannelID: Channel, UserID: user, Username: "user" + user, SelfID: SelfID, Text: text}
}

// PrivateEvent is a direct message from user.
func PrivateEvent(user, text string) *event.Event {
	return &event.Event{ChannelID: "dm-" + user, UserID: user, Username: "user" + user, SelfID: SelfID, Text: text, ToMe: true}
}
