// Package echo occasionally repeats what was said in a group, sometimes
// backwards.
package echo

import (
	"context"
	"math/rand/v2"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/keshon/botcore/internal/dispatch"
	"github.com/keshon/botcore/internal/event"
	"github.com/keshon/botcore/internal/plugin"
)

const minLength = 2

type Echo struct {
	prefix      string
	probability float64
	reverse     float64
	rnd         func() float64
}

// New returns an echo handler repeating messages with probability and
// reversing a repeat with probability reverse.
func New(prefix string, probability, reverse float64) *Echo {
	return &Echo{prefix: prefix, probability: probability, reverse: reverse, rnd: rand.Float64}
}

func (e *Echo) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        "Echo",
		Description: "Randomly repeats group messages, sometimes backwards",
		Feature:     "echo",
		Priority:    2,
	}
}

func (e *Echo) HandleMessage(ctx context.Context, ev *event.Event) error {
	reply, ok := e.echo(ev)
	if !ok {
		return nil
	}
	return dispatch.Send(ctx, reply)
}

func (e *Echo) echo(ev *event.Event) (string, bool) {
	if ev.FromSelf() {
		return "", false
	}
	text := strings.TrimSpace(ev.Text)
	if e.prefix != "" && strings.HasPrefix(text, e.prefix) {
		return "", false
	}
	if utf8.RuneCountInString(text) < minLength {
		return "", false
	}
	if e.rnd() >= e.probability {
		return "", false
	}
	if e.rnd() < e.reverse {
		return Reverse(text), true
	}
	return text, true
}

// Reverse reverses s by rune.
func Reverse(s string) string {
	r := []rune(s)
	slices.Reverse(r)
	return string(r)
}
