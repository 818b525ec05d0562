// Package highnoon is a Russian-roulette game: one chamber of six holds the
// bullet and whoever fires it is muted for a few minutes.
package highnoon

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/keshon/botcore/internal/capability"
	"github.com/keshon/botcore/internal/dispatch"
	"github.com/keshon/botcore/internal/event"
	"github.com/keshon/botcore/internal/plugin"
	"github.com/keshon/botcore/internal/services"
	"github.com/keshon/botcore/internal/session"
)

const (
	Chambers = 6

	MsgStarted     = "It's high noon..."
	MsgStartFailed = "Failed to start the game."
	MsgClosing     = "The pendulum comes to rest. All is quiet again."

	minMute = 1
	maxMute = 10
)

// statements are read out after each empty chamber, in order.
var statements = [Chambers - 1]string{
	"No way back. ( 1 / 6 )",
	"Heroes, stand with us for this mightiest of convictions. ( 2 / 6 )",
	"Tremble before true courage. ( 3 / 6 )",
	"Wail for your feeble convictions. ( 4 / 6 )",
	"There is no room left for regret. ( 5 / 6 )",
}

// Game is one round in a group.
type Game struct {
	session.State
	Bullet  int
	Shots   int
	Players []string
}

type HighNoon struct {
	games *session.Manager[*Game]
	reg   *capability.Registry
	debug bool
	log   *log.Logger
	intn  func(int) int
}

func New(reg *capability.Registry, debug bool, logger *log.Logger, opts ...session.Option) *HighNoon {
	h := &HighNoon{reg: reg, debug: debug, log: logger, intn: rand.IntN}
	h.games = session.NewManager("highnoon", func(context.Context, string, session.Args) (*Game, error) {
		return &Game{Bullet: 1 + h.intn(Chambers)}, nil
	}, opts...)
	return h
}

// Games exposes the session manager.
func (h *HighNoon) Games() *session.Manager[*Game] { return h.games }

// Start returns the command that starts a round.
func (h *HighNoon) Start() dispatch.Handler { return startCommand{h} }

// Fire returns the command that pulls the trigger.
func (h *HighNoon) Fire() dispatch.Handler { return fireCommand{h} }

type startCommand struct{ h *HighNoon }

func (startCommand) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        "High noon",
		Description: "Russian roulette, the loser gets muted",
		Command:     "highnoon",
		Aliases:     []string{"午时已到"},
		Feature:     "highnoon",
		Priority:    10,
	}
}

func (c startCommand) Handle(ctx context.Context, ev *event.Event, _ string) error {
	g, err := c.h.games.Start(ctx, ev.GroupID, nil)
	if err != nil {
		c.h.log.Error("failed to start game", "group", ev.GroupID, "err", err)
		return dispatch.FinishReply(ctx, MsgStartFailed)
	}
	if c.h.debug {
		return dispatch.Finish(ctx, fmt.Sprintf("%s\n(debug: bullet in chamber %d)", MsgStarted, g.Bullet))
	}
	return dispatch.Finish(ctx, MsgStarted)
}

type fireCommand struct{ h *HighNoon }

func (fireCommand) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        "Fire",
		Description: "Pull the trigger in a running high noon round",
		Command:     "fire",
		Aliases:     []string{"开枪"},
		Feature:     "highnoon",
		Priority:    5,
	}
}

// Handle is silent when no round is running.
func (c fireCommand) Handle(ctx context.Context, ev *event.Event, _ string) error {
	var statement string
	hit, err := c.h.games.Update(ev.GroupID, func(g *Game) error {
		if !slices.Contains(g.Players, ev.UserID) {
			g.Players = append(g.Players, ev.UserID)
		}
		g.Shots++
		if g.Shots >= g.Bullet {
			return session.ErrEnd
		}
		statement = statements[g.Shots-1]
		return nil
	})
	if errors.Is(err, session.ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}
	if !hit {
		return dispatch.Finish(ctx, statement)
	}

	name := ev.Username
	if name == "" {
		name = "user" + ev.UserID
	}

	d := time.Duration(minMute+c.h.intn(maxMute-minMute+1)) * time.Minute
	if c.h.mute(ctx, ev, d) {
		_ = dispatch.Send(ctx, fmt.Sprintf("Come then, %s. Blood will stain this sacred ground.", name))
	} else {
		_ = dispatch.Send(ctx, fmt.Sprintf("%s, the mourning bell stops for you...", name))
	}
	return dispatch.Finish(ctx, MsgClosing)
}

func (h *HighNoon) mute(ctx context.Context, ev *event.Event, d time.Duration) bool {
	mod, ok := capability.Get[services.Moderation](h.reg)
	if !ok {
		return false
	}
	if err := mod.Mute(ctx, ev.GroupID, ev.UserID, d); err != nil {
		h.log.Warn("mute failed", "group", ev.GroupID, "user", ev.UserID, "err", err)
		return false
	}
	return true
}
