// Package randomreply lets the bot chime into group conversations with a
// short AI-written line.
package randomreply

import (
	"context"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/keshon/botcore/internal/capability"
	"github.com/keshon/botcore/internal/dispatch"
	"github.com/keshon/botcore/internal/event"
	"github.com/keshon/botcore/internal/plugin"
	"github.com/keshon/botcore/internal/prompts"
	"github.com/keshon/botcore/internal/services"
)

const (
	DefaultMinLength = 3
	DefaultBotName   = "Kal'tsit"
	DefaultFallback  = "Everyone here is a good friend of mine."

	contextLimit  = 50
	inputLimit    = 50
	minReplyRunes = 5
	temperature   = 0.8
	topP          = 0.95
	minTokens     = 30
	maxTokens     = 100
)

type Config struct {
	Prefix             string
	Probability        float64
	MentionProbability float64
	MinLength          int
	BotName            string
	Fallback           string
}

type RandomReply struct {
	cfg     Config
	reg     *capability.Registry
	prompts *prompts.Store
	log     *log.Logger
	rnd     func() float64
	intn    func(int) int
}

func New(cfg Config, reg *capability.Registry, store *prompts.Store, logger *log.Logger) *RandomReply {
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinLength
	}
	if cfg.BotName == "" {
		cfg.BotName = DefaultBotName
	}
	if cfg.Fallback == "" {
		cfg.Fallback = DefaultFallback
	}
	return &RandomReply{
		cfg:     cfg,
		reg:     reg,
		prompts: store,
		log:     logger,
		rnd:     rand.Float64,
		intn:    rand.IntN,
	}
}

func (r *RandomReply) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        "Random reply",
		Description: "Now and then replies to group chat, more likely when mentioned",
		Feature:     "random",
		Priority:    1,
	}
}

// HandleMessage records every group message and sometimes answers it.
func (r *RandomReply) HandleMessage(ctx context.Context, ev *event.Event) error {
	chat, ok := capability.Get[services.ChatHistory](r.reg)
	if !ok {
		return nil
	}
	ai, ok := capability.Get[services.AIChat](r.reg)
	if !ok {
		return nil
	}

	username := displayName(ev)
	text := strings.TrimSpace(ev.Text)
	chat.Record(ev.GroupID, ev.UserID, username, text, false)

	if !r.shouldReply(ev, text, chat) {
		return nil
	}
	chat.SetCooldown(ev.GroupID)

	input := truncate(text, inputLimit)
	if history := chat.Context(ev.GroupID, contextLimit); history != "" {
		input = history + "|" + username + " says: " + input
	}

	reply := r.cfg.Fallback
	system, err := r.prompts.Get(prompts.RandomReply)
	if err != nil {
		r.log.Warn("random reply prompt unavailable", "err", err)
	} else {
		out, err := ai.Chat(ctx, services.ChatRequest{
			System:      system,
			User:        input,
			Temperature: temperature,
			MaxTokens:   minTokens + r.intn(maxTokens-minTokens+1),
			TopP:        topP,
		})
		switch {
		case err != nil:
			r.log.Warn("random reply failed", "group", ev.GroupID, "err", err)
		case utf8.RuneCountInString(out) >= minReplyRunes:
			reply = out
		}
	}

	chat.Record(ev.GroupID, ev.SelfID, r.cfg.BotName, reply, true)
	return dispatch.Reply(ctx, reply)
}

func (r *RandomReply) shouldReply(ev *event.Event, text string, chat services.ChatHistory) bool {
	if ev.FromSelf() {
		return false
	}
	minLen := r.cfg.MinLength
	if ev.ToMe {
		minLen = max(1, minLen/2)
	}
	if utf8.RuneCountInString(text) < minLen {
		return false
	}
	if r.cfg.Prefix != "" && strings.HasPrefix(text, r.cfg.Prefix) {
		return false
	}
	if !chat.CheckCooldown(ev.GroupID) {
		return false
	}
	p := r.cfg.Probability
	if ev.ToMe {
		p = r.cfg.MentionProbability
	}
	return r.rnd() < p
}

func displayName(ev *event.Event) string {
	if ev.Username != "" {
		return ev.Username
	}
	return "user" + ev.UserID
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
