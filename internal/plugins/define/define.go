// Package define looks up mathematical terms with the AI backend.
package define

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/keshon/botcore/internal/capability"
	"github.com/keshon/botcore/internal/dispatch"
	"github.com/keshon/botcore/internal/event"
	"github.com/keshon/botcore/internal/plugin"
	"github.com/keshon/botcore/internal/prompts"
	"github.com/keshon/botcore/internal/services"
)

const (
	MsgUsage         = "Please give a mathematical term, e.g. /define group"
	MsgNoPrompt      = "The definition prompt is missing, please contact an administrator."
	MsgAIMissing     = "The AI service is not initialized."
	MsgAIUnavailable = "The AI service is not configured, lookups are unavailable."
)

type Options struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

type Define struct {
	opts    Options
	reg     *capability.Registry
	prompts *prompts.Store
	log     *log.Logger
}

func New(opts Options, reg *capability.Registry, store *prompts.Store, logger *log.Logger) *Define {
	return &Define{opts: opts, reg: reg, prompts: store, log: logger}
}

func (d *Define) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        "Math definition",
		Description: "Look up the definition of a mathematical term",
		Command:     "define",
		Aliases:     []string{"定义"},
		Feature:     "math",
		Priority:    10,
	}
}

func (d *Define) Handle(ctx context.Context, _ *event.Event, args string) error {
	if args == "" {
		return dispatch.FinishReply(ctx, MsgUsage)
	}

	system, err := d.prompts.Get(prompts.MathDefinition)
	if err != nil {
		d.log.Error("definition prompt unavailable", "err", err)
		return dispatch.FinishReply(ctx, MsgNoPrompt)
	}

	ai, ok := capability.Get[services.AIChat](d.reg)
	if !ok {
		return dispatch.FinishReply(ctx, MsgAIMissing)
	}
	if !ai.Available() {
		return dispatch.FinishReply(ctx, MsgAIUnavailable)
	}

	out, err := ai.Chat(ctx, services.ChatRequest{
		System:      system,
		User:        args,
		Temperature: d.opts.Temperature,
		MaxTokens:   d.opts.MaxTokens,
		TopP:        d.opts.TopP,
	})
	if err != nil {
		if errors.Is(err, services.ErrAIUnavailable) {
			return dispatch.FinishReply(ctx, MsgAIUnavailable)
		}
		return dispatch.FinishReply(ctx, "Lookup failed: "+err.Error())
	}
	return dispatch.FinishReply(ctx, out)
}
