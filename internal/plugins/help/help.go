// Package help lists the features users can currently reach.
package help

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/keshon/botcore/internal/capability"
	"github.com/keshon/botcore/internal/dispatch"
	"github.com/keshon/botcore/internal/event"
	"github.com/keshon/botcore/internal/plugin"
	"github.com/keshon/botcore/internal/services"
)

const (
	MsgNoFeatures  = "No features are available right now."
	MsgAllDisabled = "All features are turned off. Please contact an administrator."
)

type Help struct {
	catalog *plugin.Catalog
	reg     *capability.Registry
	prefix  string
}

func New(catalog *plugin.Catalog, reg *capability.Registry, prefix string) *Help {
	return &Help{catalog: catalog, reg: reg, prefix: prefix}
}

func (h *Help) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        "Help",
		Description: "Show how to use the bot",
		Command:     "help",
		Aliases:     []string{"帮助"},
		Priority:    10,
	}
}

func (h *Help) Handle(ctx context.Context, _ *event.Event, _ string) error {
	return dispatch.Finish(ctx, h.Text())
}

// Text renders the listing: enabled visible commands first, then the first
// enabled auto-triggered feature.
func (h *Help) Text() string {
	commands := h.catalog.Commands(false)
	if len(commands) == 0 {
		return MsgNoFeatures
	}

	self := h.Descriptor().Command
	var enabled []plugin.Descriptor
	for _, d := range commands {
		if d.Command == self || !h.enabled(d.Feature) {
			continue
		}
		enabled = append(enabled, d)
	}

	lines := []string{"Features:"}
	for i, d := range enabled {
		trigger := h.prefix + d.Command
		if len(d.Aliases) > 0 {
			aliases := append([]string(nil), d.Aliases...)
			sort.Strings(aliases)
			for j, a := range aliases {
				aliases[j] = h.prefix + a
			}
			trigger = fmt.Sprintf("%s (%s)", trigger, strings.Join(aliases, ", "))
		}
		lines = append(lines, fmt.Sprintf("%d. %s: %s", i+1, d.Name, trigger))
		lines = append(lines, "   "+d.Description)
	}

	for _, d := range h.catalog.Messages(false) {
		if !h.enabled(d.Feature) {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d. %s: auto", len(enabled)+1, d.Name))
		lines = append(lines, "   "+d.Description)
		break
	}

	if len(lines) == 1 {
		lines = append(lines, MsgAllDisabled)
	}
	return strings.Join(lines, "\n")
}

func (h *Help) enabled(feature string) bool {
	if feature == "" {
		return true
	}
	gate, ok := capability.Get[services.FeatureGate](h.reg)
	return !ok || gate.IsFeatureEnabled(feature)
}
