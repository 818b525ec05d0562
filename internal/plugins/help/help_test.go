package help

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keshon/botcore/internal/capability"
	"github.com/keshon/botcore/internal/dispatch/dispatchtest"
	"github.com/keshon/botcore/internal/event"
	"github.com/keshon/botcore/internal/plugin"
	"github.com/keshon/botcore/internal/services"
)

type stub struct{ desc plugin.Descriptor }

func (s stub) Descriptor() plugin.Descriptor { return s.desc }
func (s stub) Handle(context.Context, *event.Event, string) error { return nil }
func (s stub) HandleMessage(context.Context, *event.Event) error { return nil }

type gate map[string]bool

func (g gate) IsFeatureEnabled(name string) bool {
	on, ok := g[name]
	return !ok || on
}

func TestHelpListsEnabledFeatures(t *testing.T) {
	reg := capability.New()
	capability.Register[services.FeatureGate](reg, gate{"highnoon": false})

	d, rec := dispatchtest.New(t, reg)
	d.RegisterCommand(New(d.Catalog(), reg, "/"))
	d.RegisterCommand(stub{plugin.Descriptor{Name: "Math definition", Description: "Look up a term", Command: "define", Aliases: []string{"定义", "def"}, Feature: "math"}})
	d.RegisterCommand(stub{plugin.Descriptor{Name: "High noon", Description: "Roulette", Command: "highnoon", Feature: "highnoon"}})
	d.RegisterCommand(stub{plugin.Descriptor{Name: "Status", Command: "status", Hidden: true}})
	d.RegisterMessage(stub{plugin.Descriptor{Name: "Random reply", Description: "Chimes in", Feature: "random"}})
	d.RegisterMessage(stub{plugin.Descriptor{Name: "Echo", Description: "Repeats", Feature: "echo"}})

	d.HandleEvent(context.Background(), dispatchtest.GroupEvent("u1", "/help"))

	want := "Features:\n" +
		"1. Math definition: /define (/def, /定义)\n" +
		"   Look up a term\n" +
		"2. Random reply: auto\n" +
		"   Chimes in"
	assert.Equal(t, []string{want}, rec.Texts())
}

func TestHelpAllDisabled(t *testing.T) {
	reg := capability.New()
	capability.Register[services.FeatureGate](reg, gate{"math": false})

	d, _ := dispatchtest.New(t, reg)
	h := New(d.Catalog(), reg, "/")
	d.RegisterCommand(h)
	d.RegisterCommand(stub{plugin.Descriptor{Name: "Math definition", Command: "define", Feature: "math"}})

	assert.Equal(t, "Features:\n"+MsgAllDisabled, h.Text())
}

func TestHelpWithoutCommands(t *testing.T) {
	h := New(plugin.NewCatalog(), nil, "/")
	assert.Equal(t, MsgNoFeatures, h.Text())
}
