package plugins

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/botcore/internal/audit"
	"github.com/keshon/botcore/internal/capability"
	"github.com/keshon/botcore/internal/config"
	"github.com/keshon/botcore/internal/dispatch/dispatchtest"
	"github.com/keshon/botcore/internal/logger"
	"github.com/keshon/botcore/internal/middleware"
	"github.com/keshon/botcore/internal/plugins/mathsoup"
	"github.com/keshon/botcore/internal/prompts"
	"github.com/keshon/botcore/internal/services"
)

type memPublisher struct {
	mu      sync.Mutex
	records []audit.Record
}

func (p *memPublisher) Publish(_ context.Context, rec audit.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
	return nil
}

func TestRegisterAll(t *testing.T) {
	reg := capability.New()
	pub := &memPublisher{}
	d, rec := dispatchtest.New(t, reg)

	set := RegisterAll(d, Options{
		Registry: reg,
		Config:   &config.Config{CommandPrefix: "/", MathMaxTokens: 100},
		Prompts:  prompts.New(""),
		Concepts: mathsoup.NewRepositoryOf(),
		Admins:   services.NewAdminList([]string{"42"}),
		Audit:    pub,
		Logger:   logger.Discard(),
	})
	require.NotNil(t, set.HighNoon)
	require.NotNil(t, set.MathSoup)

	var commands []string
	for _, desc := range d.Catalog().Commands(true) {
		commands = append(commands, desc.Command)
	}
	assert.ElementsMatch(t, []string{
		"help", "define", "highnoon", "fire",
		"mathsoup", "ask", "guess", "reveal",
		"token", "status",
	}, commands)
	assert.Len(t, d.Catalog().Messages(true), 2)

	d.HandleEvent(context.Background(), dispatchtest.PrivateEvent("7", "/highnoon"))
	assert.Equal(t, middleware.MsgGroupOnly, rec.Last().Text)

	d.HandleEvent(context.Background(), dispatchtest.GroupEvent("7", "/status"))
	assert.Equal(t, middleware.MsgAdminOnly, rec.Last().Text)

	d.HandleEvent(context.Background(), dispatchtest.GroupEvent("7", "/help"))
	assert.Contains(t, rec.Last().Text, "Features:")

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.records, 3)
	assert.Equal(t, "High noon", pub.records[0].Command)
	assert.Equal(t, "Status control", pub.records[1].Command)
	assert.Equal(t, "Help", pub.records[2].Command)
	assert.False(t, pub.records[2].Failed)
}
