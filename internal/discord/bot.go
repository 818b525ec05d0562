// Package discord connects the dispatcher to a Discord gateway session.
package discord

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"

	"github.com/keshon/botcore/internal/event"
)

// EventHandler consumes decoded events.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev *event.Event) bool
}

type Config struct {
	Token          string
	GuildBlacklist []string
}

// Bot is a Discord bot
type Bot struct {
	dg        *discordgo.Session
	cfg       Config
	handler   EventHandler
	transport *Transport
	log       *log.Logger

	ctx      context.Context
	mu       sync.Mutex // guards closing and inflight.Add
	closing  bool
	inflight sync.WaitGroup
}

// New creates the session without connecting.
func New(cfg Config, logger *log.Logger) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	return &Bot{
		dg:        dg,
		cfg:       cfg,
		transport: NewTransport(dg, logger.WithPrefix("transport")),
		log:       logger,
	}, nil
}

// Transport is the outbound side: message delivery and moderation.
func (b *Bot) Transport() *Transport { return b.transport }

// Run connects, feeds every message to handler on its own goroutine and
// blocks until ctx is done. In-flight handlers are waited for on the way
// out.
func (b *Bot) Run(ctx context.Context, handler EventHandler) error {
	b.ctx = ctx
	b.handler = handler

	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onGuildCreate)
	b.dg.AddHandler(b.onMessageCreate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	<-ctx.Done()
	b.log.Info("shutdown signal received, cleaning up")
	err := b.dg.Close()
	b.drain()
	return err
}

// track runs fn on its own goroutine unless the bot is draining.
func (b *Bot) track(fn func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing {
		return false
	}
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		fn()
	}()
	return true
}

// drain refuses new work and waits for what is running.
func (b *Bot) drain() {
	b.mu.Lock()
	b.closing = true
	b.mu.Unlock()
	b.inflight.Wait()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	for _, g := range r.Guilds {
		b.leaveIfBlacklisted(s, g.ID)
	}
	name := ""
	if r.User != nil {
		name = r.User.Username
	}
	b.log.Info("discord bot is running", "user", name, "guilds", len(r.Guilds))
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if b.leaveIfBlacklisted(s, g.ID) {
		return
	}
	b.log.Debug("guild available", "guild", g.ID, "name", g.Name)
}

func (b *Bot) leaveIfBlacklisted(s *discordgo.Session, guildID string) bool {
	if !b.isGuildBlacklisted(guildID) {
		return false
	}
	b.log.Info("leaving blacklisted guild", "guild", guildID)
	if err := s.GuildLeave(guildID); err != nil {
		b.log.Error("failed to leave guild", "guild", guildID, "err", err)
	}
	return true
}

func (b *Bot) isGuildBlacklisted(guildID string) bool {
	return slices.Contains(b.cfg.GuildBlacklist, guildID)
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.GuildID != "" && b.isGuildBlacklisted(m.GuildID) {
		return
	}
	selfID := ""
	if s.State != nil && s.State.User != nil {
		selfID = s.State.User.ID
	}
	ev := ToEvent(m, selfID)
	if ev == nil || ev.FromSelf() {
		return
	}

	if !b.track(func() { b.handler.HandleEvent(b.ctx, ev) }) {
		b.log.Debug("dropping message during shutdown", "channel", ev.ChannelID)
	}
}
