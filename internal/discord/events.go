package discord

import (
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/botcore/internal/event"
)

// ToEvent converts a gateway message into a transport-neutral event. A
// leading mention of the bot is stripped so "@bot /help" parses as a
// command.
func ToEvent(m *discordgo.MessageCreate, selfID string) *event.Event {
	if m == nil || m.Message == nil || m.Author == nil {
		return nil
	}

	ev := &event.Event{
		ID:        m.ID,
		GroupID:   m.GuildID,
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		SelfID:    selfID,
		Username:  displayName(m),
		Text:      strings.TrimSpace(m.Content),
		Time:      m.Timestamp,
		Raw:       m,
	}

	if m.GuildID == "" {
		ev.ToMe = true
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == selfID {
			ev.ToMe = true
			break
		}
	}
	if ev.ToMe && selfID != "" {
		ev.Text = stripLeadingMention(ev.Text, selfID)
	}
	return ev
}

func stripLeadingMention(text, selfID string) string {
	for _, tag := range []string{"<@" + selfID + ">", "<@!" + selfID + ">"} {
		if rest, ok := strings.CutPrefix(text, tag); ok {
			return strings.TrimSpace(rest)
		}
	}
	return text
}

func displayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
