package services

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

const contextLineLimit = 80

var (
	cqCode  = regexp.MustCompile(`\[CQ:[^\]]+\]`)
	mention = regexp.MustCompile(`<@!?\d+>`)
)

// ChatEntry is one recorded message.
type ChatEntry struct {
	Time     time.Time
	UserID   string
	Username string
	Text     string
	FromBot  bool
}

// ChatLog is the ChatHistory capability: a bounded buffer of recent
// messages per group plus a per-group reply cooldown.
type ChatLog struct {
	size     int
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	history  map[string][]ChatEntry
	lastSent map[string]time.Time
}

func NewChatLog(perGroup int, cooldown time.Duration) *ChatLog {
	if perGroup <= 0 {
		perGroup = 50
	}
	return &ChatLog{
		size:     perGroup,
		cooldown: cooldown,
		now:      time.Now,
		history:  make(map[string][]ChatEntry),
		lastSent: make(map[string]time.Time),
	}
}

// CleanText strips protocol markup from a chat message.
func CleanText(text string) string {
	text = cqCode.ReplaceAllString(text, "")
	text = mention.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func (c *ChatLog) Record(groupID, userID, username, text string, fromBot bool) {
	entry := ChatEntry{
		Time:     c.now(),
		UserID:   userID,
		Username: username,
		Text:     CleanText(text),
		FromBot:  fromBot,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	h := append(c.history[groupID], entry)
	if len(h) > c.size {
		h = h[len(h)-c.size:]
	}
	c.history[groupID] = h
}

// Messages returns up to limit of the most recent entries, oldest first.
func (c *ChatLog) Messages(groupID string, limit int, includeBot bool) []ChatEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ChatEntry
	for _, e := range c.history[groupID] {
		if e.FromBot && !includeBot {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Context renders recent user messages as prompt context. Bot messages are
// left out and each line is cut to a fixed length.
func (c *ChatLog) Context(groupID string, limit int) string {
	var lines []string
	for _, e := range c.Messages(groupID, limit, false) {
		text := e.Text
		if r := []rune(text); len(r) > contextLineLimit {
			text = string(r[:contextLineLimit])
		}
		if text == "" {
			continue
		}
		lines = append(lines, e.Username+": "+text)
	}
	if len(lines) == 0 {
		return ""
	}
	return "Recent chat:\n" + strings.Join(lines, "\n") + "\n\n"
}

// CheckCooldown reports whether the group's reply cooldown has elapsed.
func (c *ChatLog) CheckCooldown(groupID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.lastSent[groupID]
	return !ok || c.now().Sub(last) >= c.cooldown
}

func (c *ChatLog) SetCooldown(groupID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSent[groupID] = c.now()
}

// Clear drops the history of one group, or of all groups when groupID is empty.
func (c *ChatLog) Clear(groupID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if groupID == "" {
		c.history = make(map[string][]ChatEntry)
		return
	}
	delete(c.history, groupID)
}
