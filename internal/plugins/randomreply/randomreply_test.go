package randomreply

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/botcore/internal/capability"
	"github.com/keshon/botcore/internal/dispatch/dispatchtest"
	"github.com/keshon/botcore/internal/logger"
	"github.com/keshon/botcore/internal/prompts"
	"github.com/keshon/botcore/internal/services"
	"github.com/keshon/botcore/internal/services/servicestest"
)

type fixture struct {
	r    *RandomReply
	chat *services.ChatLog
	ai   *servicestest.AI
	rec  *dispatchtest.Recorder
	send func(ev string, toMe bool)
}

func newFixture(t *testing.T, roll float64) *fixture {
	t.Helper()
	f := &fixture{
		chat: services.NewChatLog(50, time.Hour),
		ai:   &servicestest.AI{Replies: []string{"well, that escalated quickly"}},
	}
	reg := capability.New()
	capability.Register[services.ChatHistory](reg, f.chat)
	capability.Register[services.AIChat](reg, f.ai)

	f.r = New(Config{Prefix: "/", Probability: 0.05, MentionProbability: 0.8}, reg, prompts.New(""), logger.Discard())
	f.r.rnd = func() float64 { return roll }
	f.r.intn = func(n int) int { return n - 1 }

	d, rec := dispatchtest.New(t, reg)
	d.RegisterMessage(f.r)
	f.rec = rec
	f.send = func(text string, toMe bool) {
		ev := dispatchtest.GroupEvent("u1", text)
		ev.ToMe = toMe
		d.HandleEvent(context.Background(), ev)
	}
	return f
}

func TestReplyWhenMentioned(t *testing.T) {
	f := newFixture(t, 0.5)

	f.send("earlier chatter", false)
	assert.Empty(t, f.rec.Texts(), "0.5 is above the plain probability")

	f.send("hey bot", true)
	require.Len(t, f.ai.Requests, 1)
	req := f.ai.Requests[0]
	assert.Equal(t, maxTokens, req.MaxTokens)
	assert.Equal(t, temperature, req.Temperature)
	assert.True(t, strings.HasPrefix(req.User, "Recent chat:\n"))
	assert.True(t, strings.HasSuffix(req.User, "|useru1 says: hey bot"))

	last := f.rec.Last()
	assert.Equal(t, "well, that escalated quickly", last.Text)
	assert.Equal(t, "u1", last.Mention)

	msgs := f.chat.Messages(dispatchtest.Group, 0, true)
	require.Len(t, msgs, 3)
	assert.True(t, msgs[2].FromBot)
	assert.Equal(t, DefaultBotName, msgs[2].Username)
}

func TestCooldownBlocksSecondReply(t *testing.T) {
	f := newFixture(t, 0)
	f.send("first message", false)
	f.send("second message", false)
	assert.Equal(t, 1, f.ai.Calls())
	assert.Len(t, f.rec.Texts(), 1)
}

func TestSkippedMessagesAreStillRecorded(t *testing.T) {
	f := newFixture(t, 0)
	f.send("hi", false)
	f.send("/help", false)
	assert.Zero(t, f.ai.Calls())
	assert.Len(t, f.chat.Messages(dispatchtest.Group, 0, false), 2)

	f.send("hi", true)
	assert.Equal(t, 1, f.ai.Calls(), "mentions halve the minimum length")
}

func TestFallbackLine(t *testing.T) {
	f := newFixture(t, 0)
	f.ai.Replies = []string{"ok"}
	f.send("say something", false)
	assert.Equal(t, DefaultFallback, f.rec.Last().Text)

	g := newFixture(t, 0)
	g.ai.Err = errors.New("down")
	g.send("say something", false)
	assert.Equal(t, DefaultFallback, g.rec.Last().Text)
}

func TestWithoutCapabilitiesDoesNothing(t *testing.T) {
	d, rec := dispatchtest.New(t, nil)
	r := New(Config{Probability: 1}, nil, prompts.New(""), logger.Discard())
	d.RegisterMessage(r)
	d.HandleEvent(context.Background(), dispatchtest.GroupEvent("u1", "anyone here?"))
	assert.Empty(t, rec.Texts())
}
