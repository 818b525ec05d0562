package discord

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/botcore/internal/event"
	"github.com/keshon/botcore/internal/logger"
	"github.com/keshon/botcore/pkg/retrylimit"
)

func message(guild, author, content string, mentions ...string) *discordgo.MessageCreate {
	m := &discordgo.Message{
		ID:        "m1",
		GuildID:   guild,
		ChannelID: "c1",
		Content:   content,
		Author:    &discordgo.User{ID: author, Username: "name" + author},
	}
	for _, id := range mentions {
		m.Mentions = append(m.Mentions, &discordgo.User{ID: id})
	}
	return &discordgo.MessageCreate{Message: m}
}

func TestToEvent(t *testing.T) {
	ev := ToEvent(message("g1", "u1", "hello"), "bot")
	require.NotNil(t, ev)
	assert.Equal(t, "g1", ev.GroupID)
	assert.Equal(t, "c1", ev.Destination())
	assert.Equal(t, "nameu1", ev.Username)
	assert.False(t, ev.ToMe)

	ev = ToEvent(message("g1", "u1", "<@bot> /help", "bot"), "bot")
	assert.True(t, ev.ToMe)
	assert.Equal(t, "/help", ev.Text)

	ev = ToEvent(message("g1", "u1", "<@!bot>   hi there", "bot"), "bot")
	assert.Equal(t, "hi there", ev.Text)

	ev = ToEvent(message("", "u1", "/token"), "bot")
	assert.True(t, ev.ToMe)
	assert.False(t, ev.IsGroup())

	ev = ToEvent(message("g1", "bot", "mine"), "bot")
	assert.True(t, ev.FromSelf())

	assert.Nil(t, ToEvent(&discordgo.MessageCreate{}, "bot"))
}

func TestDisplayNamePrefersNick(t *testing.T) {
	m := message("g1", "u1", "x")
	m.Author.GlobalName = "Global"
	assert.Equal(t, "Global", ToEvent(m, "bot").Username)
	m.Member = &discordgo.Member{Nick: "Nick"}
	assert.Equal(t, "Nick", ToEvent(m, "bot").Username)
}

type fakeAPI struct {
	sent    []*discordgo.MessageSend
	errs    []error
	timeout *time.Time
}

func (f *fakeAPI) ChannelMessageSendComplex(_ string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	f.sent = append(f.sent, data)
	return &discordgo.Message{}, nil
}

func (f *fakeAPI) GuildMemberTimeout(_, _ string, until *time.Time, _ ...discordgo.RequestOption) error {
	f.timeout = until
	return nil
}

func restError(code int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: code}}
}

func fastTransport(api messageAPI) *Transport {
	tr := NewTransport(api, logger.Discard())
	tr.retry.InitialDelay = time.Millisecond
	tr.retry.RateLimitDelay = time.Millisecond
	tr.retry.Jitter = false
	return tr
}

func TestDeliverMention(t *testing.T) {
	api := &fakeAPI{}
	tr := fastTransport(api)

	require.NoError(t, tr.Deliver(context.Background(), "c1", event.Message{Text: "hi", Mention: "u1"}))
	require.NoError(t, tr.Deliver(context.Background(), "c1", event.Message{Text: "plain"}))

	require.Len(t, api.sent, 2)
	assert.Equal(t, "<@u1> hi", api.sent[0].Content)
	assert.Equal(t, []string{"u1"}, api.sent[0].AllowedMentions.Users)
	assert.Equal(t, "plain", api.sent[1].Content)
	assert.Empty(t, api.sent[1].AllowedMentions.Users)
}

func TestDeliverRetriesRateLimit(t *testing.T) {
	api := &fakeAPI{errs: []error{restError(http.StatusTooManyRequests), restError(http.StatusBadGateway)}}
	require.NoError(t, fastTransport(api).Deliver(context.Background(), "c1", event.Message{Text: "hi"}))
	assert.Len(t, api.sent, 1)
}

func TestDeliverGivesUpOnClientError(t *testing.T) {
	api := &fakeAPI{errs: []error{restError(http.StatusForbidden)}}
	err := fastTransport(api).Deliver(context.Background(), "c1", event.Message{Text: "hi"})

	var status *retrylimit.StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusForbidden, status.Code)
	assert.Empty(t, api.sent)
}

func TestMute(t *testing.T) {
	api := &fakeAPI{}
	before := time.Now()
	require.NoError(t, fastTransport(api).Mute(context.Background(), "g1", "u1", 3*time.Minute))
	require.NotNil(t, api.timeout)
	assert.WithinDuration(t, before.Add(3*time.Minute), *api.timeout, time.Second)
}

func TestDrainRefusesNewHandlers(t *testing.T) {
	b := &Bot{log: logger.Discard()}

	release := make(chan struct{})
	var ran atomic.Int32
	require.True(t, b.track(func() {
		<-release
		ran.Add(1)
	}))

	drained := make(chan struct{})
	go func() {
		b.drain()
		close(drained)
	}()

	select {
	case <-drained:
		t.Fatal("drain returned while a handler was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-drained
	assert.Equal(t, int32(1), ran.Load())
	assert.False(t, b.track(func() { ran.Add(1) }))
	assert.Equal(t, int32(1), ran.Load())
}
