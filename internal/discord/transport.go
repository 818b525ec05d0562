package discord

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"

	"github.com/keshon/botcore/internal/event"
	"github.com/keshon/botcore/pkg/retrylimit"
)

// messageAPI is the part of the session the transport calls.
type messageAPI interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMemberTimeout(guildID string, userID string, until *time.Time, options ...discordgo.RequestOption) error
}

// Transport delivers outbound messages and applies timeouts through the
// REST API, retrying on rate limits and server errors.
type Transport struct {
	api     messageAPI
	limiter *retrylimit.AdaptiveLimiter
	retry   retrylimit.RetryConfig
	log     *log.Logger
}

func NewTransport(api messageAPI, logger *log.Logger) *Transport {
	cfg := retrylimit.DefaultRetryConfig()
	cfg.Logger = logger
	return &Transport{
		api:     api,
		limiter: retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5),
		retry:   cfg,
		log:     logger,
	}
}

// Deliver implements event.Deliverer. A mention is rendered in front of the
// text and is the only mention the message may ping.
func (t *Transport) Deliver(ctx context.Context, channelID string, msg event.Message) error {
	send := &discordgo.MessageSend{
		Content:         msg.Text,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if msg.Mention != "" {
		send.Content = "<@" + msg.Mention + "> " + msg.Text
		send.AllowedMentions.Users = []string{msg.Mention}
	}

	return retrylimit.WithRetryConfig(ctx, func() error {
		_, err := t.api.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
		return classify(err)
	}, t.limiter, t.retry)
}

// Mute implements services.Moderation with a member timeout.
func (t *Transport) Mute(ctx context.Context, guildID, userID string, d time.Duration) error {
	until := time.Now().Add(d)
	err := retrylimit.WithRetryConfig(ctx, func() error {
		return classify(t.api.GuildMemberTimeout(guildID, userID, &until, discordgo.WithContext(ctx)))
	}, t.limiter, t.retry)
	if err == nil {
		t.log.Info("member timed out", "guild", guildID, "user", userID, "duration", d)
	}
	return err
}

// classify attaches the REST status to err. Client errors other than 429
// are not worth retrying.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) || rest.Response == nil {
		return err
	}
	code := rest.Response.StatusCode
	wrapped := &retrylimit.StatusError{Code: code, Err: err}
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return retrylimit.Fatal(wrapped)
	}
	return wrapped
}
