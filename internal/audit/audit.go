// Package audit carries command executions over an in-process message bus
// to the storage history, off the request path.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/charmbracelet/log"

	"github.com/keshon/botcore/internal/logger"
	"github.com/keshon/botcore/internal/metrics"
	"github.com/keshon/botcore/internal/reqctx"
	"github.com/keshon/botcore/internal/storage"
)

// Topic is the topic command records are published on.
const Topic = "commands.executed"

// Record describes one command execution.
type Record struct {
	Dispatch  string    `json:"dispatch"`
	GroupID   string    `json:"group_id"`
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Command   string    `json:"command"`
	Param     string    `json:"param"`
	Failed    bool      `json:"failed"`
	Time      time.Time `json:"time"`
}

// Sink stores consumed records.
type Sink interface {
	AppendCommandToHistory(groupID string, rec storage.CommandHistoryRecord) error
}

// Publisher publishes command records.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
}

type Bus struct {
	pubsub   *gochannel.GoChannel
	messages <-chan *message.Message
	cancel   context.CancelFunc
	sink     Sink
	log      *log.Logger
	metrics  *metrics.Metrics
}

type Option func(*Bus)

func WithLogger(l *log.Logger) Option {
	return func(b *Bus) { b.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// New creates the bus and subscribes it to Topic immediately, so records
// published before Run starts are buffered rather than lost.
func New(sink Sink, opts ...Option) (*Bus, error) {
	b := &Bus{sink: sink, log: logger.New("audit")}
	for _, opt := range opts {
		opt(b)
	}

	b.pubsub = gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, newWatermillLogger(b.log))

	ctx, cancel := context.WithCancel(context.Background())
	messages, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		cancel()
		_ = b.pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", Topic, err)
	}
	b.messages = messages
	b.cancel = cancel
	return b, nil
}

func (b *Bus) Publish(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	msg := message.NewMessage(reqctx.NewID(), payload)
	msg.SetContext(ctx)
	if err := b.pubsub.Publish(Topic, msg); err != nil {
		return fmt.Errorf("failed to publish record: %w", err)
	}
	b.metrics.ObserveAudit("published")
	return nil
}

// Run consumes records into the sink until ctx is done or the bus is closed.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-b.messages:
			if !ok {
				return nil
			}
			b.handle(msg)
		}
	}
}

func (b *Bus) handle(msg *message.Message) {
	defer msg.Ack()

	var rec Record
	if err := json.Unmarshal(msg.Payload, &rec); err != nil {
		b.log.Error("dropping malformed record", "uuid", msg.UUID, "err", err)
		return
	}
	if rec.GroupID == "" {
		b.metrics.ObserveAudit("skipped")
		return
	}

	err := b.sink.AppendCommandToHistory(rec.GroupID, storage.CommandHistoryRecord{
		GroupID:   rec.GroupID,
		ChannelID: rec.ChannelID,
		UserID:    rec.UserID,
		Username:  rec.Username,
		Command:   rec.Command,
		Param:     rec.Param,
		Dispatch:  rec.Dispatch,
		Datetime:  rec.Time,
	})
	if err != nil {
		b.log.Warn("failed to store command record", "command", rec.Command, "err", err)
		return
	}
	b.metrics.ObserveAudit("consumed")
}

func (b *Bus) Close() error {
	b.cancel()
	return b.pubsub.Close()
}
