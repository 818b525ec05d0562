// Package dispatch routes inbound chat events to registered handlers.
//
// Every dispatch runs the same pipeline: permission check, feature gate,
// request context installed, handler run, request context dropped. Handler
// failures and panics are contained here and never reach the caller.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/charmbracelet/log"

	"github.com/keshon/botcore/internal/capability"
	"github.com/keshon/botcore/internal/event"
	"github.com/keshon/botcore/internal/logger"
	"github.com/keshon/botcore/internal/metrics"
	"github.com/keshon/botcore/internal/outbound"
	"github.com/keshon/botcore/internal/plugin"
	"github.com/keshon/botcore/internal/reqctx"
	"github.com/keshon/botcore/internal/services"
)

// Fixed refusal texts.
const (
	MsgBlocked         = "You are blocked from using this bot."
	MsgFeatureDisabled = "This feature is turned off."
)

const (
	kindCommand = "command"
	kindMessage = "message"
)

// Dispatcher is safe for concurrent use. Each call to HandleEvent is
// expected to run on its own goroutine.
type Dispatcher struct {
	reg       *capability.Registry
	limiter   *outbound.Limiter
	deliverer event.Deliverer
	catalog   *plugin.Catalog

	prefix          string
	debugConcurrent bool
	log             *log.Logger
	metrics         *metrics.Metrics

	mu      sync.RWMutex
	entries []*entry
	seq     int
}

type entry struct {
	id      int
	seq     int
	kind    string
	desc    plugin.Descriptor
	h       Handler
	catalog int
}

// Registration is the handle returned when a handler is registered.
type Registration struct {
	d    *Dispatcher
	id   int
	once sync.Once
}

// Unregister removes the handler from routing and from the help catalog.
func (r *Registration) Unregister() {
	r.once.Do(func() { r.d.remove(r.id) })
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPrefix sets the command prefix. Default "/".
func WithPrefix(p string) Option {
	return func(d *Dispatcher) { d.prefix = p }
}

// WithDebugConcurrent prefixes every outbound message with the current
// limiter queue depth.
func WithDebugConcurrent(on bool) Option {
	return func(d *Dispatcher) { d.debugConcurrent = on }
}

func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithCatalog shares a help catalog instead of creating a private one.
func WithCatalog(c *plugin.Catalog) Option {
	return func(d *Dispatcher) { d.catalog = c }
}

// New creates a dispatcher. reg may be nil, in which case every permission
// and feature check passes.
func New(reg *capability.Registry, limiter *outbound.Limiter, deliverer event.Deliverer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:       reg,
		limiter:   limiter,
		deliverer: deliverer,
		prefix:    "/",
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.catalog == nil {
		d.catalog = plugin.NewCatalog()
	}
	if d.limiter == nil {
		d.limiter = outbound.NewLimiter()
	}
	return d
}

// Catalog returns the help catalog fed by registrations.
func (d *Dispatcher) Catalog() *plugin.Catalog { return d.catalog }

// Prefix returns the command prefix.
func (d *Dispatcher) Prefix() string { return d.prefix }

// RegisterCommand adds a command handler wrapped in mws.
func (d *Dispatcher) RegisterCommand(h Handler, mws ...Middleware) *Registration {
	return d.add(kindCommand, Apply(h, mws...))
}

// RegisterMessage adds a message handler wrapped in mws.
func (d *Dispatcher) RegisterMessage(h MessageHandler, mws ...Middleware) *Registration {
	return d.add(kindMessage, Apply(messageAdapter{h}, mws...))
}

func (d *Dispatcher) add(kind string, h Handler) *Registration {
	desc := h.Descriptor()
	if kind == kindMessage {
		desc.Command = ""
		desc.Aliases = nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	e := &entry{
		id:      d.seq,
		seq:     d.seq,
		kind:    kind,
		desc:    desc,
		h:       h,
		catalog: d.catalog.Add(desc),
	}
	d.entries = append(d.entries, e)
	sort.SliceStable(d.entries, func(i, j int) bool {
		a, b := d.entries[i], d.entries[j]
		if a.desc.Priority != b.desc.Priority {
			return a.desc.Priority < b.desc.Priority
		}
		return a.seq < b.seq
	})

	d.log.Debug("registered handler", "kind", kind, "name", desc.Name, "command", desc.Command, "priority", desc.Priority)
	return &Registration{d: d, id: e.id}
}

func (d *Dispatcher) remove(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, e := range d.entries {
		if e.id == id {
			d.catalog.Remove(e.catalog)
			d.entries = append(d.entries[:i:i], d.entries[i+1:]...)
			return
		}
	}
}

func (d *Dispatcher) snapshot() []*entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*entry, len(d.entries))
	copy(out, d.entries)
	return out
}

// ParseCommand splits text into trigger and argument string. ok is false
// when text does not start with the prefix.
func (d *Dispatcher) ParseCommand(text string) (trigger, args string, ok bool) {
	text = strings.TrimSpace(text)
	if d.prefix != "" {
		if !strings.HasPrefix(text, d.prefix) {
			return "", "", false
		}
		text = text[len(d.prefix):]
	}
	if text == "" {
		return "", "", false
	}
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		return text[:i], strings.TrimSpace(text[i:]), true
	}
	return text, "", true
}

// HandleEvent routes ev to every matching handler in priority order,
// stopping after the first one that blocks. It never returns a handler
// error; the result only reports whether any handler ran.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev *event.Event) bool {
	if ev == nil || ev.FromSelf() {
		return false
	}

	trigger, args, isCommand := d.ParseCommand(ev.Text)
	handled := false

	for _, e := range d.snapshot() {
		switch e.kind {
		case kindCommand:
			if !isCommand || !e.desc.Matches(trigger) {
				continue
			}
			d.DispatchCommand(ctx, e.h, ev, args)
		case kindMessage:
			if !ev.IsGroup() {
				continue
			}
			d.DispatchMessage(ctx, e.h, ev)
		}
		handled = true
		if e.desc.Block {
			break
		}
	}
	return handled
}

// DispatchCommand runs one command handler through the full pipeline.
func (d *Dispatcher) DispatchCommand(ctx context.Context, h Handler, ev *event.Event, args string) {
	start := time.Now()
	desc := h.Descriptor()

	if d.isBlocked(ev) {
		d.refuse(ctx, ev, MsgBlocked)
		d.metrics.ObserveDispatch(kindCommand, "blocked", time.Since(start))
		return
	}
	if !d.featureEnabled(desc.Feature) {
		d.refuse(ctx, ev, MsgFeatureDisabled)
		d.metrics.ObserveDispatch(kindCommand, "disabled", time.Since(start))
		return
	}

	outcome := d.run(ctx, kindCommand, h, ev, args)
	d.metrics.ObserveDispatch(kindCommand, outcome, time.Since(start))
}

// DispatchMessage runs one message handler. Refusals are silent and only
// group events are accepted.
func (d *Dispatcher) DispatchMessage(ctx context.Context, h Handler, ev *event.Event) {
	start := time.Now()
	if !ev.IsGroup() {
		return
	}
	if d.isBlocked(ev) {
		d.metrics.ObserveDispatch(kindMessage, "blocked", time.Since(start))
		return
	}
	if !d.featureEnabled(h.Descriptor().Feature) {
		d.metrics.ObserveDispatch(kindMessage, "disabled", time.Since(start))
		return
	}

	outcome := d.run(ctx, kindMessage, h, ev, "")
	d.metrics.ObserveDispatch(kindMessage, outcome, time.Since(start))
}

func (d *Dispatcher) isBlocked(ev *event.Event) bool {
	perm, ok := capability.Get[services.Permission](d.reg)
	return ok && perm.IsBlocked(ev.UserID)
}

func (d *Dispatcher) featureEnabled(feature string) bool {
	if feature == "" {
		return true
	}
	gate, ok := capability.Get[services.FeatureGate](d.reg)
	return !ok || gate.IsFeatureEnabled(feature)
}

func (d *Dispatcher) refuse(ctx context.Context, ev *event.Event, text string) {
	if err := d.reply(ev)(ctx, event.Message{Text: text}); err != nil {
		d.log.Warn("refusal not delivered", "user", ev.UserID, "err", err)
	}
}

func (d *Dispatcher) reply(ev *event.Event) reqctx.ReplyFunc {
	dest := ev.Destination()
	return func(ctx context.Context, msg event.Message) error {
		if d.debugConcurrent {
			msg.Text = fmt.Sprintf("[%d]%s", d.limiter.QueueDepth(), msg.Text)
		}
		return d.limiter.Send(ctx, dest, msg, d.deliverer)
	}
}

// run installs the request context and executes h, containing errors and
// panics. It returns the outcome label.
func (d *Dispatcher) run(ctx context.Context, kind string, h Handler, ev *event.Event, args string) (outcome string) {
	name := h.Descriptor().Name
	rc := reqctx.New(name, ev, d.reply(ev))

	_ = reqctx.Run(ctx, rc, func(ctx context.Context) error {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic: %v", r)
				d.log.Error("handler panicked", "dispatch", rc.ID, "handler", name, "err", err, "stack", string(debug.Stack()))
				d.handleError(ctx, kind, h, err)
				outcome = "panic"
			}
		}()

		err := h.Handle(ctx, ev, args)
		switch {
		case err == nil:
			outcome = "ok"
		case errors.Is(err, ErrFinished):
			outcome = "finished"
		default:
			d.log.Error("handler failed", "dispatch", rc.ID, "handler", name, "user", ev.UserID, "err", err)
			d.handleError(ctx, kind, h, err)
			outcome = "error"
		}
		return nil
	})

	d.log.Debug("dispatched", "dispatch", rc.ID, "handler", name, "kind", kind, "outcome", outcome, "took", time.Since(rc.Started))
	return outcome
}

// handleError routes err to the handler's ErrorHook or sends the default
// notice. Message handler errors are only logged.
func (d *Dispatcher) handleError(ctx context.Context, kind string, h Handler, err error) {
	if kind == kindMessage {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("error hook panicked", "handler", h.Descriptor().Name, "err", r)
		}
	}()
	if hook, ok := rootAny(h).(ErrorHook); ok {
		hook.HandleError(ctx, err)
		return
	}
	_ = Finish(ctx, FailureNotice(err))
}

// FailureNotice is the generic text sent for unexpected handler errors.
func FailureNotice(err error) string {
	return fmt.Sprintf("Something went wrong: %v", err)
}
