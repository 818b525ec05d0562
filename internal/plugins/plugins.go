// Package plugins builds every feature and registers it with a dispatcher.
package plugins

import (
	"github.com/charmbracelet/log"

	"github.com/keshon/botcore/internal/audit"
	"github.com/keshon/botcore/internal/capability"
	"github.com/keshon/botcore/internal/config"
	"github.com/keshon/botcore/internal/dispatch"
	"github.com/keshon/botcore/internal/metrics"
	"github.com/keshon/botcore/internal/middleware"
	"github.com/keshon/botcore/internal/plugins/define"
	"github.com/keshon/botcore/internal/plugins/echo"
	"github.com/keshon/botcore/internal/plugins/help"
	"github.com/keshon/botcore/internal/plugins/highnoon"
	"github.com/keshon/botcore/internal/plugins/mathsoup"
	"github.com/keshon/botcore/internal/plugins/randomreply"
	"github.com/keshon/botcore/internal/plugins/status"
	"github.com/keshon/botcore/internal/prompts"
	"github.com/keshon/botcore/internal/services"
	"github.com/keshon/botcore/internal/session"
)

type Options struct {
	Registry *capability.Registry
	Config   *config.Config
	Prompts  *prompts.Store
	Concepts *mathsoup.Repository
	Admins   services.Admins
	Audit    audit.Publisher
	Logger   *log.Logger
	Metrics  *metrics.Metrics
}

// Set holds the registered features that own state.
type Set struct {
	HighNoon *highnoon.HighNoon
	MathSoup *mathsoup.MathSoup
}

// RegisterAll builds every feature from opts and registers it with d.
// Every command is audited.
func RegisterAll(d *dispatch.Dispatcher, opts Options) *Set {
	cfg := opts.Config
	logged := middleware.WithCommandLogger(opts.Audit, opts.Logger)
	sessionOpts := []session.Option{session.WithLogger(opts.Logger), session.WithMetrics(opts.Metrics)}

	command := func(h dispatch.Handler, mws ...dispatch.Middleware) {
		d.RegisterCommand(h, append([]dispatch.Middleware{logged}, mws...)...)
	}

	command(help.New(d.Catalog(), opts.Registry, d.Prefix()))
	command(define.New(define.Options{
		Temperature: cfg.MathTemperature,
		MaxTokens:   cfg.MathMaxTokens,
		TopP:        cfg.MathTopP,
	}, opts.Registry, opts.Prompts, opts.Logger.WithPrefix("define")))

	hn := highnoon.New(opts.Registry, cfg.DebugMode, opts.Logger.WithPrefix("highnoon"), sessionOpts...)
	command(hn.Start(), middleware.WithGroupOnly())
	command(hn.Fire(), middleware.WithGroupOnly())

	ms := mathsoup.New(mathsoup.Config{
		Repository: opts.Concepts,
		Registry:   opts.Registry,
		Prompts:    opts.Prompts,
		Debug:      cfg.DebugMode,
		Logger:     opts.Logger.WithPrefix("mathsoup"),
	}, sessionOpts...)
	for _, h := range ms.Handlers() {
		command(h, middleware.WithGroupOnly())
	}

	st := status.New(opts.Registry, opts.Logger.WithPrefix("status"))
	command(st.Token(), middleware.WithPrivateOnly(), middleware.WithAdminOnly(opts.Admins))
	command(st.Control(), middleware.WithAdminOnly(opts.Admins))

	d.RegisterMessage(randomreply.New(randomreply.Config{
		Prefix:             d.Prefix(),
		Probability:        cfg.RandomReplyProbability,
		MentionProbability: cfg.RandomReplyProbabilityMention,
	}, opts.Registry, opts.Prompts, opts.Logger.WithPrefix("randomreply")))
	d.RegisterMessage(echo.New(d.Prefix(), cfg.EchoProbability, cfg.EchoReverseProbability))

	return &Set{HighNoon: hn, MathSoup: ms}
}
