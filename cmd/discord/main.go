// cmd/discord/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/keshon/botcore/internal/audit"
	"github.com/keshon/botcore/internal/capability"
	"github.com/keshon/botcore/internal/config"
	"github.com/keshon/botcore/internal/discord"
	"github.com/keshon/botcore/internal/dispatch"
	"github.com/keshon/botcore/internal/logger"
	"github.com/keshon/botcore/internal/metrics"
	"github.com/keshon/botcore/internal/outbound"
	"github.com/keshon/botcore/internal/plugins"
	"github.com/keshon/botcore/internal/plugins/mathsoup"
	"github.com/keshon/botcore/internal/prompts"
	"github.com/keshon/botcore/internal/services"
	"github.com/keshon/botcore/internal/storage"
	"github.com/keshon/botcore/pkg/jobmgr"
)

const appName = "botcore"

func main() {
	if err := run(); err != nil {
		logger.Logger.Fatal("bot exited with error", "err", err)
	}
	logger.Logger.Info("discord bot exited cleanly")
}

func run() error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	if err := logger.Configure(cfg.LogLevel, cfg.LogFile); err != nil {
		return err
	}
	log := logger.New("main")
	log.Info("starting bot", "app", appName, "debug", cfg.DebugMode)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)
	if err := m.Register(); err != nil {
		return err
	}

	store, err := storage.New(cfg.StoragePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close storage", "err", err)
		}
	}()

	bans, err := services.NewBanService(store, logger.New("bans"))
	if err != nil {
		return err
	}
	settings, err := services.NewSettingsStore(store, cfg.FeaturesDisabled, logger.New("settings"))
	if err != nil {
		return err
	}
	tokens := services.NewTokenService(services.DefaultTokenTTL, logger.New("tokens"))
	ai := services.NewOpenAIChat(services.OpenAIConfig{
		APIKey:  cfg.AIAPIKey,
		BaseURL: cfg.AIBaseURL,
		Model:   cfg.AIModel,
		Timeout: cfg.AITimeout,
		Limiter: services.DefaultCallLimiter(),
		Logger:  logger.New("ai"),
	})
	if !ai.Available() {
		log.Warn("AI_API_KEY is not set, AI features will be unavailable")
	}

	bot, err := discord.New(discord.Config{
		Token:          cfg.DiscordToken,
		GuildBlacklist: cfg.GuildBlacklist,
	}, logger.New("discord"))
	if err != nil {
		return err
	}

	reg := capability.New()
	capability.Register[services.Permission](reg, bans)
	capability.Register[services.BanList](reg, bans)
	capability.Register[services.FeatureGate](reg, settings)
	capability.Register[services.Settings](reg, settings)
	capability.Register[services.Tokens](reg, tokens)
	capability.Register[services.AIChat](reg, ai)
	capability.Register[services.ChatHistory](reg, services.NewChatLog(cfg.HistoryPerGroup, cfg.RandomReplyCooldown))
	capability.Register[services.Moderation](reg, bot.Transport())
	capability.Register[services.SystemMonitor](reg, services.NewMonitor(appName))
	capability.Register[services.Admins](reg, services.NewAdminList(cfg.AdminUserIDs))
	reg.Freeze()
	log.Info("capabilities registered", "names", reg.Names())

	bus, err := audit.New(store, audit.WithLogger(logger.New("audit")), audit.WithMetrics(m))
	if err != nil {
		return err
	}
	defer bus.Close()

	limiter := outbound.NewLimiter(
		outbound.WithMinInterval(cfg.SendInterval),
		outbound.WithLogger(logger.New("outbound")),
		outbound.WithMetrics(m),
	)
	d := dispatch.New(reg, limiter, bot.Transport(),
		dispatch.WithPrefix(cfg.CommandPrefix),
		dispatch.WithDebugConcurrent(cfg.DebugConcurrent),
		dispatch.WithLogger(logger.New("dispatch")),
		dispatch.WithMetrics(m),
	)

	admins, _ := capability.Get[services.Admins](reg)
	plugins.RegisterAll(d, plugins.Options{
		Registry: reg,
		Config:   cfg,
		Prompts:  prompts.New(cfg.PromptsDir),
		Concepts: mathsoup.NewRepository(cfg.ConceptsPath, logger.New("concepts")),
		Admins:   admins,
		Audit:    bus,
		Logger:   logger.New("plugins"),
		Metrics:  m,
	})

	jobs := jobmgr.NewManager(jobmgr.LogReporter(logger.New("jobs")))
	defer jobs.Wait()
	defer jobs.StopAll()

	if err := jobs.StartAsync(ctx, "audit", bus.Run); err != nil {
		return err
	}
	if err := jobs.StartAsync(ctx, "token-sweeper", func(ctx context.Context) error {
		return sweepTokens(ctx, tokens)
	}); err != nil {
		return err
	}
	if cfg.MetricsAddr != "" {
		if err := jobs.StartAsync(ctx, "metrics", func(ctx context.Context) error {
			return serveMetrics(ctx, cfg.MetricsAddr, promReg)
		}); err != nil {
			return err
		}
	}

	return bot.Run(ctx, d)
}

func sweepTokens(ctx context.Context, tokens *services.TokenService) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tokens.Sweep()
		}
	}
}

func serveMetrics(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
