package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/commonshub/hubdoor/internal/clock"
	"github.com/commonshub/hubdoor/internal/config"
	"github.com/commonshub/hubdoor/internal/db"
	"github.com/commonshub/hubdoor/internal/discord"
	"github.com/commonshub/hubdoor/internal/httpapi"
	"github.com/commonshub/hubdoor/internal/hubdoor/capability"
	"github.com/commonshub/hubdoor/internal/hubdoor/dailytoken"
	"github.com/commonshub/hubdoor/internal/hubdoor/service"
	"github.com/commonshub/hubdoor/internal/hubdoor/store"
	"github.com/commonshub/hubdoor/internal/hubdoor/store/memory"
	"github.com/commonshub/hubdoor/internal/hubdoor/store/sqlite"
	"github.com/commonshub/hubdoor/internal/metrics"
	"github.com/commonshub/hubdoor/internal/wallet"
)

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := zc.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger.Named("hubdoor-server")
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	m := metrics.New(prometheus.DefaultRegisterer)

	// Stores: memory in dev, sqlite otherwise.
	var (
		auditStore     store.AuditStore
		heartbeatStore store.HeartbeatStore
	)
	if cfg.Env == "dev" {
		auditStore = memory.NewAuditStore()
		heartbeatStore = memory.NewHeartbeatStore()
	} else {
		conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath})
		if err != nil {
			logger.Fatal("db open", zap.Error(err))
		}
		defer conn.Close()
		writer := db.NewWorker(conn)
		defer writer.Close()

		auditStore = sqlite.NewAuditStore(conn, writer)
		heartbeatStore = sqlite.NewHeartbeatStore(conn, writer)
		logger.Info("database ready", zap.String("path", cfg.DBPath))
	}

	// Signing key and whitelist.
	key, source, err := capability.LoadOrCreateKey(cfg.PrivateKey, cfg.KeyPath())
	if err != nil {
		logger.Fatal("server key", zap.Error(err))
	}
	signer := capability.NewSigner(key)
	keys := capability.NewKeyring(cfg.Access.AuthorizedKeys)
	keys.Ensure(capability.ServerKey(signer))
	logger.Info("server key loaded",
		zap.String("address", signer.Address()),
		zap.String("source", string(source)),
		zap.Int("authorized_keys", len(keys.Keys())),
	)

	if cfg.Secret == "" {
		logger.Warn("HUBDOOR_SECRET is empty: day tokens, shortcut tokens, /token and the link bypass are disabled")
	}

	roles, _ := cfg.Access.AccessRoles() // validated by config.Load

	session := service.NewSession(service.SessionConfig{
		Clock:    clk,
		Location: cfg.Location,
		OnChange: m.SetDoorOpen,
	})
	defer session.Shutdown()

	deps := service.Dependencies{
		Session:                 session,
		Verifier:                capability.NewVerifier(keys, cfg.Secret),
		Tokens:                  dailytoken.NewIssuer(cfg.TenantID(), cfg.Secret, clk, cfg.Location),
		Secret:                  cfg.Secret,
		Audit:                   auditStore,
		Heartbeat:               heartbeatStore,
		Metrics:                 m,
		Logger:                  logger,
		PresentRoleID:           cfg.Discord.PresentRoleID,
		ShortcutEnforceSchedule: cfg.ShortcutEnforceSchedule,
	}

	if cfg.WalletCommunityFile != "" {
		community, err := wallet.LoadCommunity(cfg.WalletCommunityFile)
		if err != nil {
			logger.Fatal("wallet community", zap.Error(err))
		}
		auth, err := wallet.Dial(ctx, community, logger)
		if err != nil {
			logger.Fatal("wallet dial", zap.Error(err))
		}
		deps.Wallet = auth
	}

	var dc *discord.Client
	if !cfg.Discord.Disabled {
		dc, err = discord.New(discord.Config{
			Token:           cfg.Discord.Token,
			GuildID:         cfg.Discord.GuildID,
			ChannelID:       cfg.Discord.ChannelID,
			FunFactsChannel: cfg.Discord.FunFactsChannelID,
		}, logger)
		if err != nil {
			logger.Fatal("discord", zap.Error(err))
		}
		deps.Notifier = dc
		deps.Directory = dc
		deps.Presence = dc
		if cfg.Discord.FunFactsChannelID != "" {
			facts := service.NewFunFacts(dc, clk, service.FunFactsConfig{}, logger)
			facts.Start(ctx)
			defer facts.Stop()
			deps.FunFacts = facts
		}
	} else {
		logger.Warn("discord disabled: roles, notifications and the chat command are off")
	}

	door := service.NewDoorService(deps)

	if dc != nil {
		bot := discord.NewBot(door, discord.BotConfig{
			GuildID:   cfg.Discord.GuildID,
			ChannelID: cfg.Discord.ChannelID,
			DryRun:    cfg.DryRun,
		}, logger)
		bot.Attach(dc.Session())
		if err := dc.Open(); err != nil {
			logger.Fatal("discord gateway", zap.Error(err))
		}
		defer dc.Close()

		refresher := service.NewRoleRefresher(session, dc, dc, service.RefresherConfig{
			Roles:         roles,
			Interval:      time.Duration(cfg.RefreshIntervalMinutes) * time.Minute,
			PresentRoleID: cfg.Discord.PresentRoleID,
			DryRun:        cfg.DryRun,
		}, clk, m, logger)
		refresher.Start(ctx)
		defer refresher.Stop()
	}

	pruner := service.NewHeartbeatPruner(heartbeatStore, service.PrunerConfig{
		RetentionHours:  cfg.HeartbeatRetentionHours,
		IntervalMinutes: cfg.PruneIntervalMinutes,
	}, clk, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:  logger,
		Addr:    cfg.HTTPAddr,
		Door:    door,
		Metrics: promhttp.Handler(),
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Env))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
