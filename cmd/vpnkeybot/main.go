// Command vpnkeybot runs the Telegram bot that hands out single-use VPN
// configuration files, plus the optional operator HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nevskii/vpnkeybot/internal/bot"
	"github.com/nevskii/vpnkeybot/internal/config"
	"github.com/nevskii/vpnkeybot/internal/issuance"
	"github.com/nevskii/vpnkeybot/internal/ledger"
	"github.com/nevskii/vpnkeybot/internal/limits"
	"github.com/nevskii/vpnkeybot/internal/ops"
	"github.com/nevskii/vpnkeybot/internal/pool"
	"github.com/nevskii/vpnkeybot/internal/registry"
	"github.com/nevskii/vpnkeybot/internal/sites"
	"github.com/nevskii/vpnkeybot/internal/storage"
	"github.com/nevskii/vpnkeybot/internal/support"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	setupLogging(cfg)

	if err = ensureStateLayout(cfg); err != nil {
		log.WithError(err).Fatal("failed to prepare state directories")
	}

	reg := registry.New(
		cfg.AdminID,
		storage.NewLineStore(cfg.AuthorizedUsersFile()),
		storage.NewLineStore(cfg.BannedUsersFile()),
	)
	lim := limits.NewStore(
		storage.NewLineStore(cfg.KeyLimitFile()),
		storage.NewLineStore(cfg.UserLimitsFile()),
	)
	credPool := pool.New(cfg.ConfigsDir(), cfg.IssuedDir(), cfg.MaxArchiveSize(), cfg.Ingest.MaxArchiveEntries)
	led := ledger.New(
		storage.NewLineStore(cfg.KeysIssuedFile()),
		storage.NewLineStore(cfg.KeysLogFile()),
	)
	issuer := issuance.NewService(reg, lim, credPool, led)
	siteList := sites.NewList(storage.NewLineStore(cfg.SiteExceptionsFile()))
	supportLog := support.NewLog(storage.NewLineStore(cfg.SupportRequestsFile()))

	if err = issuer.Reconcile(); err != nil {
		log.WithError(err).Fatal("failed to reconcile staged credentials")
	}

	tgBot, err := bot.New(bot.Deps{
		Config:   cfg,
		Registry: reg,
		Limits:   lim,
		Pool:     credPool,
		Ledger:   led,
		Issuer:   issuer,
		Sites:    siteList,
		Support:  supportLog,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to connect to telegram")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opsServer *http.Server
	if cfg.Ops.Listen != "" {
		handler := ops.NewHandler(issuer, reg, led)
		opsServer = &http.Server{
			Addr:    cfg.Ops.Listen,
			Handler: ops.NewRouter(cfg.Ops.Token, handler),
		}
		go func() {
			log.WithField("addr", cfg.Ops.Listen).Info("operator api listening")
			if errServe := opsServer.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
				log.WithError(errServe).Error("operator api stopped")
			}
		}()
	}

	log.Info("bot started")
	if err = tgBot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("bot stopped")
	}

	if opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err = opsServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("operator api shutdown failed")
		}
	}
	log.Info("bot stopped")
}

// setupLogging routes logs to stdout and a rotated file.
func setupLogging(cfg *config.Config) {
	if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
		log.WithError(err).Warn("failed to create log directory, logging to stdout only")
		return
	}
	rotated := &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotated))
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

// ensureStateLayout creates the data directories and state files the bot
// expects so a fresh deployment starts from an empty but valid state.
func ensureStateLayout(cfg *config.Config) error {
	for _, dir := range []string{cfg.ConfigsDir(), cfg.IssuedDir(), cfg.UsersDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	files := []string{
		cfg.AuthorizedUsersFile(),
		cfg.BannedUsersFile(),
		cfg.KeysIssuedFile(),
		cfg.KeysLogFile(),
		cfg.KeyLimitFile(),
		cfg.UserLimitsFile(),
		cfg.SupportRequestsFile(),
		cfg.SiteExceptionsFile(),
	}
	for _, path := range files {
		f, err := os.OpenFile(path, os.O_CREATE, 0o644)
		if err != nil {
			return err
		}
		f.Close()
	}
	return nil
}
