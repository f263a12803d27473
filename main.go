package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"possale/internal/audit"
	"possale/internal/auth"
	"possale/internal/config"
	"possale/internal/handlers/admin"
	"possale/internal/handlers/common"
	"possale/internal/handlers/inventory"
	"possale/internal/handlers/sales"
	"possale/internal/locking"
	"possale/internal/logging"
	"possale/internal/models"
	"possale/internal/pos"
	"possale/internal/server"
	"possale/internal/store"
	"possale/internal/validation"
	"possale/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	db, err := initDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("DB init failed: %w", err)
	}
	defer db.Close()

	st := store.New(db)
	if err := seedAdmin(sigCtx, db, cfg.AdminPassword, log); err != nil {
		return err
	}
	if cfg.SeedDemo {
		if err := seedDemo(sigCtx, st, log); err != nil {
			return fmt.Errorf("seed demo: %w", err)
		}
	}

	var locker pos.BatchLocker = locking.NewLocal()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(sigCtx).Err(); err != nil {
			return fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		defer rdb.Close()
		locker = locking.NewRedis(rdb, log)
		log.WithField("addr", cfg.RedisAddr).Info("using redis batch locks")
	}

	hub := websocket.NewHub(log)
	auditLog := &audit.Logger{DB: db, Log: log}
	validate := validation.NewStructValidator()
	settings := &store.Settings{DB: db, Defaults: models.POSSettings{
		UndoLimitMinutes:  cfg.UndoLimitMinutes,
		LowStockThreshold: cfg.LowStockThreshold,
	}}
	svc := &pos.Service{
		Batches:     st,
		Sales:       st,
		Settings:    settings,
		Locker:      locker,
		Publisher:   hub,
		Audit:       auditLog.ForModule("sales"),
		Log:         log,
		PhoneRegion: cfg.PhoneRegion,
	}

	app := &server.App{
		DB:  db,
		Hub: hub,
		Log: log,
		Sales: &sales.Handler{
			Sales:     svc,
			Allocator: &pos.Allocator{Source: st},
			Validate:  validate,
			Log:       log,
		},
		Admin: &admin.Handler{
			DB:            db,
			Settings:      settings,
			Audit:         auditLog,
			Validate:      validate,
			Log:           log,
			SecureCookies: cfg.SecureCookies,
		},
		Common: &common.Handler{
			Store:  st,
			Hub:    hub,
			Tokens: &auth.StreamTokens{Secret: []byte(cfg.JWTSecret), TTL: cfg.StreamTokenTTL},
			Log:    log,
		},
		Stock: &inventory.Handler{
			Store:    st,
			Audit:    auditLog,
			Validate: validate,
			Log:      log,
		},
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()
	log.WithField("addr", srv.Addr).Info("POS server started")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	hub.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	return nil
}
