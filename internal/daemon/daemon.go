// Package daemon composes the long-running process: single-instance lock,
// session store, beets client, orchestrator, and the Telegram bot.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"beetbot/internal/beets"
	"beetbot/internal/bot"
	"beetbot/internal/capabilities"
	"beetbot/internal/config"
	"beetbot/internal/importer"
	"beetbot/internal/logging"
	"beetbot/internal/preflight"
	"beetbot/internal/session"
)

// Daemon owns the composed services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store   *session.Store
	client  *beets.Client
	manager *importer.Manager
	bot     *bot.Bot

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
}

// New builds every service from configuration. The Telegram connection is
// made here so a bad token fails fast.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	store, err := session.Open(cfg.StatePath(), logger)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	client, err := beets.New(beets.Config{
		Binary:        cfg.Beets.Binary,
		Container:     cfg.Beets.Container,
		User:          cfg.Beets.User,
		Pretend:       cfg.Beets.Pretend,
		ImportTimeout: cfg.ImportTimeout(),
		ConfigTimeout: cfg.ConfigTimeout(),
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build beets client: %w", err)
	}

	caps := capabilities.New(client, cfg.CapabilityWindow(), logger)
	manager := importer.New(client, store, caps, cfg, logger)

	telegramBot, err := bot.New(cfg, manager, client, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build bot: %w", err)
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "daemon"),
		store:    store,
		client:   client,
		manager:  manager,
		bot:      telegramBot,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Run acquires the instance lock and serves until the context is cancelled
// or a termination signal arrives.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another beetbot instance holds %s", d.lockPath)
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release instance lock", slog.Any("error", err))
		}
	}()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d.logger.Info("beetbot started",
		slog.String("lock", d.lockPath),
		slog.String("state", d.store.Path()))

	for _, result := range preflight.RunAll(signalCtx, d.cfg, d.client) {
		if result.Passed {
			continue
		}
		d.logger.Warn("preflight check failed",
			slog.String("check", result.Name),
			slog.String("detail", result.Detail))
	}

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		err := d.bot.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	// Warm the plugin snapshot so the first keyboard renders without a
	// probe delay.
	group.Go(func() error {
		d.manager.Capabilities().Current(groupCtx)
		return nil
	})

	err = group.Wait()
	d.logger.Info("beetbot stopped")
	return err
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	return d.store.Close()
}

// Store exposes the session store for CLI inspection commands.
func (d *Daemon) Store() *session.Store {
	return d.store
}
