// Package app wires configuration, state, sources, the watcher, the
// notifier and the Telegram front end into one startable unit.
package app

import (
	"context"
	"fmt"

	"modelwatch/internal/commands"
	"modelwatch/internal/config"
	"modelwatch/internal/notify"
	rtsup "modelwatch/internal/runtime/supervisor"
	"modelwatch/internal/source"
	"modelwatch/internal/state"
	"modelwatch/internal/transport"
	"modelwatch/internal/transport/telegram"
	"modelwatch/internal/watcher"
	logx "modelwatch/pkg/logx"
)

const updateQueueSize = 256

type App struct {
	cfgm   *config.Manager
	logsvc *logx.Service
	log    logx.Logger

	store    state.Store
	states   *state.Manager
	adapter  *telegram.Adapter
	notifier *notify.Service
	watch    *watcher.Watcher
	router   *commands.Router

	sup     *rtsup.Supervisor
	updates chan transport.Update
}

// New loads and validates the config, then brings up logging. Everything
// else is constructed in Start so a failed boot leaves nothing behind.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logsvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(func(ctx context.Context, c *config.Config) error {
		return c.Validate()
	})

	return &App{cfgm: cfgm, logsvc: logsvc, log: log}, nil
}

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	busy, err := config.ParseDurationField("state.busy_timeout", cfg.State.BusyTimeout)
	if err != nil {
		return err
	}
	store, err := state.Open(state.Config{
		Driver:      cfg.State.Driver,
		Path:        cfg.State.Path,
		BusyTimeout: busy,
	}, a.log.With(logx.String("comp", "state")))
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	a.store = store
	a.states = state.NewManager(ctx, store, a.log.With(logx.String("comp", "state")))

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, a.log.With(logx.String("comp", "telegram")))
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	a.adapter = adapter

	a.notifier = notify.New(notifierConfig(cfg.Notifier), adapter, a.log.With(logx.String("comp", "notify")))

	sources, err := source.BuildAll(cfg.Watch, a.log.With(logx.String("comp", "source")))
	if err != nil {
		return err
	}

	a.watch = watcher.New(a.states, a.notifier, a.log.With(logx.String("comp", "watcher")))
	a.router = commands.NewRouter(adapter, a.states, a.watch, cfg.Telegram.AdminUserIDs, a.log.With(logx.String("comp", "commands")))

	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "app"))))
	a.updates = make(chan transport.Update, updateQueueSize)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("telegram start: %w", err)
	}
	a.notifier.Start(a.sup.Context())
	if err := a.watch.Start(a.sup.Context(), sources); err != nil {
		return fmt.Errorf("watcher start: %w", err)
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)
	a.sup.Go0("config.reload", a.reloadLoop)

	a.log.Info("started", logx.Int("sources", len(sources)))
	return nil
}

// reloadLoop applies committed config updates to the running services.
// Telegram token and state driver/path changes need a restart; everything
// else hot-applies.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			a.applyConfig(cfg)
		}
	}
}

func (a *App) applyConfig(cfg *config.Config) {
	a.logsvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.notifier.Apply(notifierConfig(cfg.Notifier))
	a.router.SetAdmins(cfg.Telegram.AdminUserIDs)

	sources, err := source.BuildAll(cfg.Watch, a.log.With(logx.String("comp", "source")))
	if err != nil {
		a.log.Warn("reload: sources not rebuilt", logx.Err(err))
		return
	}
	if err := a.watch.ApplySources(sources); err != nil {
		a.log.Warn("reload: sources not applied", logx.Err(err))
		return
	}
	a.log.Info("config applied", logx.Int("sources", len(sources)))
}

func (a *App) Stop(ctx context.Context) error {
	if a.watch != nil {
		if err := a.watch.Stop(ctx); err != nil {
			a.log.Warn("watcher stop", logx.Err(err))
		}
	}
	if a.notifier != nil {
		a.notifier.Stop(ctx)
	}
	if a.adapter != nil {
		if err := a.adapter.Stop(ctx); err != nil {
			a.log.Warn("telegram stop", logx.Err(err))
		}
	}

	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil {
			a.log.Warn("state close", logx.Err(cerr))
		}
	}
	a.log.Info("stopped")
	if a.logsvc != nil {
		_ = a.logsvc.Close()
	}
	return err
}

func notifierConfig(nc *config.NotifierConfig) notify.Config {
	if nc == nil {
		return notify.Config{}
	}
	out := notify.Config{
		Workers:    nc.Workers,
		QueueSize:  nc.QueueSize,
		RatePerSec: nc.RatePerSec,
		RetryMax:   nc.RetryMax,
	}
	// Validation already ran; bad durations fall back to defaults.
	out.RetryBase, _ = config.ParseDurationField("notifier.retry_base", nc.RetryBase)
	out.RetryMaxDelay, _ = config.ParseDurationField("notifier.retry_max_delay", nc.RetryMaxDelay)
	return out
}
