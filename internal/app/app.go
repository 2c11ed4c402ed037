// Package app assembles the bot: config, logging, storage, the platform
// adapter, recovery, the scheduler and the command dispatcher, and owns the
// start/stop lifecycle around them.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"eventbot/internal/command"
	"eventbot/internal/config"
	"eventbot/internal/event"
	"eventbot/internal/recovery"
	"eventbot/internal/runtime/supervisor"
	"eventbot/internal/scheduler"
	"eventbot/internal/storage"
	kit "eventbot/internal/transport"
	"eventbot/internal/transport/telegram"
	"eventbot/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	adapter kit.Adapter
	events  *event.Store

	sup       *supervisor.Supervisor
	sched     *scheduler.Service
	refresher *scheduler.Refresher
	disp      *command.Dispatcher

	updates chan kit.Update

	stopReason atomic.Int32
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO")

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, bootLog.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("platform.poll_timeout", cfg.Platform.PollTimeout, 10*time.Second)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Platform.Token,
		PollTimeout: pollTimeout,
	}, bootLog.With(logx.String("comp", "telegram")), store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	// Chat log mirroring needs a target first, so it is enabled in a second
	// Apply once the target chat is set.
	logCfg := mapLoggingConfig(cfg)
	bootCfg := logCfg
	bootCfg.Chat.Enabled = false
	logSvc, log := logx.New(bootCfg, adapter)
	if cfg.Platform.LogChatID != 0 {
		logSvc.SetChatTarget(cfg.Platform.LogChatID)
	}
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		adapter: adapter,
		events:  event.NewStore(),
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app is going down, whether by command, signal
// propagation or fatal error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// StopReason reports why the app stopped; meaningful once Done is closed.
func (a *App) StopReason() StopReason {
	return StopReason(a.stopReason.Load())
}

// RequestStop begins shutdown. The first caller decides the reason; later
// calls are ignored.
func (a *App) RequestStop(reason StopReason) {
	if a.stopReason.CompareAndSwap(int32(StopUnknown), int32(reason)) {
		a.log.Info("stop requested", logx.String("reason", reason.String()))
	}
	if a.sup != nil {
		a.sup.Cancel()
	}
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		return validate(c)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	schedCfg, cardSpec, nearSpec, err := mapSchedulerConfig(cfg)
	if err != nil {
		return err
	}
	a.sched = scheduler.New(a.log, a.adapter, a.events, a.store, a.sup, schedCfg)

	// Rebuild the schedule from durable records before the loop starts, so
	// nothing fires off half-recovered state.
	loader := recovery.New(a.log, a.adapter, a.store, a.sched,
		schedCfg.GroupLookupRetries, schedCfg.GroupLookupDelay)
	if err := loader.Run(a.sup.Context()); err != nil {
		return err
	}

	a.sup.GoRestart("scheduler.poll", a.sched.Run)

	a.refresher, err = scheduler.NewRefresher(a.log, a.sched, cardSpec, nearSpec)
	if err != nil {
		return err
	}
	a.refresher.Start()

	a.disp = command.NewDispatcher(command.Deps{
		Log:     a.log.With(logx.String("comp", "commands")),
		Adapter: a.adapter,
		Sched:   a.sched,
		Store:   a.store,
		Platform: func() config.PlatformConfig {
			return a.cfgm.Get().Platform
		},
		Stop: func(restart bool) {
			if restart {
				a.RequestStop(StopReloadCommand)
			} else {
				a.RequestStop(StopShutdownCommand)
			}
		},
	})
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.disp.Run(c, a.updates)
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch)
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("started",
		logx.Int("events", a.events.Len()),
		logx.String("config", a.cfgPath))
	return nil
}

// reloadLoop applies hot-reloadable config sections as the watcher publishes
// new versions. Token and storage changes need a process restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts, keeping only the newest version.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					goto apply
				}
			}
		apply:
			if cfg.Platform.Token != last.Platform.Token {
				a.log.Warn("platform token changed; restart required to take effect")
			}
			if cfg.Storage != last.Storage {
				a.log.Warn("storage config changed; restart required to take effect")
			}

			if cfg.Platform.LogChatID != 0 {
				a.logs.SetChatTarget(cfg.Platform.LogChatID)
			} else {
				a.logs.SetChatTarget(0)
			}
			a.logs.Apply(mapLoggingConfig(cfg))

			if schedCfg, _, _, err := mapSchedulerConfig(cfg); err != nil {
				a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
			} else {
				a.sched.Apply(schedCfg)
			}

			a.log.Info("config reloaded")
			last = cfg
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.refresher != nil {
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.refresher.Stop(stopCtx); err != nil {
			a.log.Warn("card refresher stop timed out", logx.Err(err))
		}
		cancel()
	}

	if a.sup != nil {
		a.sup.Cancel()
	}
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop error", logx.Err(err))
	}
	if a.sup != nil {
		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := a.sup.Wait(waitCtx)
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("shutdown finished with error", logx.Err(err))
		}
	}

	a.log.Info("stopped", logx.String("reason", a.StopReason().String()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	return nil
}

// ---- config mapping ----

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, string, string, error) {
	poll, err := config.ParseDurationOrDefault("scheduler.poll_interval", cfg.Scheduler.PollInterval, 30*time.Second)
	if err != nil {
		return scheduler.Config{}, "", "", err
	}
	delay, err := config.ParseDurationOrDefault("scheduler.group_lookup_delay", cfg.Scheduler.GroupLookupDelay, 100*time.Millisecond)
	if err != nil {
		return scheduler.Config{}, "", "", err
	}
	cardSpec := cfg.Scheduler.CardRefreshSpec
	if strings.TrimSpace(cardSpec) == "" {
		cardSpec = "*/15 * * * *"
	}
	nearSpec := cfg.Scheduler.NearRefreshSpec
	if strings.TrimSpace(nearSpec) == "" {
		nearSpec = "@every 1m"
	}
	return scheduler.Config{
		PollInterval:       poll,
		GroupLookupRetries: cfg.Scheduler.GroupLookupRetries,
		GroupLookupDelay:   delay,
	}, cardSpec, nearSpec, nil
}

// validate rejects configs that would break a hot reload.
func validate(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Platform.Token) == "" {
		return fmt.Errorf("platform.token is required")
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if _, err := config.ParseDurationOrDefault("platform.poll_timeout", cfg.Platform.PollTimeout, time.Second); err != nil {
		return err
	}
	if _, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second); err != nil {
		return err
	}
	if _, _, _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if cfg.Scheduler.GroupLookupRetries < 0 {
		return fmt.Errorf("scheduler.group_lookup_retries must be >= 0")
	}
	for _, spec := range []string{cfg.Scheduler.CardRefreshSpec, cfg.Scheduler.NearRefreshSpec} {
		if strings.TrimSpace(spec) == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid cron spec %q: %w", spec, err)
		}
	}
	return nil
}
