// Package mcwarden is the embeddable entry point: it assembles the supervisor,
// lifecycle controller, command dispatcher and HTTP surface from one Config.
package mcwarden

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/loykin/mcwarden/internal/auth"
	"github.com/loykin/mcwarden/internal/command"
	"github.com/loykin/mcwarden/internal/config"
	"github.com/loykin/mcwarden/internal/history"
	"github.com/loykin/mcwarden/internal/history/factory"
	"github.com/loykin/mcwarden/internal/lifecycle"
	"github.com/loykin/mcwarden/internal/metrics"
	"github.com/loykin/mcwarden/internal/notify"
	"github.com/loykin/mcwarden/internal/probe"
	"github.com/loykin/mcwarden/internal/process"
	"github.com/loykin/mcwarden/internal/rcon"
	"github.com/loykin/mcwarden/internal/server"
	mctls "github.com/loykin/mcwarden/internal/tls"
)

// Re-exported for embedders.

type Config = config.Config

type Reply = command.Reply

type State = lifecycle.State

type Notification = notify.Notification

// LoadConfig reads a TOML file with MCWARDEN_* overrides.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// RegisterMetrics registers the collectors with r.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// Service owns one supervised server and everything that acts on it.
type Service struct {
	cfg        *Config
	sup        *process.Supervisor
	ctl        *lifecycle.Controller
	dispatcher *command.Dispatcher
	feed       *notify.Feed
	sinks      history.Fanout
	http       *http.Server
}

func New(cfg *Config) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	spec, err := cfg.ProcessSpec()
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	admins := auth.NewAllowList(cfg.Admins...)
	if err := admins.LoadFile(cfg.AdminFile); err != nil {
		return nil, fmt.Errorf("load admins: %w", err)
	}

	feed := notify.NewFeed(cfg.Notify.FeedSize)
	notifiers := notify.Multi{notify.Log{}, feed}
	if urls := webhookURLs(cfg.Notify); len(urls) > 0 {
		notifiers = append(notifiers, notify.NewWebhook(urls, cfg.Notify.Timeout))
	}

	opts := []lifecycle.Option{lifecycle.WithNotifier(notifiers)}
	var sinks history.Fanout
	if cfg.History.Enabled {
		fan, err := factory.NewFanout(cfg.History.DSNs)
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		for _, s := range fan {
			sinks = append(sinks, history.WithTimeout(s, cfg.History.Timeout))
		}
		opts = append(opts, lifecycle.WithHistory(sinks))
	}

	sup := process.New(spec)
	lc := cfg.Lifecycle
	lc.Name = sup.Spec().Name
	ctl := lifecycle.New(lc, sup, rcon.New(sup, cfg.Rcon.Timeout), probe.NewSLP(cfg.Probe.Timeout), opts...)

	s := &Service{
		cfg:        cfg,
		sup:        sup,
		ctl:        ctl,
		dispatcher: command.NewDispatcher(ctl, admins),
		feed:       feed,
		sinks:      sinks,
	}
	if cfg.HTTP.Enabled {
		r := server.NewRouter(s.dispatcher, ctl, server.Options{
			BasePath:  cfg.HTTP.BasePath,
			RateLimit: cfg.HTTP.RateLimit,
			RateBurst: cfg.HTTP.RateBurst,
			Metrics:   cfg.Metrics.Enabled,
			Feed:      feed,
		})
		s.http = server.NewServer(cfg.HTTP.Listen, r)
		if !server.IsLoopback(cfg.HTTP.Listen) {
			slog.Warn("HTTP API listens beyond loopback; callers are trusted as sent, expose it to the chat relay only", "addr", cfg.HTTP.Listen)
		}
		tlsCfg, err := mctls.Setup(cfg.HTTP.TLS)
		if err != nil {
			return nil, fmt.Errorf("http tls: %w", err)
		}
		s.http.TLSConfig = tlsCfg
	}
	return s, nil
}

func webhookURLs(n config.NotifyConfig) map[notify.Channel]string {
	urls := map[notify.Channel]string{}
	if n.StatusWebhook != "" {
		urls[notify.ChannelStatus] = n.StatusWebhook
	}
	if n.DevWebhook != "" {
		urls[notify.ChannelDev] = n.DevWebhook
	}
	return urls
}

// Dispatch runs one chat command on behalf of caller.
func (s *Service) Dispatch(ctx context.Context, caller, text string) Reply {
	return s.dispatcher.Dispatch(ctx, caller, text)
}

func (s *Service) Snapshot() State { return s.ctl.Snapshot() }

// Notifications returns buffered notifications newer than since.
func (s *Service) Notifications(since time.Time) []Notification { return s.feed.Since(since) }

// Run drives the watchdog and idle loops and, when enabled, the HTTP API
// until ctx is cancelled. A loop that exits on its own is an error. The
// supervised server is stopped before Run returns.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	loop := func(name string, run func(context.Context) error) {
		g.Go(func() error {
			err := run(gctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s loop exited: %w", name, err)
		})
	}
	loop("watchdog", s.ctl.RunWatchdog)
	loop("idle", s.ctl.RunIdle)

	if s.http != nil {
		g.Go(func() error {
			slog.Info("HTTP API listening", "addr", s.http.Addr, "tls", s.http.TLSConfig != nil)
			var err error
			if s.http.TLSConfig != nil {
				err = s.http.ListenAndServeTLS("", "")
			} else {
				err = s.http.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return s.http.Shutdown(shutdownCtx)
		})
	}

	if s.cfg.Notify.Greeting {
		s.ctl.Greet(ctx)
	}

	err := g.Wait()
	if outcome, stopErr := s.sup.Stop(); stopErr != nil {
		slog.Error("Failed to stop server on exit", "error", stopErr)
		err = errors.Join(err, stopErr)
	} else if outcome != process.StopNotRunning {
		slog.Info("Server stopped on exit", "outcome", outcome.String())
	}
	return err
}

// Close releases history sinks.
func (s *Service) Close() error {
	if s.sinks == nil {
		return nil
	}
	return s.sinks.Close()
}
