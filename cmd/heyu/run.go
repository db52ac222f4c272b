package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joebot/heyu/internal/action"
	"github.com/joebot/heyu/internal/bus"
	"github.com/joebot/heyu/internal/channel"
	"github.com/joebot/heyu/internal/cli"
	"github.com/joebot/heyu/internal/config"
	"github.com/joebot/heyu/internal/dispatch"
	"github.com/joebot/heyu/internal/heartbeat"
	"github.com/joebot/heyu/internal/journal"
	"github.com/joebot/heyu/internal/rule"
	"github.com/joebot/heyu/internal/session"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect and watch incoming messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(true); err != nil {
				return err
			}
			return runBot(cmd.Context(), a.cfg)
		},
	}
}

func runBot(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rules, fromFile, err := rule.LoadOrDefault(cfg.RulesPath())
	if err != nil {
		return configError{err}
	}
	if fromFile {
		slog.Info("Rules loaded", "path", cfg.RulesPath(), "rules", len(rules.Rules))
	} else {
		slog.Info("Using built-in rules", "rules", len(rules.Rules))
	}

	msgBus := bus.NewMessageBusSize(cfg.Dispatch.QueueSize)

	fc := action.FactoryConfig{
		Publish:        msgBus.PublishOutbound,
		KafkaBrokers:   cfg.Kafka.Brokers,
		KafkaTopic:     cfg.Kafka.Topic,
		WebhookTimeout: cfg.Webhook.Timeout,
	}
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.JournalPath())
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
		fc.Recorder = j
	}
	factory := action.NewFactory(fc)
	defer factory.Close()

	actions, err := factory.BuildAll(rules)
	if err != nil {
		return configError{err}
	}
	d := dispatch.New(dispatch.Config{Rules: rules, Actions: actions, Workers: cfg.Dispatch.Workers})

	ch, err := buildChannel(ctx, cfg, msgBus)
	if err != nil {
		return err
	}
	channel.Attach(msgBus, ch)

	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, cli.TitleStyle.Render(fmt.Sprintf("  %s heyu", cli.Logo))+
		cli.DimStyle.Render(fmt.Sprintf("  %s · %d rules · Ctrl+C to stop", ch.Name(), len(rules.Rules))))
	fmt.Fprintln(os.Stderr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		msgBus.DispatchOutbound(gctx)
		return nil
	})
	g.Go(func() error {
		d.Run(gctx, msgBus.Inbound)
		return nil
	})
	if cfg.Heartbeat.Enabled {
		hb := heartbeat.NewService(cfg.Heartbeat.Interval, d.Stats)
		g.Go(func() error {
			hb.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		// The transport owns the lifetime of the run: when it ends, so does everything else.
		defer stop()
		if err := ch.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s: %w", ch.Name(), err)
		}
		return nil
	})

	err = g.Wait()
	ch.Stop()

	s := d.Stats()
	slog.Info("Shutting down", "received", s.Received, "matched", s.Matched, "failures", s.ActionFailures)
	return err
}

// buildChannel creates the configured transport. The telegram transport
// gets a session manager that can prompt on the terminal.
func buildChannel(ctx context.Context, cfg *config.Config, b *bus.MessageBus) (channel.Channel, error) {
	switch cfg.Transport {
	case config.TransportTelebot:
		return channel.NewTelebot(cfg.Channels.Telebot, b), nil
	case config.TransportDiscord:
		return channel.NewDiscord(cfg.Channels.Discord, b), nil
	case config.TransportTelegram:
		mgr, err := newSessionManager(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return channel.NewTelegram(cfg.Channels.Telegram, b, mgr), nil
	}
	return nil, configError{fmt.Errorf("unknown transport %q", cfg.Transport)}
}

// newSessionManager seeds the vault from the session store or, when nothing
// is stored yet, from TG_SESSION.
func newSessionManager(ctx context.Context, cfg *config.Config) (*session.Manager, error) {
	store := session.NewFileStore(cfg.SessionPath(), cfg.Session.SealKey)

	stored, err := store.Load(ctx)
	if err != nil && !errors.Is(err, session.ErrNoToken) {
		if cfg.Channels.Telegram.Session == "" {
			return nil, configError{fmt.Errorf("load session: %w", err)}
		}
		slog.Warn("Stored session unreadable, using TG_SESSION", "err", err)
	}
	token := pickToken(cfg.Channels.Telegram.Session, stored)
	vault, err := session.NewVault(token)
	if err != nil {
		return nil, configError{err}
	}

	return session.NewManager(session.Config{
		Vault:         vault,
		Prompts:       cli.NewResolver(os.Stdin, os.Stderr),
		Store:         store,
		MaxAttempts:   cfg.Session.MaxAttempts,
		PromptTimeout: cfg.Session.PromptTimeout,
		OnError: func(err error) {
			slog.Warn("Login error", "err", err)
		},
	}), nil
}

// pickToken prefers the stored token: the store is only written after a
// successful login, so it is never older than the one in the environment.
func pickToken(env, stored string) string {
	switch {
	case stored == "":
		return env
	case env != "" && env != stored:
		slog.Info("Using stored session, TG_SESSION ignored")
	}
	return stored
}
