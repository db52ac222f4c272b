package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joebot/heyu/internal/bus"
	"github.com/joebot/heyu/internal/channel"
	"github.com/joebot/heyu/internal/cli"
	"github.com/joebot/heyu/internal/config"
)

func newLoginCmd(a *app) *cobra.Command {
	var printToken bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the Telegram account and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(false); err != nil {
				return err
			}
			cfg := a.cfg
			cfg.Transport = config.TransportTelegram
			if err := cfg.Validate(); err != nil {
				return configError{err}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mgr, err := newSessionManager(ctx, cfg)
			if err != nil {
				return err
			}
			tg := channel.NewTelegram(cfg.Channels.Telegram, bus.NewMessageBus(), mgr)
			if err := tg.Login(ctx); err != nil {
				return fmt.Errorf("login: %w", err)
			}

			token, err := mgr.ExportToken()
			if err != nil {
				return fmt.Errorf("export session: %w", err)
			}
			fmt.Fprintln(os.Stderr, "  "+cli.OkStyle.Render("✓")+" Logged in "+cli.DimStyle.Render("("+cfg.SessionPath()+")"))
			if printToken {
				// stdout only, so it can be captured into TG_SESSION.
				fmt.Fprintln(cmd.OutOrStdout(), token)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&printToken, "print-token", false, "print the session token to stdout")
	return cmd
}
