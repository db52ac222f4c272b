package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joebot/heyu/internal/cli"
	"github.com/joebot/heyu/internal/config"
	"github.com/joebot/heyu/internal/logging"
)

// Exit codes.
const (
	exitRuntime = 1
	exitConfig  = 2
)

// configError marks errors caused by configuration rather than at runtime.
type configError struct{ err error }

func (e configError) Error() string { return e.err.Error() }
func (e configError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ce configError
	if errors.As(err, &ce) {
		return exitConfig
	}
	return exitRuntime
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cli.ErrStyle.Render("  Error: "+err.Error()))
		os.Exit(exitCode(err))
	}
}

// app carries the state shared by every command.
type app struct {
	cfgPath  string
	logLevel string

	cfg      *config.Config
	closeLog io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "heyu",
		Short:         "Rule-based message watcher for chat accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.closeLog != nil {
				a.closeLog.Close()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", config.ConfigPath(), "config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		newRunCmd(a),
		newLoginCmd(a),
		newRulesCmd(a),
		newStatusCmd(a),
		newOnboardCmd(a),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration and sets up logging. Problems are reported as
// configuration errors.
func (a *app) load(validate bool) error {
	cfg, err := config.LoadFrom(a.cfgPath)
	if err != nil {
		return configError{err}
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return configError{err}
		}
	}

	closer, err := logging.Setup(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return configError{fmt.Errorf("open log file: %w", err)}
	}
	a.cfg = cfg
	a.closeLog = closer
	return nil
}

func newOnboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Write a starter config and rule file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.RunOnboard(a.cfgPath, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), cli.TitleStyle.Render(
				fmt.Sprintf("  %s heyu v%s", cli.Logo, cli.Version),
			))
		},
	}
}
