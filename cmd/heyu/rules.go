package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joebot/heyu/internal/action"
	"github.com/joebot/heyu/internal/bus"
	"github.com/joebot/heyu/internal/cli"
	"github.com/joebot/heyu/internal/dispatch"
	"github.com/joebot/heyu/internal/journal"
	"github.com/joebot/heyu/internal/rule"
)

func newRulesCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the rule table",
	}
	cmd.PersistentFlags().StringVarP(&file, "file", "f", "", "rule file (default: rules.path from config)")

	cmd.AddCommand(newRulesCheckCmd(a, &file), newRulesEvalCmd(a, &file))
	return cmd
}

// loadRules reads the table from file or the configured path. Failures are
// configuration errors.
func (a *app) loadRules(file string) (*rule.Table, string, error) {
	if err := a.load(false); err != nil {
		return nil, "", err
	}
	if file != "" {
		t, err := rule.Load(file)
		if err != nil {
			return nil, "", configError{err}
		}
		return t, file, nil
	}
	t, fromFile, err := rule.LoadOrDefault(a.cfg.RulesPath())
	if err != nil {
		return nil, "", configError{err}
	}
	if !fromFile {
		return t, "built-in default", nil
	}
	return t, a.cfg.RulesPath(), nil
}

func newRulesCheckCmd(a *app, file *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the rule table and its actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, source, err := a.loadRules(*file)
			if err != nil {
				return err
			}

			// Building the actions surfaces missing kafka, journal or webhook settings.
			f := action.NewFactory(action.FactoryConfig{
				Publish:        func(context.Context, *bus.OutboundMessage) error { return nil },
				Recorder:       checkRecorder(a.cfg.Journal.Enabled),
				KafkaBrokers:   a.cfg.Kafka.Brokers,
				KafkaTopic:     a.cfg.Kafka.Topic,
				WebhookTimeout: a.cfg.Webhook.Timeout,
			})
			defer f.Close()
			if _, err := f.BuildAll(t); err != nil {
				return configError{err}
			}

			printRules(cmd.OutOrStdout(), t, source)
			return nil
		},
	}
}

// nopRecorder stands in for the journal so check does not open the database.
type nopRecorder struct{}

func (nopRecorder) Record(context.Context, journal.Entry) error { return nil }

func checkRecorder(enabled bool) action.Recorder {
	if !enabled {
		return nil
	}
	return nopRecorder{}
}

func printRules(w io.Writer, t *rule.Table, source string) {
	fmt.Fprintf(w, "  %s %d rules from %s\n\n", cli.OkStyle.Render("✓"), len(t.Rules), cli.DimStyle.Render(source))
	for _, r := range t.Rules {
		fmt.Fprintf(w, "  %s\n", cli.BoldStyle.Render(r.Name))
		printList(w, "kinds", r.Kinds)
		printList(w, "chats", r.Chats)
		printList(w, "senders", r.Senders)
		printList(w, "contains", r.Contains)
		printList(w, "excludes", r.Excludes)
		if r.Pattern != "" {
			fmt.Fprintf(w, "    %-9s %s\n", "pattern", r.Pattern)
		}
		if r.Bots != nil {
			who := "people only"
			if *r.Bots {
				who = "bots only"
			}
			fmt.Fprintf(w, "    %-9s %s\n", "accounts", who)
		}
		if r.Dedupe > 0 {
			fmt.Fprintf(w, "    %-9s %s\n", "dedupe", r.Dedupe)
		}
		kinds := make([]string, 0, len(r.Actions))
		for _, s := range r.Actions {
			kinds = append(kinds, s.Kind)
		}
		if len(kinds) == 0 {
			kinds = append(kinds, "log")
		}
		printList(w, "actions", kinds)
		if r.Stop {
			fmt.Fprintf(w, "    %-9s %s\n", "stop", "yes")
		}
		fmt.Fprintln(w)
	}
}

func printList(w io.Writer, label string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(w, "    %-9s %s\n", label, strings.Join(values, ", "))
}

func newRulesEvalCmd(a *app, file *string) *cobra.Command {
	var (
		kind   string
		chat   string
		sender string
		bot    bool
	)
	cmd := &cobra.Command{
		Use:   "eval [text]",
		Short: "Show which rules a message would trigger, without running actions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, _, err := a.loadRules(*file)
			if err != nil {
				return err
			}
			k, err := bus.ParseKind(kind)
			if err != nil {
				return err
			}

			msg := &bus.InboundMessage{
				Channel:   "cli",
				ChatID:    chat,
				Kind:      k,
				MessageID: "0",
				Timestamp: time.Now(),
			}
			if len(args) == 1 {
				msg.Content = args[0]
			}
			if sender != "" || bot {
				s := &bus.Sender{Username: strings.TrimPrefix(sender, "@"), Bot: bot}
				msg.Resolve = func(context.Context) (*bus.Sender, error) { return s, nil }
			}

			matched, _ := dispatch.New(dispatch.Config{Rules: t}).Evaluate(cmd.Context(), msg)
			w := cmd.OutOrStdout()
			if len(matched) == 0 {
				fmt.Fprintln(w, "  "+cli.DimStyle.Render("no rule matches"))
				return nil
			}
			for _, r := range matched {
				fmt.Fprintf(w, "  %s %s\n", cli.OkStyle.Render("✓"), r.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "group", "conversation kind: direct, group or broadcast")
	cmd.Flags().StringVar(&chat, "chat", "", "conversation id")
	cmd.Flags().StringVar(&sender, "sender", "", "sender username")
	cmd.Flags().BoolVar(&bot, "bot", false, "the sender is a bot account")
	return cmd
}
