package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joebot/heyu/internal/cli"
	"github.com/joebot/heyu/internal/journal"
	"github.com/joebot/heyu/internal/rule"
)

// recentMatches is how many journal entries status shows.
const recentMatches = 10

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration, rules and recent matches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(false); err != nil {
				return err
			}
			cfg := a.cfg

			report := cli.StatusReport{ConfigPath: a.cfgPath, Config: cfg}
			report.Rules, report.RulesFromFile, report.RulesErr = rule.LoadOrDefault(cfg.RulesPath())

			if cfg.Journal.Enabled {
				j, err := journal.Open(cfg.JournalPath())
				if err != nil {
					report.JournalErr = err
				} else {
					report.Recent, report.JournalErr = j.Recent(cmd.Context(), recentMatches)
					if report.JournalErr == nil {
						report.Total, report.PerRule, report.JournalErr = countMatches(cmd.Context(), j, report.Rules)
					}
					j.Close()
				}
			}

			cli.RunStatus(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

// countMatches totals the journal overall and for each rule in t.
func countMatches(ctx context.Context, j *journal.Journal, t *rule.Table) (int, map[string]int, error) {
	total, err := j.Count(ctx, "")
	if err != nil {
		return 0, nil, err
	}
	per := make(map[string]int)
	if t != nil {
		for _, r := range t.Rules {
			n, err := j.Count(ctx, r.Name)
			if err != nil {
				return 0, nil, err
			}
			per[r.Name] = n
		}
	}
	return total, per, nil
}
