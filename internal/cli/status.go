package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joebot/heyu/internal/config"
	"github.com/joebot/heyu/internal/journal"
	"github.com/joebot/heyu/internal/rule"
)

// StatusReport is everything `heyu status` shows.
type StatusReport struct {
	ConfigPath    string
	Config        *config.Config
	Rules         *rule.Table
	RulesFromFile bool
	RulesErr      error
	Recent        []journal.Entry
	Total         int
	PerRule       map[string]int
	JournalErr    error
}

// RunStatus writes the status report to w.
func RunStatus(w io.Writer, r StatusReport) {
	fmt.Fprint(w, RenderStatus(r))
}

// RenderStatus renders the report with styled output. Credentials are only
// ever shown as present or absent.
func RenderStatus(r StatusReport) string {
	cfg := r.Config
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(TitleStyle.Render(fmt.Sprintf("  %s heyu Status", Logo)) + "\n\n")

	fmt.Fprintf(&b, "  %-12s %s  %s\n", "Config", StatusBadge(fileExists(r.ConfigPath)), DimStyle.Render(r.ConfigPath))
	fmt.Fprintf(&b, "  %-12s %s\n", "Transport", cfg.Transport)
	sessionPath := cfg.SessionPath()
	stored := fileExists(sessionPath) || cfg.Channels.Telegram.Session != ""
	fmt.Fprintf(&b, "  %-12s %s  %s\n", "Session", StatusBadge(stored), DimStyle.Render(sessionPath))
	b.WriteString("\n")

	b.WriteString("  " + BoldStyle.Render("Channels") + "\n")
	fmt.Fprintf(&b, "    %s  Telegram (user)\n", StatusBadge(cfg.Channels.Telegram.APIID > 0 && cfg.Channels.Telegram.APIHash != ""))
	fmt.Fprintf(&b, "    %s  Telegram (bot)\n", StatusBadge(cfg.Channels.Telebot.Token != ""))
	fmt.Fprintf(&b, "    %s  Discord\n", StatusBadge(cfg.Channels.Discord.Token != ""))
	b.WriteString("\n")

	b.WriteString("  " + BoldStyle.Render("Rules") + "\n")
	switch {
	case r.RulesErr != nil:
		b.WriteString("    " + ErrStyle.Render(r.RulesErr.Error()) + "\n")
	case r.Rules != nil:
		source := "built-in default"
		if r.RulesFromFile {
			source = cfg.RulesPath()
		}
		b.WriteString("    " + DimStyle.Render(source) + "\n")
		for _, rl := range r.Rules.Rules {
			counted := ""
			if n, ok := r.PerRule[rl.Name]; ok {
				counted = fmt.Sprintf("  · %d matches", n)
			}
			fmt.Fprintf(&b, "    %s  %s%s\n", StatusBadge(true), rl.Name, DimStyle.Render(describeActions(rl)+counted))
		}
	}
	b.WriteString("\n")

	b.WriteString("  " + BoldStyle.Render("Recent matches") + "\n")
	switch {
	case !cfg.Journal.Enabled:
		b.WriteString("    " + DimStyle.Render("journal disabled") + "\n")
	case r.JournalErr != nil:
		b.WriteString("    " + ErrStyle.Render(r.JournalErr.Error()) + "\n")
	case len(r.Recent) == 0:
		b.WriteString("    " + DimStyle.Render("none yet") + "\n")
	default:
		fmt.Fprintf(&b, "    %s\n", DimStyle.Render(fmt.Sprintf("%d recorded in total", r.Total)))
		for _, e := range r.Recent {
			fmt.Fprintf(&b, "    %s  %-14s %s  %s\n",
				DimStyle.Render(e.MatchedAt.Local().Format("01-02 15:04")), e.Rule, e.ChatID, e.Preview)
		}
	}
	b.WriteString("\n")
	return b.String()
}

func describeActions(r *rule.Rule) string {
	if len(r.Actions) == 0 {
		return "  → log"
	}
	kinds := make([]string, len(r.Actions))
	for i, a := range r.Actions {
		kinds[i] = a.Kind
	}
	return "  → " + strings.Join(kinds, ", ")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
