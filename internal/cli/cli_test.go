package cli

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/joebot/heyu/internal/config"
	"github.com/joebot/heyu/internal/journal"
	"github.com/joebot/heyu/internal/prompt"
	"github.com/joebot/heyu/internal/rule"
)

func typeInto(m promptModel, s string) promptModel {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return next.(promptModel)
}

func TestPromptModelSubmit(t *testing.T) {
	m := typeInto(newPromptModel(prompt.Code), "12345")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(promptModel)

	if !m.done || cmd == nil {
		t.Fatal("enter should finish the prompt")
	}
	if m.input.Value() != "12345" {
		t.Errorf("value = %q", m.input.Value())
	}
	if m.View() != "" {
		t.Error("finished prompt should render nothing")
	}
}

func TestPromptModelMasksSecrets(t *testing.T) {
	m := typeInto(newPromptModel(prompt.Password), "hunter2")
	if m.input.EchoMode != textinput.EchoPassword {
		t.Error("password prompt must not echo")
	}
	if strings.Contains(m.summary(), "hunter2") {
		t.Errorf("summary leaks the password: %q", m.summary())
	}
	if newPromptModel(prompt.Identifier).input.EchoMode != textinput.EchoNormal {
		t.Error("identifier prompt should echo")
	}
}

func TestPromptModelCancel(t *testing.T) {
	next, _ := newPromptModel(prompt.Identifier).Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !next.(promptModel).cancelled {
		t.Error("ctrl+c should cancel")
	}
}

func TestOnboardModelSelect(t *testing.T) {
	m := newOnboardModel("/tmp/config.yaml")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if got := next.(onboardModel); !got.chosen || got.choice != choiceOverwrite {
		t.Errorf("choice = %v, want overwrite", got.choice)
	}
}

func TestEnsureConfigAndRules(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	var out strings.Builder
	cfg, err := ensureConfig(cfgPath, strings.NewReader(""), &out)
	if err != nil {
		t.Fatal(err)
	}
	if !fileExists(cfgPath) || cfg.Transport != config.TransportTelegram {
		t.Fatalf("config not created: %s", out.String())
	}

	rulesPath := filepath.Join(dir, "rules.yaml")
	created, err := ensureRules(rulesPath)
	if err != nil || !created {
		t.Fatalf("ensureRules = %v, %v", created, err)
	}
	tbl, err := rule.Load(rulesPath)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Lookup("roll-call") == nil {
		t.Error("written rules should contain the roll-call rule")
	}
	if created, _ := ensureRules(rulesPath); created {
		t.Error("existing rules must not be overwritten")
	}
}

func TestRenderStatus(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Journal.Enabled = true
	cfg.Channels.Telegram.Session = "c2VjcmV0LXNlc3Npb24="

	out := RenderStatus(StatusReport{
		ConfigPath: filepath.Join(t.TempDir(), "config.yaml"),
		Config:     cfg,
		Rules:      rule.DefaultTable(),
		Recent: []journal.Entry{{
			Rule: "roll-call", ChatID: "639022533", Preview: "点名 在岗", MatchedAt: time.Now(),
		}},
		Total:   1,
		PerRule: map[string]int{"roll-call": 1},
	})

	for _, want := range []string{"roll-call", "639022533", "built-in default", "Telegram (user)", "· 1 matches", "1 recorded in total"} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, cfg.Channels.Telegram.Session) {
		t.Error("status must not print the session token")
	}

	out = RenderStatus(StatusReport{Config: cfg, JournalErr: errors.New("database is locked")})
	if !strings.Contains(out, "database is locked") {
		t.Errorf("journal error not shown:\n%s", out)
	}
}
