package cli

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/joebot/heyu/internal/config"
	"github.com/joebot/heyu/internal/rule"
)

// --- onboard selection model ---

type onboardChoice int

const (
	choiceKeep onboardChoice = iota
	choiceOverwrite
	choiceSkip
)

type onboardModel struct {
	path    string
	choices []string
	cursor  int
	chosen  bool
	choice  onboardChoice
}

func newOnboardModel(path string) onboardModel {
	return onboardModel{
		path: path,
		choices: []string{
			"Keep: leave the existing config as it is",
			"Overwrite: replace it with fresh defaults",
			"Cancel",
		},
	}
}

func (m onboardModel) Init() tea.Cmd { return nil }

func (m onboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.choice = choiceSkip
			m.chosen = true
			return m, tea.Quit
		case tea.KeyUp, tea.KeyShiftTab:
			if m.cursor > 0 {
				m.cursor--
			}
		case tea.KeyDown, tea.KeyTab:
			if m.cursor < len(m.choices)-1 {
				m.cursor++
			}
		case tea.KeyEnter:
			m.choice = onboardChoice(m.cursor)
			m.chosen = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m onboardModel) View() string {
	if m.chosen {
		return ""
	}

	s := "\n"
	s += fmt.Sprintf("  Config already exists at %s\n\n", DimStyle.Render(m.path))

	for i, choice := range m.choices {
		cursor := "  "
		if i == m.cursor {
			cursor = CursorStyle.Render("❯ ")
		}
		s += "  " + cursor + choice + "\n"
	}

	s += "\n" + DimStyle.Render("  ↑/↓ navigate · enter select · ctrl+c cancel") + "\n"
	return s
}

// RunOnboard writes a starter config and rule file. An existing config is
// only replaced when the operator picks Overwrite.
func RunOnboard(cfgPath string, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out)
	fmt.Fprintln(out, TitleStyle.Render(fmt.Sprintf("  %s heyu Onboard", Logo)))

	cfg, err := ensureConfig(cfgPath, in, out)
	if err != nil {
		return err
	}

	rulesPath := cfg.RulesPath()
	created, err := ensureRules(rulesPath)
	if err != nil {
		return fmt.Errorf("write rules: %w", err)
	}
	if created {
		fmt.Fprintln(out, "  "+OkStyle.Render("✓")+" Created rules at "+DimStyle.Render(rulesPath))
	} else {
		fmt.Fprintln(out, "  "+DimStyle.Render("Rules already at "+rulesPath))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, OkStyle.Render("  heyu is ready!"))
	fmt.Fprintln(out)
	fmt.Fprintln(out, DimStyle.Render("  Next steps:"))
	fmt.Fprintln(out, DimStyle.Render("  1. Set TG_API_ID and TG_API_HASH, or edit "+cfgPath))
	fmt.Fprintln(out, DimStyle.Render("  2. Log in once: heyu login"))
	fmt.Fprintln(out, DimStyle.Render("  3. Start listening: heyu run"))
	fmt.Fprintln(out)
	return nil
}

func ensureConfig(path string, in io.Reader, out io.Writer) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		cfg := config.DefaultConfig()
		if err := config.SaveTo(cfg, path); err != nil {
			return nil, err
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  "+OkStyle.Render("✓")+" Created config at "+DimStyle.Render(path))
		return cfg, nil
	}

	p := tea.NewProgram(newOnboardModel(path), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(out)
	switch final.(onboardModel).choice {
	case choiceOverwrite:
		cfg := config.DefaultConfig()
		if err := config.SaveTo(cfg, path); err != nil {
			return nil, err
		}
		fmt.Fprintln(out, "  "+OkStyle.Render("✓")+" Overwritten config")
		return cfg, nil
	case choiceKeep:
		fmt.Fprintln(out, "  "+DimStyle.Render("Config unchanged"))
		return config.LoadFrom(path)
	default:
		return nil, errCancelled
	}
}

// ensureRules writes the built-in table to path unless a file is already there.
func ensureRules(path string) (bool, error) {
	if fileExists(path) {
		return false, nil
	}
	if err := rule.DefaultTable().Save(path); err != nil {
		return false, err
	}
	return true, nil
}
