package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/joebot/heyu/internal/prompt"
)

// NewResolver returns an interactive resolver when in is a terminal and a
// line reader otherwise.
func NewResolver(in *os.File, out io.Writer) prompt.Resolver {
	if isatty.IsTerminal(in.Fd()) || isatty.IsCygwinTerminal(in.Fd()) {
		return &Terminal{in: in, out: out}
	}
	return prompt.NewLines(in, out)
}

// Terminal asks each prompt with a single-line text input. Secret prompts
// are masked.
type Terminal struct {
	in  io.Reader
	out io.Writer
}

func (t *Terminal) Resolve(ctx context.Context, name prompt.Name) (string, error) {
	p := tea.NewProgram(newPromptModel(name),
		tea.WithContext(ctx),
		tea.WithInput(t.in),
		tea.WithOutput(t.out),
	)
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("prompt %s: %w", name, err)
	}

	m := final.(promptModel)
	if m.cancelled {
		return "", fmt.Errorf("%w: %s cancelled", prompt.ErrNoAnswer, name)
	}
	fmt.Fprintln(t.out, m.summary())
	return m.input.Value(), nil
}

// --- single question model ---

type promptModel struct {
	name      prompt.Name
	input     textinput.Model
	done      bool
	cancelled bool
}

func newPromptModel(name prompt.Name) promptModel {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 256
	ti.Prompt = "❯ "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(Accent)
	if name.Secret() {
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '•'
	}
	return promptModel{name: name, input: ti}
}

func (m promptModel) Init() tea.Cmd { return textinput.Blink }

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	if m.done || m.cancelled {
		return ""
	}
	return "\n  " + PromptLabel.Render(m.name.Label()) + "\n  " + m.input.View() + "\n" +
		DimStyle.Render("  enter submit · esc cancel") + "\n"
}

// summary is what stays on screen once the question is answered.
func (m promptModel) summary() string {
	answer := m.input.Value()
	if m.name.Secret() {
		answer = DimStyle.Render("(hidden)")
	}
	return "  " + PromptLabel.Render(m.name.Label()) + " " + answer
}

// errCancelled is reported when the operator aborts an onboarding choice.
var errCancelled = errors.New("cancelled")
