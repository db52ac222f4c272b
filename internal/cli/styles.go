package cli

import "github.com/charmbracelet/lipgloss"

const Logo = "📣"

// Version is overridden at build time with -ldflags "-X".
var Version = "0.1.0"

var (
	Accent = lipgloss.Color("#00D4FF")
	Subtle = lipgloss.Color("#555555")
	Green  = lipgloss.Color("#04B575")
	Red    = lipgloss.Color("#FF4444")

	TitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	BoldStyle   = lipgloss.NewStyle().Bold(true)
	CursorStyle = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	PromptLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#AAAAAA"))
	ErrStyle    = lipgloss.NewStyle().Foreground(Red)
	OkStyle     = lipgloss.NewStyle().Foreground(Green).Bold(true)
	DimStyle    = lipgloss.NewStyle().Foreground(Subtle)
)

func StatusBadge(ok bool) string {
	if ok {
		return OkStyle.Render("✓")
	}
	return DimStyle.Render("✗")
}
