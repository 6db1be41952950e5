package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"
)

var (
	primaryColor   = lipgloss.Color("#7D56F4")
	secondaryColor = lipgloss.Color("#FF79C6")
	dimColor       = lipgloss.Color("#6272A4")
	textColor      = lipgloss.Color("#F8F8F2")
	successColor   = lipgloss.Color("#50FA7B")
	errorColor     = lipgloss.Color("#FF5555")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	versionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(successColor)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	textStyle = lipgloss.NewStyle().
			Foreground(textColor)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	changelogStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor).
			Padding(0, 1)

	containerStyle = lipgloss.NewStyle().
			Padding(1, 2)
)

// hasDarkBackground is swapped in tests so "auto" resolves deterministically.
var hasDarkBackground = termenv.HasDarkBackground

// ResolveChangelogStyle maps a configured changelog style to a glamour
// standard style name. "auto" follows the terminal background.
func ResolveChangelogStyle(style string) string {
	s := strings.ToLower(strings.TrimSpace(style))
	switch s {
	case "", "auto":
		if hasDarkBackground() {
			return "dark"
		}
		return "light"
	case "rich":
		return "dark"
	default:
		return s
	}
}

// ChangelogRenderer returns a function rendering markdown release notes at
// the given width. Unknown styles and render failures fall back to plain
// word wrapping.
func ChangelogRenderer(style string, width int) func(string) string {
	if width <= 0 {
		width = 80
	}
	fallback := func(input string) string {
		return strings.TrimSpace(wordwrap.String(input, width))
	}

	resolved := ResolveChangelogStyle(style)
	if resolved == "plain" || resolved == "notty" {
		return fallback
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(resolved),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fallback
	}
	return func(input string) string {
		out, err := renderer.Render(input)
		if err != nil {
			return fallback(input)
		}
		return strings.TrimSpace(out)
	}
}

// RenderChangelog renders notes once. Empty notes render as an empty string.
func RenderChangelog(notes, style string, width int) string {
	if strings.TrimSpace(notes) == "" {
		return ""
	}
	return ChangelogRenderer(style, width)(notes)
}
