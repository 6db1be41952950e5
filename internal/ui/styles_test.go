package ui

import (
	"slices"
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
)

func TestResolveChangelogStyle(t *testing.T) {
	orig := hasDarkBackground
	t.Cleanup(func() { hasDarkBackground = orig })

	tests := []struct {
		style string
		dark  bool
		want  string
	}{
		{"auto", true, "dark"},
		{"auto", false, "light"},
		{"", false, "light"},
		{"rich", false, "dark"},
		{" Plain ", true, "plain"},
		{"dracula", true, "dracula"},
	}
	for _, tt := range tests {
		hasDarkBackground = func() bool { return tt.dark }
		if got := ResolveChangelogStyle(tt.style); got != tt.want {
			t.Errorf("ResolveChangelogStyle(%q) dark=%v = %q, want %q", tt.style, tt.dark, got, tt.want)
		}
	}
}

func TestChangelogRendererPlainWraps(t *testing.T) {
	const input = "the quick brown fox jumps over the lazy dog"
	out := ChangelogRenderer("plain", 20)(input)
	lines := strings.Split(out, "\n")
	if len(lines) < 2 {
		t.Errorf("output = %q, want wrapped lines", out)
	}
	for _, line := range lines {
		if len(line) > 20 {
			t.Errorf("line %q exceeds width 20", line)
		}
	}
	if got, want := strings.Fields(out), strings.Fields(input); !slices.Equal(got, want) {
		t.Errorf("words = %q, want %q", got, want)
	}
}

func TestChangelogRendererMarkdown(t *testing.T) {
	out := ansi.Strip(ChangelogRenderer("dark", 60)("## Fixes\n\n- crash on start"))
	if !strings.Contains(out, "Fixes") || !strings.Contains(out, "crash") {
		t.Errorf("rendered changelog = %q", out)
	}
	if strings.Contains(out, "- crash") {
		t.Errorf("list markers should be rendered as bullets: %q", out)
	}
}

func TestChangelogRendererUnknownStyleFallsBack(t *testing.T) {
	out := ChangelogRenderer("no-such-style", 40)("## Heading")
	if out != "## Heading" {
		t.Errorf("fallback output = %q", out)
	}
}

func TestRenderChangelogEmpty(t *testing.T) {
	if got := RenderChangelog(" \n ", "dark", 40); got != "" {
		t.Errorf("RenderChangelog(blank) = %q", got)
	}
}

func TestHelpLine(t *testing.T) {
	line := DefaultKeyMap().helpLine()
	for _, want := range []string{"y/enter Update now", "n/esc Not now", "c Copy download URL", "Scroll notes"} {
		if !strings.Contains(line, want) {
			t.Errorf("help line %q missing %q", line, want)
		}
	}
}
