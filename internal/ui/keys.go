package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the keyboard shortcuts of the update prompt.
type KeyMap struct {
	Confirm key.Binding
	Cancel  key.Binding
	Copy    key.Binding
	Up      key.Binding
	Down    key.Binding
	Quit    key.Binding
}

// DefaultKeyMap returns the default prompt bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Confirm: key.NewBinding(
			key.WithKeys("y", "enter"),
			key.WithHelp("y/enter", "Update now"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("n", "esc", "q"),
			key.WithHelp("n/esc", "Not now"),
		),
		Copy: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "Copy download URL"),
		),
		// Up/Down share help text (displayed as single entry)
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/↓", "Scroll notes"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↑/↓", "Scroll notes"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "Quit"),
		),
	}
}

// helpLine renders the bindings shown while the prompt waits for input.
func (k KeyMap) helpLine() string {
	bindings := []key.Binding{k.Confirm, k.Cancel, k.Copy, k.Up}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ")
}
