package display

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the dashboard.
type KeyMap struct {
	Quit    key.Binding
	Connect key.Binding
	Locate  key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "Q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Connect: key.NewBinding(
			key.WithKeys("c", "C"),
			key.WithHelp("c", "connect"),
		),
		Locate: key.NewBinding(
			key.WithKeys("l", "L"),
			key.WithHelp("l", "locate"),
		),
	}
}
