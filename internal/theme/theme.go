// Package theme holds the light/dark preference and the terminal palette
// derived from it.
package theme

import (
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// KeyTheme is the local store key holding "dark" or "light".
const KeyTheme = "theme"

const (
	valueDark  = "dark"
	valueLight = "light"
)

// Store is the subset of the local store the theme needs.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// SystemPreference reports whether the environment prefers a dark theme.
type SystemPreference func() bool

// TerminalPreference asks the terminal for its background color.
func TerminalPreference() bool {
	return lipgloss.HasDarkBackground()
}

// State is the current theme. Toggles persist before they return.
type State struct {
	mu    sync.RWMutex
	dark  bool
	store Store
}

// New resolves the initial theme: a stored preference wins, then the system
// preference, then light.
func New(store Store, system SystemPreference) *State {
	dark := false
	stored, ok := store.Get(KeyTheme)
	switch {
	case ok && stored == valueDark:
		dark = true
	case ok && stored == valueLight:
		dark = false
	case system != nil:
		dark = system()
	}
	return &State{dark: dark, store: store}
}

// Dark reports whether the dark theme is active.
func (s *State) Dark() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dark
}

// Name returns "dark" or "light".
func (s *State) Name() string {
	if s.Dark() {
		return valueDark
	}
	return valueLight
}

// Toggle flips the theme and writes it to the store. On a write failure the
// in-memory value is kept and the error returned.
func (s *State) Toggle() (bool, error) {
	s.mu.Lock()
	s.dark = !s.dark
	dark := s.dark
	s.mu.Unlock()

	value := valueLight
	if dark {
		value = valueDark
	}
	return dark, s.store.Set(KeyTheme, value)
}

// Palette returns the styles for the active theme.
func (s *State) Palette() Palette {
	return NewPalette(s.Dark())
}

// Palette is the set of styles the renderers use.
type Palette struct {
	Dark      bool
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Link      lipgloss.Style
	Active    lipgloss.Style
	Muted     lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Border    lipgloss.Style
	Sidebar   lipgloss.Style
	Collapsed lipgloss.Style
}

// NewPalette builds the styles for a light or dark background.
func NewPalette(dark bool) Palette {
	fg, muted, accent, border := lipgloss.Color("235"), lipgloss.Color("244"), lipgloss.Color("62"), lipgloss.Color("250")
	if dark {
		fg, muted, accent, border = lipgloss.Color("252"), lipgloss.Color("241"), lipgloss.Color("141"), lipgloss.Color("238")
	}

	return Palette{
		Dark:     dark,
		Title:    lipgloss.NewStyle().Bold(true).Foreground(accent),
		Subtitle: lipgloss.NewStyle().Foreground(muted).Italic(true),
		Link:     lipgloss.NewStyle().Foreground(fg),
		Active:   lipgloss.NewStyle().Bold(true).Foreground(accent),
		Muted:    lipgloss.NewStyle().Foreground(muted),
		Error:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		Success:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		Border: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1),
		Sidebar: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(border).
			PaddingRight(1).
			Width(22),
		Collapsed: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(border).
			Width(3),
	}
}
