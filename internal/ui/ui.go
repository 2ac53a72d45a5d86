// Package ui renders the chrome around pages: the header, the sidebar and the
// mobile menu. All menus are built from nav.Visible so they never disagree
// about which links a viewer may see.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/soulnet-app/soulnet/internal/guard"
	"github.com/soulnet-app/soulnet/internal/i18n"
	"github.com/soulnet-app/soulnet/internal/nav"
	"github.com/soulnet-app/soulnet/internal/session"
	"github.com/soulnet-app/soulnet/internal/theme"
)

// Chrome renders the shared layout for one session snapshot.
type Chrome struct {
	Links   []nav.Link
	Palette theme.Palette
	Tr      *i18n.Translator
}

// New returns a Chrome over the built-in link table.
func New(p theme.Palette, tr *i18n.Translator) *Chrome {
	return &Chrome{Links: nav.Links(), Palette: p, Tr: tr}
}

// Item is one rendered menu entry.
type Item struct {
	Path   string
	Label  string
	Icon   string
	Active bool
}

// Items returns the entries visible to the session, in table order.
func (c *Chrome) Items(s session.State, activePath string) []Item {
	visible := nav.Visible(c.Links, guard.ViewerFromState(s))
	items := make([]Item, 0, len(visible))
	for _, l := range visible {
		items = append(items, Item{
			Path:   l.Path,
			Label:  c.Tr.T(l.Label),
			Icon:   l.Icon,
			Active: l.Path == activePath,
		})
	}
	return items
}

// Header shows the brand, who is signed in and the active theme.
func (c *Chrome) Header(s session.State, dark bool) string {
	brand := c.Palette.Title.Render(c.Tr.T("header.brand"))

	var who string
	switch {
	case s.Loading:
		who = c.Palette.Muted.Render(c.Tr.T("status.loading", map[string]any{"Page": c.Tr.T("header.brand")}))
	case s.Identity != nil:
		name := s.Identity.DisplayName
		if name == "" {
			name = s.Identity.Email
		}
		who = c.Tr.T("status.signed_in_as", map[string]any{"Name": name})
		if s.IsAdmin() {
			who += " " + c.Palette.Active.Render("["+string(session.RoleAdmin)+"]")
		}
	default:
		who = c.Palette.Muted.Render(c.Tr.T("status.signed_out"))
	}

	themeLabel := c.Tr.T("header.theme_light")
	if dark {
		themeLabel = c.Tr.T("header.theme_dark")
	}

	return c.Palette.Border.Render(lipgloss.JoinHorizontal(lipgloss.Center,
		brand, "  ", who, "  ", c.Palette.Subtitle.Render(themeLabel),
	))
}

// Sidebar lists the visible links. A collapsed sidebar shows icons only.
func (c *Chrome) Sidebar(s session.State, activePath string) string {
	items := c.Items(s, activePath)
	lines := make([]string, 0, len(items))
	for _, it := range items {
		text := it.Icon + " " + it.Label
		if s.SidebarCollapsed {
			text = it.Icon
		}
		lines = append(lines, c.itemStyle(it).Render(text))
	}

	style := c.Palette.Sidebar
	if s.SidebarCollapsed {
		style = c.Palette.Collapsed
	}
	return style.Render(strings.Join(lines, "\n"))
}

// MobileMenu is the narrow-terminal menu: a titled list with paths.
func (c *Chrome) MobileMenu(s session.State, activePath string) string {
	lines := []string{c.Palette.Title.Render(c.Tr.T("menu.title"))}
	for _, it := range c.Items(s, activePath) {
		marker := "  "
		if it.Active {
			marker = "> "
		}
		lines = append(lines, marker+c.itemStyle(it).Render(it.Label)+" "+c.Palette.Muted.Render(it.Path))
	}
	return strings.Join(lines, "\n")
}

func (c *Chrome) itemStyle(it Item) lipgloss.Style {
	if it.Active {
		return c.Palette.Active
	}
	return c.Palette.Link
}

// Layout puts the sidebar next to body under the header. Narrow terminals
// get the mobile menu above the body instead.
func (c *Chrome) Layout(s session.State, dark bool, activePath, body string, width int) string {
	header := c.Header(s, dark)
	if width > 0 && width < NarrowWidth {
		return lipgloss.JoinVertical(lipgloss.Left, header, c.MobileMenu(s, activePath), "", body)
	}
	main := lipgloss.JoinHorizontal(lipgloss.Top, c.Sidebar(s, activePath), " ", body)
	return lipgloss.JoinVertical(lipgloss.Left, header, main)
}

// NarrowWidth is the terminal width below which the mobile menu is used.
const NarrowWidth = 60
