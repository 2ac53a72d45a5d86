// Package nav holds the navigation link table shared by the sidebar and the
// mobile menu.
package nav

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/soulnet-app/soulnet/internal/guard"
)

//go:embed links.yaml
var builtinLinks []byte

// Visibility classes.
const (
	Public        Visibility = "public"
	RequiresAuth  Visibility = "requires-auth"
	RequiresAdmin Visibility = "requires-admin"
)

// Visibility says who may see a link.
type Visibility string

// Link describes one navigation entry. Label is a message id.
type Link struct {
	Path       string     `yaml:"path"`
	Label      string     `yaml:"label"`
	Visibility Visibility `yaml:"visibility"`
	Icon       string     `yaml:"icon"`
}

// Requirement maps the visibility class onto a route requirement.
func (l Link) Requirement() guard.Requirement {
	switch l.Visibility {
	case RequiresAdmin:
		return guard.Requirement{RequireAuth: true, RequireAdmin: true}
	case RequiresAuth:
		return guard.Requirement{RequireAuth: true}
	default:
		return guard.Requirement{}
	}
}

// Parse decodes a link table and checks every entry.
func Parse(data []byte) ([]Link, error) {
	var links []Link
	if err := yaml.Unmarshal(data, &links); err != nil {
		return nil, fmt.Errorf("failed to parse navigation links: %w", err)
	}

	seen := make(map[string]bool, len(links))
	for i, l := range links {
		if l.Path == "" || l.Label == "" {
			return nil, fmt.Errorf("navigation link %d: path and label are required", i)
		}
		switch l.Visibility {
		case Public, RequiresAuth, RequiresAdmin:
		default:
			return nil, fmt.Errorf("navigation link %s: unknown visibility %q", l.Path, l.Visibility)
		}
		if seen[l.Path] {
			return nil, fmt.Errorf("navigation link %s: duplicate path", l.Path)
		}
		seen[l.Path] = true
	}
	return links, nil
}

// Links returns the built-in link table.
func Links() []Link {
	links, err := Parse(builtinLinks)
	if err != nil {
		panic(err)
	}
	return links
}

// Visible filters links for viewer, keeping table order. It is the only
// visibility filter; every menu renders its result.
func Visible(links []Link, viewer guard.Viewer) []Link {
	out := make([]Link, 0, len(links))
	for _, l := range links {
		switch l.Visibility {
		case RequiresAdmin:
			if !viewer.Admin {
				continue
			}
		case RequiresAuth:
			if !viewer.Authenticated {
				continue
			}
		}
		out = append(out, l)
	}
	return out
}
