package nav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulnet-app/soulnet/internal/guard"
)

func paths(links []Link) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		out = append(out, l.Path)
	}
	return out
}

func TestLinks_Builtin(t *testing.T) {
	links := Links()
	require.Len(t, links, 8)
	assert.Equal(t, "/", links[0].Path)
	assert.Equal(t, RequiresAdmin, links[len(links)-1].Visibility)
}

func TestVisible(t *testing.T) {
	links := Links()

	anonymous := Visible(links, guard.Viewer{})
	assert.Equal(t, []string{"/", "/explore", "/articles"}, paths(anonymous))

	user := Visible(links, guard.Viewer{Authenticated: true})
	assert.Equal(t, []string{"/", "/explore", "/articles", "/new-post", "/messages", "/notifications", "/bookmarks"}, paths(user))

	admin := Visible(links, guard.Viewer{Authenticated: true, Admin: true})
	assert.Len(t, admin, 8)
	assert.Equal(t, "/admin", admin[7].Path)
}

// Every visible link must also be allowed by the guard, so no menu offers a
// destination that would redirect.
func TestVisible_AgreesWithGuard(t *testing.T) {
	viewers := []guard.Viewer{{}, {Authenticated: true}, {Authenticated: true, Admin: true}}
	for _, v := range viewers {
		for _, l := range Visible(Links(), v) {
			d := guard.Decide(v, l.Requirement(), l.Path)
			assert.Equal(t, guard.Allowed, d.Outcome, "link %s for viewer %+v", l.Path, v)
		}
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := map[string]string{
		"missing label":      "- path: /x\n  visibility: public\n",
		"unknown visibility": "- path: /x\n  label: x\n  visibility: secret\n",
		"duplicate":          "- {path: /x, label: a, visibility: public}\n- {path: /x, label: b, visibility: public}\n",
		"not a list":         "path: /x\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}
