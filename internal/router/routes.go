// Package router maps paths onto pages and runs every navigation through the
// route guard.
package router

import (
	"strings"

	"github.com/soulnet-app/soulnet/internal/guard"
)

// Route paths.
const (
	Home          = "/"
	Sign          = guard.SignInPath
	Register      = "/register"
	NewPost       = "/new-post"
	Post          = "/post/:id"
	EditPost      = "/edit-post/:id"
	Profile       = "/profile"
	Admin         = "/admin"
	AdminImages   = "/admin/images"
	ResetPassword = "/reset-password"
	NotFound      = "*"
)

// Spec is the static description of a route. Title is a message id.
type Spec struct {
	Pattern     string
	Title       string
	Requirement guard.Requirement
}

var (
	authOnly  = guard.Requirement{RequireAuth: true}
	adminOnly = guard.Requirement{RequireAuth: true, RequireAdmin: true}
)

var table = []Spec{
	{Pattern: Home, Title: "page.home"},
	{Pattern: Sign, Title: "page.sign"},
	{Pattern: Register, Title: "page.register"},
	{Pattern: NewPost, Title: "page.new_post", Requirement: authOnly},
	{Pattern: Post, Title: "page.post"},
	{Pattern: EditPost, Title: "page.edit_post", Requirement: authOnly},
	{Pattern: Profile, Title: "page.profile", Requirement: authOnly},
	{Pattern: Admin, Title: "page.admin", Requirement: adminOnly},
	{Pattern: AdminImages, Title: "page.admin_images", Requirement: adminOnly},
	{Pattern: ResetPassword, Title: "page.reset_password"},
	{Pattern: NotFound, Title: "page.not_found"},
}

// Table returns the route table in match order. The catch-all is last.
func Table() []Spec {
	out := make([]Spec, len(table))
	copy(out, table)
	return out
}

// Params holds the values of ":name" segments.
type Params map[string]string

// Match finds the route for path, ignoring any query string. It always
// succeeds because the catch-all matches everything.
func Match(path string) (Spec, Params) {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	for _, spec := range table {
		if spec.Pattern == NotFound {
			continue
		}
		if params, ok := matchPattern(spec.Pattern, path); ok {
			return spec, params
		}
	}
	return table[len(table)-1], Params{}
}

func matchPattern(pattern, path string) (Params, bool) {
	if pattern == path {
		return Params{}, true
	}
	pp := splitPath(pattern)
	sp := splitPath(path)
	if len(pp) != len(sp) {
		return nil, false
	}

	params := Params{}
	for i, seg := range pp {
		if name, ok := strings.CutPrefix(seg, ":"); ok {
			if sp[i] == "" {
				return nil, false
			}
			params[name] = sp[i]
			continue
		}
		if seg != sp[i] {
			return nil, false
		}
	}
	return params, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Build substitutes params into a pattern, e.g. Build(Post, "42") == "/post/42".
func Build(pattern string, values ...string) string {
	segs := splitPath(pattern)
	for i, seg := range segs {
		if strings.HasPrefix(seg, ":") && len(values) > 0 {
			segs[i] = values[0]
			values = values[1:]
		}
	}
	return "/" + strings.Join(segs, "/")
}
