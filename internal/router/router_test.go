package router

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulnet-app/soulnet/internal/guard"
	"github.com/soulnet-app/soulnet/internal/session"
)

type mapStore map[string]string

func (m mapStore) Set(key, value string) error {
	m[key] = value
	return nil
}

func named(name string) Factory {
	return func() Page {
		return PageFunc(func(ctx context.Context, w io.Writer, req Request) error {
			_, err := io.WriteString(w, name+":"+req.Params["id"]+"\n")
			return err
		})
	}
}

func anonymous() session.State { return session.State{Role: session.RoleUnauthenticated} }
func loading() session.State   { return session.State{Loading: true, Role: session.RoleUnauthenticated} }
func signedIn(r session.Role) func() session.State {
	return func() session.State {
		return session.State{Identity: &session.Identity{ID: "u1"}, Role: r}
	}
}

func allPages() map[string]Factory {
	pages := map[string]Factory{}
	for _, spec := range Table() {
		pages[spec.Pattern] = named(spec.Pattern)
	}
	return pages
}

func TestMatch(t *testing.T) {
	tests := []struct {
		path    string
		pattern string
		id      string
	}{
		{"/", Home, ""},
		{"/sign", Sign, ""},
		{"/post/42", Post, "42"},
		{"/edit-post/7?draft=1", EditPost, "7"},
		{"/admin/images", AdminImages, ""},
		{"/post", NotFound, ""},
		{"/nope/at/all", NotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			spec, params := Match(tt.path)
			assert.Equal(t, tt.pattern, spec.Pattern)
			assert.Equal(t, tt.id, params["id"])
		})
	}
}

func TestBuild(t *testing.T) {
	assert.Equal(t, "/post/42", Build(Post, "42"))
	assert.Equal(t, "/profile", Build(Profile))
}

func TestTableRequirements(t *testing.T) {
	for _, spec := range Table() {
		if spec.Requirement.RequireAdmin {
			assert.True(t, spec.Requirement.RequireAuth, spec.Pattern)
		}
	}
	assert.Equal(t, NotFound, Table()[len(Table())-1].Pattern)
}

func TestNavigate_AnonymousToProtectedRedirectsToSign(t *testing.T) {
	store := mapStore{}
	r := New(Options{State: anonymous, Pages: allPages(), Redirects: store})

	var buf bytes.Buffer
	res, err := r.Navigate(context.Background(), &buf, "/profile")
	require.NoError(t, err)

	assert.Equal(t, Sign, res.Path)
	assert.Equal(t, []string{Sign}, res.Redirects)
	assert.Equal(t, "/profile", store[KeyRedirectFrom])
	assert.Equal(t, "/sign:\n", buf.String())
}

func TestNavigate_UserOnAdminGoesHomeWithoutRedirectBack(t *testing.T) {
	store := mapStore{}
	r := New(Options{State: signedIn(session.RoleUser), Pages: allPages(), Redirects: store})

	var buf bytes.Buffer
	res, err := r.Navigate(context.Background(), &buf, "/admin")
	require.NoError(t, err)

	assert.Equal(t, Home, res.Path)
	assert.Empty(t, store)
	assert.Equal(t, "/:\n", buf.String())
}

func TestNavigate_AdminAllowed(t *testing.T) {
	r := New(Options{State: signedIn(session.RoleAdmin), Pages: allPages()})

	var buf bytes.Buffer
	res, err := r.Navigate(context.Background(), &buf, "/admin/images")
	require.NoError(t, err)
	assert.Equal(t, guard.Allowed, res.Decision.Outcome)
	assert.Empty(t, res.Redirects)
}

func TestNavigate_PendingRendersLoadingWithoutRedirect(t *testing.T) {
	store := mapStore{}
	r := New(Options{State: loading, Pages: allPages(), Redirects: store})

	var buf bytes.Buffer
	res, err := r.Navigate(context.Background(), &buf, "/profile")
	require.NoError(t, err)

	assert.Equal(t, guard.Pending, res.Decision.Outcome)
	assert.Equal(t, "/profile", res.Path)
	assert.Empty(t, res.Redirects)
	assert.Empty(t, store)
	assert.Contains(t, buf.String(), "Loading Profile")
	assert.False(t, r.Built(Profile))
}

func TestNavigate_LazyPagesBuiltOnce(t *testing.T) {
	builds := 0
	pages := map[string]Factory{
		Home: func() Page {
			builds++
			return named("home")()
		},
	}
	r := New(Options{State: anonymous, Pages: pages})
	assert.False(t, r.Built(Home))

	for range 3 {
		_, err := r.Navigate(context.Background(), io.Discard, "/")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, builds)
	assert.True(t, r.Built(Home))
}

func TestNavigate_ErrorBoundary(t *testing.T) {
	pages := map[string]Factory{
		Home: func() Page {
			return PageFunc(func(context.Context, io.Writer, Request) error {
				return errors.New("boom")
			})
		},
		Register: func() Page {
			return PageFunc(func(context.Context, io.Writer, Request) error {
				panic("kaboom")
			})
		},
	}
	r := New(Options{State: anonymous, Pages: pages})

	var buf bytes.Buffer
	res, err := r.Navigate(context.Background(), &buf, "/")
	require.NoError(t, err)
	assert.EqualError(t, res.Err, "boom")
	assert.Contains(t, buf.String(), "Something went wrong")

	buf.Reset()
	res, err = r.Navigate(context.Background(), &buf, "/register")
	require.NoError(t, err)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "kaboom")
}

func TestNavigate_UnknownPathUsesNotFoundPage(t *testing.T) {
	r := New(Options{State: anonymous, Pages: allPages()})

	var buf bytes.Buffer
	res, err := r.Navigate(context.Background(), &buf, "/missing")
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Spec.Pattern)
	assert.Equal(t, "*:\n", buf.String())
}
