package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func (e *testEnv) page(t *testing.T, path, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: cookie})
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestPageShell_Guard(t *testing.T) {
	env := newTestEnv(t)
	ann := env.register(t, "ann@example.com", "secret1", "Ann")
	root := env.register(t, "root@example.com", "secret1", "Root")
	env.makeAdmin(t, root.User.ID)

	tests := []struct {
		name     string
		path     string
		token    string
		status   int
		location string
		contains string
	}{
		{"public home", "/app/", "", http.StatusOK, "", "<h1>Home</h1>"},
		{"bare prefix", "/app", "", http.StatusOK, "", "<h1>Home</h1>"},
		{"post detail", "/app/post/42", "", http.StatusOK, "", `data-route="/post/:id"`},
		{"anonymous on profile", "/app/profile?tab=posts", "", http.StatusFound, "/app/sign?from=%2Fprofile%3Ftab%3Dposts", ""},
		{"anonymous on admin", "/app/admin", "", http.StatusFound, "/app/sign?from=%2Fadmin", ""},
		{"user on profile", "/app/profile", ann.Token, http.StatusOK, "", `data-authenticated="true"`},
		{"user on admin", "/app/admin/images", ann.Token, http.StatusFound, "/app/", ""},
		{"admin on admin", "/app/admin/images", root.Token, http.StatusOK, "", `data-admin="true"`},
		{"stale token is anonymous", "/app/new-post", "garbage", http.StatusFound, "/app/sign?from=%2Fnew-post", ""},
		{"unknown page", "/app/nowhere", "", http.StatusNotFound, "", "<h1>Page not found</h1>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.page(t, tt.path, tt.token)
			assert.Equal(t, tt.status, rec.Code)
			if tt.location != "" {
				assert.Equal(t, tt.location, rec.Header().Get("Location"))
			}
			if tt.contains != "" {
				assert.Contains(t, rec.Body.String(), tt.contains)
			}
		})
	}
}

func TestPageShell_BearerHeaderAndLanguage(t *testing.T) {
	env := newTestEnv(t)
	ann := env.register(t, "ann@example.com", "secret1", "Ann")

	req := httptest.NewRequest(http.MethodGet, "/app/profile", nil)
	req.Header.Set("Authorization", "Bearer "+ann.Token)
	req.Header.Set("Accept-Language", "zh-TW")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `lang="zh-TW"`)
}

func TestUnknownAPIRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNotFound, errorCode(t, rec))
}
