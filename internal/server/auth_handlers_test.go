package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulnet-app/soulnet/internal/config"
	"github.com/soulnet-app/soulnet/internal/tasks"
)

func TestPasswordReset(t *testing.T) {
	env := newTestEnv(t)
	resp := env.register(t, "ann@example.com", "secret1", "Ann")

	rec := env.do(t, http.MethodPost, "/api/auth/password-reset", "", PasswordResetRequest{Email: "nobody@example.com"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, env.tasks.Tasks())

	rec = env.do(t, http.MethodPost, "/api/auth/password-reset", "", PasswordResetRequest{Email: "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidEmail, errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/api/auth/password-reset", "", PasswordResetRequest{Email: "Ann@example.com"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	queued := env.tasks.Tasks()
	require.Len(t, queued, 1)
	assert.Equal(t, tasks.TypePasswordResetEmail, queued[0].Type())

	payload, err := tasks.ParsePasswordResetPayload(queued[0])
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", payload.Email)
	assert.Equal(t, resp.User.ID, payload.UserID)

	link, err := url.Parse(payload.ResetURL)
	require.NoError(t, err)
	assert.Equal(t, "/app/reset-password", link.Path)
	token := link.Query().Get("token")
	require.NotEmpty(t, token)

	rec = env.do(t, http.MethodPost, "/api/auth/password-reset/confirm", "", ConfirmPasswordResetRequest{Token: "bogus", NewPassword: "secret2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidActionCode, errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/api/auth/password-reset/confirm", "", ConfirmPasswordResetRequest{Token: token, NewPassword: "secret2"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Single use, and every existing session is revoked.
	rec = env.do(t, http.MethodPost, "/api/auth/password-reset/confirm", "", ConfirmPasswordResetRequest{Token: token, NewPassword: "secret3"})
	assert.Equal(t, codeInvalidActionCode, errorCode(t, rec))
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/auth/me", resp.Token, nil).Code)

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "ann@example.com", Password: "secret2"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPasswordReset_WithoutQueue(t *testing.T) {
	env := newTestEnv(t, func(_ *config.Config, d *Deps) { d.Tasks = nil })
	env.register(t, "ann@example.com", "secret1", "Ann")

	rec := env.do(t, http.MethodPost, "/api/auth/password-reset", "", PasswordResetRequest{Email: "ann@example.com"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestPasswordReset_ConcurrentConfirmRedeemsOnce(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "ann@example.com", "secret1", "Ann")

	rec := env.do(t, http.MethodPost, "/api/auth/password-reset", "", PasswordResetRequest{Email: "ann@example.com"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	queued := env.tasks.Tasks()
	require.Len(t, queued, 1)
	payload, err := tasks.ParsePasswordResetPayload(queued[0])
	require.NoError(t, err)
	link, err := url.Parse(payload.ResetURL)
	require.NoError(t, err)
	token := link.Query().Get("token")

	body, err := json.Marshal(ConfirmPasswordResetRequest{Token: token, NewPassword: "secret2"})
	require.NoError(t, err)

	const workers = 8
	codes := make([]int, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/password-reset/confirm", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			env.server.Handler().ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	redeemed := 0
	for _, code := range codes {
		if code == http.StatusNoContent {
			redeemed++
		}
	}
	assert.Equal(t, 1, redeemed, "status codes: %v", codes)
}
