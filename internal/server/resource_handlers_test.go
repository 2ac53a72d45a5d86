package server

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulnet-app/soulnet/internal/config"
	"github.com/soulnet-app/soulnet/internal/models"
	"github.com/soulnet-app/soulnet/internal/tasks"
)

func strPtr(s string) *string { return &s }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (e *testEnv) put(t *testing.T, key, token, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, objectsPath+"/"+key, bytes.NewReader(data))
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestUserDocument(t *testing.T) {
	env := newTestEnv(t)
	ann := env.register(t, "ann@example.com", "secret1", "Ann")
	bob := env.register(t, "bob@example.com", "secret1", "Bob")

	rec := env.do(t, http.MethodGet, "/api/users/"+ann.User.ID+"/document", ann.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/profile", ann.Token, UpdateProfileRequest{
		DisplayName: strPtr("Ann Lee"),
		Bio:         strPtr("hello"),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc := decode[models.UserDocument](t, rec)
	assert.Equal(t, models.RoleUser, doc.Role)
	assert.Equal(t, "Ann Lee", doc.DisplayName)
	assert.Equal(t, "hello", doc.Bio)

	// Merge keeps fields not named in the update.
	rec = env.do(t, http.MethodPatch, "/api/profile", ann.Token, UpdateProfileRequest{Location: strPtr("Taipei")})
	require.Equal(t, http.StatusOK, rec.Code)
	doc = decode[models.UserDocument](t, rec)
	assert.Equal(t, "hello", doc.Bio)
	assert.Equal(t, "Taipei", doc.Location)

	me := decode[IdentityResponse](t, env.do(t, http.MethodGet, "/api/auth/me", ann.Token, nil))
	assert.Equal(t, "Ann Lee", me.DisplayName)

	rec = env.do(t, http.MethodGet, "/api/users/"+ann.User.ID+"/document", ann.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/users/"+ann.User.ID+"/document", bob.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	env.makeAdmin(t, bob.User.ID)
	rec = env.do(t, http.MethodGet, "/api/users/"+ann.User.ID+"/document", bob.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/profile", ann.Token, UpdateProfileRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/profile", ann.Token, UpdateProfileRequest{Website: strPtr("not a url")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/profile", "", UpdateProfileRequest{Bio: strPtr("x")})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileUpdateKeepsAdminRole(t *testing.T) {
	env := newTestEnv(t)
	ann := env.register(t, "ann@example.com", "secret1", "Ann")
	env.makeAdmin(t, ann.User.ID)

	rec := env.do(t, http.MethodPatch, "/api/profile", ann.Token, UpdateProfileRequest{Bio: strPtr("boss")})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RoleAdmin, decode[models.UserDocument](t, rec).Role)
}

func TestStorageObjects(t *testing.T) {
	env := newTestEnv(t)
	ann := env.register(t, "ann@example.com", "secret1", "Ann")
	data := pngBytes(t)

	rec := env.put(t, "avatars/1700000000000_abc.png", ann.Token, "image/png", data)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	obj := decode[ObjectResponse](t, rec)
	assert.Equal(t, testPublicURL+"/api/storage/objects/avatars/1700000000000_abc.png", obj.URL)

	stored, err := env.store.GetObject(context.Background(), "avatars/1700000000000_abc.png")
	require.NoError(t, err)
	assert.Equal(t, "public, max-age=31536000", stored.CacheControl)
	assert.Equal(t, "image/png", stored.ContentType)

	var record models.Upload
	require.NoError(t, env.db.Where(&models.Upload{Key: obj.Key}).First(&record).Error)
	assert.Equal(t, "avatars/", record.Folder)
	assert.Equal(t, ann.User.ID, record.UploaderID)

	// Served back without auth.
	rec = env.do(t, http.MethodGet, "/api/storage/objects/avatars/1700000000000_abc.png", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, data, rec.Body.Bytes())
	assert.Equal(t, "public, max-age=31536000", rec.Header().Get("Cache-Control"))

	// Undeclared type is sniffed.
	rec = env.put(t, "posts/1_x.png", ann.Token, "", data)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = env.put(t, "posts/1_x.txt", ann.Token, "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, codeInvalidType, errorCode(t, rec))

	rec = env.put(t, "secrets/x.png", ann.Token, "image/png", data)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.put(t, "posts/nested/x.png", ann.Token, "image/png", data)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/storage/objects/avatars/missing.png", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStorageObjects_Oversize(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config, _ *Deps) { c.Storage.MaxUploadBytes = 32 })
	ann := env.register(t, "ann@example.com", "secret1", "Ann")

	rec := env.put(t, "temp/1_big.png", ann.Token, "image/png", pngBytes(t))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, codeOversize, errorCode(t, rec))

	_, err := env.store.GetObject(context.Background(), "temp/1_big.png")
	assert.Error(t, err)
}

func TestPosts(t *testing.T) {
	env := newTestEnv(t)
	ann := env.register(t, "ann@example.com", "secret1", "Ann")
	bob := env.register(t, "bob@example.com", "secret1", "")

	rec := env.do(t, http.MethodPost, "/api/posts", "", CreatePostRequest{Title: "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/posts", ann.Token, CreatePostRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/posts", ann.Token, CreatePostRequest{Title: "First", Content: "Hello"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	post := decode[PostResponse](t, rec)
	assert.Equal(t, ann.User.ID, post.AuthorID)

	env.do(t, http.MethodPost, "/api/posts", bob.Token, CreatePostRequest{Title: "Second"})

	list := decode[[]PostResponse](t, env.do(t, http.MethodGet, "/api/posts", "", nil))
	require.Len(t, list, 2)
	names := []string{list[0].AuthorName, list[1].AuthorName}
	assert.ElementsMatch(t, []string{"Ann", "bob@example.com"}, names)

	list = decode[[]PostResponse](t, env.do(t, http.MethodGet, "/api/posts?limit=1", "", nil))
	assert.Len(t, list, 1)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/posts?limit=zero", "", nil).Code)

	got := decode[PostResponse](t, env.do(t, http.MethodGet, "/api/posts/"+post.ID, "", nil))
	assert.Equal(t, "First", got.Title)
	assert.Equal(t, "Ann", got.AuthorName)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/posts/missing", "", nil).Code)

	rec = env.do(t, http.MethodPut, "/api/posts/"+post.ID, bob.Token, UpdatePostRequest{Title: strPtr("Hijack")})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/posts/"+post.ID, ann.Token, UpdatePostRequest{Content: strPtr("Edited")})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[PostResponse](t, rec)
	assert.Equal(t, "First", updated.Title)
	assert.Equal(t, "Edited", updated.Content)
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t)
	root := env.register(t, "root@example.com", "secret1", "Root")
	ann := env.register(t, "ann@example.com", "secret1", "Ann")
	env.makeAdmin(t, root.User.ID)

	rec := env.do(t, http.MethodGet, "/api/admin/users", ann.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, codeForbidden, errorCode(t, rec))

	users := decode[[]UserDetail](t, env.do(t, http.MethodGet, "/api/admin/users", root.Token, nil))
	require.Len(t, users, 2)
	roles := map[string]string{}
	for _, u := range users {
		roles[u.Email] = u.Role
	}
	assert.Equal(t, map[string]string{"root@example.com": "admin", "ann@example.com": "user"}, roles)

	rec = env.do(t, http.MethodPut, "/api/admin/users/"+ann.User.ID+"/role", root.Token, SetRoleRequest{Role: "superuser"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPut, "/api/admin/users/"+root.User.ID+"/role", root.Token, SetRoleRequest{Role: "user"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPut, "/api/admin/users/nobody/role", root.Token, SetRoleRequest{Role: "admin"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/admin/users/"+ann.User.ID+"/role", root.Token, SetRoleRequest{Role: "admin"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.RoleAdmin, decode[models.UserDocument](t, rec).Role)

	// The promotion applies to Ann's existing session.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/admin/users", ann.Token, nil).Code)

	rec = env.put(t, "temp/1_a.png", ann.Token, "image/png", pngBytes(t))
	require.Equal(t, http.StatusCreated, rec.Code)

	uploads := decode[[]models.Upload](t, env.do(t, http.MethodGet, "/api/admin/uploads?folder=temp/", root.Token, nil))
	require.Len(t, uploads, 1)
	assert.Empty(t, decode[[]models.Upload](t, env.do(t, http.MethodGet, "/api/admin/uploads?folder=posts/", root.Token, nil)))

	rec = env.do(t, http.MethodDelete, "/api/admin/uploads/"+uploads[0].ID, root.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err := env.store.GetObject(context.Background(), "temp/1_a.png")
	assert.Error(t, err)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/admin/uploads/"+uploads[0].ID, root.Token, nil).Code)

	jobs := decode[JobsResponse](t, env.do(t, http.MethodGet, "/api/admin/jobs", root.Token, nil))
	assert.Equal(t, "0 3 * * *", jobs.CleanupSchedule)
	require.NotNil(t, jobs.NextCleanup)
	assert.Equal(t, 3, jobs.NextCleanup.Hour())

	rec = env.do(t, http.MethodPost, "/api/admin/jobs/cleanup", root.Token, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	queued := env.tasks.Tasks()
	require.Len(t, queued, 1)
	assert.Equal(t, tasks.TypeCleanupTempUploads, queued[0].Type())
}
