package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/soulnet-app/soulnet/internal/upload"
)

// Document is the per-identity profile document.
type Document struct {
	UserID          string    `json:"user_id"`
	Role            string    `json:"role"`
	DisplayName     string    `json:"display_name"`
	Email           string    `json:"email"`
	PhotoURL        string    `json:"photo_url"`
	Bio             string    `json:"bio"`
	Location        string    `json:"location"`
	Website         string    `json:"website"`
	BackgroundImage string    `json:"background_image"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Documents reads user documents.
type Documents struct {
	c *Client
}

func NewDocuments(c *Client) *Documents {
	return &Documents{c: c}
}

// Get returns the document of userID. A missing document is an APIError with
// status 404.
func (d *Documents) Get(ctx context.Context, userID string) (*Document, error) {
	var doc Document
	if err := d.c.doJSON(ctx, http.MethodGet, "/api/users/"+url.PathEscape(userID)+"/document", true, nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LookupRole implements the session manager's role store.
func (d *Documents) LookupRole(ctx context.Context, identityID string) (string, bool, error) {
	doc, err := d.Get(ctx, identityID)
	if err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return doc.Role, true, nil
}

const objectsPath = "/api/storage/objects"

// ObjectStore uploads through the server's storage endpoint.
type ObjectStore struct {
	c *Client

	mu   sync.Mutex
	urls map[string]string
}

func NewObjectStore(c *Client) *ObjectStore {
	return &ObjectStore{c: c, urls: make(map[string]string)}
}

// ObjectResponse describes a stored object.
type ObjectResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

func (s *ObjectStore) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType, cacheControl string) error {
	headers := map[string]string{}
	if cacheControl != "" {
		headers["Cache-Control"] = cacheControl
	}

	var resp ObjectResponse
	err := s.c.do(ctx, request{
		method:      http.MethodPut,
		path:        objectsPath + "/" + escapeKey(key),
		body:        body,
		contentType: contentType,
		headers:     headers,
		length:      size,
		auth:        true,
	}, &resp)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.urls[key] = resp.URL
	s.mu.Unlock()
	return nil
}

// PublicURL returns the URL the server reported for key, or the server's own
// object path when key was not uploaded through this store.
func (s *ObjectStore) PublicURL(key string) string {
	s.mu.Lock()
	u, ok := s.urls[key]
	s.mu.Unlock()
	if ok && u != "" {
		return u
	}
	return s.c.BaseURL() + objectsPath + "/" + escapeKey(key)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

var _ upload.ObjectStore = (*ObjectStore)(nil)

// Post is an article as the API returns it.
type Post struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"author_id"`
	AuthorName    string    `json:"author_name"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	CoverImageURL string    `json:"cover_image_url"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PostInput is the body of create and update calls. Nil fields are left
// untouched on update.
type PostInput struct {
	Title         *string `json:"title,omitempty"`
	Content       *string `json:"content,omitempty"`
	CoverImageURL *string `json:"cover_image_url,omitempty"`
}

// Posts reads and writes articles.
type Posts struct {
	c *Client
}

func NewPosts(c *Client) *Posts {
	return &Posts{c: c}
}

// List returns recent posts, newest first. authorID narrows the list when set.
func (p *Posts) List(ctx context.Context, limit int, authorID string) ([]Post, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if authorID != "" {
		q.Set("author", authorID)
	}
	path := "/api/posts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var posts []Post
	if err := p.c.doJSON(ctx, http.MethodGet, path, false, nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (p *Posts) Get(ctx context.Context, id string) (*Post, error) {
	var post Post
	if err := p.c.doJSON(ctx, http.MethodGet, "/api/posts/"+url.PathEscape(id), false, nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (p *Posts) Create(ctx context.Context, in PostInput) (*Post, error) {
	var post Post
	if err := p.c.doJSON(ctx, http.MethodPost, "/api/posts", true, in, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (p *Posts) Update(ctx context.Context, id string, in PostInput) (*Post, error) {
	var post Post
	if err := p.c.doJSON(ctx, http.MethodPut, "/api/posts/"+url.PathEscape(id), true, in, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// UserDetail is an admin view of an account.
type UserDetail struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Provider    string    `json:"provider"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// Upload is an admin view of a stored object.
type Upload struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Folder      string    `json:"folder"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	UploaderID  string    `json:"uploader_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Jobs describes the background job settings.
type Jobs struct {
	CleanupSchedule string     `json:"cleanup_schedule"`
	NextCleanup     *time.Time `json:"next_cleanup"`
	TempUploadTTL   string     `json:"temp_upload_ttl"`
}

// Admin calls the admin-only endpoints.
type Admin struct {
	c *Client
}

func NewAdmin(c *Client) *Admin {
	return &Admin{c: c}
}

func (a *Admin) Users(ctx context.Context) ([]UserDetail, error) {
	var users []UserDetail
	if err := a.c.doJSON(ctx, http.MethodGet, "/api/admin/users", true, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (a *Admin) SetRole(ctx context.Context, userID, role string) (*Document, error) {
	var doc Document
	err := a.c.doJSON(ctx, http.MethodPut, "/api/admin/users/"+url.PathEscape(userID)+"/role", true, map[string]string{"role": role}, &doc)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Uploads lists stored objects, optionally limited to one folder.
func (a *Admin) Uploads(ctx context.Context, folder string) ([]Upload, error) {
	path := "/api/admin/uploads"
	if folder != "" {
		path += "?folder=" + url.QueryEscape(folder)
	}
	var uploads []Upload
	if err := a.c.doJSON(ctx, http.MethodGet, path, true, nil, &uploads); err != nil {
		return nil, err
	}
	return uploads, nil
}

func (a *Admin) DeleteUpload(ctx context.Context, id string) error {
	return a.c.doJSON(ctx, http.MethodDelete, "/api/admin/uploads/"+url.PathEscape(id), true, nil, nil)
}

func (a *Admin) Jobs(ctx context.Context) (*Jobs, error) {
	var jobs Jobs
	if err := a.c.doJSON(ctx, http.MethodGet, "/api/admin/jobs", true, nil, &jobs); err != nil {
		return nil, err
	}
	return &jobs, nil
}

// TriggerCleanup enqueues a temp upload cleanup and returns the task id.
func (a *Admin) TriggerCleanup(ctx context.Context) (string, error) {
	var resp struct {
		TaskID string `json:"task_id"`
	}
	if err := a.c.doJSON(ctx, http.MethodPost, "/api/admin/jobs/cleanup", true, nil, &resp); err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

// Health checks that the server answers.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.doJSON(ctx, http.MethodGet, "/health", false, nil, &out); err != nil {
		return nil, fmt.Errorf("server is not reachable: %w", err)
	}
	return out, nil
}
