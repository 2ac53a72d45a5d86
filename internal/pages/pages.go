// Package pages holds the text renderers for every route in the route table.
// Pages only read: forms are driven by CLI commands that call the session
// manager and then navigate.
package pages

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/soulnet-app/soulnet/internal/cli/client"
	"github.com/soulnet-app/soulnet/internal/guard"
	"github.com/soulnet-app/soulnet/internal/i18n"
	"github.com/soulnet-app/soulnet/internal/nav"
	"github.com/soulnet-app/soulnet/internal/router"
	"github.com/soulnet-app/soulnet/internal/theme"
	"github.com/soulnet-app/soulnet/internal/upload"
)

// PostReader reads articles.
type PostReader interface {
	List(ctx context.Context, limit int, authorID string) ([]client.Post, error)
	Get(ctx context.Context, id string) (*client.Post, error)
}

// DocumentReader reads profile documents.
type DocumentReader interface {
	Get(ctx context.Context, userID string) (*client.Document, error)
}

// AdminReader reads the admin listings.
type AdminReader interface {
	Users(ctx context.Context) ([]client.UserDetail, error)
	Uploads(ctx context.Context, folder string) ([]client.Upload, error)
}

// LocalReader reads the local key-value store.
type LocalReader interface {
	Get(key string) (string, bool)
}

// Deps is what the pages read from.
type Deps struct {
	Posts     PostReader
	Documents DocumentReader
	Admin     AdminReader
	Local     LocalReader
	Tr        *i18n.Translator
	Palette   theme.Palette
	Links     []nav.Link

	// RecentLimit bounds the home page post list.
	RecentLimit int
}

const defaultRecentLimit = 10

// Factories returns a page factory for every route pattern.
func Factories(d Deps) map[string]router.Factory {
	if d.Tr == nil {
		d.Tr = i18n.New("en")
	}
	if d.Links == nil {
		d.Links = nav.Links()
	}
	if d.RecentLimit <= 0 {
		d.RecentLimit = defaultRecentLimit
	}
	p := &renderer{Deps: d}

	page := func(f router.PageFunc) router.Factory {
		return func() router.Page { return f }
	}
	return map[string]router.Factory{
		router.Home:          page(p.home),
		router.Sign:          page(p.sign),
		router.Register:      page(p.hintPage("page.register", "hint.register")),
		router.NewPost:       page(p.hintPage("page.new_post", "hint.new_post")),
		router.Post:          page(p.post),
		router.EditPost:      page(p.editPost),
		router.Profile:       page(p.profile),
		router.Admin:         page(p.admin),
		router.AdminImages:   page(p.adminImages),
		router.ResetPassword: page(p.hintPage("page.reset_password", "hint.reset_password")),
		router.NotFound:      page(p.notFound),
	}
}

type renderer struct {
	Deps
}

func (p *renderer) title(w io.Writer, id string) {
	fmt.Fprintln(w, p.Palette.Title.Render(p.Tr.T(id)))
	fmt.Fprintln(w)
}

func (p *renderer) muted(w io.Writer, s string) {
	fmt.Fprintln(w, p.Palette.Muted.Render(s))
}

func (p *renderer) hintPage(titleID, hintID string) router.PageFunc {
	return func(ctx context.Context, w io.Writer, req router.Request) error {
		p.title(w, titleID)
		p.muted(w, p.Tr.T(hintID))
		return nil
	}
}

func (p *renderer) home(ctx context.Context, w io.Writer, req router.Request) error {
	p.title(w, "page.home")

	for _, l := range nav.Visible(p.Links, guard.ViewerFromState(req.State)) {
		fmt.Fprintf(w, "%s %s  %s\n", l.Icon, p.Palette.Link.Render(p.Tr.T(l.Label)), p.Palette.Muted.Render(l.Path))
	}
	fmt.Fprintln(w)

	posts, err := p.Posts.List(ctx, p.RecentLimit, "")
	if err != nil {
		return fmt.Errorf("failed to load posts: %w", err)
	}
	fmt.Fprintln(w, p.Palette.Subtitle.Render(p.Tr.T("posts.recent")))
	if len(posts) == 0 {
		p.muted(w, p.Tr.T("posts.none"))
		return nil
	}
	for _, post := range posts {
		fmt.Fprintf(w, "  %s  %s\n", p.Palette.Link.Render(post.Title), p.Palette.Muted.Render(router.Build(router.Post, post.ID)))
		fmt.Fprintf(w, "    %s\n", p.byline(post))
	}
	return nil
}

func (p *renderer) byline(post client.Post) string {
	return p.Tr.T("posts.by", map[string]any{
		"Author": post.AuthorName,
		"Date":   post.CreatedAt.Local().Format(time.DateOnly),
	})
}

func (p *renderer) sign(ctx context.Context, w io.Writer, req router.Request) error {
	p.title(w, "page.sign")
	p.muted(w, p.Tr.T("hint.sign"))
	if p.Local != nil {
		if from, ok := p.Local.Get(router.KeyRedirectFrom); ok && from != "" {
			fmt.Fprintln(w, p.Tr.T("hint.sign_return", map[string]any{"Path": from}))
		}
	}
	return nil
}

// loadPost returns nil without error when the post does not exist.
func (p *renderer) loadPost(ctx context.Context, w io.Writer, id string) (*client.Post, error) {
	post, err := p.Posts.Get(ctx, id)
	if err != nil {
		if client.IsStatus(err, http.StatusNotFound) {
			fmt.Fprintln(w, p.Palette.Error.Render(p.Tr.T("posts.not_found")))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load post %s: %w", id, err)
	}
	return post, nil
}

func (p *renderer) post(ctx context.Context, w io.Writer, req router.Request) error {
	p.title(w, "page.post")
	post, err := p.loadPost(ctx, w, req.Params["id"])
	if post == nil || err != nil {
		return err
	}

	fmt.Fprintln(w, p.Palette.Active.Render(post.Title))
	p.muted(w, p.byline(*post))
	if post.CoverImageURL != "" {
		p.muted(w, post.CoverImageURL)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, post.Content)

	if req.State.Identity != nil && req.State.Identity.ID == post.AuthorID {
		fmt.Fprintln(w)
		p.muted(w, p.Tr.T("hint.edit_post", map[string]any{"ID": post.ID}))
	}
	return nil
}

func (p *renderer) editPost(ctx context.Context, w io.Writer, req router.Request) error {
	p.title(w, "page.edit_post")
	post, err := p.loadPost(ctx, w, req.Params["id"])
	if post == nil || err != nil {
		return err
	}
	if req.State.Identity == nil || req.State.Identity.ID != post.AuthorID {
		fmt.Fprintln(w, p.Palette.Error.Render(p.Tr.T("posts.not_author")))
		return nil
	}

	fmt.Fprintln(w, p.Palette.Active.Render(post.Title))
	if post.CoverImageURL != "" {
		p.muted(w, post.CoverImageURL)
	}
	fmt.Fprintln(w, post.Content)
	fmt.Fprintln(w)
	p.muted(w, p.Tr.T("hint.edit_post", map[string]any{"ID": post.ID}))
	return nil
}

func (p *renderer) profile(ctx context.Context, w io.Writer, req router.Request) error {
	p.title(w, "page.profile")
	id := req.State.Identity

	doc, err := p.Documents.Get(ctx, id.ID)
	if err != nil && !client.IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if doc == nil {
		doc = &client.Document{UserID: id.ID}
	}
	if doc.DisplayName == "" {
		doc.DisplayName = id.DisplayName
	}
	if doc.Email == "" {
		doc.Email = id.Email
	}
	if doc.PhotoURL == "" {
		doc.PhotoURL = id.PhotoURL
	}

	photo := doc.PhotoURL
	if photo == "" {
		photo = upload.DefaultAvatarURL
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(labelID, value string) {
		if value != "" {
			fmt.Fprintf(tw, "%s\t%s\n", p.Tr.T(labelID), value)
		}
	}
	row("profile.display_name", doc.DisplayName)
	row("profile.email", doc.Email)
	row("profile.role", string(req.State.Role))
	row("profile.bio", doc.Bio)
	row("profile.location", doc.Location)
	row("profile.website", doc.Website)
	row("profile.photo", photo)
	row("profile.background", doc.BackgroundImage)
	tw.Flush()

	fmt.Fprintln(w)
	p.muted(w, p.Tr.T("hint.profile"))
	return nil
}

func (p *renderer) admin(ctx context.Context, w io.Writer, req router.Request) error {
	p.title(w, "page.admin")
	users, err := p.Admin.Users(ctx)
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}

	fmt.Fprintln(w, p.Palette.Subtitle.Render(p.Tr.T("admin.users")))
	if len(users) == 0 {
		p.muted(w, p.Tr.T("admin.none"))
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tROLE\tPROVIDER\tCREATED")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", u.ID, u.Email, u.DisplayName, u.Role, u.Provider, u.CreatedAt.Local().Format(time.DateOnly))
	}
	return tw.Flush()
}

func (p *renderer) adminImages(ctx context.Context, w io.Writer, req router.Request) error {
	p.title(w, "page.admin_images")
	folder := req.Query.Get("folder")
	uploads, err := p.Admin.Uploads(ctx, folder)
	if err != nil {
		return fmt.Errorf("failed to load uploads: %w", err)
	}

	fmt.Fprintln(w, p.Palette.Subtitle.Render(p.Tr.T("admin.uploads")))
	if len(uploads) == 0 {
		p.muted(w, p.Tr.T("admin.none"))
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKEY\tTYPE\tSIZE\tCREATED")
	for _, u := range uploads {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", u.ID, u.Key, u.ContentType, u.Size, u.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func (p *renderer) notFound(ctx context.Context, w io.Writer, req router.Request) error {
	p.title(w, "page.not_found")
	p.muted(w, p.Tr.T("hint.not_found", map[string]any{"Path": req.Path}))
	p.muted(w, p.Tr.T("hint.go_home"))
	return nil
}
