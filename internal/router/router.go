package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/soulnet-app/soulnet/internal/guard"
	"github.com/soulnet-app/soulnet/internal/i18n"
	"github.com/soulnet-app/soulnet/internal/session"
	"github.com/soulnet-app/soulnet/internal/theme"
)

// KeyRedirectFrom is the local store key holding the path to return to after
// signing in.
const KeyRedirectFrom = "redirectFrom"

const maxRedirects = 3

// ErrTooManyRedirects is returned when guard redirects do not settle.
var ErrTooManyRedirects = errors.New("too many redirects")

// Request is what a page receives when rendered.
type Request struct {
	Path   string
	Params Params
	Query  url.Values
	State  session.State
}

// Page renders one screen.
type Page interface {
	Render(ctx context.Context, w io.Writer, req Request) error
}

// PageFunc adapts a function to Page.
type PageFunc func(ctx context.Context, w io.Writer, req Request) error

func (f PageFunc) Render(ctx context.Context, w io.Writer, req Request) error {
	return f(ctx, w, req)
}

// Factory builds a page.
type Factory func() Page

// Lazy builds its page on first use and reuses it afterwards.
type Lazy struct {
	once    sync.Once
	factory Factory
	page    Page
	built   atomic.Bool
}

func NewLazy(f Factory) *Lazy {
	return &Lazy{factory: f}
}

// Page returns the page, building it if needed.
func (l *Lazy) Page() Page {
	l.once.Do(func() {
		l.page = l.factory()
		l.built.Store(true)
	})
	return l.page
}

// Built reports whether the page has been constructed.
func (l *Lazy) Built() bool {
	return l.built.Load()
}

// RedirectStore remembers the redirect-back path.
type RedirectStore interface {
	Set(key, value string) error
}

// Options configures a Router.
type Options struct {
	State     func() session.State
	Pages     map[string]Factory
	Tr        *i18n.Translator
	Palette   *theme.Palette
	Redirects RedirectStore
	Logger    zerolog.Logger
}

// Router resolves paths, applies the guard and renders pages inside a loading
// boundary and an error boundary.
type Router struct {
	state     func() session.State
	pages     map[string]*Lazy
	tr        *i18n.Translator
	palette   *theme.Palette
	redirects RedirectStore
	logger    zerolog.Logger
}

// New creates a router. Routes without a page factory render the not-found
// page, or a bare title when that is missing too.
func New(opts Options) *Router {
	r := &Router{
		state:     opts.State,
		pages:     make(map[string]*Lazy, len(opts.Pages)),
		tr:        opts.Tr,
		palette:   opts.Palette,
		redirects: opts.Redirects,
		logger:    opts.Logger.With().Str("component", "router").Logger(),
	}
	if r.tr == nil {
		r.tr = i18n.New("en")
	}
	for pattern, f := range opts.Pages {
		r.pages[pattern] = NewLazy(f)
	}
	return r
}

// Result describes a finished navigation.
type Result struct {
	// Path is where the navigation ended after redirects.
	Path     string
	Spec     Spec
	Decision guard.Decision
	// Redirects lists the intermediate targets, in order.
	Redirects []string
	// Err is the page error caught by the error boundary, if any.
	Err error
}

// Navigate resolves path, follows guard redirects and renders the final page
// to w. A pending session renders a loading view and stops.
func (r *Router) Navigate(ctx context.Context, w io.Writer, path string) (Result, error) {
	var res Result
	for range maxRedirects + 1 {
		spec, params := Match(path)
		state := r.state()
		d := guard.Decide(guard.ViewerFromState(state), spec.Requirement, path)
		res.Path, res.Spec, res.Decision = path, spec, d

		switch d.Outcome {
		case guard.Pending:
			r.renderLoading(w, spec)
			return res, nil
		case guard.Allowed:
			res.Err = r.render(ctx, w, spec, Request{
				Path:   path,
				Params: params,
				Query:  queryOf(path),
				State:  state,
			})
			return res, nil
		}

		if d.From != "" && r.redirects != nil {
			if err := r.redirects.Set(KeyRedirectFrom, d.From); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to remember redirect path")
			}
		}
		r.logger.Debug().Str("from", path).Str("to", d.RedirectTo).Str("outcome", d.Outcome.String()).Msg("Guard redirect")
		res.Redirects = append(res.Redirects, d.RedirectTo)
		path = d.RedirectTo
	}
	return res, ErrTooManyRedirects
}

func queryOf(path string) url.Values {
	u, err := url.Parse(path)
	if err != nil {
		return url.Values{}
	}
	return u.Query()
}

// render is the error boundary: page errors and panics become an error view.
func (r *Router) render(ctx context.Context, w io.Writer, spec Spec, req Request) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page %s panicked: %v", spec.Pattern, rec)
		}
		if err != nil {
			r.logger.Error().Err(err).Str("path", req.Path).Msg("Page failed to render")
			r.renderError(w, err)
		}
	}()

	page := r.page(spec.Pattern)
	if page == nil {
		fmt.Fprintln(w, r.title(r.tr.T(spec.Title)))
		return nil
	}
	return page.Render(ctx, w, req)
}

func (r *Router) page(pattern string) Page {
	if l, ok := r.pages[pattern]; ok {
		return l.Page()
	}
	if l, ok := r.pages[NotFound]; ok {
		return l.Page()
	}
	return nil
}

// Built reports whether the page for pattern has been constructed yet.
func (r *Router) Built(pattern string) bool {
	l, ok := r.pages[pattern]
	return ok && l.Built()
}

func (r *Router) renderLoading(w io.Writer, spec Spec) {
	msg := r.tr.T("status.loading", map[string]any{"Page": r.tr.T(spec.Title)})
	if r.palette != nil {
		msg = r.palette.Muted.Render(msg)
	}
	fmt.Fprintln(w, msg)
}

func (r *Router) renderError(w io.Writer, err error) {
	fmt.Fprintln(w, r.title(r.tr.T("page.error")))
	msg := r.tr.Error(err)
	if r.palette != nil {
		msg = r.palette.Error.Render(msg)
	}
	fmt.Fprintln(w, msg)
}

func (r *Router) title(s string) string {
	if r.palette != nil {
		return r.palette.Title.Render(s)
	}
	return s
}
