package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/soulnet-app/soulnet/internal/cli/auth"
	"github.com/soulnet-app/soulnet/internal/cli/client"
	"github.com/soulnet-app/soulnet/internal/guard"
	"github.com/soulnet-app/soulnet/internal/i18n"
	"github.com/soulnet-app/soulnet/internal/localstore"
	"github.com/soulnet-app/soulnet/internal/pages"
	"github.com/soulnet-app/soulnet/internal/router"
	"github.com/soulnet-app/soulnet/internal/session"
	"github.com/soulnet-app/soulnet/internal/theme"
	"github.com/soulnet-app/soulnet/internal/ui"
	"github.com/soulnet-app/soulnet/internal/upload"
)

// DefaultServer is used when neither --server nor SOULNET_SERVER is set.
const DefaultServer = "http://localhost:8080"

// ServerEnv selects the server address.
const ServerEnv = "SOULNET_SERVER"

// DefaultDelay is how long a confirmation stays up before the follow-up
// navigation.
const DefaultDelay = 1500 * time.Millisecond

const resolveTimeout = 10 * time.Second

// Options configures an App. Zero values select the production defaults.
type Options struct {
	Server     string
	Lang       string
	Tokens     *auth.Tokens
	Local      *localstore.Store
	HTTPClient *http.Client
	Out        io.Writer
	In         io.Reader
	Logger     zerolog.Logger

	// OpenBrowser overrides how URLs are opened.
	OpenBrowser func(url string) error
	// SystemTheme reports the terminal preference when no theme is stored.
	SystemTheme theme.SystemPreference

	// Delay is the pause between a confirmation and the next page.
	Delay  time.Duration
	NoWait bool
	// Width is the terminal width; zero asks the terminal.
	Width int
}

// App is everything a command needs, wired once per invocation.
type App struct {
	Client    *client.Client
	Auth      *client.Auth
	Manager   *session.Manager
	Documents *client.Documents
	Posts     *client.Posts
	Admin     *client.Admin
	Uploader  *upload.Uploader
	Local     *localstore.Store
	Theme     *theme.State
	Tr        *i18n.Translator
	Router    *router.Router
	Chrome    *ui.Chrome

	Out    io.Writer
	In     io.Reader
	Logger zerolog.Logger

	openBrowser func(string) error
	delay       time.Duration
	noWait      bool
	width       int
}

// NewApp wires the client, the session manager and the page router.
func NewApp(opts Options) (*App, error) {
	if opts.Server == "" {
		opts.Server = os.Getenv(ServerEnv)
	}
	if opts.Server == "" {
		opts.Server = DefaultServer
	}
	if opts.Tokens == nil {
		opts.Tokens = auth.DefaultTokens()
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Delay == 0 {
		opts.Delay = DefaultDelay
	}
	if opts.SystemTheme == nil {
		opts.SystemTheme = theme.TerminalPreference
	}

	local := opts.Local
	if local == nil {
		var err error
		local, err = localstore.OpenDefault()
		if err != nil {
			return nil, fmt.Errorf("failed to open local store: %w", err)
		}
	}

	tr := i18n.FromEnv()
	if opts.Lang != "" {
		tr = i18n.New(opts.Lang)
	}

	c := client.New(opts.Server)
	if opts.HTTPClient != nil {
		c.SetHTTPClient(opts.HTTPClient)
	}

	a := client.NewAuth(c, client.AuthOptions{
		Tokens:      opts.Tokens,
		Logger:      opts.Logger,
		OpenBrowser: opts.OpenBrowser,
		Out:         opts.Out,
		In:          opts.In,
	})
	docs := client.NewDocuments(c)

	app := &App{
		Client:    c,
		Auth:      a,
		Documents: docs,
		Posts:     client.NewPosts(c),
		Admin:     client.NewAdmin(c),
		Local:     local,
		Theme:     theme.New(local, opts.SystemTheme),
		Tr:        tr,
		Out:       opts.Out,
		In:        opts.In,
		Logger:    opts.Logger,

		openBrowser: opts.OpenBrowser,
		delay:       opts.Delay,
		noWait:      opts.NoWait,
		width:       opts.Width,
	}
	app.Manager = session.New(session.Options{
		Auth:   a,
		Roles:  docs,
		Local:  local,
		Logger: opts.Logger,
	})
	app.Uploader = upload.New(upload.Options{
		Store:  client.NewObjectStore(c),
		Logger: opts.Logger,
	})

	palette := app.Theme.Palette()
	app.Chrome = ui.New(palette, tr)
	app.Router = router.New(router.Options{
		State: app.Manager.State,
		Pages: pages.Factories(pages.Deps{
			Posts:     app.Posts,
			Documents: docs,
			Admin:     app.Admin,
			Local:     local,
			Tr:        tr,
			Palette:   palette,
		}),
		Tr:        tr,
		Palette:   &palette,
		Redirects: local,
		Logger:    opts.Logger,
	})
	return app, nil
}

// Ready starts the manager and waits until identity and role are resolved.
func (a *App) Ready(ctx context.Context) (session.State, error) {
	a.Manager.Start()

	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()
	s, err := a.Manager.Settled(ctx)
	if err != nil {
		return s, fmt.Errorf("session did not resolve: %w", err)
	}
	return s, nil
}

// Close stops the manager.
func (a *App) Close() {
	a.Manager.Close()
}

// Render shows path inside the header and menu chrome.
func (a *App) Render(ctx context.Context, path string) (router.Result, error) {
	var body bytes.Buffer
	res, err := a.Router.Navigate(ctx, &body, path)
	if err != nil {
		return res, err
	}
	fmt.Fprintln(a.Out, a.Chrome.Layout(a.Manager.State(), a.Theme.Dark(), res.Path, body.String(), a.terminalWidth()))
	return res, nil
}

func (a *App) terminalWidth() int {
	if a.width != 0 {
		return a.width
	}
	if f, ok := a.Out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			return w
		}
	}
	return 0
}

// Confirm prints a success message, waits the confirmation delay and then
// renders the follow-up page.
func (a *App) Confirm(ctx context.Context, messageID, next string) error {
	fmt.Fprintln(a.Out, a.Chrome.Palette.Success.Render("✓ "+a.Tr.T(messageID)))
	if next == "" {
		return nil
	}
	if !a.noWait {
		fmt.Fprintln(a.Out, a.Chrome.Palette.Muted.Render(a.Tr.T("status.redirecting", map[string]any{"Path": next})))
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	_, err := a.Render(ctx, next)
	return err
}

// Fail prints the localized form of err and returns it so the command exits
// non-zero. Flags keep their values, so rerunning retries with the same input.
func (a *App) Fail(err error) error {
	fmt.Fprintln(a.Out, a.Chrome.Palette.Error.Render(a.Tr.Error(err)))
	return errReported{err}
}

// errReported marks an error that has already been shown to the user.
type errReported struct{ error }

func (e errReported) Unwrap() error { return e.error }

// Reported reports whether err was already printed by Fail.
func Reported(err error) bool {
	var r errReported
	return errors.As(err, &r)
}

// takeRedirect returns and forgets the path a guard redirect remembered.
func (a *App) takeRedirect() string {
	from, ok := a.Local.Get(router.KeyRedirectFrom)
	if !ok || from == "" {
		return router.Home
	}
	if err := a.Local.Remove(router.KeyRedirectFrom); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to clear redirect path")
	}
	return from
}

// requireIdentity fails with the no-current-user message when signed out.
func (a *App) requireIdentity(s session.State) (*session.Identity, error) {
	if s.Identity == nil {
		return nil, a.Fail(&session.AuthError{Kind: session.AuthNoCurrentUser})
	}
	return s.Identity, nil
}

// waitFor is Manager.WaitFor bounded by the resolve timeout.
func (a *App) waitFor(ctx context.Context, pred func(session.State) bool) (session.State, error) {
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()
	return a.Manager.WaitFor(ctx, pred)
}

// settled is Manager.Settled bounded by the resolve timeout.
func (a *App) settled(ctx context.Context) (session.State, error) {
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()
	return a.Manager.Settled(ctx)
}

// guardOnly runs the route guard for a form action on path. When the guard
// sends the viewer elsewhere, that page is rendered and its path returned.
func (a *App) guardOnly(ctx context.Context, path string) (string, error) {
	spec, _ := router.Match(path)
	d := guard.Decide(guard.ViewerFromState(a.Manager.State()), spec.Requirement, path)
	if d.Outcome == guard.Allowed {
		return "", nil
	}
	res, err := a.Render(ctx, path)
	if err != nil {
		return "", err
	}
	if res.Path == "" {
		res.Path = path
	}
	return res.Path, nil
}
