package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/skratchdot/open-golang/open"

	"github.com/soulnet-app/soulnet/internal/cli/auth"
	"github.com/soulnet-app/soulnet/internal/session"
)

const (
	federatedStartPath = "/api/auth/federated/google/start"
	popupTimeout       = 5 * time.Minute
)

// Identity is the user object the auth endpoints return.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Provider    string `json:"provider"`
}

func (i Identity) session() *session.Identity {
	return &session.Identity{
		ID:          i.ID,
		DisplayName: i.DisplayName,
		Email:       i.Email,
		PhotoURL:    i.PhotoURL,
	}
}

// TokenResponse is returned by every endpoint that signs in.
type TokenResponse struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Persistence string    `json:"persistence"`
	User        Identity  `json:"user"`
}

type credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Persistence string `json:"persistence,omitempty"`
}

// AuthOptions configures an Auth backend.
type AuthOptions struct {
	Tokens *auth.Tokens
	Logger zerolog.Logger

	// OpenBrowser launches the system browser; it defaults to the platform
	// opener. An error means the interactive flow is blocked.
	OpenBrowser func(url string) error
	// Out and In carry the redirect flow: the URL is printed to Out and the
	// code is read from In.
	Out io.Writer
	In  io.Reader
}

// Auth is the session manager's auth backend, backed by the server's
// /api/auth endpoints and the local token stores.
type Auth struct {
	c           *Client
	tokens      *auth.Tokens
	logger      zerolog.Logger
	openBrowser func(string) error
	out         io.Writer
	in          *bufio.Reader

	mu          sync.Mutex
	persistence session.PersistenceMode

	// emitMu orders snapshot delivery; current, resolved and gen change only
	// while it is held.
	emitMu    sync.Mutex
	current   *session.Identity
	resolved  bool
	resolving bool
	gen       uint64
	listeners map[uint64]func(*session.Identity)
	nextID    uint64
}

// NewAuth wires an Auth to c. Stored tokens are not read until the first
// subscriber arrives.
func NewAuth(c *Client, opts AuthOptions) *Auth {
	a := &Auth{
		c:           c,
		tokens:      opts.Tokens,
		logger:      opts.Logger.With().Str("component", "auth-client").Logger(),
		openBrowser: opts.OpenBrowser,
		out:         opts.Out,
		persistence: session.PersistenceSession,
		listeners:   make(map[uint64]func(*session.Identity)),
	}
	if a.tokens == nil {
		a.tokens = auth.DefaultTokens()
	}
	if a.openBrowser == nil {
		a.openBrowser = open.Start
	}
	if a.out == nil {
		a.out = io.Discard
	}
	if opts.In != nil {
		a.in = bufio.NewReader(opts.In)
	}
	c.OnExpired(a.expire)
	return a
}

// OnAuthStateChanged registers fn. The first call triggers initial resolution
// from the stored token; later subscribers get the current snapshot at once.
func (a *Auth) OnAuthStateChanged(fn func(*session.Identity)) (unsubscribe func()) {
	a.emitMu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn

	switch {
	case a.resolved:
		fn(copyIdentity(a.current))
	case !a.resolving:
		a.resolving = true
		go a.resolve(a.gen)
	}
	a.emitMu.Unlock()

	return func() {
		a.emitMu.Lock()
		delete(a.listeners, id)
		a.emitMu.Unlock()
	}
}

// resolve restores the identity behind a stored token. It loses to any
// snapshot emitted while it ran.
func (a *Auth) resolve(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var identity *session.Identity
	token, mode, err := a.tokens.Load(a.c.BaseURL())
	switch {
	case errors.Is(err, auth.ErrNoToken):
	case err != nil:
		a.logger.Warn().Err(err).Msg("Failed to read stored token")
	default:
		a.c.SetToken(token)
		a.mu.Lock()
		a.persistence = session.PersistenceMode(mode)
		a.mu.Unlock()

		var me Identity
		if err := a.c.doJSON(ctx, http.MethodGet, "/api/auth/me", true, nil, &me); err != nil {
			// An expired token has already been cleared by expire.
			a.logger.Debug().Err(err).Msg("Stored token could not be restored")
		} else {
			identity = me.session()
		}
	}

	a.emitMu.Lock()
	defer a.emitMu.Unlock()
	a.resolving = false
	if a.gen != gen {
		return
	}
	a.emitLocked(identity)
}

// emit delivers identity to every listener, in order with other emissions.
func (a *Auth) emit(identity *session.Identity) {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()
	a.emitLocked(identity)
}

func (a *Auth) emitLocked(identity *session.Identity) {
	a.gen++
	a.resolved = true
	a.current = copyIdentity(identity)
	for _, fn := range a.listeners {
		fn(copyIdentity(identity))
	}
}

// expire drops the token after the server rejected it and reports an
// identity-less snapshot.
func (a *Auth) expire() {
	if err := a.tokens.Clear(a.c.BaseURL()); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to clear expired token")
	}
	a.c.SetToken("")

	a.emitMu.Lock()
	defer a.emitMu.Unlock()
	if a.resolving && !a.resolved {
		// resolve emits the anonymous snapshot itself.
		return
	}
	if a.current == nil && a.resolved {
		return
	}
	a.logger.Info().Msg("Session expired")
	a.emitLocked(nil)
}

// Current returns the last emitted identity.
func (a *Auth) Current() *session.Identity {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()
	return copyIdentity(a.current)
}

func copyIdentity(i *session.Identity) *session.Identity {
	if i == nil {
		return nil
	}
	cp := *i
	return &cp
}

// SetPersistence selects where the next token is kept. A token already held
// moves to the new store.
func (a *Auth) SetPersistence(ctx context.Context, mode session.PersistenceMode) error {
	a.mu.Lock()
	a.persistence = mode
	a.mu.Unlock()

	if token := a.c.Token(); token != "" {
		if err := a.tokens.Save(auth.Mode(mode), a.c.BaseURL(), token); err != nil {
			return fmt.Errorf("failed to move token: %w", err)
		}
	}
	return nil
}

// Persistence reports where the current token is kept.
func (a *Auth) Persistence() session.PersistenceMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.persistence
}

// signedIn stores the token and announces the identity.
func (a *Auth) signedIn(resp *TokenResponse) (*session.Identity, error) {
	mode := auth.Mode(resp.Persistence)
	if mode == "" {
		mode = auth.Mode(a.Persistence())
	} else {
		// The server decides for federated sign-ins.
		a.mu.Lock()
		a.persistence = session.PersistenceMode(mode)
		a.mu.Unlock()
	}
	if err := a.tokens.Save(mode, a.c.BaseURL(), resp.Token); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to persist token, keeping it in memory")
	}
	a.c.SetToken(resp.Token)

	identity := resp.User.session()
	a.emit(identity)
	return copyIdentity(identity), nil
}

func (a *Auth) SignIn(ctx context.Context, email, password string) (*session.Identity, error) {
	var resp TokenResponse
	err := a.c.doJSON(ctx, http.MethodPost, "/api/auth/login", false, credentials{
		Email:       email,
		Password:    password,
		Persistence: string(a.Persistence()),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return a.signedIn(&resp)
}

// SignUp creates the account. The server signs the new identity in.
func (a *Auth) SignUp(ctx context.Context, email, password string) (*session.Identity, error) {
	var resp TokenResponse
	err := a.c.doJSON(ctx, http.MethodPost, "/api/auth/register", false, credentials{
		Email:       email,
		Password:    password,
		Persistence: string(a.Persistence()),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return a.signedIn(&resp)
}

// SignOut revokes the session. A token the server no longer accepts counts
// as signed out.
func (a *Auth) SignOut(ctx context.Context) error {
	if a.c.Token() != "" {
		err := a.c.doJSON(ctx, http.MethodPost, "/api/auth/logout", true, nil, nil)
		if err != nil && !IsStatus(err, http.StatusUnauthorized) {
			return err
		}
	}

	if err := a.tokens.Clear(a.c.BaseURL()); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to clear stored token")
	}
	a.c.SetToken("")
	a.emit(nil)
	return nil
}

// Reauthenticate confirms the password of the signed-in identity. The server
// checks it against the session's own user, so email is informational.
func (a *Auth) Reauthenticate(ctx context.Context, email, password string) error {
	return a.c.doJSON(ctx, http.MethodPost, "/api/auth/reauthenticate", true, map[string]string{"password": password}, nil)
}

func (a *Auth) UpdatePassword(ctx context.Context, newPassword string) error {
	return a.c.doJSON(ctx, http.MethodPost, "/api/auth/password", true, map[string]string{"new_password": newPassword}, nil)
}

// UpdateProfile merges update into the profile and refreshes the current
// identity when its name or photo changed.
func (a *Auth) UpdateProfile(ctx context.Context, update session.ProfileUpdate) error {
	var doc Document
	if err := a.c.doJSON(ctx, http.MethodPatch, "/api/profile", true, update, &doc); err != nil {
		return err
	}
	if update.DisplayName == nil && update.PhotoURL == nil {
		return nil
	}

	a.emitMu.Lock()
	defer a.emitMu.Unlock()
	if a.current == nil || a.current.ID != doc.UserID {
		return nil
	}
	next := *a.current
	next.DisplayName = doc.DisplayName
	next.PhotoURL = doc.PhotoURL
	a.emitLocked(&next)
	return nil
}

func (a *Auth) SendPasswordReset(ctx context.Context, email string) error {
	return a.c.doJSON(ctx, http.MethodPost, "/api/auth/password-reset", false, map[string]string{"email": email}, nil)
}

// ConfirmPasswordReset sets a new password with the token from a reset link.
func (a *Auth) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	return a.c.doJSON(ctx, http.MethodPost, "/api/auth/password-reset/confirm", false, map[string]string{
		"token":        token,
		"new_password": newPassword,
	}, nil)
}

func (a *Auth) federatedURL(redirectURI string) string {
	q := url.Values{}
	q.Set("persistence", string(a.Persistence()))
	if redirectURI != "" {
		q.Set("redirect_uri", redirectURI)
	}
	return a.c.BaseURL() + federatedStartPath + "?" + q.Encode()
}

func (a *Auth) exchange(ctx context.Context, code string) (*session.Identity, error) {
	var resp TokenResponse
	if err := a.c.doJSON(ctx, http.MethodPost, "/api/auth/federated/exchange", false, map[string]string{"code": code}, &resp); err != nil {
		return nil, err
	}
	return a.signedIn(&resp)
}

type callbackResult struct {
	code    string
	errCode string
}

// SignInWithPopup opens the browser on the provider and waits on a loopback
// listener for the handoff code. The listener is returned as the window
// handle for the caller to close.
func (a *Auth) SignInWithPopup(ctx context.Context) (*session.PopupResult, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, &APIError{Code: "auth/popup-blocked", Message: fmt.Sprintf("starting local server: %v", err)}
	}
	port := listener.Addr().(*net.TCPAddr).Port
	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/callback", port)

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		res := callbackResult{code: r.URL.Query().Get("code"), errCode: r.URL.Query().Get("error")}
		if res.code == "" && res.errCode == "" {
			res.errCode = "auth/popup-closed-by-user"
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if res.code != "" {
			fmt.Fprint(w, "<html><body><h2>Signed in to SoulNet</h2><p>You can close this tab and return to the terminal.</p></body></html>")
		} else {
			fmt.Fprint(w, "<html><body><h2>Sign-in was not completed</h2><p>You can close this tab.</p></body></html>")
		}
		select {
		case results <- res:
		default:
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			a.logger.Warn().Err(err).Msg("Loopback listener stopped")
		}
	}()

	if err := a.openBrowser(a.federatedURL(redirectURI)); err != nil {
		server.Close()
		return nil, &APIError{Code: "auth/popup-blocked", Message: fmt.Sprintf("failed to open browser: %v", err)}
	}

	timer := time.NewTimer(popupTimeout)
	defer timer.Stop()

	var res callbackResult
	select {
	case res = <-results:
	case <-timer.C:
		server.Close()
		return nil, &APIError{Code: "auth/popup-closed-by-user", Message: "sign-in timed out"}
	case <-ctx.Done():
		server.Close()
		return nil, ctx.Err()
	}

	if res.code == "" {
		server.Close()
		return nil, &APIError{Code: res.errCode, Message: "sign-in was not completed"}
	}

	identity, err := a.exchange(ctx, res.code)
	if err != nil {
		server.Close()
		return nil, err
	}
	return &session.PopupResult{Identity: identity, Window: server}, nil
}

// SignInWithRedirect prints the provider URL and reads the code shown at the
// end of the flow.
func (a *Auth) SignInWithRedirect(ctx context.Context) error {
	if a.in == nil {
		return &APIError{Code: "auth/operation-not-allowed", Message: "no input available for the redirect flow"}
	}

	fmt.Fprintf(a.out, "Open this URL in a browser to sign in:\n\n  %s\n\nThen paste the code shown at the end: ", a.federatedURL(""))

	type line struct {
		text string
		err  error
	}
	lines := make(chan line, 1)
	go func() {
		text, err := a.in.ReadString('\n')
		lines <- line{text, err}
	}()

	var l line
	select {
	case l = <-lines:
	case <-ctx.Done():
		return ctx.Err()
	}

	code := strings.TrimSpace(l.text)
	if code == "" {
		if l.err != nil && l.err != io.EOF {
			return fmt.Errorf("failed to read code: %w", l.err)
		}
		return &APIError{Code: "auth/popup-closed-by-user", Message: "no code entered"}
	}

	_, err := a.exchange(ctx, code)
	return err
}
