package commands

import (
	"context"

	"github.com/soulnet-app/soulnet/internal/logger"
)

// Globals holds the persistent flags and builds the App on first use.
type Globals struct {
	Server  string
	Lang    string
	Verbose bool
	NoWait  bool

	// NewApp builds the App; tests replace it.
	NewApp func(Options) (*App, error)

	app *App
}

// App returns the App without waiting for the session.
func (g *Globals) App() (*App, error) {
	if g.app != nil {
		return g.app, nil
	}
	newApp := g.NewApp
	if newApp == nil {
		newApp = NewApp
	}
	app, err := newApp(Options{
		Server: g.Server,
		Lang:   g.Lang,
		NoWait: g.NoWait,
		Logger: logger.Component("cli"),
	})
	if err != nil {
		return nil, err
	}
	g.app = app
	return app, nil
}

// Ready returns the App once the session has resolved.
func (g *Globals) Ready(ctx context.Context) (*App, error) {
	app, err := g.App()
	if err != nil {
		return nil, err
	}
	if _, err := app.Ready(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

// Close releases the App if one was built.
func (g *Globals) Close() {
	if g.app != nil {
		g.app.Close()
		g.app = nil
	}
}
