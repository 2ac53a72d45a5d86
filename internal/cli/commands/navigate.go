package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"

	"github.com/soulnet-app/soulnet/internal/router"
)

// NewOpenCmd creates the open command
func NewOpenCmd(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "open [path]",
		Short: "Render a page, e.g. /, /profile or /post/<id>",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			path := router.Home
			if len(args) == 1 {
				path = args[0]
			}
			return runOpen(cmd.Context(), app, path)
		},
	}
}

func runOpen(ctx context.Context, app *App, path string) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	res, err := app.Render(ctx, path)
	if err != nil {
		return err
	}
	if res.Err != nil {
		return errReported{res.Err}
	}
	return nil
}

// NewNavCmd creates the nav command
func NewNavCmd(g *Globals) *cobra.Command {
	var compact bool

	cmd := &cobra.Command{
		Use:   "nav",
		Short: "Show the navigation menu for the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			return runNav(app, compact)
		},
	}

	cmd.Flags().BoolVar(&compact, "mobile", false, "Show the narrow-screen menu")

	return cmd
}

func runNav(app *App, mobile bool) error {
	s := app.Manager.State()
	if mobile {
		fmt.Fprintln(app.Out, app.Chrome.MobileMenu(s, ""))
		return nil
	}
	fmt.Fprintln(app.Out, app.Chrome.Sidebar(s, ""))
	return nil
}

// NewThemeCmd creates the theme command
func NewThemeCmd(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:       "theme [toggle]",
		Short:     "Show or toggle the light/dark theme",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"toggle"},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.App()
			if err != nil {
				return err
			}
			return runTheme(app, len(args) == 1)
		},
	}
}

func runTheme(app *App, toggle bool) error {
	if toggle {
		if _, err := app.Theme.Toggle(); err != nil {
			return fmt.Errorf("failed to save theme: %w", err)
		}
	}
	label := "header.theme_light"
	if app.Theme.Dark() {
		label = "header.theme_dark"
	}
	fmt.Fprintln(app.Out, app.Tr.T(label))
	return nil
}

// NewSidebarCmd creates the sidebar command
func NewSidebarCmd(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:       "sidebar [toggle]",
		Short:     "Show or toggle the collapsed sidebar",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"toggle"},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			return runSidebar(app, len(args) == 1)
		},
	}
}

func runSidebar(app *App, toggle bool) error {
	collapsed := app.Manager.State().SidebarCollapsed
	if toggle {
		var err error
		collapsed, err = app.Manager.ToggleSidebar()
		if err != nil {
			return fmt.Errorf("failed to save sidebar state: %w", err)
		}
	}
	state := "expanded"
	if collapsed {
		state = "collapsed"
	}
	fmt.Fprintf(app.Out, "sidebar: %s\n", state)
	fmt.Fprintln(app.Out, app.Chrome.Sidebar(app.Manager.State(), ""))
	return nil
}

// NewDashCmd creates the dash command
func NewDashCmd(g *Globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dash [path]",
		Short: "Open the web page shell in browser",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.App()
			if err != nil {
				return err
			}
			path := router.Home
			if len(args) == 1 {
				path = args[0]
			}
			return runDash(app, path)
		},
	}

	return cmd
}

func runDash(app *App, path string) error {
	dashboardURL := app.Client.BaseURL() + "/app" + "/" + strings.TrimPrefix(path, "/")

	fmt.Fprintf(app.Out, "Opening %s\n", dashboardURL)

	openBrowser := app.openBrowser
	if openBrowser == nil {
		openBrowser = open.Start
	}
	if err := openBrowser(dashboardURL); err != nil {
		return fmt.Errorf("failed to open browser: %w\nPlease visit: %s", err, dashboardURL)
	}

	return nil
}
