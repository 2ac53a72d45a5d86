package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soulnet-app/soulnet/internal/router"
	"github.com/soulnet-app/soulnet/internal/session"
)

type registerOptions struct {
	email, password, name string
}

// NewRegisterCmd creates the register command
func NewRegisterCmd(g *Globals) *cobra.Command {
	var opts registerOptions

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a SoulNet account",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			return runRegister(cmd.Context(), app, opts)
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "Email address")
	cmd.Flags().StringVar(&opts.password, "password", "", "Password (will prompt if not provided)")
	cmd.Flags().StringVar(&opts.name, "name", "", "Display name")

	return cmd
}

func runRegister(ctx context.Context, app *App, opts registerOptions) error {
	if err := app.ask("Email", "email", &opts.email); err != nil {
		return err
	}
	if err := app.askPassword("Password", "password", &opts.password); err != nil {
		return err
	}

	if _, err := app.Manager.Register(ctx, opts.email, opts.password, opts.name); err != nil {
		return app.Fail(err)
	}
	return app.Confirm(ctx, "confirm.register", router.Home)
}

type loginOptions struct {
	email, password string
	remember        bool
	google          bool
}

// NewLoginCmd creates the login command
func NewLoginCmd(g *Globals) *cobra.Command {
	var opts loginOptions

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to SoulNet",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			return runLogin(cmd.Context(), app, opts)
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "Email address (or set SOULNET_EMAIL)")
	cmd.Flags().StringVar(&opts.password, "password", "", "Password (or set SOULNET_PASSWORD, will prompt if not provided)")
	cmd.Flags().BoolVar(&opts.remember, "remember", false, "Keep the session across restarts")
	cmd.Flags().BoolVar(&opts.google, "google", false, "Sign in with Google in the browser")

	return cmd
}

func runLogin(ctx context.Context, app *App, opts loginOptions) error {
	var err error
	if opts.google {
		_, err = app.Manager.LoginWithFederatedProvider(ctx, opts.remember)
	} else {
		if opts.email == "" {
			opts.email = os.Getenv("SOULNET_EMAIL")
		}
		if opts.password == "" {
			opts.password = os.Getenv("SOULNET_PASSWORD")
		}
		if err := app.ask("Email", "email", &opts.email); err != nil {
			return err
		}
		if err := app.askPassword("Password", "password", &opts.password); err != nil {
			return err
		}
		_, err = app.Manager.Login(ctx, opts.email, opts.password, opts.remember)
	}
	if err != nil {
		return app.Fail(err)
	}

	// The call result is informational; wait for the subscription to agree
	// and for the role so an admin redirect target is not bounced home.
	if _, err := app.waitFor(ctx, func(s session.State) bool { return s.Authenticated() }); err != nil {
		return err
	}
	if _, err := app.settled(ctx); err != nil {
		return err
	}
	return app.Confirm(ctx, "confirm.login", app.takeRedirect())
}

// NewLogoutCmd creates the logout command
func NewLogoutCmd(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			return runLogout(cmd.Context(), app)
		},
	}
}

func runLogout(ctx context.Context, app *App) error {
	if err := app.Manager.Logout(ctx); err != nil {
		return app.Fail(err)
	}
	return app.Confirm(ctx, "confirm.logout", router.Home)
}

// NewWhoamiCmd creates the whoami command
func NewWhoamiCmd(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account and its role",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			return runWhoami(cmd.Context(), app)
		},
	}
}

func runWhoami(ctx context.Context, app *App) error {
	s, err := app.settled(ctx)
	if err != nil {
		return err
	}
	if s.Identity == nil {
		fmt.Fprintln(app.Out, app.Tr.T("status.signed_out"))
		return nil
	}

	name := s.Identity.DisplayName
	if name == "" {
		name = s.Identity.Email
	}
	fmt.Fprintln(app.Out, app.Tr.T("status.signed_in_as", map[string]any{"Name": name}))
	fmt.Fprintf(app.Out, "  %s\n", s.Identity.Email)
	fmt.Fprintf(app.Out, "  %s\n", app.Tr.T("status.role", map[string]any{"Role": string(s.Role)}))
	fmt.Fprintf(app.Out, "  persistence: %s\n", s.Persistence)
	return nil
}

type passwdOptions struct {
	current, next string
}

// NewPasswdCmd creates the passwd command
func NewPasswdCmd(g *Globals) *cobra.Command {
	var opts passwdOptions

	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change your password",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			return runPasswd(cmd.Context(), app, opts)
		},
	}

	cmd.Flags().StringVar(&opts.current, "current", "", "Current password (will prompt if not provided)")
	cmd.Flags().StringVar(&opts.next, "new", "", "New password (will prompt if not provided)")

	return cmd
}

func runPasswd(ctx context.Context, app *App, opts passwdOptions) error {
	if _, err := app.requireIdentity(app.Manager.State()); err != nil {
		return err
	}
	if err := app.askPassword("Current password", "current", &opts.current); err != nil {
		return err
	}
	if err := app.askPassword("New password", "new", &opts.next); err != nil {
		return err
	}

	if err := app.Manager.UpdatePassword(ctx, opts.current, opts.next); err != nil {
		return app.Fail(err)
	}
	return app.Confirm(ctx, "confirm.password_changed", router.Profile)
}

type resetOptions struct {
	email, token, password string
}

// NewResetPasswordCmd creates the reset-password command
func NewResetPasswordCmd(g *Globals) *cobra.Command {
	var opts resetOptions

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Request a password reset email, or confirm one with --token",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			return runResetPassword(cmd.Context(), app, opts)
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "Email address to send the reset link to")
	cmd.Flags().StringVar(&opts.token, "token", "", "Reset token from the email")
	cmd.Flags().StringVar(&opts.password, "password", "", "New password when confirming (will prompt if not provided)")

	return cmd
}

func runResetPassword(ctx context.Context, app *App, opts resetOptions) error {
	if opts.token != "" {
		if err := app.askPassword("New password", "password", &opts.password); err != nil {
			return err
		}
		if err := app.Auth.ConfirmPasswordReset(ctx, opts.token, opts.password); err != nil {
			return app.Fail(session.MapAuthError(err))
		}
		return app.Confirm(ctx, "confirm.password_changed", router.Sign)
	}

	if err := app.ask("Email", "email", &opts.email); err != nil {
		return err
	}
	if err := app.Manager.ResetPasswordByEmail(ctx, opts.email); err != nil {
		return app.Fail(err)
	}
	return app.Confirm(ctx, "confirm.reset_sent", router.Sign)
}
