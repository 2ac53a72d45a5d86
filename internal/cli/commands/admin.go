package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/soulnet-app/soulnet/internal/router"
)

// NewAdminCmd creates the admin command group
func NewAdminCmd(g *Globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administration (admins only)",
	}

	users := &cobra.Command{
		Use:   "users",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			return runOpen(cmd.Context(), app, router.Admin)
		},
	}

	setRole := &cobra.Command{
		Use:       "set-role <user-id> <user|admin>",
		Short:     "Change an account's role",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"user", "admin"},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			return runSetRole(cmd.Context(), app, args[0], args[1])
		},
	}

	var folder string
	var deleteID string
	var yes bool
	images := &cobra.Command{
		Use:   "images",
		Short: "List or delete uploaded images",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			if deleteID != "" {
				return runDeleteUpload(cmd.Context(), app, deleteID, yes)
			}
			path := router.AdminImages
			if folder != "" {
				f, err := folderFor(folder)
				if err != nil {
					return err
				}
				path += "?folder=" + f
			}
			return runOpen(cmd.Context(), app, path)
		},
	}
	images.Flags().StringVar(&folder, "folder", "", "Only this folder: avatars, posts or temp")
	images.Flags().StringVar(&deleteID, "delete", "", "Delete the upload with this id")
	images.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	jobs := &cobra.Command{
		Use:   "jobs",
		Short: "Show background job settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			return runJobs(cmd.Context(), app)
		},
	}

	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Run the temporary upload cleanup now",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.Ready(cmd.Context())
			if err != nil {
				return err
			}
			return runCleanup(cmd.Context(), app)
		},
	}

	cmd.AddCommand(users, setRole, images, jobs, cleanup)
	return cmd
}

// adminGate runs the admin route guard; a non-empty path means the viewer
// was redirected and nothing else should happen.
func (a *App) adminGate(ctx context.Context) (bool, error) {
	redirected, err := a.guardOnly(ctx, router.Admin)
	return redirected == "", err
}

func runSetRole(ctx context.Context, app *App, userID, role string) error {
	if role != "user" && role != "admin" {
		return fmt.Errorf("role must be user or admin, got %q", role)
	}
	if ok, err := app.adminGate(ctx); !ok || err != nil {
		return err
	}

	doc, err := app.Admin.SetRole(ctx, userID, role)
	if err != nil {
		return app.Fail(err)
	}
	fmt.Fprintf(app.Out, "%s\t%s\n", doc.UserID, doc.Role)
	return app.Confirm(ctx, "confirm.role_updated", router.Admin)
}

func runDeleteUpload(ctx context.Context, app *App, id string, yes bool) error {
	if ok, err := app.adminGate(ctx); !ok || err != nil {
		return err
	}
	if !app.confirm(fmt.Sprintf("Delete upload %s", id), yes) {
		fmt.Fprintln(app.Out, "Cancelled.")
		return nil
	}

	if err := app.Admin.DeleteUpload(ctx, id); err != nil {
		return app.Fail(err)
	}
	fmt.Fprintf(app.Out, "✓ Deleted %s\n", id)
	return nil
}

func runJobs(ctx context.Context, app *App) error {
	if ok, err := app.adminGate(ctx); !ok || err != nil {
		return err
	}

	jobs, err := app.Admin.Jobs(ctx)
	if err != nil {
		return app.Fail(err)
	}

	w := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "cleanup schedule\t%s\n", jobs.CleanupSchedule)
	if jobs.NextCleanup != nil {
		fmt.Fprintf(w, "next cleanup\t%s\n", jobs.NextCleanup.Local().Format(time.DateTime))
	}
	fmt.Fprintf(w, "temp upload ttl\t%s\n", jobs.TempUploadTTL)
	return w.Flush()
}

func runCleanup(ctx context.Context, app *App) error {
	if ok, err := app.adminGate(ctx); !ok || err != nil {
		return err
	}

	taskID, err := app.Admin.TriggerCleanup(ctx)
	if err != nil {
		return app.Fail(err)
	}
	fmt.Fprintf(app.Out, "✓ Cleanup queued (task %s)\n", taskID)
	return nil
}
