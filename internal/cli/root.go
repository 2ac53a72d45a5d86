package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soulnet-app/soulnet/internal/cli/commands"
	"github.com/soulnet-app/soulnet/internal/cli/update"
	"github.com/soulnet-app/soulnet/internal/logger"
)

var version = "dev" // Will be set during build

// NewRootCmd builds the soulnet command tree around g.
func NewRootCmd(g *commands.Globals) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "soulnet",
		Short: "SoulNet - a small social network in your terminal",
		Long: `SoulNet CLI - read and write posts, manage your profile and,
for administrators, manage accounts and uploaded images.

Pages are addressed by the same paths as the web app, e.g.
"soulnet open /post/<id>".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.InitCLI(g.Verbose)

			// Skip the server check for commands that work offline
			switch cmd.Name() {
			case "version", "theme", "help", "completion":
				return
			}
			app, err := g.App()
			if err != nil {
				return
			}
			update.PrintNotification(cmd.Context(), os.Stderr, app.Client, version)
		},
	}

	rootCmd.PersistentFlags().StringVar(&g.Server, "server", "", "Server URL (or set "+commands.ServerEnv+")")
	rootCmd.PersistentFlags().StringVar(&g.Lang, "lang", "", "Interface language: en or zh-TW (defaults to $LANG)")
	rootCmd.PersistentFlags().BoolVarP(&g.Verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&g.NoWait, "no-wait", false, "Skip the pause after confirmations")

	// Add version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "soulnet version %s\n", version)
		},
	})

	// Add all subcommands
	rootCmd.AddCommand(commands.NewRegisterCmd(g))
	rootCmd.AddCommand(commands.NewLoginCmd(g))
	rootCmd.AddCommand(commands.NewLogoutCmd(g))
	rootCmd.AddCommand(commands.NewWhoamiCmd(g))
	rootCmd.AddCommand(commands.NewPasswdCmd(g))
	rootCmd.AddCommand(commands.NewResetPasswordCmd(g))
	rootCmd.AddCommand(commands.NewProfileCmd(g))
	rootCmd.AddCommand(commands.NewUploadCmd(g))
	rootCmd.AddCommand(commands.NewPostCmd(g))
	rootCmd.AddCommand(commands.NewOpenCmd(g))
	rootCmd.AddCommand(commands.NewNavCmd(g))
	rootCmd.AddCommand(commands.NewThemeCmd(g))
	rootCmd.AddCommand(commands.NewSidebarCmd(g))
	rootCmd.AddCommand(commands.NewDashCmd(g))
	rootCmd.AddCommand(commands.NewAdminCmd(g))

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	g := &commands.Globals{}
	defer g.Close()

	if err := NewRootCmd(g).Execute(); err != nil {
		// Errors shown by a page or form were already printed in context
		if !commands.Reported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return err
	}
	return nil
}
