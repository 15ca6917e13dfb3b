package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesm/chatline/internal/config"
	"github.com/wesm/chatline/internal/update"
)

// Set via -ldflags at release time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var (
	versionCheck   bool
	versionChecker = func(cacheDir string) *update.Checker { return update.NewChecker(cacheDir) }
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "chatline %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		if !versionCheck {
			return nil
		}

		cacheDir := homeDir
		if cacheDir == "" {
			cacheDir = config.DefaultHome()
		}
		info, err := versionChecker(cacheDir).Check(cmd.Context(), Version, false)
		if err != nil {
			return err
		}
		switch {
		case info == nil:
			fmt.Fprintln(out, "You are running the latest release.")
		case info.IsDevBuild:
			fmt.Fprintf(out, "Latest release is %s (this is a development build).\n", info.LatestVersion)
		default:
			fmt.Fprintf(out, "A newer release is available: %s\n", info.LatestVersion)
		}
		if info != nil && info.ReleaseURL != "" {
			fmt.Fprintf(out, "  %s\n", info.ReleaseURL)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check GitHub for a newer release")
}
