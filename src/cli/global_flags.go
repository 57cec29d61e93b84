package cli

import (
	"github.com/spf13/cobra"

	"odf-cleanup/src/safety"
)

// addGlobalFlags adds persistent safety-related flags to the root command.
// Dry-run is the default; mutations only happen with an explicit
// --dry-run=false.
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("dry-run", true, "Show planned actions without making changes")
	cmd.PersistentFlags().BoolP("yes", "y", false, "Assume 'yes' to prompts and run non-interactively")
	cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

// getSafetyOptions reads global flags into a safety.Options struct.
func getSafetyOptions(cmd *cobra.Command) safety.Options {
	dry, _ := cmd.Root().PersistentFlags().GetBool("dry-run")
	yes, _ := cmd.Root().PersistentFlags().GetBool("yes")
	return safety.Options{DryRun: dry, Yes: yes}
}

func getDebug(cmd *cobra.Command) bool {
	debug, _ := cmd.Root().PersistentFlags().GetBool("debug")
	return debug
}
