package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd returns the root cobra command for the odf-cleanup CLI.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "odf-cleanup",
		Short:         "Remove a tenant's volumes and clone snapshots from an ODF/RBD pool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	addGlobalFlags(cmd)

	// Subcommands
	cmd.AddCommand(newVersionCmd(stdout))
	cmd.AddCommand(newCleanupCmd(stdout, stderr))

	return cmd
}

// Execute runs the CLI with the process stdio.
func Execute() int {
	root := NewRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		// cobra already wrote the error to stderr if appropriate
		// return non-zero exit code
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
