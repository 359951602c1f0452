package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmullan/gslimp3/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "slimp3 %s (%s)\n", version.Version, version.Commit)
		},
	}
}
