package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitrustux/rustica/pkg/cliutil"
)

func init() {
	argparser.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Summarize registry and source state",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(cmd)
			if err != nil {
				return err
			}

			s := m.Status()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "packages:        %d (%d active)\n", s.TotalPackages, s.ActivePackages)
			fmt.Fprintf(out, "pending updates: %d\n", s.PendingUpdates)
			fmt.Fprintf(out, "sources:         %d (%d enabled)\n", s.SourcesTotal, s.SourcesEnabled)
			return nil
		},
	})
}
