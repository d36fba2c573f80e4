package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitrustux/rustica/pkg/cliutil"
	"github.com/gitrustux/rustica/pkg/rpgerrors"
)

func init() {
	argparser.AddCommand(&cobra.Command{
		Use:   "update-all",
		Short: "Install every available update across all enabled sources",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(cmd)
			if err != nil {
				return err
			}

			result := m.UpdateAll(cmd.Context())
			out := cmd.OutOrStdout()
			for _, name := range result.Succeeded {
				fmt.Fprintf(out, "updated: %s\n", name)
			}
			for _, name := range result.RequiresReboot {
				fmt.Fprintf(out, "reboot required for: %s\n", name)
			}
			for _, failure := range result.Failed {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s: %s\n", failure.Name, failure.Error)
			}

			if len(result.Failed) > 0 {
				return rpgerrors.New(rpgerrors.TransactionFailed, "update-all: %d package(s) failed to update", len(result.Failed))
			}
			return nil
		},
	})
}
