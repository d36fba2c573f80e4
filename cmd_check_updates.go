package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitrustux/rustica/pkg/cliutil"
)

func init() {
	argparser.AddCommand(&cobra.Command{
		Use:   "check-updates",
		Short: "List packages with a newer version available in any enabled source",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(cmd)
			if err != nil {
				return err
			}
			result := m.CheckUpdates(cmd.Context())
			out := cmd.OutOrStdout()
			if len(result.Available) == 0 {
				fmt.Fprintln(out, "everything is up to date")
			}
			for _, c := range result.Available {
				fmt.Fprintf(out, "%s\t%s -> %s\t(%s)\n", c.Name, c.CurrentVersion, c.NewVersion, c.Kind)
			}
			for _, e := range result.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", e)
			}
			return nil
		},
	})
}
