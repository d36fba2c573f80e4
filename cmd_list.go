package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/gitrustux/rustica/pkg/cliutil"
)

func init() {
	argparser.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List installed packages and their versions",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(cmd)
			if err != nil {
				return err
			}

			list := m.ListInstalled()
			sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

			out := cmd.OutOrStdout()
			for _, info := range list {
				fmt.Fprintf(out, "%s\t%s\t(%s)\tversions: %v\n", info.Name, info.Version, info.Kind, info.AllVersions)
			}
			return nil
		},
	})
}
