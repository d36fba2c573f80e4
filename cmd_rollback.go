package main

import (
	"github.com/spf13/cobra"

	"github.com/gitrustux/rustica/pkg/cliutil"
	"github.com/gitrustux/rustica/pkg/rpgerrors"
	"github.com/gitrustux/rustica/pkg/version"
)

func init() {
	argparser.AddCommand(&cobra.Command{
		Use:   "rollback NAME [VERSION]",
		Short: "Reactivate a previously installed version of a package (NAME may be \"system\")",
		Args:  cliutil.WrapPositionalArgs(cobra.RangeArgs(1, 2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(cmd)
			if err != nil {
				return err
			}

			var target *version.Version
			if len(args) == 2 {
				v, err := version.Parse(args[1])
				if err != nil {
					return rpgerrors.Wrap(rpgerrors.InvalidVersion, err, "parsing rollback target %q", args[1])
				}
				target = &v
			}

			result := m.Rollback(args[0], target)
			printTransaction(cmd, result)
			return transactionErr(result)
		},
	})
}
