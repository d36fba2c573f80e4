package main

import (
	"github.com/spf13/cobra"

	"github.com/gitrustux/rustica/pkg/cliutil"
	"github.com/gitrustux/rustica/pkg/rpgerrors"
	"github.com/gitrustux/rustica/pkg/version"
)

func init() {
	argparser.AddCommand(&cobra.Command{
		Use:   "install NAME [VERSION]",
		Short: "Download, verify, and activate a package",
		Args:  cliutil.WrapPositionalArgs(cobra.RangeArgs(1, 2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(cmd)
			if err != nil {
				return err
			}

			var ver *version.Version
			if len(args) == 2 {
				v, err := version.Parse(args[1])
				if err != nil {
					return rpgerrors.Wrap(rpgerrors.InvalidVersion, err, "parsing requested version %q", args[1])
				}
				ver = &v
			}

			result := m.Install(cmd.Context(), args[0], ver, "")
			printTransaction(cmd, result)
			return transactionErr(result)
		},
	})
}
