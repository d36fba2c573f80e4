package main

import (
	"github.com/spf13/cobra"

	"github.com/gitrustux/rustica/pkg/cliutil"
)

func init() {
	argparser.AddCommand(&cobra.Command{
		Use:   "remove NAME",
		Short: "Remove an installed app",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(cmd)
			if err != nil {
				return err
			}
			result := m.Remove(args[0])
			printTransaction(cmd, result)
			return transactionErr(result)
		},
	})
}
