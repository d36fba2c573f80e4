package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitrustux/rustica/pkg/manager"
	"github.com/gitrustux/rustica/pkg/rpgerrors"
	"github.com/gitrustux/rustica/pkg/transaction"
)

// openManager loads the registry, sources, and config from their default
// on-disk locations, the façade every subcommand in this file drives.
func openManager(cmd *cobra.Command) (*manager.Manager, error) {
	return manager.Open()
}

// printTransaction writes the activated/pending/reboot summary for a
// successful transaction. Failures are left to the caller, which returns
// result.Err so main's single error handler reports and exit-codes it.
func printTransaction(cmd *cobra.Command, result *transaction.Result) {
	if result.Outcome != transaction.Success {
		return
	}
	out := cmd.OutOrStdout()
	if len(result.Activated) > 0 {
		fmt.Fprintf(out, "activated: %v\n", result.Activated)
	}
	if len(result.Pending) > 0 {
		fmt.Fprintf(out, "pending (reboot required): %v\n", result.Pending)
	}
	if result.RequiresReboot {
		fmt.Fprintln(out, "reboot required")
	}
}

var errTransactionFailed = rpgerrors.New(rpgerrors.TransactionFailed, "transaction failed with no error detail")

// transactionErr returns the error to propagate from a RunE given the
// transaction's terminal result.
func transactionErr(result *transaction.Result) error {
	if result.Outcome == transaction.Success {
		return nil
	}
	if result.Err != nil {
		return result.Err
	}
	return errTransactionFailed
}
