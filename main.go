// Command rpg manages versioned packages on a small operating system.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitrustux/rustica/pkg/cliutil"
)

var argparser = &cobra.Command{
	Use:   "rpg {[flags]|SUBCOMMAND...}",
	Short: "Install, update, and roll back versioned packages",

	Args: cliutil.OnlySubcommands,
	RunE: cliutil.RunSubcommands,

	SilenceErrors: true, // main() will handle this after .ExecuteContext() returns
	SilenceUsage:  true, // our FlagErrorFunc will handle it
}

func init() {
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(cliutil.HelpTemplate)
}

func main() {
	ctx := context.Background()
	os.Exit(run(ctx))
}

func run(ctx context.Context) int {
	if err := argparser.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(argparser.ErrOrStderr(), "%s: error: %v\n", argparser.CommandPath(), err)
		return exitCodeFor(err)
	}
	return 0
}
