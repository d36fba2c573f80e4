package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitrustux/rustica/pkg/cliutil"
	"github.com/gitrustux/rustica/pkg/rpgerrors"
	"github.com/gitrustux/rustica/pkg/sources"
)

func init() {
	sourcesCmd := &cobra.Command{
		Use:   "sources {[flags]|SUBCOMMAND...}",
		Short: "Manage package mirror sources",
		Args:  cliutil.OnlySubcommands,
		RunE:  cliutil.RunSubcommands,
	}

	sourcesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured sources",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcs, err := sources.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range srcs.Sources {
				state := "enabled"
				if !s.Enabled {
					state = "disabled"
				}
				fmt.Fprintf(out, "%s\t%s\t%s\tpriority=%d\t%s\n", s.Name, s.Kind, s.URL, s.Priority, state)
			}
			return nil
		},
	})

	sourcesCmd.AddCommand(&cobra.Command{
		Use:   "add NAME URL KIND [PRIORITY]",
		Short: "Add or replace a source",
		Args:  cliutil.WrapPositionalArgs(cobra.RangeArgs(3, 4)),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcs, err := sources.Load()
			if err != nil {
				return err
			}
			kind := sources.Kind(args[2])
			var s sources.Source
			if len(args) == 4 {
				priority, perr := parsePriority(args[3])
				if perr != nil {
					return perr
				}
				s = sources.WithPriority(args[0], args[1], kind, priority)
			} else {
				s = sources.New(args[0], args[1], kind)
			}
			if err := s.Validate(); err != nil {
				return err
			}
			srcs.Add(s)
			return srcs.Save()
		},
	})

	sourcesCmd.AddCommand(&cobra.Command{
		Use:   "remove NAME",
		Short: "Remove a source",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcs, err := sources.Load()
			if err != nil {
				return err
			}
			srcs.Remove(args[0])
			return srcs.Save()
		},
	})

	sourcesCmd.AddCommand(&cobra.Command{
		Use:   "enable NAME",
		Short: "Enable a source",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE:  toggleSource(true),
	})

	sourcesCmd.AddCommand(&cobra.Command{
		Use:   "disable NAME",
		Short: "Disable a source",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE:  toggleSource(false),
	})

	argparser.AddCommand(sourcesCmd)
}

func toggleSource(enabled bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		srcs, err := sources.Load()
		if err != nil {
			return err
		}
		var ok bool
		if enabled {
			ok = srcs.Enable(args[0])
		} else {
			ok = srcs.Disable(args[0])
		}
		if !ok {
			return rpgerrors.New(rpgerrors.Other, "no such source: %s", args[0])
		}
		return srcs.Save()
	}
}

func parsePriority(raw string) (uint32, error) {
	var p uint32
	if _, err := fmt.Sscanf(raw, "%d", &p); err != nil {
		return 0, rpgerrors.Wrap(rpgerrors.Other, err, "parsing priority %q", raw)
	}
	return p, nil
}
