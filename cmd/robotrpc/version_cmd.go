package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/robotrpc/internal/version"
)

func newVersionCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the robotrpc version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "%s %s\n", info.Module, info.Version); err != nil {
				return err
			}
			if !verbose {
				return nil
			}
			if info.Revision != "" {
				fmt.Fprintf(out, "revision: %s\n", info.Revision)
			}
			if !info.Time.IsZero() {
				fmt.Fprintf(out, "built:    %s\n", info.Time.Format(time.RFC3339))
			}
			if info.Dirty {
				fmt.Fprintln(out, "modified: true")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&verbose, "verbose", false, "include VCS revision and time")
	return cmd
}
