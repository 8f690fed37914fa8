package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pkt.systems/robotrpc/api"
	"pkt.systems/robotrpc/lease"
	"pkt.systems/robotrpc/leasefile"
)

func newLeaseCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lease",
		Short: "Inspect and edit the local lease file",
		Long: `The lease file holds the leases later commands present to the robot.
Every connected command imports it on start and writes the reconciled wallet
back when it finishes.`,
	}
	cmd.AddCommand(
		newLeaseShowCommand(c),
		newLeaseSetCommand(c),
		newLeaseReleaseCommand(c),
		newLeaseImportCommand(c),
		newLeaseExportCommand(c),
	)
	return cmd
}

// openWallet loads the configured lease file into a fresh wallet. A missing
// file yields an empty wallet.
func (c *cli) openWallet() (*lease.Wallet, string, error) {
	path, err := c.leaseFilePath()
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		return nil, "", errors.New("lease file disabled")
	}
	name := strings.TrimSpace(c.v.GetString("client-name"))
	f, err := leasefile.Load(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		f = nil
	case err != nil:
		return nil, "", err
	}
	if name == "" && f != nil {
		name = f.Client
	}
	w := lease.NewWallet(lease.WithClientName(name), lease.WithWalletLogger(c.logger))
	if f != nil {
		if _, err := leasefile.Apply(f, w); err != nil {
			return nil, "", err
		}
	}
	return w, path, nil
}

func newLeaseShowCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List the leases in the lease file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, path, err := c.openWallet()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "file:   %s\nclient: %s\n\n", path, w.ClientName())
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RESOURCE\tSEQUENCE\tCLIENTS\tUPDATED")
			for _, e := range w.Snapshot() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					e.Lease.Resource,
					formatSequence(e.Lease.Sequence),
					strings.Join(e.Lease.ClientNames, ","),
					humanize.Time(e.UpdatedAt),
				)
			}
			return tw.Flush()
		},
	}
}

func newLeaseSetCommand(c *cli) *cobra.Command {
	var clients []string
	cmd := &cobra.Command{
		Use:   "set <resource> <sequence>",
		Short: "Record a lease acquired out of band",
		Long: `Record a lease acquired outside robotrpc, replacing any lease held for
the resource. The sequence is a dot or comma separated list of epochs, root
first, for example 4.1.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := parseSequence(args[1])
			if err != nil {
				return err
			}
			w, path, err := c.openWallet()
			if err != nil {
				return err
			}
			if len(clients) == 0 {
				clients = []string{w.ClientName()}
			}
			l := api.Lease{Resource: args[0], Sequence: seq, ClientNames: clients}
			if err := w.Add(l); err != nil {
				return err
			}
			if err := leasefile.Save(path, w); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", l)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&clients, "clients", nil, "client names carried by the lease (default the wallet's client name)")
	return cmd
}

func newLeaseReleaseCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "release <resource>...",
		Short: "Forget leases in the lease file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, path, err := c.openWallet()
			if err != nil {
				return err
			}
			for _, r := range args {
				w.Release(r)
			}
			return leasefile.Save(path, w)
		},
	}
}

func newLeaseImportCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Merge another lease file into the lease file",
		Long:  "Merge another lease file. Leases older than the ones already held are skipped.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, path, err := c.openWallet()
			if err != nil {
				return err
			}
			src, err := expandPath(args[0])
			if err != nil {
				return err
			}
			res, err := leasefile.Import(src, w)
			if err != nil {
				return err
			}
			if err := leasefile.Save(path, w); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d leases, skipped %d stale\n", res.Applied, res.Stale)
			return nil
		},
	}
}

func newLeaseExportCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write the lease file contents to another file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, _, err := c.openWallet()
			if err != nil {
				return err
			}
			dst, err := expandPath(args[0])
			if err != nil {
				return err
			}
			if err := leasefile.Save(dst, w); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d leases to %s\n", w.Len(), dst)
			return nil
		},
	}
}

func parseSequence(s string) ([]uint64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '.' || r == ',' })
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty lease sequence")
	}
	seq := make([]uint64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("lease sequence %q: %w", s, err)
		}
		seq = append(seq, v)
	}
	return seq, nil
}

func formatSequence(seq []uint64) string {
	parts := make([]string, len(seq))
	for i, v := range seq {
		parts[i] = strconv.FormatUint(v, 10)
	}
	return strings.Join(parts, ".")
}
