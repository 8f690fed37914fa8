package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/robotrpc/tlsutil"
)

func newTLSCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tls",
		Short: "Create a development CA and client or robot bundles",
	}
	cmd.AddCommand(newTLSCACommand(), newTLSClientCommand(c), newTLSServerCommand())
	return cmd
}

func newTLSCACommand() *cobra.Command {
	var (
		cn       string
		validity time.Duration
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "ca <out>",
		Short: "Generate an ed25519 certificate authority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ca, err := tlsutil.GenerateCA(cn, validity)
			if err != nil {
				return err
			}
			return writePEM(cmd, args[0], ca.EncodeCA(), force)
		},
	}
	cmd.Flags().StringVar(&cn, "cn", tlsutil.DefaultCAName, "CA common name")
	cmd.Flags().DurationVar(&validity, "validity", 10*365*24*time.Hour, "certificate validity")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newTLSClientCommand(c *cli) *cobra.Command {
	var (
		caPath   string
		cn       string
		validity time.Duration
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "client [out]",
		Short: "Issue a client bundle signed by a CA (default out: the configured bundle path)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ca, err := tlsutil.LoadCA(caPath)
			if err != nil {
				return err
			}
			issued, err := ca.IssueClient(cn, validity)
			if err != nil {
				return err
			}
			bundle, err := tlsutil.EncodeClientBundle(ca.CertPEM, issued.CertPEM, issued.KeyPEM)
			if err != nil {
				return err
			}
			out := argAt(args, 0)
			if out == "" {
				cfg, err := c.config()
				if err != nil {
					return err
				}
				out = cfg.BundlePath
			}
			if out == "" {
				return fmt.Errorf("no output path and no bundle path configured")
			}
			return writePEM(cmd, out, bundle, force)
		},
	}
	cmd.Flags().StringVar(&caPath, "ca", "", "CA bundle written by 'tls ca'")
	cmd.Flags().StringVar(&cn, "cn", tlsutil.DefaultClientName, "client common name")
	cmd.Flags().DurationVar(&validity, "validity", 365*24*time.Hour, "certificate validity")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	_ = cmd.MarkFlagRequired("ca")
	return cmd
}

func newTLSServerCommand() *cobra.Command {
	var (
		caPath   string
		cn       string
		hosts    []string
		validity time.Duration
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "server <out>",
		Short: "Issue a robot server bundle (CA certificate, server certificate and key)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ca, err := tlsutil.LoadCA(caPath)
			if err != nil {
				return err
			}
			issued, err := ca.IssueServer(cn, hosts, validity)
			if err != nil {
				return err
			}
			bundle, err := tlsutil.EncodeClientBundle(ca.CertPEM, issued.CertPEM, issued.KeyPEM)
			if err != nil {
				return err
			}
			return writePEM(cmd, args[0], bundle, force)
		},
	}
	cmd.Flags().StringVar(&caPath, "ca", "", "CA bundle written by 'tls ca'")
	cmd.Flags().StringVar(&cn, "cn", tlsutil.DefaultServerName, "server common name")
	cmd.Flags().StringSliceVar(&hosts, "hosts", []string{"localhost", "127.0.0.1"}, "DNS names and IP addresses")
	cmd.Flags().DurationVar(&validity, "validity", 365*24*time.Hour, "certificate validity")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	_ = cmd.MarkFlagRequired("ca")
	return cmd
}

func writePEM(cmd *cobra.Command, path string, data []byte, force bool) error {
	path, err := expandPath(path)
	if err != nil {
		return err
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
