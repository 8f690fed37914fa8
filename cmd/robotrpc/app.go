package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"pkt.systems/robotrpc"
	"pkt.systems/robotrpc/internal/svcfields"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(ctx,
		pslog.WithEnvPrefix("ROBOTRPC_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.WarnLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "robotrpc")
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd := newRootCommand(baseLogger)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "robotrpc: %s\n", err)
		}
		return 1
	}
	return 0
}

// cli carries the state shared by every subcommand of one invocation.
type cli struct {
	v      *viper.Viper
	logger pslog.Logger
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	c := &cli{v: viper.New(), logger: baseLogger}
	return c.rootCommand()
}

func (c *cli) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "robotrpc",
		Short:         "Talk to lease-guarded robot services over gRPC",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.loadConfigFile(); err != nil {
				return err
			}
			return c.applyLogLevel()
		},
	}
	flags := cmd.PersistentFlags()
	registerGlobalFlags(flags)

	c.v.SetEnvPrefix("ROBOTRPC")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	_ = c.v.BindPFlags(flags)

	cmd.AddCommand(
		newVersionCommand(),
		newChunkCommand(c),
		newLeaseCommand(c),
		newMissionCommand(c),
		newTLSCommand(c),
	)
	return cmd
}

func registerGlobalFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "config file (default $HOME/.robotrpc/config.yaml when present)")
	flags.StringP("endpoint", "e", "", "robot gRPC endpoint (host:port)")
	flags.StringP("bundle", "b", "", "client PEM bundle (default $HOME/.robotrpc/client.pem)")
	flags.String("server-name", "", "name to verify in the robot certificate (default endpoint host)")
	flags.Bool("disable-tls", false, "connect without TLS")
	flags.String("username", "", "basic auth username")
	flags.String("password", "", "basic auth password")
	flags.String("chunk-size", humanize.IBytes(uint64(robotrpc.DefaultChunkSize)), "maximum chunk size for chunked calls")
	flags.Bool("chunk-checksums", false, "stamp outgoing chunks with an xxhash64 of the message")
	flags.Duration("timeout", robotrpc.DefaultCallTimeout, "per-call timeout")
	flags.String("client-name", "", "name the lease wallet acts under (default from the lease file or generated)")
	flags.String("lease-file", "", `lease file (default $HOME/.robotrpc/leases.yaml, "none" disables)`)
	flags.String("otlp-endpoint", "", "OTLP trace collector (host:port or grpc/grpcs/http/https URL)")
	flags.String("metrics-listen", "", "serve Prometheus metrics on this address while the command runs")
	flags.Bool("runtime-metrics", false, "include Go runtime metrics (requires --metrics-listen)")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
}

func (c *cli) loadConfigFile() (string, error) {
	cfgPath := strings.TrimSpace(c.v.GetString("config"))
	explicit := cfgPath != ""
	if !explicit {
		candidate, err := robotrpc.DefaultConfigFilePath()
		if err != nil {
			return "", nil
		}
		cfgPath = candidate
	}
	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	c.v.SetConfigFile(expanded)
	if err := c.v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func (c *cli) applyLogLevel() error {
	levelStr := strings.TrimSpace(c.v.GetString("log-level"))
	if levelStr == "" {
		return nil
	}
	level, ok := pslog.ParseLevel(levelStr)
	if !ok {
		return fmt.Errorf("invalid log level %q", levelStr)
	}
	c.logger = c.logger.LogLevel(level)
	return nil
}

// config assembles a robotrpc.Config from flags, environment and the config
// file, filling in the default bundle and lease file paths.
func (c *cli) config() (robotrpc.Config, error) {
	cfg := robotrpc.Config{
		Endpoint:       c.v.GetString("endpoint"),
		ServerName:     c.v.GetString("server-name"),
		Username:       c.v.GetString("username"),
		Password:       c.v.GetString("password"),
		BundlePath:     c.v.GetString("bundle"),
		DisableTLS:     c.v.GetBool("disable-tls"),
		ChunkChecksums: c.v.GetBool("chunk-checksums"),
		CallTimeout:    c.v.GetDuration("timeout"),
		ClientName:     c.v.GetString("client-name"),
		OTLPEndpoint:   c.v.GetString("otlp-endpoint"),
		MetricsListen:  c.v.GetString("metrics-listen"),
		RuntimeMetrics: c.v.GetBool("runtime-metrics"),
	}
	size, err := parseSize(c.v.GetString("chunk-size"))
	if err != nil {
		return cfg, fmt.Errorf("chunk-size: %w", err)
	}
	cfg.ChunkSize = size
	if !cfg.DisableTLS && strings.TrimSpace(cfg.BundlePath) == "" {
		if cfg.BundlePath, err = robotrpc.DefaultBundlePath(); err != nil {
			return cfg, fmt.Errorf("resolve default bundle: %w", err)
		}
	}
	if cfg.BundlePath != "" {
		if cfg.BundlePath, err = expandPath(cfg.BundlePath); err != nil {
			return cfg, err
		}
	}
	if cfg.LeaseFile, err = c.leaseFilePath(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// leaseFilePath returns the configured lease file, the default one, or ""
// when lease persistence is disabled.
func (c *cli) leaseFilePath() (string, error) {
	p := strings.TrimSpace(c.v.GetString("lease-file"))
	switch strings.ToLower(p) {
	case "none", "off":
		return "", nil
	case "":
		return robotrpc.DefaultLeaseFilePath()
	}
	return expandPath(p)
}

// connect sets up telemetry and a session for one command run. The returned
// cleanup closes both and must always be called.
func (c *cli) connect(ctx context.Context) (*robotrpc.Session, func(), error) {
	cfg, err := c.config()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	tel, err := robotrpc.SetupTelemetry(ctx, cfg, c.logger)
	if err != nil {
		return nil, nil, err
	}
	sess, err := robotrpc.Connect(ctx, cfg, robotrpc.WithLogger(c.logger))
	if err != nil {
		shutdownTelemetry(tel)
		return nil, nil, err
	}
	cleanup := func() {
		if err := sess.Close(); err != nil {
			svcfields.WithSubsystem(c.logger, svcfields.CLIRoot).Warn("cli.session.close_failed", "error", err)
		}
		shutdownTelemetry(tel)
	}
	return sess, cleanup, nil
}

func shutdownTelemetry(tel *robotrpc.Telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = tel.Shutdown(ctx)
}

func parseSize(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n == 0 || n > 1<<30 {
		return 0, fmt.Errorf("size %s out of range", s)
	}
	return int(n), nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}
