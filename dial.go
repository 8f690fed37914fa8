package robotrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"pkt.systems/pslog"

	"pkt.systems/robotrpc/client"
	"pkt.systems/robotrpc/internal/svcfields"
	"pkt.systems/robotrpc/lease"
	"pkt.systems/robotrpc/leasefile"
	"pkt.systems/robotrpc/mission"
	"pkt.systems/robotrpc/tlsutil"
)

// Dial validates cfg and returns a gRPC connection to the robot. Transport
// security comes from the configured client bundle unless DisableTLS is set.
// Basic credentials are attached to every call when a username is
// configured. The connection is established lazily on first use.
func Dial(cfg Config, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := make([]grpc.DialOption, 0, len(extra)+2)
	if cfg.DisableTLS {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		bundle, err := tlsutil.LoadClientBundle(cfg.BundlePath)
		if err != nil {
			return nil, fmt.Errorf("robotrpc: %w", err)
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(bundle.TLSConfig(serverName(cfg)))))
	}
	if cfg.Username != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(newBasicCredentials(cfg.Username, cfg.Password, !cfg.DisableTLS)))
	}
	opts = append(opts, extra...)
	conn, err := grpc.NewClient(cfg.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("robotrpc: dial %s: %w", cfg.Endpoint, err)
	}
	return conn, nil
}

func serverName(cfg Config) string {
	if cfg.ServerName != "" {
		return cfg.ServerName
	}
	host, _, err := net.SplitHostPort(cfg.Endpoint)
	if err != nil {
		return ""
	}
	return host
}

// Session bundles a connection with the dispatch client, the mission client
// and the wallet they share.
type Session struct {
	Conn    *grpc.ClientConn
	RPC     *client.Client
	Mission *mission.Client
	Wallet  *lease.Wallet

	leaseFile string
	watcher   *leasefile.Watcher
	logger    pslog.Logger
}

// SessionOption customises Connect.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	logger     pslog.Logger
	dialOpts   []grpc.DialOption
	clientOpts []client.Option
}

// WithLogger supplies the base logger for the session's components.
func WithLogger(logger pslog.Logger) SessionOption {
	return func(o *sessionOptions) {
		o.logger = logger
	}
}

// WithDialOptions appends gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) SessionOption {
	return func(o *sessionOptions) {
		o.dialOpts = append(o.dialOpts, opts...)
	}
}

// WithClientOptions appends dispatch client options. They are applied after
// the options derived from the Config.
func WithClientOptions(opts ...client.Option) SessionOption {
	return func(o *sessionOptions) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}

// Connect dials the robot and assembles a Session. When cfg.LeaseFile is set
// and exists it is imported into the wallet, and when cfg.WatchLeaseFile is
// set the file keeps being imported on change until ctx ends or the session
// is closed.
func Connect(ctx context.Context, cfg Config, opts ...SessionOption) (*Session, error) {
	o := sessionOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = pslog.NoopLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, err := Dial(cfg, o.dialOpts...)
	if err != nil {
		return nil, err
	}
	logger := svcfields.WithSubsystem(o.logger, svcfields.Session)
	clientName := cfg.ClientName
	if clientName == "" {
		clientName = lease.DefaultClientName(DefaultClientName)
	}
	wallet := lease.NewWallet(
		lease.WithClientName(clientName),
		lease.WithWalletLogger(o.logger),
	)
	s := &Session{
		Conn:      conn,
		Wallet:    wallet,
		leaseFile: cfg.LeaseFile,
		logger:    logger,
	}
	if s.leaseFile != "" {
		if cfg.WatchLeaseFile {
			s.watcher, err = leasefile.Watch(ctx, s.leaseFile, wallet, leasefile.WithLogger(o.logger))
		} else {
			err = s.importLeaseFile()
		}
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	clientOpts := append([]client.Option{
		client.WithWallet(wallet),
		client.WithLogger(o.logger),
		client.WithChunkSize(cfg.ChunkSize),
		client.WithCallTimeout(cfg.CallTimeout),
		client.WithChunkChecksums(cfg.ChunkChecksums),
	}, o.clientOpts...)
	s.RPC = client.New(conn, clientOpts...)
	s.Mission = mission.New(s.RPC)
	logger.Debug("session.connected",
		"endpoint", cfg.Endpoint,
		"client", clientName,
		"tls", !cfg.DisableTLS,
		"leases", wallet.Len(),
	)
	return s, nil
}

func (s *Session) importLeaseFile() error {
	res, err := leasefile.Import(s.leaseFile, s.Wallet)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("robotrpc: %w", err)
	}
	s.logger.Debug("session.leases.imported", "path", s.leaseFile, "applied", res.Applied, "stale", res.Stale)
	return nil
}

// Close stops the lease file watcher, merges the wallet into the lease file
// when one is configured, and closes the connection. Newer leases written to
// the file by another session are kept.
func (s *Session) Close() error {
	var errs []error
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.leaseFile != "" {
		res, err := leasefile.Merge(s.leaseFile, s.Wallet)
		if err != nil {
			errs = append(errs, fmt.Errorf("robotrpc: %w", err))
		} else {
			s.logger.Debug("session.leases.saved",
				"path", s.leaseFile,
				"leases", s.Wallet.Len(),
				"merged", res.Applied,
				"stale", res.Stale,
			)
		}
	}
	if err := s.RPC.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.Wallet.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.Conn.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
