package svcfields

import (
	"strings"

	"pkt.systems/pslog"
)

// SubsystemKey is the canonical key for subsystem tags.
const SubsystemKey = pslog.TrustedString("sys")

// Subsystems used across the SDK.
const (
	ClientSDK   = "client.sdk"
	LeaseWallet = "lease.wallet"
	LeaseFile   = "lease.file"
	Telemetry   = "telemetry"
	CLIRoot     = "cli.root"
	Session     = "session"
)

// Subsystem builds a dot-delimited subsystem path from the supplied parts while
// skipping empty fragments.
func Subsystem(parts ...string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, ". ")
		if part == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, ".")
}

// WithSubsystem attaches a subsystem tag to every log entry.
func WithSubsystem(logger pslog.Logger, subsystem string) pslog.Logger {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	subsystem = strings.Trim(subsystem, ". ")
	if subsystem == "" {
		return logger
	}
	return logger.With(SubsystemKey, subsystem)
}

// Ensure returns a logger for base tagged with subsystem. Nil yields a
// disabled logger; a Base that is not a full Logger is returned untagged.
func Ensure(base pslog.Base, subsystem string) pslog.Base {
	if base == nil {
		return pslog.NoopLogger()
	}
	if full, ok := base.(pslog.Logger); ok {
		return WithSubsystem(full, subsystem)
	}
	return base
}
