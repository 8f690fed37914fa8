// Package status folds transport outcomes, lease feedback and per-service
// result codes into one error classification.
//
// Every call issued through the client package resolves to either a nil error
// or a *Error carrying exactly one Class. Classes are comparable with
// errors.Is:
//
//	if errors.Is(err, status.LeaseStale) {
//	    // another call advanced the lease first
//	}
package status

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Class is the top-level failure classification.
type Class uint8

const (
	OK Class = iota
	// LeaseUnavailable: no cached lease for a required resource.
	LeaseUnavailable
	// LeaseStale: the lease epoch is older than the one currently known.
	LeaseStale
	// LeaseNotOwned: the server denied exclusive control.
	LeaseNotOwned
	// ChunkOutOfOrder: a chunk arrived with an unexpected index.
	ChunkOutOfOrder
	// ChunkTruncated: the stream ended before the declared total size.
	ChunkTruncated
	// ChunkMalformed: inconsistent sizes, checksum mismatch or undecodable payload.
	ChunkMalformed
	// TransportFailure: the underlying call failed.
	TransportFailure
	// DomainStatusFailure: the call succeeded but the service reported failure.
	DomainStatusFailure
)

var classNames = [...]string{
	OK:                  "ok",
	LeaseUnavailable:    "lease_unavailable",
	LeaseStale:          "lease_stale",
	LeaseNotOwned:       "lease_not_owned",
	ChunkOutOfOrder:     "chunk_out_of_order",
	ChunkTruncated:      "chunk_truncated",
	ChunkMalformed:      "chunk_malformed",
	TransportFailure:    "transport_failure",
	DomainStatusFailure: "domain_status_failure",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// Error lets a Class act as an errors.Is target.
func (c Class) Error() string { return "robotrpc: " + c.String() }

// IsLease reports whether c is one of the lease classes.
func (c Class) IsLease() bool {
	return c == LeaseUnavailable || c == LeaseStale || c == LeaseNotOwned
}

// IsChunk reports whether c is one of the reassembly classes.
func (c Class) IsChunk() bool {
	return c == ChunkOutOfOrder || c == ChunkTruncated || c == ChunkMalformed
}

// Code is a service-specific result code.
type Code interface {
	// Domain names the code space, e.g. "LoadMissionResponse_Status".
	Domain() string
	Value() int32
	OK() bool
	String() string
}

// Error is the structured failure delivered for a call.
type Error struct {
	Class Class
	// Domain and Code identify the originating code space and raw value when
	// the failure came from a server-reported code.
	Domain string
	Code   int32
	// Resource names the lease resource involved, if any.
	Resource string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("robotrpc: ")
	sb.WriteString(e.Class.String())
	if e.Domain != "" {
		fmt.Fprintf(&sb, " [%s=%d]", e.Domain, e.Code)
	}
	if e.Resource != "" {
		fmt.Fprintf(&sb, " resource=%s", e.Resource)
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the error's Class.
func (e *Error) Is(target error) bool {
	c, ok := target.(Class)
	return ok && c == e.Class
}

// New returns an Error of class c.
func New(c Class, detail string) *Error {
	return &Error{Class: c, Detail: detail}
}

// Newf returns an Error of class c with a formatted detail.
func Newf(c Class, format string, args ...any) *Error {
	return &Error{Class: c, Detail: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error of class c wrapping err.
func Wrap(c Class, err error, detail string) *Error {
	return &Error{Class: c, Detail: detail, Err: err}
}

// ClassOf returns the class carried by err: OK for nil, TransportFailure for
// errors that were never classified.
func ClassOf(err error) Class {
	if err == nil {
		return OK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Class
	}
	return TransportFailure
}

// FromTransport classifies an error returned by the transport. Nil stays nil
// and errors that already carry a class pass through unchanged.
func FromTransport(err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	out := &Error{Class: TransportFailure, Err: err}
	switch {
	case errors.Is(err, context.Canceled):
		out.Code = int32(codes.Canceled)
	case errors.Is(err, context.DeadlineExceeded):
		out.Code = int32(codes.DeadlineExceeded)
	default:
		if st, ok := grpcstatus.FromError(err); ok {
			out.Code = int32(st.Code())
		} else {
			out.Code = int32(codes.Unknown)
		}
	}
	out.Domain = "grpc"
	return out
}

// GRPCCode returns the gRPC code of a transport failure, codes.OK for nil and
// codes.Unknown for anything else.
func GRPCCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var se *Error
	if errors.As(err, &se) && se.Class == TransportFailure && se.Domain == "grpc" {
		return codes.Code(se.Code)
	}
	if st, ok := grpcstatus.FromError(err); ok {
		return st.Code()
	}
	return codes.Unknown
}

// FromCode returns nil when code reports success and a DomainStatusFailure
// otherwise. A nil code counts as success.
func FromCode(code Code) error {
	if code == nil || code.OK() {
		return nil
	}
	return &Error{
		Class:  DomainStatusFailure,
		Domain: code.Domain(),
		Code:   code.Value(),
		Detail: code.String(),
	}
}

// Final folds the outcome of one call. Transport failures win over lease
// failures, which win over the service's own result code.
func Final(transportErr, leaseErr error, code Code) error {
	if transportErr != nil {
		return FromTransport(transportErr)
	}
	if leaseErr != nil {
		return leaseErr
	}
	return FromCode(code)
}
