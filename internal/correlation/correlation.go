package correlation

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"
)

// MaxIDLength defines the maximum number of characters accepted for correlation identifiers.
const MaxIDLength = 128

// MetadataKey is the gRPC metadata key carrying the correlation ID.
const MetadataKey = "x-correlation-id"

type contextKey struct{}

// With records id on ctx. Invalid identifiers leave ctx unchanged.
func With(ctx context.Context, id string) context.Context {
	normalized, ok := Normalize(id)
	if !ok {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, normalized)
}

// ID retrieves the correlation ID stored on ctx, if any.
func ID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(contextKey{}).(string); ok {
		return v
	}
	return ""
}

// Ensure returns ctx carrying a correlation ID, generating one when absent,
// together with the ID.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := ID(ctx); id != "" {
		return ctx, id
	}
	id := Generate()
	return With(ctx, id), id
}

// Outgoing attaches the correlation ID to the outgoing gRPC metadata,
// generating one when ctx carries none.
func Outgoing(ctx context.Context) (context.Context, string) {
	ctx, id := Ensure(ctx)
	return metadata.AppendToOutgoingContext(ctx, MetadataKey, id), id
}

// FromIncoming extracts a correlation ID from incoming gRPC metadata.
func FromIncoming(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(MetadataKey) {
		if id, ok := Normalize(v); ok {
			return id
		}
	}
	return ""
}

// Normalize validates and canonicalizes an external correlation identifier.
// It returns the normalized ID and true if the input is acceptable.
func Normalize(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", false
	}
	if len(id) > MaxIDLength {
		return "", false
	}
	for _, r := range id {
		if r < 0x20 || r > 0x7e {
			return "", false
		}
	}
	return id, true
}

// Generate produces a new time-ordered correlation identifier (UUIDv7).
func Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
