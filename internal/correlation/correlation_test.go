package correlation

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"
)

func TestNormalize(t *testing.T) {
	valid := "abc-123"
	if got, ok := Normalize(valid); !ok || got != valid {
		t.Fatalf("expected %q to normalize, got %q ok=%v", valid, got, ok)
	}
	if got, ok := Normalize("  xyz  "); !ok || got != "xyz" {
		t.Fatalf("expected trimmed normalize to xyz, got %q ok=%v", got, ok)
	}
	if _, ok := Normalize(""); ok {
		t.Fatal("empty id should be invalid")
	}
	if _, ok := Normalize(strings.Repeat("a", MaxIDLength+1)); ok {
		t.Fatal("overlong id should be invalid")
	}
	if _, ok := Normalize("bad\x01suffix"); ok {
		t.Fatal("non-printable should be invalid")
	}
}

func TestWithAndID(t *testing.T) {
	ctx := context.Background()
	if ID(ctx) != "" {
		t.Fatalf("expected empty context to have no correlation id")
	}
	if ID(With(ctx, "")) != "" {
		t.Fatalf("expected invalid id to be ignored")
	}
	if got := ID(With(ctx, "foo")); got != "foo" {
		t.Fatalf("expected foo, got %q", got)
	}
}

func TestEnsureKeepsExisting(t *testing.T) {
	ctx := With(context.Background(), "keep-me")
	_, id := Ensure(ctx)
	if id != "keep-me" {
		t.Fatalf("expected existing id, got %q", id)
	}
	_, generated := Ensure(context.Background())
	parsed, err := uuid.Parse(generated)
	if err != nil {
		t.Fatalf("uuid.Parse: %v", err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7 uuid, got %d", parsed.Version())
	}
}

func TestOutgoingMetadata(t *testing.T) {
	ctx, id := Outgoing(With(context.Background(), "cid-1"))
	if id != "cid-1" {
		t.Fatalf("unexpected id %q", id)
	}
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata")
	}
	if got := md.Get(MetadataKey); len(got) != 1 || got[0] != "cid-1" {
		t.Fatalf("unexpected metadata %v", got)
	}
	incoming := metadata.NewIncomingContext(context.Background(), md)
	if got := FromIncoming(incoming); got != "cid-1" {
		t.Fatalf("expected cid-1 from incoming, got %q", got)
	}
}
