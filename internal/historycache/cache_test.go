package historycache

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestBucketOfRoundsDownToHour(t *testing.T) {
	hourMs := uint64(3600_000)
	got := bucketOf(hourMs + 1500)
	if got != hourMs {
		t.Fatalf("expected bucket rounded down to %d, got %d", hourMs, got)
	}
}

func TestNewReturnsNilForEmptyURI(t *testing.T) {
	c, err := New(context.Background(), "", zerolog.Nop())
	if err != nil {
		t.Fatalf("expected no error for empty uri, got %v", err)
	}
	if c != nil {
		t.Fatal("expected nil Cache for empty uri")
	}
}
