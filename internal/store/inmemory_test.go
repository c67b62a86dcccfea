package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryInsertAndSelect(t *testing.T) {
	s := NewInMemoryStore("voice_logs")
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, kind := range []string{"sample", "clone", "synthesis"} {
		err := s.Insert(ctx, "voice_logs", Row{
			"kind":       kind,
			"created_at": base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	rows, err := s.Select(ctx, "voice_logs", Query{OrderBy: "created_at", Descending: true})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	if rows[0]["kind"] != "synthesis" {
		t.Fatalf("rows[0] kind = %v, want synthesis (newest first)", rows[0]["kind"])
	}
	if rows[0]["id"] == "" {
		t.Fatalf("generated id should not be empty")
	}
}

func TestInMemorySelectFilterAndLimit(t *testing.T) {
	s := NewInMemoryStore("voice_logs")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		kind := "clone"
		if i%2 == 0 {
			kind = "sample"
		}
		if err := s.Insert(ctx, "voice_logs", Row{"kind": kind}); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	rows, err := s.Select(ctx, "voice_logs", Query{Filter: map[string]any{"kind": "sample"}, Limit: 2})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2 (limit applied)", len(rows))
	}
	for _, r := range rows {
		if r["kind"] != "sample" {
			t.Fatalf("filter leaked kind = %v", r["kind"])
		}
	}
}

func TestInMemoryUnknownCollection(t *testing.T) {
	s := NewInMemoryStore("voice_logs")
	ctx := context.Background()

	if err := s.Insert(ctx, "missing", Row{}); !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("Insert() error = %v, want ErrCollectionNotFound", err)
	}
	if _, err := s.Select(ctx, "missing", Query{}); !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("Select() error = %v, want ErrCollectionNotFound", err)
	}
}

func TestInMemorySelectReturnsCopies(t *testing.T) {
	s := NewInMemoryStore("voice_logs")
	ctx := context.Background()
	if err := s.Insert(ctx, "voice_logs", Row{"kind": "clone", "name": "a"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	rows, err := s.Select(ctx, "voice_logs", Query{})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	rows[0]["name"] = "mutated"

	again, err := s.Select(ctx, "voice_logs", Query{})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if again[0]["name"] != "a" {
		t.Fatalf("stored row mutated through Select result")
	}
}
