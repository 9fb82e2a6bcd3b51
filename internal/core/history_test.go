package core

import (
	"context"
	"fmt"
	"testing"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultHistoryLimit},
		{-3, DefaultHistoryLimit},
		{10, 10},
		{MaxHistoryLimit + 1, MaxHistoryLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMemoryHistory(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory(3)

	for i := 0; i < 5; i++ {
		if err := h.Record(ctx, JobRecord{ID: fmt.Sprint(i)}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := h.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	want := []string{"4", "3", "2"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Recent()[%d].ID = %s, want %s", i, got[i].ID, id)
		}
	}

	got, _ = h.Recent(ctx, 1)
	if len(got) != 1 || got[0].ID != "4" {
		t.Errorf("Recent(1) = %+v", got)
	}
}
