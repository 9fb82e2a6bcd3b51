package core

import (
	"context"
	"slices"
	"sync"
	"time"
)

// History limits.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// JobStatus is the outcome of a job.
type JobStatus string

const (
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// JobRecord is one finished or failed job.
type JobRecord struct {
	ID           string    `json:"id"`
	Mode         Mode      `json:"mode"`
	Owner        string    `json:"owner"`
	FileName     string    `json:"file_name,omitempty"`
	Status       JobStatus `json:"status"`
	Rows         int       `json:"rows"`
	Artifacts    int       `json:"artifacts"`
	Replacements int       `json:"replacements,omitempty"`
	Error        string    `json:"error,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	DurationMs   int64     `json:"duration_ms"`
}

// HistoryStore persists job records.
type HistoryStore interface {
	Record(ctx context.Context, rec JobRecord) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]JobRecord, error)
}

// clampLimit applies the default and maximum history page size.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return min(limit, MaxHistoryLimit)
}

// MemoryHistory is a bounded in-memory HistoryStore used when no database
// is configured. The oldest records are dropped first.
type MemoryHistory struct {
	capacity int

	mu      sync.Mutex
	records []JobRecord
}

// NewMemoryHistory keeps at most capacity records.
func NewMemoryHistory(capacity int) *MemoryHistory {
	if capacity <= 0 {
		capacity = MaxHistoryLimit
	}
	return &MemoryHistory{capacity: capacity}
}

// Record appends rec, evicting the oldest record when full.
func (h *MemoryHistory) Record(_ context.Context, rec JobRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, rec)
	if over := len(h.records) - h.capacity; over > 0 {
		h.records = slices.Delete(h.records, 0, over)
	}
	return nil
}

// Recent returns the newest records first.
func (h *MemoryHistory) Recent(_ context.Context, limit int) ([]JobRecord, error) {
	limit = clampLimit(limit)

	h.mu.Lock()
	defer h.mu.Unlock()

	n := min(limit, len(h.records))
	out := make([]JobRecord, 0, n)
	for i := len(h.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.records[i])
	}
	return out, nil
}
