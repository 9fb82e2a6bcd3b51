package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgHistory stores job records in Postgres.
type PgHistory struct {
	pool *pgxpool.Pool
}

// NewPgHistory wraps an open pool.
func NewPgHistory(pool *pgxpool.Pool) *PgHistory {
	return &PgHistory{pool: pool}
}

const createJobsTable = `
CREATE TABLE IF NOT EXISTS ecpack_jobs (
	id            UUID PRIMARY KEY,
	mode          TEXT NOT NULL,
	owner         TEXT NOT NULL,
	file_name     TEXT,
	status        TEXT NOT NULL,
	row_count     INTEGER NOT NULL DEFAULT 0,
	artifacts     INTEGER NOT NULL DEFAULT 0,
	replacements  INTEGER,
	error         TEXT,
	error_code    TEXT,
	started_at    TIMESTAMPTZ NOT NULL,
	duration_ms   BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS ecpack_jobs_started_at_idx ON ecpack_jobs (started_at DESC);
`

// EnsureSchema creates the jobs table if it does not exist.
func (h *PgHistory) EnsureSchema(ctx context.Context) error {
	if _, err := h.pool.Exec(ctx, createJobsTable); err != nil {
		return fmt.Errorf("create ecpack_jobs: %w", err)
	}
	return nil
}

// Record inserts one job record.
func (h *PgHistory) Record(ctx context.Context, rec JobRecord) error {
	_, err := h.pool.Exec(ctx, `
		INSERT INTO ecpack_jobs
			(id, mode, owner, file_name, status, row_count, artifacts, replacements, error, error_code, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		toPgUUID(rec.ID),
		string(rec.Mode),
		rec.Owner,
		toPgText(rec.FileName),
		string(rec.Status),
		rec.Rows,
		rec.Artifacts,
		toPgInt4(rec.Replacements),
		toPgText(rec.Error),
		toPgText(rec.ErrorCode),
		pgtype.Timestamptz{Time: rec.StartedAt, Valid: true},
		rec.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns the newest records first.
func (h *PgHistory) Recent(ctx context.Context, limit int) ([]JobRecord, error) {
	rows, err := h.pool.Query(ctx, `
		SELECT id, mode, owner, file_name, status, row_count, artifacts, replacements, error, error_code, started_at, duration_ms
		FROM ecpack_jobs
		ORDER BY started_at DESC
		LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	return pgx.CollectRows(rows, scanJobRecord)
}

func scanJobRecord(row pgx.CollectableRow) (JobRecord, error) {
	var (
		id                           pgtype.UUID
		mode, owner, status          string
		fileName, errText, errorCode pgtype.Text
		rowCount, artifacts          int32
		replacements                 pgtype.Int4
		startedAt                    time.Time
		durationMs                   int64
	)
	if err := row.Scan(&id, &mode, &owner, &fileName, &status, &rowCount, &artifacts,
		&replacements, &errText, &errorCode, &startedAt, &durationMs); err != nil {
		return JobRecord{}, err
	}

	return JobRecord{
		ID:           uuidToString(id),
		Mode:         Mode(mode),
		Owner:        owner,
		FileName:     fileName.String,
		Status:       JobStatus(status),
		Rows:         int(rowCount),
		Artifacts:    int(artifacts),
		Replacements: int(replacements.Int32),
		Error:        errText.String,
		ErrorCode:    errorCode.String,
		StartedAt:    startedAt,
		DurationMs:   durationMs,
	}, nil
}

// Helper functions for type conversion

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgInt4(i int) pgtype.Int4 {
	if i == 0 {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: int32(i), Valid: true}
}

func toPgUUID(s string) pgtype.UUID {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

func uuidToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}
