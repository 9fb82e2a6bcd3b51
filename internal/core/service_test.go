package core

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JonMunkholm/ecpack/internal/config"
	"github.com/JonMunkholm/ecpack/internal/sheet"
	"github.com/JonMunkholm/ecpack/internal/sheet/sheettest"
	"github.com/JonMunkholm/ecpack/internal/transform"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	tpl := filepath.Join(dir, "template.xlsx")
	if err := os.WriteFile(tpl, sheettest.Template(t), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}

	return &config.Config{
		Jobs: config.JobsConfig{
			TemplatePath:       tpl,
			ReplacementLogPath: filepath.Join(dir, "logs", "replacements.log"),
			MaxConcurrent:      2,
			MaxWaitTime:        time.Second,
			Timeout:            time.Minute,
			ChunkSize:          2,
			ChunkSize500:       3,
			ChunkSize250:       1,
		},
		Session: config.SessionConfig{TTL: time.Minute, SweepInterval: time.Second},
	}
}

func newTestService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	svc, err := NewService(cfg, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

// packageWorkbook builds an EC package register: three header rows, then
// one row per key with eleven columns and the code in column 10.
func packageWorkbook(t *testing.T, keys ...string) []byte {
	t.Helper()
	rows := [][]any{{"EC register"}, {"export"}, {"Key", "Name"}}
	for i, k := range keys {
		row := make([]any, 11)
		if k != "" {
			row[0] = k
		}
		for c := 1; c < 10; c++ {
			row[c] = fmt.Sprintf("r%dc%d", i, c)
		}
		row[10] = 12345 + i
		rows = append(rows, row)
	}
	return sheettest.Workbook(t, rows)
}

func unzip(t *testing.T, data []byte) []NamedFile {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader() error = %v", err)
	}
	out := make([]NamedFile, 0, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		out = append(out, NamedFile{Name: f.Name, Data: b})
	}
	return out
}

func TestRunChunk(t *testing.T) {
	svc := newTestService(t, testConfig(t))
	ctx := ContextWithOwner(context.Background(), "alice")

	res, err := svc.RunChunk(ctx, ModeChunk, "register.xlsx", packageWorkbook(t, "a", "b", "A ", "c", "d"))
	if err != nil {
		t.Fatalf("RunChunk() error = %v", err)
	}

	if res.Rows != 5 {
		t.Errorf("Rows = %d, want 5", res.Rows)
	}
	if res.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", res.Duplicates)
	}
	if res.CodesFixed != 5 {
		t.Errorf("CodesFixed = %d, want 5", res.CodesFixed)
	}
	if res.Archive.Name != "AllPackageEC_alice.zip" {
		t.Errorf("Archive.Name = %q, want %q", res.Archive.Name, "AllPackageEC_alice.zip")
	}

	files := unzip(t, res.Archive.Data)
	wantNames := []string{"AllPackageEC_0.xlsx", "AllPackageEC_2.xlsx", "AllPackageEC_4.xlsx"}
	if len(files) != len(wantNames) {
		t.Fatalf("archive has %d files, want %d", len(files), len(wantNames))
	}
	total := 0
	for i, f := range files {
		if f.Name != wantNames[i] {
			t.Errorf("file %d = %q, want %q", i, f.Name, wantNames[i])
		}
		total += res.Files[i].Rows
	}
	if total != 5 {
		t.Errorf("rows across chunks = %d, want 5", total)
	}

	values := sheettest.Values(t, files[1].Data)
	if got := values[0][0]; got != "EC package" {
		t.Errorf("template header = %q, want %q", got, "EC package")
	}
	if got := values[3][0]; got != "" {
		t.Errorf("duplicate key cell = %q, want blank", got)
	}
	if got := values[3][8]; got != "r2c8" {
		t.Errorf("column past blank range = %q, want %q", got, "r2c8")
	}
	if got := values[3][10]; got != "012347" {
		t.Errorf("fixed code = %q, want %q", got, "012347")
	}
	if got := values[4][0]; got != "c" {
		t.Errorf("second row key = %q, want %q", got, "c")
	}
}

func TestRunChunk_KeepsDates(t *testing.T) {
	svc := newTestService(t, testConfig(t))
	born := time.Date(1988, 12, 23, 0, 0, 0, 0, time.UTC)

	row := make([]any, 11)
	row[0], row[9], row[10] = "a", born, 12345
	data := sheettest.Workbook(t, [][]any{{"EC register"}, {"export"}, {"Key"}, row})

	res, err := svc.RunChunk(context.Background(), ModeChunk, "register.xlsx", data)
	if err != nil {
		t.Fatalf("RunChunk() error = %v", err)
	}

	out, err := sheet.Load(res.Chunks[0].Data, sheet.TemplateDataRow)
	if err != nil {
		t.Fatalf("load chunk: %v", err)
	}
	got, ok := out.Cell(0, 9).Time()
	if !ok {
		t.Fatalf("date column kind = %v, want date", out.Cell(0, 9).Kind())
	}
	if !got.Equal(born) {
		t.Errorf("date = %v, want %v", got, born)
	}
	if v := sheettest.Values(t, res.Chunks[0].Data)[3][9]; v == "32500" {
		t.Errorf("date shown as serial %q", v)
	}
}

func TestRunChunk_FixedNamingStride(t *testing.T) {
	svc := newTestService(t, testConfig(t))

	res, err := svc.RunChunk(context.Background(), ModeChunk250, "r.xlsx", packageWorkbook(t, "a", "b", "c"))
	if err != nil {
		t.Fatalf("RunChunk() error = %v", err)
	}

	want := []string{"AllPackageEC_0.xlsx", "AllPackageEC_250.xlsx", "AllPackageEC_500.xlsx"}
	for i, f := range res.Files {
		if f.Name != want[i] {
			t.Errorf("file %d = %q, want %q", i, f.Name, want[i])
		}
	}
	if res.Archive.Name != "AllPackageEC_anonymous.zip" {
		t.Errorf("Archive.Name = %q", res.Archive.Name)
	}
}

func TestRunChunk_Errors(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(t, cfg)
	ctx := context.Background()

	_, err := svc.RunChunk(ctx, ModeChunk, "bad.xlsx", []byte("not a workbook"))
	var fe *sheet.FormatError
	if !errors.As(err, &fe) {
		t.Errorf("RunChunk(garbage) error = %v, want *sheet.FormatError", err)
	}

	if _, err := svc.RunChunk(ctx, ModePassport, "r.xlsx", packageWorkbook(t, "a")); MapError(err).Code != "MODE001" {
		t.Errorf("RunChunk(passport) error = %v, want MODE001", err)
	}

	cfg.Jobs.TemplatePath = filepath.Join(t.TempDir(), "missing.xlsx")
	if _, err := svc.RunChunk(ctx, ModeChunk, "r.xlsx", packageWorkbook(t, "a")); MapError(err).Code != "CFG002" {
		t.Errorf("RunChunk(no template) error = %v, want CFG002", err)
	}
}

func registerWorkbook(t *testing.T, codes ...any) []byte {
	t.Helper()
	rows := [][]any{{"Name", "", "", "", "Passport", "Date"}}
	for _, c := range codes {
		rows = append(rows, []any{"person", nil, nil, nil, c, "01.01.2000"})
	}
	return sheettest.Workbook(t, rows)
}

func TestRunPassport(t *testing.T) {
	svc := newTestService(t, testConfig(t))
	ctx := ContextWithOwner(context.Background(), "bob")

	res, err := svc.RunPassport(ctx, "register.xlsx", registerWorkbook(t, "M12345", "999", nil, "AA1"))
	if err != nil {
		t.Fatalf("RunPassport() error = %v", err)
	}
	if res.Rewritten != 2 {
		t.Errorf("Rewritten = %d, want 2", res.Rewritten)
	}
	if res.File.Name != "PassportUpdated_bob.xlsx" {
		t.Errorf("File.Name = %q", res.File.Name)
	}

	values := sheettest.Values(t, res.File.Data)
	if values[0][4] != "Passport" {
		t.Errorf("header = %q, want untouched", values[0][4])
	}
	for _, r := range []int{1, 2} {
		if values[r][4] != transform.PassportReplacement || values[r][5] != transform.PassportDate {
			t.Errorf("row %d = %v, want rewritten", r, values[r])
		}
	}
	if len(values[3]) > 4 && values[3][4] != "" {
		t.Errorf("empty code row rewritten: %v", values[3])
	}
	if values[4][4] != "AA1" {
		t.Errorf("row 4 code = %q, want untouched", values[4][4])
	}
}

func resultsWorkbook(t *testing.T, pairs ...[2]any) []byte {
	t.Helper()
	var rows [][]any
	for _, p := range pairs {
		row := make([]any, 10)
		row[8], row[9] = p[0], p[1]
		rows = append(rows, row)
	}
	return sheettest.Workbook(t, rows)
}

func TestPinflSession(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(t, cfg)
	ctx := ContextWithOwner(context.Background(), "carol")

	sess := svc.CreateSession(ctx)
	results := resultsWorkbook(t, [2]any{"AB1234", "PINFL001"})

	if _, err := svc.CompleteSession(ctx, sess.ID, "pinfl.xlsx", results); !errors.Is(err, ErrSessionStep) {
		t.Fatalf("CompleteSession before source = %v, want ErrSessionStep", err)
	}

	other := ContextWithOwner(context.Background(), "mallory")
	if _, err := svc.AttachSource(other, sess.ID, "s.xlsx", registerWorkbook(t, "x")); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("AttachSource by other owner = %v, want ErrSessionNotFound", err)
	}

	if _, err := svc.AttachSource(ctx, sess.ID, "source.xlsx", []byte("junk")); MapError(err).Code != "JOIN001" {
		t.Fatalf("AttachSource(junk) = %v, want JOIN001", err)
	}

	attached, err := svc.AttachSource(ctx, sess.ID, "source.xlsx", registerWorkbook(t, "ab1234", "ZZ9999", nil))
	if err != nil {
		t.Fatalf("AttachSource() error = %v", err)
	}
	if attached.State != SessionAwaitingResults {
		t.Errorf("State = %q, want %q", attached.State, SessionAwaitingResults)
	}

	out, err := svc.CompleteSession(ctx, sess.ID, "pinfl.xlsx", results)
	if err != nil {
		t.Fatalf("CompleteSession() error = %v", err)
	}
	if out.Replacements != 1 || out.Misses != 1 || out.Defaulted != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", out.Replacements, out.Misses, out.Defaulted)
	}
	if out.File.Name != "AllPackageEC_GOOD_carol.xlsx" {
		t.Errorf("File.Name = %q", out.File.Name)
	}
	if out.Log != "AB1234 → PINFL001\n" {
		t.Errorf("Log = %q", out.Log)
	}

	logged, err := os.ReadFile(cfg.Jobs.ReplacementLogPath)
	if err != nil {
		t.Fatalf("read replacement log: %v", err)
	}
	if string(logged) != out.Log {
		t.Errorf("log file = %q, want %q", logged, out.Log)
	}
	owned, err := os.ReadFile(filepath.Join(filepath.Dir(cfg.Jobs.ReplacementLogPath), "replacements_carol.log"))
	if err != nil {
		t.Fatalf("read owner replacement log: %v", err)
	}
	if string(owned) != out.Log {
		t.Errorf("owner log file = %q, want %q", owned, out.Log)
	}

	values := sheettest.Values(t, out.File.Data)
	if values[1][4] != "PINFL001" {
		t.Errorf("replaced code = %q", values[1][4])
	}
	if values[2][4] != "ZZ9999" {
		t.Errorf("missed code = %q", values[2][4])
	}
	if values[3][4] != transform.PinflDefault || values[3][5] != transform.PinflDefaultDate {
		t.Errorf("blank row = %v, want defaults", values[3])
	}

	if _, err := svc.Session(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("session after completion = %v, want ErrSessionNotFound", err)
	}
}

func TestPinflSession_FailureEndsSession(t *testing.T) {
	svc := newTestService(t, testConfig(t))
	ctx := context.Background()

	sess := svc.CreateSession(ctx)
	if _, err := svc.AttachSource(ctx, sess.ID, "s.xlsx", registerWorkbook(t, "AB1")); err != nil {
		t.Fatalf("AttachSource() error = %v", err)
	}

	_, err := svc.CompleteSession(ctx, sess.ID, "r.xlsx", nil)
	var je *transform.JoinInputError
	if !errors.As(err, &je) || je.Input != "results" {
		t.Fatalf("CompleteSession(no results) = %v, want results JoinInputError", err)
	}
	if _, err := svc.Session(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("session after failure = %v, want ErrSessionNotFound", err)
	}
}

func TestAbandonSession(t *testing.T) {
	svc := newTestService(t, testConfig(t))
	ctx := context.Background()

	sess := svc.CreateSession(ctx)
	if err := svc.AbandonSession(ctx, sess.ID); err != nil {
		t.Fatalf("AbandonSession() error = %v", err)
	}
	if err := svc.AbandonSession(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second AbandonSession() = %v, want ErrSessionNotFound", err)
	}
}

func TestRecentJobs(t *testing.T) {
	svc := newTestService(t, testConfig(t))
	ctx := ContextWithOwner(context.Background(), "dave")

	if _, err := svc.RunPassport(ctx, "ok.xlsx", registerWorkbook(t, "M1")); err != nil {
		t.Fatalf("RunPassport() error = %v", err)
	}
	if _, err := svc.RunPassport(ctx, "bad.xlsx", []byte("junk")); err == nil {
		t.Fatal("RunPassport(junk) expected error")
	}

	jobs, err := svc.RecentJobs(ctx, 10)
	if err != nil {
		t.Fatalf("RecentJobs() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("len(jobs) = %d, want 2", len(jobs))
	}
	if jobs[0].FileName != "bad.xlsx" || jobs[0].Status != JobFailed || jobs[0].ErrorCode != "XLS001" {
		t.Errorf("newest job = %+v, want failed bad.xlsx with XLS001", jobs[0])
	}
	if jobs[1].Status != JobSucceeded || jobs[1].Rows != 1 || jobs[1].Artifacts != 1 || jobs[1].Owner != "dave" {
		t.Errorf("older job = %+v", jobs[1])
	}
}

func TestRun_TooManyJobs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Jobs.MaxConcurrent = 1
	cfg.Jobs.MaxWaitTime = 10 * time.Millisecond
	svc := newTestService(t, cfg)

	if !svc.limiter.TryAcquire() {
		t.Fatal("TryAcquire failed")
	}
	defer svc.limiter.Release()

	_, err := svc.RunPassport(context.Background(), "r.xlsx", registerWorkbook(t, "M1"))
	if !errors.Is(err, ErrTooManyJobs) {
		t.Errorf("RunPassport on busy service = %v, want ErrTooManyJobs", err)
	}
}

func TestAttachSource_TooManyJobs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Jobs.MaxConcurrent = 1
	cfg.Jobs.MaxWaitTime = 10 * time.Millisecond
	svc := newTestService(t, cfg)
	ctx := context.Background()
	sess := svc.CreateSession(ctx)

	if !svc.limiter.TryAcquire() {
		t.Fatal("TryAcquire failed")
	}
	_, err := svc.AttachSource(ctx, sess.ID, "s.xlsx", registerWorkbook(t, "AB1"))
	svc.limiter.Release()
	if !errors.Is(err, ErrTooManyJobs) {
		t.Fatalf("AttachSource on busy service = %v, want ErrTooManyJobs", err)
	}

	got, err := svc.Session(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if got.State != SessionAwaitingSource {
		t.Errorf("State = %v, want %v", got.State, SessionAwaitingSource)
	}
	if _, err := svc.AttachSource(ctx, sess.ID, "s.xlsx", registerWorkbook(t, "AB1")); err != nil {
		t.Errorf("AttachSource after release = %v", err)
	}
}

func TestNewService_RejectsBadChunkSize(t *testing.T) {
	cfg := testConfig(t)
	cfg.Jobs.ChunkSize500 = 0
	if _, err := NewService(cfg, nil); MapError(err).Code != "CFG001" {
		t.Errorf("NewService() error = %v, want CFG001", err)
	}
}

func TestFileSafe(t *testing.T) {
	tests := map[string]string{
		"alice":       "alice",
		"10.0.0.1":    "10.0.0.1",
		"a b/c":       "a_b_c",
		"":            "anonymous",
		"..":          "anonymous",
		"user@x.test": "user_x.test",
	}
	for in, want := range tests {
		if got := fileSafe(in); got != want {
			t.Errorf("fileSafe(%q) = %q, want %q", in, got, want)
		}
	}
}
