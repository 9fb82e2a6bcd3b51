package core

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/JonMunkholm/ecpack/internal/config"
	"github.com/JonMunkholm/ecpack/internal/logging"
	"github.com/JonMunkholm/ecpack/internal/schema"
	"github.com/JonMunkholm/ecpack/internal/sheet"
	"github.com/JonMunkholm/ecpack/internal/transform"
	"github.com/google/uuid"
)

// Service runs spreadsheet jobs. It is safe for concurrent use; jobs share
// nothing but the template cache, the limiter, and the session store.
type Service struct {
	cfg       *config.Config
	templates *TemplateCache
	limiter   *JobLimiter
	sessions  *SessionStore
	history   HistoryStore
	replLog   *ReplacementLogFile

	packages schema.PackageRegister
	register schema.Register
	results  schema.PinflResults

	now func() time.Time
}

// NewService creates a Service. A nil history keeps job records in memory.
func NewService(cfg *config.Config, history HistoryStore) (*Service, error) {
	s := &Service{
		cfg:       cfg,
		templates: NewTemplateCache(),
		limiter:   NewJobLimiter(cfg.Jobs.MaxConcurrent, cfg.Jobs.MaxWaitTime),
		sessions:  NewSessionStore(cfg.Session.TTL),
		history:   history,
		replLog:   NewReplacementLogFile(cfg.Jobs.ReplacementLogPath),
		packages:  schema.DefaultPackageRegister(),
		register:  schema.DefaultRegister(),
		results:   schema.DefaultPinflResults(),
		now:       time.Now,
	}
	if s.history == nil {
		s.history = NewMemoryHistory(MaxHistoryLimit)
	}

	for _, v := range []interface{ Validate() error }{s.packages, s.register, s.results} {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	for _, m := range allModes {
		if !m.IsChunk() {
			continue
		}
		plan, err := m.ChunkPlan(cfg.Jobs)
		if err != nil {
			return nil, err
		}
		if err := schema.ValidateChunkSize(plan.Size); err != nil {
			return nil, fmt.Errorf("mode %s: %w", m, err)
		}
	}

	return s, nil
}

// Modes lists the processing modes.
func (s *Service) Modes() []ModeInfo {
	return Modes(s.cfg.Jobs)
}

// run executes fn as one job: it takes a limiter slot, applies the job
// timeout, logs start and end, and records the outcome in the history.
func (s *Service) run(ctx context.Context, mode Mode, fileName string, fn func(context.Context, *JobRecord) error) error {
	rec := JobRecord{
		ID:        uuid.NewString(),
		Mode:      mode,
		Owner:     OwnerFromContext(ctx),
		FileName:  fileName,
		StartedAt: s.now(),
	}
	ctx = logging.ContextWithJobID(ctx, rec.ID)
	logger := logging.WithFields(ctx, "mode", mode, "owner", rec.Owner)
	logger.Info("job started", "file", fileName)

	err := s.limiter.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.Jobs.Timeout)
		defer cancel()
		return fn(ctx, &rec)
	})

	rec.DurationMs = s.now().Sub(rec.StartedAt).Milliseconds()
	if err != nil {
		rec.Status = JobFailed
		rec.Error = err.Error()
		rec.ErrorCode = MapError(err).Code
		logger.Warn("job failed", "error", err, "code", rec.ErrorCode, "duration_ms", rec.DurationMs)
	} else {
		rec.Status = JobSucceeded
		logger.Info("job completed",
			"rows", rec.Rows,
			"artifacts", rec.Artifacts,
			"replacements", rec.Replacements,
			"duration_ms", rec.DurationMs,
		)
	}

	if herr := s.history.Record(context.WithoutCancel(ctx), rec); herr != nil {
		logger.Error("failed to record job history", "error", herr)
	}
	return err
}

// template returns the cached EC package template.
func (s *Service) template() (*sheet.Template, error) {
	tp, err := s.templates.Get(s.cfg.Jobs.TemplatePath)
	if err != nil {
		return nil, fmt.Errorf("template unavailable: %w", err)
	}
	return tp, nil
}

// RunChunk fixes codes, deduplicates, and splits an EC package register
// into template-populated chunks packed in a zip archive.
func (s *Service) RunChunk(ctx context.Context, mode Mode, fileName string, data []byte) (*ChunkResult, error) {
	plan, err := mode.ChunkPlan(s.cfg.Jobs)
	if err != nil {
		return nil, err
	}

	var res *ChunkResult
	err = s.run(ctx, mode, fileName, func(ctx context.Context, rec *JobRecord) error {
		logger := logging.FromContext(ctx)

		tp, err := s.template()
		if err != nil {
			return err
		}
		tbl, err := sheet.Load(data, s.packages.HeaderRows)
		if err != nil {
			return err
		}
		rec.Rows = tbl.Len()

		fixed, codesFixed := transform.FixCodes(tbl, s.packages.Code.Index)
		deduped, duplicates := transform.Dedupe(fixed, s.packages)

		chunks, err := transform.Chunk(deduped.Rows(), plan.Size)
		if err != nil {
			return err
		}
		arts, err := transform.PopulateChunks(tp, chunks, plan.Size, plan.Naming)
		if err != nil {
			return err
		}

		out := &ChunkResult{
			JobID:      rec.ID,
			Mode:       mode,
			Rows:       tbl.Len(),
			Duplicates: duplicates,
			CodesFixed: codesFixed,
			Files:      make([]ChunkFile, 0, len(arts)),
			Chunks:     make([]NamedFile, 0, len(arts)),
		}
		for _, a := range arts {
			if err := ctx.Err(); err != nil {
				return err
			}
			encoded, err := a.Table.Bytes()
			if err != nil {
				return fmt.Errorf("encode %s: %w", a.Name, err)
			}
			out.Chunks = append(out.Chunks, NamedFile{Name: a.Name, Data: encoded})
			out.Files = append(out.Files, ChunkFile{Name: a.Name, Rows: a.Rows})
			logger.Info("artifact saved", "name", a.Name, "rows", a.Rows)
		}

		archive, err := BuildArchive(out.Chunks, s.now())
		if err != nil {
			return err
		}
		out.Archive = NamedFile{
			Name: ArtifactPrefix + fileSafe(rec.Owner) + ".zip",
			Data: archive,
		}
		rec.Artifacts = len(out.Chunks)
		res = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RunPassport applies the passport macro to a register.
func (s *Service) RunPassport(ctx context.Context, fileName string, data []byte) (*MacroResult, error) {
	var res *MacroResult
	err := s.run(ctx, ModePassport, fileName, func(ctx context.Context, rec *JobRecord) error {
		tbl, err := sheet.Load(data, s.register.HeaderRows)
		if err != nil {
			return err
		}
		rec.Rows = tbl.Len()

		out, rewritten, err := transform.RewritePassports(tbl, s.register, transform.DefaultMacroRules())
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		encoded, err := out.Bytes()
		if err != nil {
			return fmt.Errorf("encode passport register: %w", err)
		}

		name := "PassportUpdated_" + fileSafe(rec.Owner) + ".xlsx"
		logging.FromContext(ctx).Info("artifact saved", "name", name, "rewritten", rewritten)
		rec.Artifacts = 1
		res = &MacroResult{
			JobID:     rec.ID,
			File:      NamedFile{Name: name, Data: encoded},
			Rows:      tbl.Len(),
			Rewritten: rewritten,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RunJoin replaces passport codes in the source register with PINFL values
// from the results workbook and overwrites the replacement log.
func (s *Service) RunJoin(ctx context.Context, fileName string, source, results []byte) (*JoinOutput, error) {
	var res *JoinOutput
	err := s.run(ctx, ModeReplacePinfl, fileName, func(ctx context.Context, rec *JobRecord) error {
		src, lookup, err := transform.LoadJoinInputs(source, results, s.register, s.results)
		if err != nil {
			return err
		}
		rec.Rows = src.Len()

		mapping := transform.BuildMapping(lookup, s.results)
		joined, err := transform.ReplacePinfl(src, mapping, s.register, transform.DefaultJoinRules())
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		encoded, err := joined.Table.Bytes()
		if err != nil {
			return fmt.Errorf("encode joined register: %w", err)
		}
		logText, err := s.replLog.Write(rec.Owner, joined.Log)
		if err != nil {
			return err
		}

		name := ArtifactPrefix + "GOOD_" + fileSafe(rec.Owner) + ".xlsx"
		logging.FromContext(ctx).Info("artifact saved",
			"name", name,
			"replacements", len(joined.Log),
			"log", s.replLog.Path(),
			"owner_log", s.replLog.OwnerPath(rec.Owner),
		)
		rec.Artifacts = 1
		rec.Replacements = len(joined.Log)
		res = &JoinOutput{
			JobID:        rec.ID,
			File:         NamedFile{Name: name, Data: encoded},
			Rows:         src.Len(),
			Replacements: len(joined.Log),
			Defaulted:    joined.Defaulted,
			Misses:       joined.Misses,
			Ignored:      joined.Ignored,
			Log:          logText,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CreateSession starts a two-step PINFL replacement for the context owner.
func (s *Service) CreateSession(ctx context.Context) Session {
	sess := s.sessions.Create(OwnerFromContext(ctx))
	logging.WithFields(ctx, "session_id", sess.ID).Info("pinfl session created")
	return sess
}

// AttachSource stores the source register of a session. The file is parsed
// once here, under a job slot, so an unreadable upload is rejected at the
// step that sent it.
func (s *Service) AttachSource(ctx context.Context, id, fileName string, data []byte) (Session, error) {
	owner := OwnerFromContext(ctx)
	if _, err := s.sessions.Get(owner, id); err != nil {
		return Session{}, err
	}
	err := s.limiter.Do(ctx, func(context.Context) error {
		if _, err := sheet.Load(data, s.register.HeaderRows); err != nil {
			return &transform.JoinInputError{Input: "source", Err: err}
		}
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	sess, err := s.sessions.AttachSource(owner, id, fileName, data)
	if err != nil {
		return Session{}, err
	}
	logging.WithFields(ctx, "session_id", id).Info("pinfl source attached", "file", fileName)
	return sess, nil
}

// CompleteSession runs the join with the session's source register and the
// uploaded results. The session ends whether the join succeeds or fails.
func (s *Service) CompleteSession(ctx context.Context, id, resultsName string, results []byte) (*JoinOutput, error) {
	sourceName, source, err := s.sessions.Take(OwnerFromContext(ctx), id)
	if err != nil {
		return nil, err
	}
	logging.WithFields(ctx, "session_id", id).Info("pinfl results received", "file", resultsName)
	return s.RunJoin(ctx, sourceName, source, results)
}

// AbandonSession deletes a session.
func (s *Service) AbandonSession(ctx context.Context, id string) error {
	if err := s.sessions.Delete(OwnerFromContext(ctx), id); err != nil {
		return err
	}
	logging.WithFields(ctx, "session_id", id).Info("pinfl session abandoned")
	return nil
}

// Session returns a snapshot of a session owned by the context owner.
func (s *Service) Session(ctx context.Context, id string) (Session, error) {
	return s.sessions.Get(OwnerFromContext(ctx), id)
}

// StartSessionSweeper expires abandoned sessions until ctx is cancelled.
func (s *Service) StartSessionSweeper(ctx context.Context) {
	s.sessions.StartSweeper(ctx, s.cfg.Session.SweepInterval)
}

// RecentJobs returns the newest job records first.
func (s *Service) RecentJobs(ctx context.Context, limit int) ([]JobRecord, error) {
	return s.history.Recent(ctx, limit)
}

// LimiterStatus reports job slot usage.
func (s *Service) LimiterStatus() JobLimiterStatus {
	return s.limiter.Status()
}

// WaitForJobs blocks until running jobs finish or ctx is done.
func (s *Service) WaitForJobs(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// fileSafe turns an owner id into a file name fragment.
func fileSafe(owner string) string {
	s := unsafeName.ReplaceAllString(owner, "_")
	if s == "" || s == "." || s == ".." {
		return "anonymous"
	}
	return s
}
