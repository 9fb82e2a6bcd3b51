package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/ecpack/internal/core"
	"github.com/go-chi/chi/v5"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeZip  = "application/zip"

	// multipartOverhead is the allowance for form boundaries and headers on
	// top of the file size limit.
	multipartOverhead = 1 << 20
)

// upload is a workbook received as the multipart "file" field.
type upload struct {
	name string
	data []byte
}

// readUpload reads the "file" field, enforcing the size limit and the
// .xlsx extension.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (upload, error) {
	maxSize := s.cfg.Jobs.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return upload{}, errFileTooLarge
		}
		return upload{}, fmt.Errorf("%w: %v", errNoFile, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return upload{}, errNoFile
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		return upload{}, errUnsupportedType
	}
	if header.Size > maxSize {
		return upload{}, errFileTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return upload{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxSize {
		return upload{}, errFileTooLarge
	}
	return upload{name: filepath.Base(header.Filename), data: data}, nil
}

// writeFile sends a generated document as an attachment.
func writeFile(w http.ResponseWriter, f core.NamedFile, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}

// handleHealth reports liveness and job slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"jobs":   s.service.LimiterStatus(),
	})
}

// handleModes lists the processing modes.
func (s *Server) handleModes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"modes": s.service.Modes()})
}

// handleJobs lists recent jobs, newest first.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := s.service.RecentJobs(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// handleChunk splits an EC package register and returns the chunk archive.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	mode, err := core.ParseMode(chi.URLParam(r, "mode"))
	if err == nil && !mode.IsChunk() {
		err = fmt.Errorf("unknown mode for chunk job: %s", mode)
	}
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	up, err := s.readUpload(w, r)
	if err != nil {
		respondJobError(w, r, err)
		return
	}

	res, err := s.service.RunChunk(r.Context(), mode, up.name, up.data)
	if err != nil {
		respondJobError(w, r, err)
		return
	}

	w.Header().Set("X-Job-ID", res.JobID)
	w.Header().Set("X-Chunks", strconv.Itoa(len(res.Files)))
	w.Header().Set("X-Duplicates", strconv.Itoa(res.Duplicates))
	w.Header().Set("X-Codes-Fixed", strconv.Itoa(res.CodesFixed))
	writeFile(w, res.Archive, contentTypeZip)
}

// handlePassport applies the passport macro and returns the workbook.
func (s *Server) handlePassport(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		respondJobError(w, r, err)
		return
	}

	res, err := s.service.RunPassport(r.Context(), up.name, up.data)
	if err != nil {
		respondJobError(w, r, err)
		return
	}

	w.Header().Set("X-Job-ID", res.JobID)
	w.Header().Set("X-Rewritten", strconv.Itoa(res.Rewritten))
	writeFile(w, res.File, contentTypeXLSX)
}
