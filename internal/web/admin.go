package web

import (
	"errors"
	"net/http"
	"path/filepath"

	"classgrid/internal/ingest"
	appLog "classgrid/internal/log"
	"classgrid/internal/model"
)

type skippedRow struct {
	Row    int    `json:"row"`
	Course string `json:"course"`
	Error  string `json:"error"`
}

type uploadResponse struct {
	Filename    string            `json:"filename"`
	Format      string            `json:"format"`
	DryRun      bool              `json:"dry_run"`
	Rows        int               `json:"rows"`
	Entries     int               `json:"entries"`
	Unscheduled int               `json:"unscheduled"`
	Dropped     int               `json:"dropped"`
	Skipped     []skippedRow      `json:"skipped"`
	Stats       *model.StoreStats `json:"stats,omitempty"`
}

// POST /api/admin/upload (multipart field "file"; ?dry_run=1 parses only)
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	admin, ok := AdminFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(s.uploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, `missing form file "file"`)
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	format := ingest.FormatForFilename(name)
	res, err := ingest.Parse(file, format, s.ingest)
	if err != nil {
		appLog.Info("upload rejected", "admin", admin.Username, "filename", name, "error", err.Error())
		fail(w, "upload failed", err)
		return
	}

	resp := uploadResponse{
		Filename:    name,
		Format:      format.String(),
		DryRun:      r.URL.Query().Get("dry_run") == "1",
		Rows:        res.Rows,
		Entries:     len(res.Entries),
		Unscheduled: res.Unscheduled,
		Dropped:     res.Dropped,
		Skipped:     make([]skippedRow, 0, len(res.Skipped)),
	}
	for _, p := range res.Skipped {
		resp.Skipped = append(resp.Skipped, skippedRow{Row: p.Row, Course: p.Course, Error: p.Err.Error()})
	}

	if !resp.DryRun {
		stats, err := s.svc.Replace(r.Context(), res.Entries)
		if err != nil {
			fail(w, "replace failed", err)
			return
		}
		resp.Stats = &stats
	}

	appLog.Info("upload processed",
		"admin", admin.Username,
		"filename", name,
		"dry_run", resp.DryRun,
		"entries", resp.Entries,
		"skipped", len(resp.Skipped),
	)
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/admin/snapshot renders a fresh /preview.png.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	admin, ok := AdminFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if s.snapshot == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshots are not configured")
		return
	}
	if err := s.snapshot(r.Context()); err != nil {
		appLog.Error("snapshot failed", err, "admin", admin.Username)
		writeError(w, http.StatusBadGateway, "snapshot failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"preview": "/preview.png"})
}
