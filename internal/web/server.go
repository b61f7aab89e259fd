package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"classgrid/internal/config"
	"classgrid/internal/ingest"
	appLog "classgrid/internal/log"
	"classgrid/internal/model"
	"classgrid/internal/schedule"
	"classgrid/internal/store"
)

const (
	maxUploadBytes = 32 << 20
	// uploads larger than this spill to temp files
	maxUploadMemory = 8 << 20
	shutdownGrace   = 5 * time.Second
)

// Options wires a Server.
type Options struct {
	Service *schedule.Service
	Ingest  ingest.Options
	// BasicAuth guards /api/admin/*. Nil disables the admin endpoints.
	BasicAuth *config.BasicAuthConfig
	// Term bounds the ICS feed.
	Term config.TermConfig
	// SnapshotPath is served as /preview.png.
	SnapshotPath string
	// Snapshot renders a new preview. Nil disables POST /api/admin/snapshot.
	Snapshot func(ctx context.Context) error
	// Now is the clock used when a request has no "at" parameter.
	Now func() time.Time
}

// Server is the HTTP boundary of the schedule service.
type Server struct {
	svc      *schedule.Service
	ingest   ingest.Options
	auth     *config.BasicAuthConfig
	term     config.TermConfig
	preview  string
	snapshot func(ctx context.Context) error
	now      func() time.Time

	uploadMemory int64

	mux *http.ServeMux
}

func NewServer(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, errors.New("web: schedule service is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BasicAuth != nil && (opts.BasicAuth.Username == "" || opts.BasicAuth.Password == "") {
		opts.BasicAuth = nil
	}
	s := &Server{
		svc:      opts.Service,
		ingest:   opts.Ingest,
		auth:     opts.BasicAuth,
		term:     opts.Term,
		preview:  opts.SnapshotPath,
		snapshot: opts.Snapshot,
		now:      opts.Now,

		uploadMemory: maxUploadMemory,

		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/schedule", s.handleSchedule)
	s.mux.HandleFunc("GET /api/rooms", s.handleDistinct(model.FieldRoom, "rooms"))
	s.mux.HandleFunc("GET /api/instructors", s.handleDistinct(model.FieldInstructor, "instructors"))
	s.mux.HandleFunc("GET /api/active", s.handleActive)
	s.mux.HandleFunc("GET /api/upcoming", s.handleUpcoming)
	s.mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /api/heatmap", s.handleHeatmap)
	s.mux.HandleFunc("GET /api/timeline", s.handleTimeline)
	s.mux.HandleFunc("GET /api/rooms/{room}/next", s.handleNextInRoom)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)

	s.mux.HandleFunc("GET /schedule.ics", s.handleICS)
	s.mux.HandleFunc("GET /dashboard", s.handleDashboard)
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)

	s.mux.HandleFunc("POST /api/admin/upload", s.requireAdmin(s.handleUpload))
	s.mux.HandleFunc("POST /api/admin/snapshot", s.requireAdmin(s.handleSnapshot))
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr, "admin", s.auth != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Admin identifies the caller of an admin endpoint.
type Admin struct {
	Username string
}

type adminKey struct{}

// AdminFrom returns the authenticated admin stored by requireAdmin.
func AdminFrom(ctx context.Context) (Admin, bool) {
	a, ok := ctx.Value(adminKey{}).(Admin)
	return a, ok
}

// requireAdmin checks HTTP Basic credentials and hands the handler an
// explicit Admin through the request context.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			writeError(w, http.StatusForbidden, "admin access is not configured")
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, s.auth.Username) || !secureCompare(p, s.auth.Password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="classgrid", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), adminKey{}, Admin{Username: u})
		next(w, r.WithContext(ctx))
	}
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// asOf reads the "at" parameter (RFC 3339), defaulting to the server clock.
// An unescaped "+" in the offset decodes to a space and is restored.
func (s *Server) asOf(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("at"))
	if raw == "" {
		return s.now(), nil
	}
	t, err := time.Parse(time.RFC3339, strings.Replace(raw, " ", "+", 1))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid at %q: want RFC 3339", raw)
	}
	return t, nil
}

func parseFilter(r *http.Request) (model.Filter, error) {
	q := r.URL.Query()
	var f model.Filter
	if d := strings.TrimSpace(q.Get("day")); d != "" {
		day, err := model.ParseWeekday(d)
		if err != nil {
			return model.Filter{}, err
		}
		f.Day = day
	}
	// Room ids may contain commas; several rooms are passed as repeated
	// "room" parameters.
	for _, room := range q["room"] {
		if room = strings.TrimSpace(room); room != "" {
			f.Rooms = append(f.Rooms, room)
		}
	}
	f.Instructor = strings.TrimSpace(q.Get("instructor"))
	return f, nil
}

// fail maps an error to a status: bad input is 400, storage trouble 500.
func fail(w http.ResponseWriter, msg string, err error) {
	var (
		schemaErr *ingest.SchemaError
		parseErr  *ingest.ParseError
		procErr   *ingest.ProcessingError
		storeErr  *store.StoreError
	)
	switch {
	case errors.As(err, &schemaErr), errors.As(err, &parseErr), errors.As(err, &procErr),
		errors.Is(err, store.ErrUnknownField):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &storeErr):
		appLog.Error(msg, err, "op", storeErr.Op)
		writeError(w, http.StatusInternalServerError, "storage error")
	default:
		appLog.Error(msg, err)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
