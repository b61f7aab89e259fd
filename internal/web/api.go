package web

import (
	"context"
	"net/http"
	"time"

	"classgrid/internal/calendar"
	"classgrid/internal/model"
)

type entriesResponse struct {
	At      *time.Time            `json:"at,omitempty"`
	Day     model.Weekday         `json:"day,omitempty"`
	Count   int                   `json:"count"`
	Entries []model.ScheduleEntry `json:"entries"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// GET /api/schedule?day=Mon&room=101&room=205&instructor=Smith
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.svc.Query(r.Context(), f)
	if err != nil {
		fail(w, "schedule query failed", err)
		return
	}
	writeJSON(w, http.StatusOK, entriesResponse{Day: f.Day, Count: len(entries), Entries: entries})
}

func (s *Server) handleDistinct(field model.Field, key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := s.svc.ListDistinct(r.Context(), field)
		if err != nil {
			fail(w, "list "+key+" failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]string{key: values})
	}
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	s.serveAsOf(w, r, "active query failed", s.svc.Active)
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	s.serveAsOf(w, r, "upcoming query failed", s.svc.Upcoming)
}

type asOfQuery func(ctx context.Context, asOf time.Time, f model.Filter) ([]model.ScheduleEntry, error)

func (s *Server) serveAsOf(w http.ResponseWriter, r *http.Request, msg string, query asOfQuery) {
	at, err := s.asOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := query(r.Context(), at, f)
	if err != nil {
		fail(w, msg, err)
		return
	}
	local := s.svc.Local(at)
	writeJSON(w, http.StatusOK, entriesResponse{
		At:      &local,
		Day:     s.svc.DefaultDay(at),
		Count:   len(entries),
		Entries: entries,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	at, err := s.asOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := s.svc.Metrics(r.Context(), at)
	if err != nil {
		fail(w, "metrics failed", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h, err := s.svc.Heatmap(r.Context(), f)
	if err != nil {
		fail(w, "heatmap failed", err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	at, err := s.asOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tl, err := s.svc.Timeline(r.Context(), at, f)
	if err != nil {
		fail(w, "timeline failed", err)
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

type nextResponse struct {
	Room string               `json:"room"`
	Next *calendar.Occurrence `json:"next"`
}

// GET /api/rooms/{room}/next?at=
func (s *Server) handleNextInRoom(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	at, err := s.asOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	occ, ok, err := s.svc.NextInRoom(r.Context(), room, at)
	if err != nil {
		fail(w, "next meeting lookup failed", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no meetings scheduled in room "+room)
		return
	}
	writeJSON(w, http.StatusOK, nextResponse{Room: room, Next: &occ})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		fail(w, "status failed", err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Stats    model.StoreStats `json:"stats"`
		Timezone string           `json:"timezone"`
	}{stats, s.svc.Location().String()})
}

// defaultTermWeeks sizes the ICS feed when no term is configured.
const defaultTermWeeks = 16

// GET /schedule.ics?day=&room=&instructor=
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	at, err := s.asOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.svc.Query(r.Context(), f)
	if err != nil {
		fail(w, "ics query failed", err)
		return
	}

	loc := s.svc.Location()
	start, end, ok, err := s.term.Range(loc)
	if err != nil {
		fail(w, "ics term invalid", err)
		return
	}
	if !ok {
		start = s.svc.Local(at)
		end = start.AddDate(0, 0, 7*defaultTermWeeks)
	}

	body, err := calendar.ExportICS(entries, calendar.ExportOptions{
		Location:  loc,
		TermStart: start,
		TermEnd:   end,
		Stamp:     at,
	})
	if err != nil {
		fail(w, "ics export failed", err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="schedule.ics"`)
	_, _ = w.Write([]byte(body))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.preview == "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, s.preview)
}
