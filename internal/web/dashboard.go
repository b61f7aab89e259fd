package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	appLog "classgrid/internal/log"
	"classgrid/internal/model"
	"classgrid/internal/schedule"
)

//go:embed templates/*.html
var templateFS embed.FS

var dashboardTmpl = template.Must(
	template.New("dashboard.html").Funcs(template.FuncMap{
		"kitchen": func(c model.ClockTime) string { return c.Kitchen() },
		"clock":   func(t time.Time) string { return t.Format("3:04 PM") },
		"heat": func(n, max int) int {
			if max == 0 {
				return 0
			}
			return n * 100 / max
		},
	}).ParseFS(templateFS, "templates/dashboard.html"),
)

type bar struct {
	Entry model.ScheduleEntry
	Left  float64
	Width float64
}

type lane struct {
	Room string
	Bars []bar
}

type dashboardView struct {
	Now        time.Time
	Timezone   string
	Filter     model.Filter
	Days       []model.Weekday
	Rooms      []string
	Stats      model.StoreStats
	Metrics    schedule.Metrics
	Active     []model.ScheduleEntry
	Upcoming   []model.ScheduleEntry
	Heatmap    schedule.Heatmap
	Timeline   schedule.Timeline
	Lanes      []lane
	NowOffset  float64
	ShowNow    bool
	HourLabels []time.Time
}

// GET /dashboard?at=&day=&room=
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
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
	if f.Day == "" {
		f.Day = s.svc.DefaultDay(at)
	}

	v := dashboardView{
		Now:      s.svc.Local(at),
		Timezone: s.svc.Location().String(),
		Filter:   f,
		Days:     model.Weekdays,
	}
	if v.Rooms, err = s.svc.ListDistinct(ctx, model.FieldRoom); err != nil {
		fail(w, "dashboard rooms failed", err)
		return
	}
	if v.Stats, err = s.svc.Stats(ctx); err != nil {
		fail(w, "dashboard status failed", err)
		return
	}
	if v.Metrics, err = s.svc.Metrics(ctx, at); err != nil {
		fail(w, "dashboard metrics failed", err)
		return
	}
	live := model.Filter{Rooms: f.Rooms, Instructor: f.Instructor}
	if v.Active, err = s.svc.Active(ctx, at, live); err != nil {
		fail(w, "dashboard active failed", err)
		return
	}
	if v.Upcoming, err = s.svc.Upcoming(ctx, at, live); err != nil {
		fail(w, "dashboard upcoming failed", err)
		return
	}
	if v.Heatmap, err = s.svc.Heatmap(ctx, model.Filter{Rooms: f.Rooms, Instructor: f.Instructor}); err != nil {
		fail(w, "dashboard heatmap failed", err)
		return
	}
	if v.Timeline, err = s.svc.Timeline(ctx, at, f); err != nil {
		fail(w, "dashboard timeline failed", err)
		return
	}
	layoutTimeline(&v)

	var buf bytes.Buffer
	if err := dashboardTmpl.Execute(&buf, v); err != nil {
		appLog.Error("dashboard render failed", err)
		writeError(w, http.StatusInternalServerError, "dashboard render failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// layoutTimeline turns spans into percentage offsets across the
// timeline's hour-aligned window.
func layoutTimeline(v *dashboardView) {
	tl := v.Timeline
	total := tl.To.Sub(tl.From)
	if total <= 0 {
		return
	}
	pct := func(d time.Duration) float64 { return float64(d) / float64(total) * 100 }

	byRoom := make(map[string]*lane, len(tl.Rooms))
	for _, room := range tl.Rooms {
		v.Lanes = append(v.Lanes, lane{Room: room})
	}
	for i := range v.Lanes {
		byRoom[v.Lanes[i].Room] = &v.Lanes[i]
	}
	for _, sp := range tl.Spans {
		l := byRoom[sp.Entry.Room]
		l.Bars = append(l.Bars, bar{
			Entry: sp.Entry,
			Left:  pct(sp.Start.Sub(tl.From)),
			Width: pct(sp.End.Sub(sp.Start)),
		})
	}
	for h := tl.From; !h.After(tl.To); h = h.Add(time.Hour) {
		v.HourLabels = append(v.HourLabels, h)
	}
	if !tl.Now.Before(tl.From) && !tl.Now.After(tl.To) {
		v.ShowNow = true
		v.NowOffset = pct(tl.Now.Sub(tl.From))
	}
}
