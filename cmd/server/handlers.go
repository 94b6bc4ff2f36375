package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hperssn/haptics/internal/debuglog"
	"github.com/hperssn/haptics/internal/domain"
	httpapi "github.com/hperssn/haptics/internal/http"
	"github.com/hperssn/haptics/internal/render"
	"github.com/hperssn/haptics/internal/runner"
	"github.com/hperssn/haptics/internal/storage"
)

const (
	defaultWaveformWidth  = 600
	defaultWaveformHeight = 150
	maxWaveformSide       = 4096
)

var (
	errHistoryDisabled = errors.New("playback history is disabled")
	errUnknownPreset   = errors.New("unknown preset")
)

type server struct {
	manager *runner.Manager
	files   *storage.FileStore
	// history is nil when the database driver is "none".
	history storage.Repository
	ring    *debuglog.Ring
	logger  *zap.Logger
}

func (s *server) routes() http.Handler {
	sched := s.manager.Scheduler()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(ExtractUser(s.logger))

	r.Route("/pattern", func(r chi.Router) {
		r.Get("/", s.getPattern)
		r.Delete("/", s.clearPattern)
		r.Post("/vibrations", s.addVibration)
		r.Post("/spaces", s.addSpace)
		r.Put("/repeat", s.setRepeat)
		r.Post("/play", s.playPattern)
		r.Get("/waveform.png", s.waveform)
	})

	r.Delete("/workspace", s.removeWorkspace)

	r.Get("/playback", getPlayback(sched))
	r.Post("/playback/cancel", cancelPlayback(sched))
	r.Get("/playback/events", httpapi.StreamPlaybackEvents(sched, s.logger))
	r.Post("/presets/{name}/play", playPreset(sched))
	r.Put("/settings/sound", setSound(sched))

	r.Get("/patterns", s.listPatterns)
	r.Put("/patterns/{name}", s.savePattern)
	r.Post("/patterns/{name}/load", s.loadPattern)
	r.Delete("/patterns", s.removePatterns)

	r.Get("/history", s.getHistory)
	r.Get("/history/stats", s.getHistoryStats)

	r.Get("/debug/log", s.debugLog)

	return r
}

type patternView struct {
	Pattern       *domain.Pattern `json:"pattern"`
	TotalDuration float64         `json:"totalDuration"`
	Playable      bool            `json:"playable"`
	Label         string          `json:"label"`
}

func viewOf(p *domain.Pattern) patternView {
	total := p.TotalDuration()
	return patternView{
		Pattern:       p,
		TotalDuration: total,
		Playable:      p.Playable(),
		Label:         render.Label(total),
	}
}

func (s *server) getPattern(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, viewOf(s.manager.Pattern(GetUserID(r))), http.StatusOK)
}

func (s *server) clearPattern(w http.ResponseWriter, r *http.Request) {
	s.edit(w, r, func(p *domain.Pattern) error {
		p.Clear()
		return nil
	})
}

func (s *server) addVibration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Duration  float64 `json:"duration"`
		Intensity float64 `json:"intensity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.edit(w, r, func(p *domain.Pattern) error {
		return p.AddVibration(req.Duration, req.Intensity)
	})
}

func (s *server) addSpace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Duration float64 `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.edit(w, r, func(p *domain.Pattern) error {
		return p.AddSpace(req.Duration)
	})
}

func (s *server) setRepeat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Repeat bool `json:"repeat"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.edit(w, r, func(p *domain.Pattern) error {
		p.SetRepeat(req.Repeat)
		return nil
	})
}

// edit applies fn to the caller's pattern and responds with the result.
func (s *server) edit(w http.ResponseWriter, r *http.Request, fn func(p *domain.Pattern) error) {
	userID := GetUserID(r)
	if err := s.manager.Edit(userID, fn); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, viewOf(s.manager.Pattern(userID)), http.StatusOK)
}

// removeWorkspace drops the caller's pattern ahead of idle cleanup.
func (s *server) removeWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Remove(GetUserID(r)); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) playPattern(w http.ResponseWriter, r *http.Request) {
	id, err := s.manager.Play(GetUserID(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, map[string]string{"session": id}, http.StatusAccepted)
}

func (s *server) waveform(w http.ResponseWriter, r *http.Request) {
	width, err := dimension(r, "width", defaultWaveformWidth)
	if err != nil {
		respondErr(w, err)
		return
	}
	height, err := dimension(r, "height", defaultWaveformHeight)
	if err != nil {
		respondErr(w, err)
		return
	}

	img := render.Waveform(s.manager.Pattern(GetUserID(r)), width, height)

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		s.logger.Warn("failed to encode waveform", zap.Error(err))
	}
}

func dimension(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 || v > maxWaveformSide {
		return 0, fmt.Errorf("%s must be between 1 and %d: %w", key, maxWaveformSide, domain.ErrInvalidArgument)
	}
	return v, nil
}

func getPlayback(sched *runner.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, sched.Status(), http.StatusOK)
	}
}

func cancelPlayback(sched *runner.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched.Cancel()
		w.WriteHeader(http.StatusNoContent)
	}
}

type presetRequest struct {
	Duration       *float64 `json:"duration"`
	Intensity      *float64 `json:"intensity"`
	InterClickTime *float64 `json:"interClickTime"`
	Count          int      `json:"count"`
	// Native hands the whole pattern to the actuator instead of
	// scheduling it segment by segment.
	Native bool `json:"native"`
}

func playPreset(sched *runner.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req presetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		p, err := buildPreset(chi.URLParam(r, "name"), req)
		if err != nil {
			respondErr(w, err)
			return
		}

		if req.Native {
			if err := sched.Handoff(p); err != nil {
				respondErr(w, err)
				return
			}
			w.WriteHeader(http.StatusAccepted)
			return
		}

		id, err := sched.Play(GetUserID(r), p)
		if err != nil {
			respondErr(w, err)
			return
		}
		respondJSON(w, map[string]string{"session": id}, http.StatusAccepted)
	}
}

func buildPreset(name string, req presetRequest) (*domain.Pattern, error) {
	intensity := valueOr(req.Intensity, domain.DefaultClickIntensity)
	gap := valueOr(req.InterClickTime, domain.DefaultInterClickTime)

	switch name {
	case "single-click":
		return domain.SingleClick(valueOr(req.Duration, domain.DefaultClickDuration), intensity)
	case "double-click":
		return domain.DoubleClick(valueOr(req.Duration, domain.DefaultClickDuration), intensity, gap)
	case "clicks":
		return domain.Clicks(req.Count, valueOr(req.Duration, domain.DefaultClickDuration), intensity, gap)
	case "buzz":
		return domain.Buzz(valueOr(req.Duration, domain.DefaultBuzzDuration), intensity)
	default:
		return nil, fmt.Errorf("%w %q", errUnknownPreset, name)
	}
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func setSound(sched *runner.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		enabled := sched.SetSoundEnabled(req.Enabled)
		respondJSON(w, map[string]bool{"soundEnabled": enabled}, http.StatusOK)
	}
}

func (s *server) listPatterns(w http.ResponseWriter, r *http.Request) {
	names, err := s.files.List()
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, map[string][]string{"patterns": names}, http.StatusOK)
}

func (s *server) savePattern(w http.ResponseWriter, r *http.Request) {
	file, err := s.files.Save(chi.URLParam(r, "name"), s.manager.Pattern(GetUserID(r)))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, map[string]string{"file": file}, http.StatusCreated)
}

func (s *server) loadPattern(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.edit(w, r, func(p *domain.Pattern) error {
		return s.files.Load(name, p)
	})
}

func (s *server) removePatterns(w http.ResponseWriter, r *http.Request) {
	n, err := s.files.RemoveAll()
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, map[string]int{"removed": n}, http.StatusOK)
}

func (s *server) getHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondErr(w, errHistoryDisabled)
		return
	}
	userID := GetUserID(r)

	var (
		records []storage.PlaybackRecord
		err     error
	)
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, perr := time.Parse(time.RFC3339, raw)
		if perr != nil {
			respondError(w, "since must be an RFC 3339 timestamp", http.StatusBadRequest)
			return
		}
		records, err = s.history.GetRecentPlaybacks(userID, since)
	} else {
		records, err = s.history.GetPlaybacksByUser(userID)
	}
	if err != nil {
		respondErr(w, err)
		return
	}
	if records == nil {
		records = []storage.PlaybackRecord{}
	}
	respondJSON(w, records, http.StatusOK)
}

func (s *server) getHistoryStats(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondErr(w, errHistoryDisabled)
		return
	}
	stats, err := s.history.GetPlaybackStats(GetUserID(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, stats, http.StatusOK)
}

func (s *server) debugLog(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string][]string{"messages": s.ring.Messages()}, http.StatusOK)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, storage.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotPlayable):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, runner.ErrWorkspaceNotFound), errors.Is(err, errUnknownPreset):
		return http.StatusNotFound
	case errors.Is(err, errHistoryDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(w http.ResponseWriter, err error) {
	respondError(w, err.Error(), statusFor(err))
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
