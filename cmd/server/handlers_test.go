package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hperssn/haptics/internal/debuglog"
	"github.com/hperssn/haptics/internal/haptic"
	"github.com/hperssn/haptics/internal/runner"
	"github.com/hperssn/haptics/internal/storage"
)

type testEnv struct {
	handler http.Handler
	clock   *runner.ManualClock
	ring    *debuglog.Ring
}

func newTestEnv(t *testing.T, withHistory bool) *testEnv {
	t.Helper()

	dir := t.TempDir()
	ring := debuglog.NewRing(zapcore.DebugLevel, debuglog.DefaultSize)
	logger := zap.New(ring)
	clock := runner.NewManualClock(time.Unix(1000, 0))

	opts := []runner.Option{runner.WithClock(clock), runner.WithLogger(logger)}

	var history storage.Repository
	if withHistory {
		repo, err := storage.NewSQLiteRepository(filepath.Join(dir, "history.db"))
		if err != nil {
			t.Fatalf("open history: %v", err)
		}
		t.Cleanup(func() { repo.Close() })
		history = repo
		opts = append(opts, runner.WithRecorder(storage.NewRecorder(repo, logger)))
	}

	files, err := storage.NewFileStore(filepath.Join(dir, "patterns"))
	if err != nil {
		t.Fatalf("file store: %v", err)
	}

	sched := runner.NewScheduler(haptic.NewNoop(logger), opts...)
	manager := runner.NewManager(sched, clock)
	t.Cleanup(manager.Close)

	srv := &server{
		manager: manager,
		files:   files,
		history: history,
		ring:    ring,
		logger:  logger,
	}
	return &testEnv{handler: srv.routes(), clock: clock, ring: ring}
}

func (e *testEnv) do(t *testing.T, method, path, body, user string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if user != "" {
		req.Header.Set("X-Auth-User", user)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var v map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestEditPattern(t *testing.T) {
	env := newTestEnv(t, false)

	if rec := env.do(t, http.MethodPost, "/pattern/vibrations", `{"duration":0.1,"intensity":0.5}`, "alice"); rec.Code != http.StatusOK {
		t.Fatalf("add vibration: %d %s", rec.Code, rec.Body)
	}
	rec := env.do(t, http.MethodPost, "/pattern/spaces", `{"duration":0.05}`, "alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("add space: %d %s", rec.Code, rec.Body)
	}

	v := decodeView(t, rec)
	if v["playable"] != true {
		t.Fatalf("expected playable pattern, got %v", v)
	}
	if v["label"] != "Pattern (total duration = 150 ms):" {
		t.Fatalf("unexpected label %v", v["label"])
	}
	elements := v["pattern"].(map[string]any)["elements"].([]any)
	if len(elements) != 2 {
		t.Fatalf("expected 2 elements, got %v", elements)
	}

	// other users start from an empty pattern
	v = decodeView(t, env.do(t, http.MethodGet, "/pattern", "", "bob"))
	if v["totalDuration"].(float64) != 0 || v["playable"] != false {
		t.Fatalf("expected empty pattern for bob, got %v", v)
	}
}

func TestRemoveWorkspace(t *testing.T) {
	env := newTestEnv(t, false)

	if rec := env.do(t, http.MethodDelete, "/workspace", "", "carol"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before first use, got %d", rec.Code)
	}
	env.do(t, http.MethodPost, "/pattern/vibrations", `{"duration":0.1,"intensity":1}`, "carol")
	if rec := env.do(t, http.MethodDelete, "/workspace", "", "carol"); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	v := decodeView(t, env.do(t, http.MethodGet, "/pattern", "", "carol"))
	if v["totalDuration"].(float64) != 0 {
		t.Fatalf("expected a fresh pattern, got %v", v)
	}
}

func TestEditPatternRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPost, "/pattern/vibrations", `{"duration":-1,"intensity":0.5}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/pattern/spaces", `not json`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}

	v := decodeView(t, env.do(t, http.MethodGet, "/pattern", "", ""))
	if v["totalDuration"].(float64) != 0 {
		t.Fatalf("pattern should be unchanged, got %v", v)
	}
}

func TestEditPatternRejectsOverlongMerge(t *testing.T) {
	env := newTestEnv(t, false)

	if rec := env.do(t, http.MethodPost, "/pattern/vibrations", `{"duration":86400,"intensity":1}`, ""); rec.Code != http.StatusOK {
		t.Fatalf("add vibration: %d %s", rec.Code, rec.Body)
	}
	if rec := env.do(t, http.MethodPost, "/pattern/vibrations", `{"duration":86400,"intensity":1}`, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for merged overflow, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/pattern", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get pattern: %d", rec.Code)
	}
	if v := decodeView(t, rec); v["totalDuration"].(float64) != 86400 {
		t.Fatalf("unexpected pattern %v", v)
	}
}

func TestPlayPattern(t *testing.T) {
	env := newTestEnv(t, true)

	if rec := env.do(t, http.MethodPost, "/pattern/play", "", "alice"); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for empty pattern, got %d", rec.Code)
	}

	env.do(t, http.MethodPost, "/pattern/vibrations", `{"duration":0.2,"intensity":1}`, "alice")
	rec := env.do(t, http.MethodPost, "/pattern/play", "", "alice")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %s", rec.Code, rec.Body)
	}

	var status runner.Status
	json.Unmarshal(env.do(t, http.MethodGet, "/playback", "", "").Body.Bytes(), &status)
	if status.State != runner.StatePlaying {
		t.Fatalf("expected playing, got %+v", status)
	}

	env.clock.Advance(200 * time.Millisecond)

	json.Unmarshal(env.do(t, http.MethodGet, "/playback", "", "").Body.Bytes(), &status)
	if status.State != runner.StateIdle {
		t.Fatalf("expected idle, got %+v", status)
	}

	var records []storage.PlaybackRecord
	if err := json.Unmarshal(env.do(t, http.MethodGet, "/history", "", "alice").Body.Bytes(), &records); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(records) != 1 || records[0].Outcome != runner.OutcomeCompleted {
		t.Fatalf("unexpected history %+v", records)
	}

	var stats storage.PlaybackStats
	json.Unmarshal(env.do(t, http.MethodGet, "/history/stats", "", "alice").Body.Bytes(), &stats)
	if stats.TotalPlaybacks != 1 || stats.CompletedCount != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestCancelPlayback(t *testing.T) {
	env := newTestEnv(t, true)

	env.do(t, http.MethodPost, "/pattern/vibrations", `{"duration":1,"intensity":1}`, "")
	env.do(t, http.MethodPost, "/pattern/play", "", "")

	if rec := env.do(t, http.MethodPost, "/playback/cancel", "", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	// cancelling when idle is harmless
	if rec := env.do(t, http.MethodPost, "/playback/cancel", "", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	var records []storage.PlaybackRecord
	json.Unmarshal(env.do(t, http.MethodGet, "/history", "", "").Body.Bytes(), &records)
	if len(records) != 1 || records[0].Outcome != runner.OutcomeCancelled {
		t.Fatalf("unexpected history %+v", records)
	}
}

func TestPresets(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"single-click", "", http.StatusAccepted},
		{"double-click", `{"intensity":0.5}`, http.StatusAccepted},
		{"clicks", `{"count":3}`, http.StatusAccepted},
		{"clicks", `{"count":0}`, http.StatusBadRequest},
		{"buzz", `{"native":true}`, http.StatusAccepted},
		{"buzz", `{"intensity":0}`, http.StatusBadRequest},
		{"siren", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := env.do(t, http.MethodPost, "/presets/"+tt.name+"/play", tt.body, "")
		if rec.Code != tt.want {
			t.Errorf("%s %s: expected %d, got %d %s", tt.name, tt.body, tt.want, rec.Code, rec.Body)
		}
	}
}

func TestPatternFiles(t *testing.T) {
	env := newTestEnv(t, false)

	env.do(t, http.MethodPost, "/pattern/vibrations", `{"duration":0.1,"intensity":1}`, "")
	env.do(t, http.MethodPut, "/pattern/repeat", `{"repeat":true}`, "")

	rec := env.do(t, http.MethodPut, "/patterns/pulse", "", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("save: %d %s", rec.Code, rec.Body)
	}
	if v := decodeView(t, rec); v["file"] != "pulse.json" {
		t.Fatalf("unexpected file %v", v)
	}

	if rec := env.do(t, http.MethodPut, "/patterns/.hidden", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad name, got %d", rec.Code)
	}

	var list struct {
		Patterns []string `json:"patterns"`
	}
	json.Unmarshal(env.do(t, http.MethodGet, "/patterns", "", "").Body.Bytes(), &list)
	if len(list.Patterns) != 1 || list.Patterns[0] != "pulse.json" {
		t.Fatalf("unexpected listing %v", list.Patterns)
	}

	rec = env.do(t, http.MethodPost, "/patterns/pulse.json/load", "", "bob")
	if rec.Code != http.StatusOK {
		t.Fatalf("load: %d %s", rec.Code, rec.Body)
	}
	v := decodeView(t, rec)
	if v["pattern"].(map[string]any)["repeat"] != true {
		t.Fatalf("loaded pattern should repeat, got %v", v)
	}

	if rec := env.do(t, http.MethodPost, "/patterns/missing.json/load", "", "bob"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/patterns", "", "")
	if v := decodeView(t, rec); v["removed"].(float64) != 1 {
		t.Fatalf("unexpected removal %v", v)
	}
}

func TestWaveformImage(t *testing.T) {
	env := newTestEnv(t, false)
	env.do(t, http.MethodPost, "/pattern/vibrations", `{"duration":0.1,"intensity":1}`, "")

	rec := env.do(t, http.MethodGet, "/pattern/waveform.png?width=320&height=80", "", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 80 {
		t.Fatalf("unexpected size %v", b)
	}

	if rec := env.do(t, http.MethodGet, "/pattern/waveform.png?width=0", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSoundSettingWithoutAudio(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPut, "/settings/sound", `{"enabled":true}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var v map[string]bool
	json.Unmarshal(rec.Body.Bytes(), &v)
	if v["soundEnabled"] {
		t.Fatalf("sound cannot be enabled without an accompaniment")
	}
}

func TestHistoryDisabled(t *testing.T) {
	env := newTestEnv(t, false)

	if rec := env.do(t, http.MethodGet, "/history", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/history/stats", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestDebugLog(t *testing.T) {
	env := newTestEnv(t, false)

	env.do(t, http.MethodPost, "/pattern/vibrations", `{"duration":0.1,"intensity":1}`, "")
	env.do(t, http.MethodPost, "/pattern/play", "", "")

	var v struct {
		Messages []string `json:"messages"`
	}
	json.Unmarshal(env.do(t, http.MethodGet, "/debug/log", "", "").Body.Bytes(), &v)
	if len(v.Messages) == 0 {
		t.Fatalf("expected debug messages")
	}
	found := false
	for _, m := range v.Messages {
		if strings.HasSuffix(m, "playback started") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected playback start in %v", v.Messages)
	}
}
