package runner

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hperssn/haptics/internal/domain"
	"github.com/hperssn/haptics/internal/haptic"
)

type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
)

type EventKind string

const (
	EventSegment   EventKind = "segment"
	EventIdle      EventKind = "idle"
	EventCancelled EventKind = "cancelled"
)

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomePreempted Outcome = "preempted"
)

// Event is published for every segment activation and for the end of a
// session.
type Event struct {
	Kind      EventKind `json:"kind"`
	Session   string    `json:"session"`
	Index     int       `json:"index"`
	Loop      int       `json:"loop"`
	Duration  float64   `json:"duration,omitempty"`
	Intensity float64   `json:"intensity"`
	At        time.Time `json:"at"`
}

// Summary describes a finished playback session.
type Summary struct {
	ID          string
	Owner       string
	Segments    []domain.Segment
	Repeat      bool
	Activations int
	Loops       int
	Outcome     Outcome
	StartedAt   time.Time
	EndedAt     time.Time
}

// Sound is the audio accompaniment: a looping source whose gain can be
// ramped smoothly.
type Sound interface {
	Start() error
	RampTo(gain float64)
}

type Recorder interface {
	RecordPlayback(Summary)
}

type Status struct {
	State        State  `json:"state"`
	Session      string `json:"session,omitempty"`
	Index        int    `json:"index"`
	Loop         int    `json:"loop"`
	SoundEnabled bool   `json:"soundEnabled"`
}

type Option func(*Scheduler)

func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSound attaches the accompaniment. A nil sound leaves accompaniment
// permanently disabled.
func WithSound(snd Sound, enabled bool) Option {
	return func(s *Scheduler) {
		s.sound = snd
		s.soundEnabled = enabled && snd != nil
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

const subscriberBuffer = 64

// Scheduler plays one pattern at a time, keeping the haptic actuator and
// the accompaniment gain on the current segment's intensity. Starting a new
// playback preempts the running one.
type Scheduler struct {
	mu sync.Mutex

	actuator     haptic.Actuator
	sound        Sound
	soundEnabled bool
	clock        Clock
	logger       *zap.Logger
	recorder     Recorder

	session *session

	subs    map[int]chan Event
	nextSub int
}

type session struct {
	id       string
	owner    string
	segments []domain.Segment
	repeat   bool

	cursor      int
	loop        int
	activations int
	startedAt   time.Time
	deadline    time.Time
	timer       Timer
	active      bool
}

func NewScheduler(actuator haptic.Actuator, opts ...Option) *Scheduler {
	s := &Scheduler{
		actuator: actuator,
		clock:    RealClock(),
		logger:   zap.NewNop(),
		subs:     make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Vibrate starts playing p from its first segment. Actuator failures are
// logged, never returned; only an unplayable pattern is an error.
func (s *Scheduler) Vibrate(p *domain.Pattern) error {
	_, err := s.Play("", p)
	return err
}

// Play is Vibrate with an owner recorded in the session summary. It returns
// the new session id.
func (s *Scheduler) Play(owner string, p *domain.Pattern) (string, error) {
	if p == nil || !p.Playable() {
		return "", domain.ErrNotPlayable
	}
	snap := p.Clone()

	s.mu.Lock()
	prev := s.stopLocked(OutcomePreempted)

	now := s.clock.Now()
	sess := &session{
		id:        uuid.NewString(),
		owner:     owner,
		segments:  snap.Segments(),
		repeat:    snap.Repeat(),
		startedAt: now,
		deadline:  now,
		active:    true,
	}
	s.session = sess

	if s.soundEnabled {
		s.startSoundLocked()
	}

	s.logger.Info("playback started",
		zap.String("session", sess.id),
		zap.Int("segments", len(sess.segments)),
		zap.Bool("repeat", sess.repeat),
	)
	s.activateLocked(sess)
	s.mu.Unlock()

	s.record(prev)
	return sess.id, nil
}

// Cancel stops the running session, silencing the actuator and ramping the
// accompaniment down before it returns. It does nothing when idle.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	summary := s.stopLocked(OutcomeCancelled)
	s.mu.Unlock()

	s.record(summary)
}

// Handoff cancels any scheduled session and gives the whole pattern to the
// actuator to play on its own. No accompaniment or events are produced.
func (s *Scheduler) Handoff(p *domain.Pattern) error {
	if p == nil || !p.Playable() {
		return domain.ErrNotPlayable
	}
	snap := p.Clone()

	s.mu.Lock()
	summary := s.stopLocked(OutcomePreempted)
	s.guard("vibrate waveform", func() error {
		return s.actuator.Vibrate(snap.Segments(), snap.Repeat())
	}, zap.Int("segments", snap.Len()))
	s.mu.Unlock()

	s.record(summary)
	return nil
}

// CreateSpec builds a segment through the actuator so both agree on what
// is valid.
func (s *Scheduler) CreateSpec(duration, intensity float64) (domain.Segment, error) {
	return s.actuator.CreateSpec(duration, intensity)
}

// SetSoundEnabled toggles accompaniment and reports the effective setting,
// which stays false once audio is unavailable.
func (s *Scheduler) SetSoundEnabled(enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if enabled && s.sound == nil {
		s.logger.Warn("sound accompaniment unavailable")
		return false
	}
	if enabled == s.soundEnabled {
		return enabled
	}
	s.soundEnabled = enabled

	sess := s.session
	if sess == nil {
		return s.soundEnabled
	}
	if enabled {
		s.startSoundLocked()
		if s.soundEnabled {
			s.sound.RampTo(sess.segments[sess.cursor].Intensity)
		}
	} else {
		s.sound.RampTo(0)
	}
	return s.soundEnabled
}

func (s *Scheduler) SoundEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.soundEnabled
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{State: StateIdle, SoundEnabled: s.soundEnabled}
	if sess := s.session; sess != nil {
		st.State = StatePlaying
		st.Session = sess.id
		st.Index = sess.cursor
		st.Loop = sess.loop
	}
	return st
}

// Subscribe returns a channel of playback events and a function that
// detaches it. Events are dropped for subscribers that fall behind.
func (s *Scheduler) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, subscriberBuffer)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

func (s *Scheduler) activateLocked(sess *session) {
	seg := sess.segments[sess.cursor]
	sess.activations++

	if seg.IsSpace() {
		s.guard("silence", s.actuator.Cancel, zap.String("session", sess.id), zap.Int("index", sess.cursor))
	} else {
		s.guard("vibrate", func() error {
			return s.actuator.VibrateOnce(seg.Duration, seg.Intensity)
		}, zap.String("session", sess.id), zap.Int("index", sess.cursor))
	}
	if s.soundEnabled {
		s.sound.RampTo(seg.Intensity)
	}

	now := s.clock.Now()
	s.emitLocked(Event{
		Kind:      EventSegment,
		Session:   sess.id,
		Index:     sess.cursor,
		Loop:      sess.loop,
		Duration:  seg.Duration,
		Intensity: seg.Intensity,
		At:        now,
	})

	sess.deadline = sess.deadline.Add(seconds(seg.Duration))
	wait := sess.deadline.Sub(now)
	if wait < 0 {
		wait = 0
	}
	sess.timer = s.clock.AfterFunc(wait, func() { s.advance(sess) })
}

func (s *Scheduler) advance(sess *session) {
	s.mu.Lock()
	// A callback from a cancelled or replaced session must not revive it.
	if s.session != sess || !sess.active {
		s.mu.Unlock()
		return
	}

	sess.cursor++
	if sess.cursor >= len(sess.segments) {
		if !sess.repeat {
			summary := s.endLocked(sess, OutcomeCompleted, EventIdle)
			s.mu.Unlock()
			s.record(summary)
			return
		}
		sess.cursor = 0
		sess.loop++
	}
	s.activateLocked(sess)
	s.mu.Unlock()
}

func (s *Scheduler) stopLocked(outcome Outcome) *Summary {
	sess := s.session
	if sess == nil {
		return nil
	}
	if sess.timer != nil {
		sess.timer.Stop()
	}
	return s.endLocked(sess, outcome, EventCancelled)
}

func (s *Scheduler) endLocked(sess *session, outcome Outcome, kind EventKind) *Summary {
	sess.active = false
	sess.timer = nil
	s.session = nil

	s.guard("cancel", s.actuator.Cancel, zap.String("session", sess.id))
	if s.soundEnabled {
		s.sound.RampTo(0)
	}

	now := s.clock.Now()
	s.emitLocked(Event{
		Kind:    kind,
		Session: sess.id,
		Index:   sess.cursor,
		Loop:    sess.loop,
		At:      now,
	})
	s.logger.Info("playback ended",
		zap.String("session", sess.id),
		zap.String("outcome", string(outcome)),
		zap.Int("activations", sess.activations),
	)

	return &Summary{
		ID:          sess.id,
		Owner:       sess.owner,
		Segments:    sess.segments,
		Repeat:      sess.repeat,
		Activations: sess.activations,
		Loops:       sess.loop,
		Outcome:     outcome,
		StartedAt:   sess.startedAt,
		EndedAt:     now,
	}
}

func (s *Scheduler) startSoundLocked() {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = s.sound.Start()
	}()
	if err != nil {
		s.logger.Warn("sound accompaniment disabled", zap.Error(err))
		s.sound = nil
		s.soundEnabled = false
	}
}

// guard runs an actuator call, turning errors and panics into warnings.
func (s *Scheduler) guard(op string, f func() error, fields ...zap.Field) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: panic: %v", haptic.ErrActuatorFailure, r)
			}
		}()
		err = f()
	}()
	if err != nil {
		fields = append(fields, zap.String("op", op), zap.Error(err))
		s.logger.Warn("haptic actuator failed", fields...)
	}
}

func (s *Scheduler) emitLocked(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Scheduler) record(summary *Summary) {
	if summary == nil || s.recorder == nil {
		return
	}
	s.recorder.RecordPlayback(*summary)
}

// seconds saturates instead of overflowing.
func seconds(v float64) time.Duration {
	ns := math.Round(v * float64(time.Second))
	if ns >= math.MaxInt64 {
		return math.MaxInt64
	}
	if !(ns > 0) {
		return 0
	}
	return time.Duration(ns)
}
