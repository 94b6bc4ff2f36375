package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hperssn/haptics/internal/domain"
)

var ErrWorkspaceNotFound = errors.New("workspace not found")

const (
	cleanupInterval = 5 * time.Minute
	workspaceTTL    = time.Hour
)

type workspace struct {
	pattern  *domain.Pattern
	lastUsed time.Time
}

// Manager keeps one pattern per user and routes playback through a single
// shared scheduler. Playback across users is last-writer-wins.
type Manager struct {
	mu         sync.Mutex
	workspaces map[string]*workspace
	scheduler  *Scheduler
	clock      Clock
	stop       context.CancelFunc
}

func NewManager(s *Scheduler, clock Clock) *Manager {
	if clock == nil {
		clock = RealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		workspaces: make(map[string]*workspace),
		scheduler:  s,
		clock:      clock,
		stop:       cancel,
	}

	go m.cleanupLoop(ctx)

	return m
}

func (m *Manager) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CleanupIdle()
		case <-ctx.Done():
			return
		}
	}
}

// CleanupIdle drops workspaces untouched for longer than an hour.
func (m *Manager) CleanupIdle() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.clock.Now().Add(-workspaceTTL)
	removed := 0
	for id, ws := range m.workspaces {
		if ws.lastUsed.Before(cutoff) {
			delete(m.workspaces, id)
			removed++
		}
	}
	return removed
}

func (m *Manager) Close() {
	m.stop()
}

func (m *Manager) Scheduler() *Scheduler {
	return m.scheduler
}

// Edit runs fn against the user's pattern, creating an empty one on first
// use. fn must not retain p.
func (m *Manager) Edit(userID string, fn func(p *domain.Pattern) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return fn(m.touchLocked(userID).pattern)
}

// Pattern returns a copy of the user's current pattern.
func (m *Manager) Pattern(userID string) *domain.Pattern {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.touchLocked(userID).pattern.Clone()
}

// Play starts the user's pattern on the shared scheduler.
func (m *Manager) Play(userID string) (string, error) {
	p := m.Pattern(userID)
	return m.scheduler.Play(userID, p)
}

func (m *Manager) Remove(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workspaces[userID]; !ok {
		return ErrWorkspaceNotFound
	}
	delete(m.workspaces, userID)
	return nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workspaces)
}

func (m *Manager) touchLocked(userID string) *workspace {
	ws, ok := m.workspaces[userID]
	if !ok {
		ws = &workspace{pattern: domain.NewPattern(false)}
		m.workspaces[userID] = ws
	}
	ws.lastUsed = m.clock.Now()
	return ws
}
