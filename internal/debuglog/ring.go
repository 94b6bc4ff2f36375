// Package debuglog keeps the most recent log messages in memory so they
// can be shown next to the pattern editor.
package debuglog

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

const DefaultSize = 5

// Ring is a zapcore.Core that retains the last few messages, newest
// first, prefixed with the seconds elapsed since the ring was created.
type Ring struct {
	zapcore.LevelEnabler

	mu      *sync.Mutex
	start   time.Time
	size    int
	entries *[]string
}

func NewRing(level zapcore.LevelEnabler, size int) *Ring {
	if size < 1 {
		size = DefaultSize
	}
	entries := make([]string, 0, size)
	return &Ring{
		LevelEnabler: level,
		mu:           &sync.Mutex{},
		start:        time.Now(),
		size:         size,
		entries:      &entries,
	}
}

// With shares the buffer; fields are not rendered.
func (r *Ring) With([]zapcore.Field) zapcore.Core { return r }

func (r *Ring) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if r.Enabled(ent.Level) {
		return ce.AddCore(ent, r)
	}
	return ce
}

func (r *Ring) Write(ent zapcore.Entry, _ []zapcore.Field) error {
	elapsed := ent.Time.Sub(r.start).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	r.Add(elapsed, ent.Message)
	return nil
}

// Add records a message stamped with the given elapsed seconds.
func (r *Ring) Add(elapsed float64, msg string) {
	line := fmt.Sprintf("%.3f: %s", elapsed, msg)

	r.mu.Lock()
	defer r.mu.Unlock()
	entries := append([]string{line}, *r.entries...)
	if len(entries) > r.size {
		entries = entries[:r.size]
	}
	*r.entries = entries
}

func (r *Ring) Sync() error { return nil }

// Messages returns the retained lines, newest first.
func (r *Ring) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), *r.entries...)
}
