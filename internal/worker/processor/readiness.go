package processor

import (
	"context"
	"strings"
	"sync"

	"scenecap/internal/pkg/errors"
	"scenecap/internal/ports"
)

// Latch is a one-shot signal. Open may be called any number of times.
type Latch struct {
	once sync.Once
	ch   chan struct{}
}

func NewLatch() *Latch {
	return &Latch{ch: make(chan struct{})}
}

func (l *Latch) Open() {
	l.once.Do(func() { close(l.ch) })
}

func (l *Latch) IsOpen() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}

func (l *Latch) Done() <-chan struct{} {
	return l.ch
}

// ReadinessGate opens the first time the page logs a line containing marker.
type ReadinessGate struct {
	marker string
	latch  *Latch
}

func NewReadinessGate(marker string) *ReadinessGate {
	return &ReadinessGate{marker: marker, latch: NewLatch()}
}

// Attach subscribes the gate to the session console. Call it before navigating,
// otherwise an early marker can be missed.
func (g *ReadinessGate) Attach(s ports.Session) {
	s.OnConsole(g.Observe)
}

// Observe checks one console line. Lines after the first match are ignored.
func (g *ReadinessGate) Observe(text string) {
	if g.latch.IsOpen() {
		return
	}
	if strings.Contains(text, g.marker) {
		g.latch.Open()
	}
}

func (g *ReadinessGate) Ready() bool {
	return g.latch.IsOpen()
}

// Wait blocks until the marker has been seen. The gate has no timeout of its
// own; only ctx can end the wait early.
func (g *ReadinessGate) Wait(ctx context.Context) error {
	select {
	case <-g.latch.Done():
		return nil
	case <-ctx.Done():
		return errors.WrapWithCode(ctx.Err(), errors.CodeReadiness, "job.readiness",
			"scene never reported "+g.marker)
	}
}
