// ============================================================================
// ringpool Platform Shim
// ============================================================================
//
// Package: internal/platform
// File: platform.go
// Purpose: The "platform" collaborator the core expects: spawn a named,
// joinable unit of concurrency and read a monotonic clock. This is
// explicitly an external collaborator per the spec, not core engineering -
// kept deliberately thin.
//
// Go has no portable syscall for naming an OS thread from a goroutine (the
// runtime multiplexes goroutines over OS threads and does not expose a
// stable 1:1 mapping), so Spawn names the unit of work via pprof labels
// (observable with `go tool pprof`) rather than an OS-level thread name, and
// SetPriority is a logged no-op - scheduling policy/priority is not
// something the Go runtime lets a library dictate per-goroutine either.
// Both choices match the spec's own contract: "silently no-op on platforms
// without naming" and "failures are logged but non-fatal."
//
// ============================================================================

package platform

import (
	"context"
	"runtime/pprof"
	"time"

	"github.com/ringpool/ringpool/internal/logging"
)

// SchedPolicy mirrors the spec's {RoundRobin, FIFO, Other} scheduling policy
// enum. The default Platform does not honor it; it exists so an
// alternative Platform (e.g. one built on cgo thread-affinity calls) has a
// stable vocabulary to implement against.
type SchedPolicy int

const (
	SchedOther SchedPolicy = iota
	SchedRoundRobin
	SchedFIFO
)

// Handle is a joinable reference to a spawned unit of work.
type Handle interface {
	// Join blocks until the spawned function returns.
	Join()
}

// Platform is the interface the core depends on for spawning named
// concurrent work and reading a monotonic clock.
type Platform interface {
	// Spawn starts fn as a new unit of concurrency labeled name and returns
	// a joinable handle.
	Spawn(name string, fn func()) Handle
	// Now returns a monotonic timestamp for diagnostics.
	Now() time.Time
	// SetPriority requests a scheduling policy/priority for the unit of
	// work behind h. Failures are logged but non-fatal.
	SetPriority(h Handle, policy SchedPolicy, priority int) error
}

type goroutineHandle struct {
	done chan struct{}
}

func (h *goroutineHandle) Join() {
	<-h.done
}

type defaultPlatform struct {
	logger logging.Logger
}

// Default returns the standard goroutine-backed Platform implementation,
// logging through logger.
func Default(logger logging.Logger) Platform {
	return &defaultPlatform{logger: logger}
}

func (p *defaultPlatform) Spawn(name string, fn func()) Handle {
	h := &goroutineHandle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		pprof.Do(context.Background(), pprof.Labels("ringpool_unit", name), func(context.Context) {
			fn()
		})
	}()
	return h
}

func (p *defaultPlatform) Now() time.Time {
	return time.Now()
}

func (p *defaultPlatform) SetPriority(h Handle, policy SchedPolicy, priority int) error {
	if p.logger != nil {
		p.logger.Warn("scheduling priority not supported by the Go runtime; ignoring",
			"policy", int(policy), "priority", priority)
	}
	return nil
}

var _ Platform = (*defaultPlatform)(nil)
