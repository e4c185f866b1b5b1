// Package sigctl implements the process-wide shutdown flag and its
// SIGINT wiring: a monotonic boolean whose readers are eventually
// consistent, set once and observed by each long-lived thread at its
// loop head.
package sigctl

import (
	"os"
	"os/signal"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Flag is a monotonic, eventually-consistent shutdown signal. Once set
// it never clears. The RX thread, TX thread, and link-layer main loop
// each poll it at their loop head.
type Flag struct {
	set atomic.Bool
}

// New returns a Flag that is not yet set.
func New() *Flag { return &Flag{} }

// Trigger sets the flag. Idempotent.
func (f *Flag) Trigger() { f.set.Store(true) }

// Triggered reports whether the flag has been set.
func (f *Flag) Triggered() bool { return f.set.Load() }

// WatchSignals sets the flag the first time the process receives
// SIGINT or SIGTERM, and returns a stop function that cancels the
// watch.
func (f *Flag) WatchSignals() (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGINT, unix.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case <-ch:
			f.Trigger()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
