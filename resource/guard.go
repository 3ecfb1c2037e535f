package resource

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"

	"github.com/wippyai/tanker-go/native"
)

// ErrReleased is returned by Acquire once the guard has been released.
var ErrReleased = errors.New("resource: handle released")

// Guard owns one native handle. The destructor runs exactly once: on the
// first Release, after the last in-flight use ends, or when the guard
// becomes unreachable.
type Guard struct {
	*entry
	cleanup runtime.Cleanup
}

type entry struct {
	reg     *Registry
	destroy Destructor
	ptr     native.Pointer
	key     uint64
	// uses counts in-flight Acquire calls; -1 means destroyed.
	uses     atomic.Int64
	released atomic.Bool
	kind     Kind
}

// Pointer returns the guarded handle without acquiring it.
func (g *Guard) Pointer() native.Pointer { return g.ptr }

// Kind returns the handle kind.
func (g *Guard) Kind() Kind { return g.kind }

// Key returns the registry key of the guard.
func (g *Guard) Key() uint64 { return g.key }

// Released reports whether Release has been called.
func (g *Guard) Released() bool { return g.released.Load() }

// Acquire marks an in-flight use of the handle. Every successful Acquire
// must be paired with Done.
func (g *Guard) Acquire() (native.Pointer, error) {
	for {
		if g.released.Load() {
			return 0, ErrReleased
		}
		n := g.uses.Load()
		if n < 0 {
			return 0, ErrReleased
		}
		if n == math.MaxInt64 {
			panic(fmt.Sprintf("resource: %s use counter overflow", g.kind))
		}
		if g.uses.CompareAndSwap(n, n+1) {
			return g.ptr, nil
		}
	}
}

// Done ends a use started by Acquire.
func (g *Guard) Done() {
	if g.uses.Add(-1) == -1 {
		g.finish(EventReleased)
	}
}

// Release consumes the guard. Only the first call wins; later calls are
// no-ops returning nil. The winner gets the destructor error when the
// destructor ran synchronously.
func (g *Guard) Release() error {
	if !g.released.CompareAndSwap(false, true) {
		return nil
	}
	g.cleanup.Stop()
	if g.uses.Add(-1) == -1 {
		return g.finish(EventReleased)
	}
	return nil
}

func (e *entry) collect() {
	if !e.released.CompareAndSwap(false, true) {
		return
	}
	if e.uses.Add(-1) == -1 {
		e.finish(EventCollected)
	}
}

func (e *entry) finish(typ EventType) (err error) {
	e.reg.remove(e)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resource: %s destructor panicked: %v", e.kind, r)
		}
		e.reg.notify(Event{Type: typ, Key: e.key, Kind: e.kind, Pointer: e.ptr, Err: err})
	}()
	if e.destroy != nil {
		err = e.destroy(e.ptr)
	}
	return err
}
