package future

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/wippyai/tanker-go/native"
)

// ErrAbandoned is returned by Await on a future that was abandoned.
var ErrAbandoned = errors.New("future: abandoned")

const (
	statePending uint32 = iota
	stateResolved
	stateTaken
	stateAbandoned
)

// Future is the host side of one native asynchronous operation. It
// resolves exactly once.
type Future struct {
	err     error
	release func(native.Pointer)
	done    chan struct{}
	op      string
	value   native.Pointer
	id      uint64
	state   atomic.Uint32
}

func newFuture(id uint64, op string, release func(native.Pointer)) *Future {
	return &Future{
		id:      id,
		op:      op,
		release: release,
		done:    make(chan struct{}),
	}
}

// Op returns the operation name given at submission.
func (f *Future) Op() string { return f.op }

// Done is closed once the future has resolved.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the future resolves or ctx ends. When ctx ends first
// the future is abandoned: a late completion is dropped and its resulting
// handle released. A result that is already available is preferred over
// ctx.Err().
func (f *Future) Await(ctx context.Context) (native.Pointer, error) {
	if f.state.Load() == stateAbandoned {
		return 0, ErrAbandoned
	}
	select {
	case <-f.done:
	case <-ctx.Done():
		if f.state.CompareAndSwap(statePending, stateAbandoned) {
			return 0, ctx.Err()
		}
		if f.state.Load() == stateAbandoned {
			return 0, ErrAbandoned
		}
		<-f.done
	}
	f.state.CompareAndSwap(stateResolved, stateTaken)
	if f.state.Load() == stateAbandoned {
		return 0, ErrAbandoned
	}
	return f.value, f.err
}

// Abandon drops interest in the result. If the result has already arrived
// and was never taken, its handle is released now; otherwise the late
// completion releases it.
func (f *Future) Abandon() {
	if f.state.CompareAndSwap(statePending, stateAbandoned) {
		return
	}
	if f.state.CompareAndSwap(stateResolved, stateAbandoned) {
		<-f.done
		if f.err == nil && f.release != nil && f.value != 0 {
			f.release(f.value)
		}
	}
}

// resolve stores the outcome. It reports false when the future had been
// abandoned, in which case the caller owns the value.
func (f *Future) resolve(value native.Pointer, err error) bool {
	f.value = value
	f.err = err
	ok := f.state.CompareAndSwap(statePending, stateResolved)
	close(f.done)
	return ok
}
