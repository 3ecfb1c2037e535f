package future

import (
	stderrors "errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/tanker-go/errors"
	"github.com/wippyai/tanker-go/native"
	"github.com/wippyai/tanker-go/resource"
)

var errNullFuture = stderrors.New("native call returned a null future")

// Outcome classifies how an operation resolved.
type Outcome string

const (
	OutcomeOK                Outcome = "ok"
	OutcomeNativeError       Outcome = "native_error"
	OutcomeSyncError         Outcome = "sync_error"
	OutcomeProtocolViolation Outcome = "protocol_violation"
)

// Observer receives operation lifecycle notifications. Methods may be
// called from native threads and must not block.
type Observer interface {
	OperationSubmitted(op string)
	OperationCompleted(op string, outcome Outcome)
	LateCompletion(op string)
	ProtocolViolation(op string)
}

type nopObserver struct{}

func (nopObserver) OperationSubmitted(string) {}
func (nopObserver) OperationCompleted(string, Outcome) {}
func (nopObserver) LateCompletion(string) {}
func (nopObserver) ProtocolViolation(string) {}

// Bridge turns native future handles into Futures.
type Bridge struct {
	lib      native.Library
	reg      *resource.Registry
	pending  *pendingTable
	observer Observer
	nextID   atomic.Uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithObserver installs an operation observer.
func WithObserver(o Observer) Option {
	return func(b *Bridge) {
		if o != nil {
			b.observer = o
		}
	}
}

// NewBridge creates a bridge over lib. Native future handles are tracked
// in reg.
func NewBridge(lib native.Library, reg *resource.Registry, opts ...Option) *Bridge {
	b := &Bridge{
		lib:      lib,
		reg:      reg,
		pending:  newPendingTable(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Library returns the native library the bridge calls into.
func (b *Bridge) Library() native.Library { return b.lib }

// Registry returns the handle registry of the bridge.
func (b *Bridge) Registry() *resource.Registry { return b.reg }

// Pending returns the number of unresolved operations.
func (b *Bridge) Pending() int { return b.pending.len() }

type submitConfig struct {
	release func(native.Pointer)
}

// SubmitOption configures a single submission.
type SubmitOption func(*submitConfig)

// WithRelease sets the destructor for the handle an operation resolves to.
// It runs when the result arrives after the future was abandoned.
func WithRelease(fn func(native.Pointer)) SubmitOption {
	return func(c *submitConfig) { c.release = fn }
}

// Submit registers a completion slot and then issues call. The returned
// future resolves exactly once: with a native-sync error when call fails or
// returns a null future, and from the native completion otherwise.
func (b *Bridge) Submit(op string, call func() (native.Pointer, error), opts ...SubmitOption) *Future {
	var cfg submitConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	f := newFuture(b.nextID.Add(1), op, cfg.release)
	b.pending.put(f)
	b.observer.OperationSubmitted(op)

	fut, err := invoke(call)
	if err == nil && fut == 0 {
		err = errNullFuture
	}
	if err != nil {
		if b.pending.take(f.id) != nil {
			b.finish(f, 0, errors.NativeSync(op, "native call rejected", err), OutcomeSyncError)
		}
		return f
	}

	// A closed registry destroys the future inside Register. The operation
	// still runs natively, so its result must reach cfg.release.
	var registered atomic.Bool
	guard, err := b.reg.Register(resource.KindFuture, fut, func(p native.Pointer) error {
		if !registered.Load() {
			b.orphan(op, p, cfg.release)
			return nil
		}
		return b.destroyFuture(p)
	})
	if err != nil {
		if b.pending.take(f.id) != nil {
			b.finish(f, 0, errors.SessionClosed(op), OutcomeSyncError)
		}
		return f
	}
	registered.Store(true)

	id := f.id
	if b.lib.FutureIsReady(fut) {
		b.complete(id, op, guard)
		return f
	}
	b.lib.FutureThen(fut, func(native.Pointer) {
		b.complete(id, op, guard)
	})
	return f
}

// orphan waits for a future no caller will read, releases the handle it
// resolves to and destroys it.
func (b *Bridge) orphan(op string, fut native.Pointer, release func(native.Pointer)) {
	if release == nil {
		b.lib.FutureDestroy(fut)
		return
	}
	drop := func() {
		value, _, err := b.outcome(op, fut)
		b.lib.FutureDestroy(fut)
		b.observer.LateCompletion(op)
		if err == nil && value != 0 {
			go release(value)
		}
	}
	if b.lib.FutureIsReady(fut) {
		drop()
		return
	}
	b.lib.FutureThen(fut, func(native.Pointer) { drop() })
}

func invoke(call func() (native.Pointer, error)) (fut native.Pointer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("native call panicked: %v", r)
		}
	}()
	return call()
}

// complete is the completion entry point. It runs on a native thread, only
// reads the outcome and signals the waiting future.
func (b *Bridge) complete(id uint64, op string, guard *resource.Guard) {
	f := b.pending.take(id)
	if f == nil {
		b.observer.ProtocolViolation(op)
		Logger().Error("native future completed more than once",
			zap.String("op", op),
			zap.Uint64("op_id", id),
			zap.Uintptr("future", uintptr(guard.Pointer())))
		return
	}

	value, outcome, err := b.outcome(f.op, guard.Pointer())
	if rerr := guard.Release(); rerr != nil {
		Logger().Warn("failed to destroy native future", zap.String("op", f.op), zap.Error(rerr))
	}
	if outcome == OutcomeProtocolViolation {
		b.observer.ProtocolViolation(f.op)
		Logger().Error("native contract violated", zap.String("op", f.op), zap.Error(err))
	}
	b.finish(f, value, err, outcome)
}

func (b *Bridge) outcome(op string, fut native.Pointer) (value native.Pointer, outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = 0
			err = errors.ProtocolViolation(op, fmt.Sprintf("reading future outcome panicked: %v", r))
			outcome = OutcomeProtocolViolation
		}
	}()

	switch {
	case !b.lib.FutureIsReady(fut):
		return 0, OutcomeProtocolViolation, errors.ProtocolViolation(op, "completion fired before the future was ready")
	case b.lib.FutureHasError(fut):
		code, msg := b.lib.FutureGetError(fut)
		return 0, OutcomeNativeError, errors.WithOp(errors.Translate(code, msg), op)
	default:
		return b.lib.FutureGetValue(fut), OutcomeOK, nil
	}
}

func (b *Bridge) finish(f *Future, value native.Pointer, err error, outcome Outcome) {
	if f.resolve(value, err) {
		b.observer.OperationCompleted(f.op, outcome)
		Logger().Debug("operation resolved", zap.String("op", f.op), zap.String("outcome", string(outcome)))
		return
	}

	b.observer.LateCompletion(f.op)
	Logger().Debug("late completion dropped", zap.String("op", f.op), zap.String("outcome", string(outcome)))
	if err == nil && value != 0 && f.release != nil {
		go f.release(value)
	}
}

func (b *Bridge) destroyFuture(p native.Pointer) error {
	b.lib.FutureDestroy(p)
	return nil
}
