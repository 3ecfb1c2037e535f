//go:build cgo && ctanker

package ctanker

/*
#cgo pkg-config: ctanker
#include "bridge.h"
*/
import "C"

import (
	"runtime/cgo"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/wippyai/tanker-go/native"
)

// Struct versions understood by the linked ctanker.
const (
	optionsVersion             = 4
	verificationVersion        = 9
	verificationOptionsVersion = 2
	encryptOptionsVersion      = 4
	sharingOptionsVersion      = 1
	subVerificationVersion     = 1
)

// settled is the outcome of a future read inside its then callback. The
// original future may not be inspected once tanker_future_then was called.
type settled struct {
	value   native.Pointer
	message string
	code    uint32
	failed  bool
}

// Library is the cgo binding. ctanker keeps process-wide state, so every
// Library shares it.
type Library struct {
	arenas  sync.Map // future -> *arena
	waiting sync.Map // future passed to tanker_future_then, not yet settled
	settled sync.Map // future -> *settled
	owned   sync.Map // future -> *owned
	cores   sync.Map // tanker_t -> cgo.Handle of its HTTP handler
	streams sync.Map // tanker_stream_t -> cgo.Handle of its input source
}

// owned is a callback handle whose lifetime moves from the creating future
// to the object it yields.
type owned struct {
	dst    *sync.Map
	handle cgo.Handle
}

var (
	logHandler atomic.Pointer[native.LogHandler]
	logOnce    sync.Once
)

var _ native.Library = (*Library)(nil)

// New returns the cgo binding.
func New() (native.Library, error) {
	return &Library{}, nil
}

func ptr[T any](p *T) native.Pointer { return native.Pointer(unsafe.Pointer(p)) }

func cfut(p native.Pointer) *C.tanker_future_t {
	return (*C.tanker_future_t)(unsafe.Pointer(p))
}

func ctanker(p native.Pointer) *C.tanker_t {
	return (*C.tanker_t)(unsafe.Pointer(p))
}

func csession(p native.Pointer) *C.tanker_encryption_session_t {
	return (*C.tanker_encryption_session_t)(unsafe.Pointer(p))
}

// retain keeps a's allocations alive until fut is destroyed. A null future
// frees them at once.
func (l *Library) retain(fut *C.tanker_future_t, a *arena) native.Pointer {
	p := ptr(fut)
	if p == 0 {
		a.free()
		return 0
	}
	l.arenas.Store(p, a)
	return p
}

// Init implements native.Library. The log handler is installed before the
// first init, once per process.
func (l *Library) Init() {
	logOnce.Do(func() { C.bridge_install_log_handler() })
	C.tanker_init()
}

// Teardown implements native.Library. ctanker has no teardown entry point;
// native state lives until process exit.
func (l *Library) Teardown() {}

// VersionString implements native.Library.
func (l *Library) VersionString() string {
	return C.GoString(C.tanker_version_string())
}

// SetLogHandler implements native.Library.
func (l *Library) SetLogHandler(h native.LogHandler) {
	if h == nil {
		logHandler.Store(nil)
		return
	}
	logHandler.Store(&h)
}

// FutureIsReady implements native.Library.
func (l *Library) FutureIsReady(fut native.Pointer) bool {
	if _, ok := l.settled.Load(fut); ok {
		return true
	}
	return bool(C.tanker_future_is_ready(cfut(fut)))
}

// FutureHasError implements native.Library.
func (l *Library) FutureHasError(fut native.Pointer) bool {
	if s, ok := l.settled.Load(fut); ok {
		return s.(*settled).failed
	}
	return C.tanker_future_has_error(cfut(fut)) != 0
}

// FutureGetError implements native.Library.
func (l *Library) FutureGetError(fut native.Pointer) (uint32, string) {
	if s, ok := l.settled.Load(fut); ok {
		return s.(*settled).code, s.(*settled).message
	}
	e := C.tanker_future_get_error(cfut(fut))
	return uint32(e.code), C.GoString(e.message)
}

// FutureGetValue implements native.Library.
func (l *Library) FutureGetValue(fut native.Pointer) native.Pointer {
	if s, ok := l.settled.Load(fut); ok {
		return s.(*settled).value
	}
	return native.Pointer(uintptr(C.tanker_future_get_voidptr(cfut(fut))))
}

type continuation struct {
	lib  *Library
	cont native.Continuation
	fut  native.Pointer
}

// FutureThen implements native.Library.
func (l *Library) FutureThen(fut native.Pointer, cont native.Continuation) {
	h := cgo.NewHandle(&continuation{lib: l, cont: cont, fut: fut})
	l.waiting.Store(fut, struct{}{})
	C.bridge_future_then(cfut(fut), C.uintptr_t(h))
}

// FutureDestroy implements native.Library. Inputs retained for the
// operation are freed with it.
func (l *Library) FutureDestroy(fut native.Pointer) {
	if v, ok := l.owned.LoadAndDelete(fut); ok {
		o := v.(*owned)
		if obj, ok := l.result(fut); ok && obj != 0 {
			o.dst.Store(obj, o.handle)
		} else {
			o.handle.Delete()
		}
	}
	C.tanker_future_destroy(cfut(fut))
	l.waiting.Delete(fut)
	l.settled.Delete(fut)
	if a, ok := l.arenas.LoadAndDelete(fut); ok {
		a.(*arena).free()
	}
}

// result reads the value of a successful future without touching a
// future whose then callback has not run yet.
func (l *Library) result(fut native.Pointer) (native.Pointer, bool) {
	if s, ok := l.settled.Load(fut); ok {
		st := s.(*settled)
		return st.value, !st.failed
	}
	if _, ok := l.waiting.Load(fut); ok {
		return 0, false
	}
	f := cfut(fut)
	if !bool(C.tanker_future_is_ready(f)) || C.tanker_future_has_error(f) != 0 {
		return 0, false
	}
	return native.Pointer(uintptr(C.tanker_future_get_voidptr(f))), true
}

// own ties h to the object fut yields; see FutureDestroy.
func (l *Library) own(fut native.Pointer, dst *sync.Map, h cgo.Handle) native.Pointer {
	if fut == 0 {
		h.Delete()
		return 0
	}
	l.owned.Store(fut, &owned{dst: dst, handle: h})
	return fut
}

// release deletes the handle owned by obj once fut's inputs are freed.
func (l *Library) release(dst *sync.Map, obj native.Pointer, a *arena) {
	if v, ok := dst.LoadAndDelete(obj); ok {
		a.onFree(v.(cgo.Handle).Delete)
	}
}

// Alloc implements native.Library.
func (l *Library) Alloc(size int) native.Pointer {
	if size <= 0 {
		size = 1
	}
	return native.Pointer(uintptr(C.malloc(C.size_t(size))))
}

// Bytes implements native.Library.
func (l *Library) Bytes(p native.Pointer, n int) ([]byte, bool) {
	if p == 0 || n < 0 {
		return nil, false
	}
	return C.GoBytes(unsafe.Pointer(p), C.int(n)), true
}

// Free implements native.Library.
func (l *Library) Free(p native.Pointer) { C.free(unsafe.Pointer(p)) }

// GoString implements native.Library.
func (l *Library) GoString(p native.Pointer) string {
	if p == 0 {
		return ""
	}
	return C.GoString((*C.char)(unsafe.Pointer(p)))
}

// FreeBuffer implements native.Library.
func (l *Library) FreeBuffer(p native.Pointer) { C.tanker_free_buffer(unsafe.Pointer(p)) }
