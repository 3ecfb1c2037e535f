package nativetest

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wippyai/tanker-go/native"
)

// Object kinds reported by Outstanding.
const (
	KindFuture    = "future"
	KindCore      = "core"
	KindSession   = "encryption_session"
	KindStream    = "stream"
	KindBuffer    = "buffer"
	KindString    = "string"
	KindList      = "method_list"
	KindAttach    = "attach_result"
	KindReadOp    = "read_operation"
	KindRequest   = "http_request"
	versionString = "nativetest-1.0.0"
)

type object struct {
	v    any
	kind string
}

type nativeError struct {
	msg  string
	code uint32
}

func (e *nativeError) Error() string { return e.msg }

func fail(code uint32, msg string) error { return &nativeError{code: code, msg: msg} }

// Library is an in-process native.Library. Futures complete on their own
// goroutines, standing in for native worker threads.
type Library struct {
	objects    map[native.Pointer]*object
	cancelled  map[native.Pointer]struct{}
	users      map[string]*user
	keys       map[[16]byte][]byte
	faults     map[string][]fault
	holds      map[string]chan struct{}
	logHandler atomic.Pointer[native.LogHandler]
	cfg        config
	next       uintptr
	calls      atomic.Int64
	violations atomic.Int64
	groups     atomic.Int64
	inits      atomic.Int32
	teardowns  atomic.Int32
	mu         sync.Mutex
}

type config struct {
	keyLookupURL string
	readSizes    []int
	latency      time.Duration
	maxGroupSize int
}

// Option configures a Library.
type Option func(*config)

// WithKeyLookup makes every encryption fetch its key with a GET to url
// through the HTTP handler of the core. The response body must be
// {"key":"..."}.
func WithKeyLookup(url string) Option {
	return func(c *config) { c.keyLookupURL = url }
}

// WithReadSizes sets the sizes of successive stream input requests. The
// sizes are used in a cycle.
func WithReadSizes(sizes ...int) Option {
	return func(c *config) { c.readSizes = sizes }
}

// WithLatency delays every completion.
func WithLatency(d time.Duration) Option {
	return func(c *config) { c.latency = d }
}

// WithMaxGroupSize sets the member limit of CreateGroup.
func WithMaxGroupSize(n int) Option {
	return func(c *config) { c.maxGroupSize = n }
}

// New creates a simulated native library.
func New(opts ...Option) *Library {
	cfg := config{
		readSizes:    []int{64 * 1024},
		maxGroupSize: 1000,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Library{
		objects:   make(map[native.Pointer]*object),
		cancelled: make(map[native.Pointer]struct{}),
		users:     make(map[string]*user),
		keys:      make(map[[16]byte][]byte),
		faults:    make(map[string][]fault),
		holds:     make(map[string]chan struct{}),
		cfg:       cfg,
	}
}

var _ native.Library = (*Library)(nil)

// Calls returns the number of ABI calls made so far.
func (l *Library) Calls() int64 { return l.calls.Load() }

// Violations returns the number of ABI contract violations seen: double
// destroy, double fulfil, out-of-bounds writes and similar.
func (l *Library) Violations() int64 { return l.violations.Load() }

// Inits returns how many times Init was called.
func (l *Library) Inits() int32 { return l.inits.Load() }

// Teardowns returns how many times Teardown was called.
func (l *Library) Teardowns() int32 { return l.teardowns.Load() }

// Outstanding returns the number of live native objects.
func (l *Library) Outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.objects)
}

// OutstandingByKind returns the number of live native objects of a kind.
func (l *Library) OutstandingByKind(kind string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, o := range l.objects {
		if o.kind == kind {
			n++
		}
	}
	return n
}

// WaitIdle blocks until no futures are live or the timeout expires. It
// reports whether the library became idle.
func (l *Library) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if l.OutstandingByKind(KindFuture) == 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

func (l *Library) enter() { l.calls.Add(1) }

func (l *Library) put(kind string, v any) native.Pointer {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next += 8
	p := native.Pointer(l.next)
	l.objects[p] = &object{kind: kind, v: v}
	return p
}

func (l *Library) get(p native.Pointer, kind string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.objects[p]
	if !ok || o.kind != kind {
		return nil, false
	}
	return o.v, true
}

func (l *Library) drop(p native.Pointer, kind string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.objects[p]
	if !ok || o.kind != kind {
		return nil, false
	}
	delete(l.objects, p)
	return o.v, true
}

func (l *Library) violation() { l.violations.Add(1) }

// Init implements native.Library.
func (l *Library) Init() {
	l.enter()
	l.inits.Add(1)
}

// Teardown implements native.Library.
func (l *Library) Teardown() {
	l.enter()
	l.teardowns.Add(1)
}

// VersionString implements native.Library.
func (l *Library) VersionString() string {
	l.enter()
	return versionString
}

// SetLogHandler implements native.Library.
func (l *Library) SetLogHandler(h native.LogHandler) {
	l.enter()
	if h == nil {
		l.logHandler.Store(nil)
		return
	}
	l.logHandler.Store(&h)
}

func (l *Library) log(level native.LogLevel, msg string) {
	if h := l.logHandler.Load(); h != nil {
		(*h)(native.LogRecord{
			Category: "nativetest",
			Level:    level,
			File:     "library.go",
			Line:     1,
			Message:  msg,
		})
	}
}

// Alloc implements native.Library.
func (l *Library) Alloc(size int) native.Pointer {
	l.enter()
	if size < 0 {
		return 0
	}
	return l.put(KindBuffer, &buffer{data: make([]byte, size)})
}

type buffer struct {
	data []byte
	mu   sync.Mutex
}

// Bytes implements native.Library.
func (l *Library) Bytes(p native.Pointer, n int) ([]byte, bool) {
	l.enter()
	v, ok := l.get(p, KindBuffer)
	if !ok {
		l.violation()
		return nil, false
	}
	b := v.(*buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if n < 0 || n > len(b.data) {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, b.data[:n])
	return out, true
}

// Free implements native.Library.
func (l *Library) Free(p native.Pointer) {
	l.enter()
	if _, ok := l.drop(p, KindBuffer); !ok {
		l.violation()
	}
}

func (l *Library) writeBuffer(p native.Pointer, data []byte) error {
	v, ok := l.get(p, KindBuffer)
	if !ok {
		l.violation()
		return fail(1, "invalid output buffer")
	}
	b := v.(*buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(data) > len(b.data) {
		l.violation()
		return fail(1, "output buffer too small")
	}
	copy(b.data, data)
	return nil
}

func (l *Library) newString(s string) native.Pointer {
	return l.put(KindString, s)
}

// GoString implements native.Library.
func (l *Library) GoString(p native.Pointer) string {
	l.enter()
	v, ok := l.get(p, KindString)
	if !ok {
		l.violation()
		return ""
	}
	return v.(string)
}

// FreeBuffer implements native.Library.
func (l *Library) FreeBuffer(p native.Pointer) {
	l.enter()
	if _, ok := l.drop(p, KindString); !ok {
		l.violation()
	}
}
