package nativetest

import (
	"sync"
	"time"

	"github.com/wippyai/tanker-go/native"
)

type future struct {
	err   *nativeError
	conts []native.Continuation
	value native.Pointer
	mu    sync.Mutex
	ready bool
	twice bool
}

type fault struct {
	err    *nativeError
	reject bool
	twice  bool
}

// FailNext makes the next call of op complete with a native error.
func (l *Library) FailNext(op string, code uint32, msg string) {
	l.addFault(op, fault{err: &nativeError{code: code, msg: msg}})
}

// RejectNext makes the next call of op return a null future.
func (l *Library) RejectNext(op string) {
	l.addFault(op, fault{reject: true})
}

// DoubleCompleteNext makes the next call of op invoke its continuations
// twice.
func (l *Library) DoubleCompleteNext(op string) {
	l.addFault(op, fault{twice: true})
}

// Hold blocks completions of op until the returned function is called.
func (l *Library) Hold(op string) (release func()) {
	ch := make(chan struct{})
	l.mu.Lock()
	l.holds[op] = ch
	l.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			if l.holds[op] == ch {
				delete(l.holds, op)
			}
			l.mu.Unlock()
			close(ch)
		})
	}
}

func (l *Library) addFault(op string, f fault) {
	l.mu.Lock()
	l.faults[op] = append(l.faults[op], f)
	l.mu.Unlock()
}

func (l *Library) takeFault(op string) (fault, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q := l.faults[op]
	if len(q) == 0 {
		return fault{}, false
	}
	l.faults[op] = q[1:]
	return q[0], true
}

func (l *Library) hold(op string) <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holds[op]
}

// run starts fn on a worker goroutine and returns the future of its
// result.
func (l *Library) run(op string, fn func() (native.Pointer, error)) native.Pointer {
	flt, faulty := l.takeFault(op)
	if faulty && flt.reject {
		return 0
	}
	f := &future{twice: flt.twice}
	p := l.put(KindFuture, f)
	gate := l.hold(op)

	go func() {
		if gate != nil {
			<-gate
		}
		if l.cfg.latency > 0 {
			time.Sleep(l.cfg.latency)
		}
		if faulty && flt.err != nil {
			l.resolve(p, f, 0, flt.err)
			return
		}
		v, err := fn()
		l.resolve(p, f, v, err)
	}()
	return p
}

// ready returns an already completed future.
func (l *Library) ready(v native.Pointer) native.Pointer {
	return l.put(KindFuture, &future{ready: true, value: v})
}

func (l *Library) resolve(p native.Pointer, f *future, v native.Pointer, err error) {
	f.mu.Lock()
	if err != nil {
		ne, ok := err.(*nativeError)
		if !ok {
			ne = &nativeError{code: 1, msg: err.Error()}
		}
		f.err = ne
	} else {
		f.value = v
	}
	f.ready = true
	conts := f.conts
	f.conts = nil
	f.mu.Unlock()

	for _, c := range conts {
		c(p)
		if f.twice {
			c(p)
		}
	}
}

func (l *Library) future(p native.Pointer) *future {
	v, ok := l.get(p, KindFuture)
	if !ok {
		l.violation()
		return nil
	}
	return v.(*future)
}

// FutureIsReady implements native.Library.
func (l *Library) FutureIsReady(p native.Pointer) bool {
	l.enter()
	f := l.future(p)
	if f == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

// FutureHasError implements native.Library.
func (l *Library) FutureHasError(p native.Pointer) bool {
	l.enter()
	f := l.future(p)
	if f == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err != nil
}

// FutureGetError implements native.Library.
func (l *Library) FutureGetError(p native.Pointer) (uint32, string) {
	l.enter()
	f := l.future(p)
	if f == nil {
		return 0, ""
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		return 0, ""
	}
	return f.err.code, f.err.msg
}

// FutureGetValue implements native.Library.
func (l *Library) FutureGetValue(p native.Pointer) native.Pointer {
	l.enter()
	f := l.future(p)
	if f == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// FutureThen implements native.Library. A continuation on a ready future
// runs before FutureThen returns.
func (l *Library) FutureThen(p native.Pointer, c native.Continuation) {
	l.enter()
	f := l.future(p)
	if f == nil {
		return
	}
	f.mu.Lock()
	if !f.ready {
		f.conts = append(f.conts, c)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	c(p)
}

// FutureDestroy implements native.Library.
func (l *Library) FutureDestroy(p native.Pointer) {
	l.enter()
	if _, ok := l.drop(p, KindFuture); !ok {
		l.violation()
	}
}
