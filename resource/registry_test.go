package resource

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wippyai/tanker-go/native"
)

func countingDestructor(n *atomic.Int32) Destructor {
	return func(native.Pointer) error {
		n.Add(1)
		return nil
	}
}

func TestRegistry_RegisterRelease(t *testing.T) {
	r := NewRegistry()
	var calls atomic.Int32
	var got native.Pointer

	g, err := r.Register(KindBuffer, 42, func(p native.Pointer) error {
		calls.Add(1)
		got = p
		return nil
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if r.Outstanding() != 1 {
		t.Fatalf("expected 1 outstanding handle, got %d", r.Outstanding())
	}

	if err := g.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected destructor to run once, ran %d times", calls.Load())
	}
	if got != 42 {
		t.Fatalf("destructor got pointer %d, want 42", got)
	}
	if r.Outstanding() != 0 {
		t.Fatalf("expected 0 outstanding handles, got %d", r.Outstanding())
	}

	// Second release is a no-op
	if err := g.Release(); err != nil {
		t.Fatalf("second Release returned error: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected destructor to run once, ran %d times", calls.Load())
	}
}

func TestRegistry_ConcurrentRelease(t *testing.T) {
	r := NewRegistry()

	for round := 0; round < 50; round++ {
		var calls atomic.Int32
		g, err := r.Register(KindStream, native.Pointer(round+1), countingDestructor(&calls))
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}

		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_ = g.Release()
			}()
		}
		close(start)
		wg.Wait()

		if calls.Load() != 1 {
			t.Fatalf("round %d: destructor ran %d times", round, calls.Load())
		}
	}
	if r.Outstanding() != 0 {
		t.Fatalf("expected 0 outstanding handles, got %d", r.Outstanding())
	}
}

func TestRegistry_DestructorError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")

	g, _ := r.Register(KindCore, 1, func(native.Pointer) error { return boom })
	if err := g.Release(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestRegistry_DestructorPanic(t *testing.T) {
	r := NewRegistry()
	var events []Event
	r.Subscribe(ObserverFunc(func(e Event) { events = append(events, e) }))

	g, _ := r.Register(KindCore, 1, func(native.Pointer) error { panic("native crashed") })
	if err := g.Release(); err == nil {
		t.Fatal("expected error from panicking destructor")
	}
	if r.Outstanding() != 0 {
		t.Fatalf("expected 0 outstanding handles, got %d", r.Outstanding())
	}

	// Unrelated handles are unaffected
	var calls atomic.Int32
	g2, err := r.Register(KindCore, 2, countingDestructor(&calls))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	_ = g2.Release()
	if calls.Load() != 1 {
		t.Fatalf("expected destructor to run once, ran %d times", calls.Load())
	}
	if len(events) != 4 || events[1].Err == nil {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry()
	var calls atomic.Int32

	for i := 0; i < 10; i++ {
		if _, err := r.Register(KindBuffer, native.Pointer(i+1), countingDestructor(&calls)); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if calls.Load() != 10 {
		t.Fatalf("expected 10 destructor calls, got %d", calls.Load())
	}

	var late atomic.Int32
	if _, err := r.Register(KindBuffer, 99, countingDestructor(&late)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if late.Load() != 1 {
		t.Fatal("handle registered after Close must be destroyed immediately")
	}

	// Close is idempotent
	if err := r.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestRegistry_CloseAggregatesErrors(t *testing.T) {
	r := NewRegistry()
	errA := errors.New("a")
	errB := errors.New("b")
	_, _ = r.Register(KindCore, 1, func(native.Pointer) error { return errA })
	_, _ = r.Register(KindCore, 2, func(native.Pointer) error { return errB })

	err := r.Close()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected both errors, got %v", err)
	}
}

func TestRegistry_OutstandingByKind(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		kind  Kind
		count int
	}{
		{KindCore, 1},
		{KindFuture, 3},
		{KindStream, 2},
	}

	var guards []*Guard
	for _, tt := range tests {
		for i := 0; i < tt.count; i++ {
			g, _ := r.Register(tt.kind, native.Pointer(i+1), nil)
			guards = append(guards, g)
		}
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := r.OutstandingByKind(tt.kind); got != int64(tt.count) {
				t.Fatalf("expected %d, got %d", tt.count, got)
			}
		})
	}

	for _, g := range guards {
		_ = g.Release()
	}
	if r.Outstanding() != 0 {
		t.Fatalf("expected 0 outstanding handles, got %d", r.Outstanding())
	}
}

func TestRegistry_CollectUnreachable(t *testing.T) {
	r := NewRegistry()
	collected := make(chan Event, 1)
	r.Subscribe(ObserverFunc(func(e Event) {
		if e.Type == EventCollected {
			collected <- e
		}
	}))

	func() {
		_, err := r.Register(KindStream, 7, nil)
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}()

	deadline := time.After(5 * time.Second)
	for {
		runtime.GC()
		select {
		case e := <-collected:
			if e.Pointer != 7 {
				t.Fatalf("collected pointer %d, want 7", e.Pointer)
			}
			if r.Outstanding() != 0 {
				t.Fatalf("expected 0 outstanding handles, got %d", r.Outstanding())
			}
			return
		case <-deadline:
			t.Fatal("unreachable guard was never collected")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRegistry_Unsubscribe(t *testing.T) {
	r := NewRegistry()
	var n atomic.Int32
	obs := &countingObserver{n: &n}
	r.Subscribe(obs)

	g, _ := r.Register(KindBuffer, 1, nil)
	r.Unsubscribe(obs)
	_ = g.Release()

	if n.Load() != 1 {
		t.Fatalf("expected 1 event before unsubscribe, got %d", n.Load())
	}
}

func TestRegistry_SubscribeCountsReferences(t *testing.T) {
	r := NewRegistry()
	var n atomic.Int32
	obs := &countingObserver{n: &n}
	r.Subscribe(obs)
	r.Subscribe(obs)

	g, _ := r.Register(KindBuffer, 1, nil)
	if n.Load() != 1 {
		t.Fatalf("expected one event per subscriber, got %d", n.Load())
	}

	r.Unsubscribe(obs)
	_ = g.Release()
	if n.Load() != 2 {
		t.Fatalf("expected observer to stay subscribed after one Unsubscribe, got %d events", n.Load())
	}

	r.Unsubscribe(obs)
	r.Unsubscribe(obs)
	g, _ = r.Register(KindBuffer, 2, nil)
	_ = g.Release()
	if n.Load() != 2 {
		t.Fatalf("expected no events after the last Unsubscribe, got %d", n.Load())
	}

	r.Unsubscribe(ObserverFunc(func(Event) {}))
}

type countingObserver struct{ n *atomic.Int32 }

func (o *countingObserver) OnResourceEvent(Event) { o.n.Add(1) }
