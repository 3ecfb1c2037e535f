package resource

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestGuard_AcquireDefersRelease(t *testing.T) {
	r := NewRegistry()
	var calls atomic.Int32
	g, _ := r.Register(KindCore, 5, countingDestructor(&calls))

	p, err := g.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if p != 5 {
		t.Fatalf("Acquire returned %d, want 5", p)
	}

	_ = g.Release()
	if calls.Load() != 0 {
		t.Fatal("destructor ran while a use was in flight")
	}
	if !g.Released() {
		t.Fatal("expected guard to report released")
	}

	// New uses are rejected even before the destructor runs
	if _, err := g.Acquire(); !errors.Is(err, ErrReleased) {
		t.Fatalf("expected ErrReleased, got %v", err)
	}

	g.Done()
	if calls.Load() != 1 {
		t.Fatalf("expected destructor to run once after Done, ran %d times", calls.Load())
	}
}

func TestGuard_AcquireAfterRelease(t *testing.T) {
	r := NewRegistry()
	g, _ := r.Register(KindEncryptionSession, 1, nil)
	_ = g.Release()

	if _, err := g.Acquire(); !errors.Is(err, ErrReleased) {
		t.Fatalf("expected ErrReleased, got %v", err)
	}
}

func TestGuard_ConcurrentUseAndRelease(t *testing.T) {
	r := NewRegistry()
	var calls atomic.Int32
	g, _ := r.Register(KindCore, 1, countingDestructor(&calls))

	var wg sync.WaitGroup
	var inUseAfterDestroy atomic.Int32
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := g.Acquire(); err != nil {
					return
				}
				if calls.Load() != 0 {
					inUseAfterDestroy.Add(1)
				}
				g.Done()
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = g.Release()
	}()
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected destructor to run once, ran %d times", calls.Load())
	}
	if inUseAfterDestroy.Load() != 0 {
		t.Fatalf("handle used after destruction %d times", inUseAfterDestroy.Load())
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindCore, "core"},
		{KindEncryptionSession, "encryption_session"},
		{KindFuture, "future"},
		{KindStream, "stream"},
		{KindBuffer, "buffer"},
		{Kind(200), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
