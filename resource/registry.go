package resource

import (
	"errors"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/wippyai/tanker-go/native"
)

// ErrClosed is returned by Register after Close.
var ErrClosed = errors.New("resource: registry closed")

const shardCount = 32

// Registry tracks live native handles. Entries are sharded by key so that
// unrelated handles never contend on the same lock.
type Registry struct {
	observers   atomic.Pointer[[]Observer]
	subs        []subscription // guarded by obsMu
	shards      [shardCount]shard
	outstanding [kindCount]atomic.Int64
	nextKey     atomic.Uint64
	obsMu       sync.Mutex
	closed      atomic.Bool
}

type subscription struct {
	o    Observer
	refs int
}

type shard struct {
	entries map[uint64]*entry
	mu      sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].entries = make(map[uint64]*entry)
	}
	return r
}

// Register takes ownership of ptr. destroy is called exactly once with ptr.
// On a closed registry the handle is destroyed immediately and ErrClosed
// is returned.
func (r *Registry) Register(kind Kind, ptr native.Pointer, destroy Destructor) (*Guard, error) {
	if r.closed.Load() {
		if destroy != nil {
			_ = destroy(ptr)
		}
		return nil, ErrClosed
	}

	e := &entry{
		reg:     r,
		key:     r.nextKey.Add(1),
		kind:    kind,
		ptr:     ptr,
		destroy: destroy,
	}
	s := r.shard(e.key)
	s.mu.Lock()
	s.entries[e.key] = e
	s.mu.Unlock()
	r.outstanding[kind].Add(1)

	g := &Guard{entry: e}
	g.cleanup = runtime.AddCleanup(g, (*entry).collect, e)

	if r.closed.Load() {
		_ = g.Release()
		return nil, ErrClosed
	}
	r.notify(Event{Type: EventRegistered, Key: e.key, Kind: kind, Pointer: ptr})
	return g, nil
}

// Outstanding returns the number of live handles of every kind.
func (r *Registry) Outstanding() int64 {
	var n int64
	for i := range r.outstanding {
		n += r.outstanding[i].Load()
	}
	return n
}

// OutstandingByKind returns the number of live handles of one kind.
func (r *Registry) OutstandingByKind(kind Kind) int64 {
	return r.outstanding[kind].Load()
}

// Subscribe adds an observer for lifecycle events. Subscribing the same
// observer again only counts a reference; it is notified once per event.
func (r *Registry) Subscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	if i := r.find(o); i >= 0 {
		r.subs[i].refs++
		return
	}
	r.subs = append(r.subs, subscription{o: o, refs: 1})
	r.publish()
}

// Unsubscribe drops one reference to an observer. It stops receiving
// events once every Subscribe is matched. Observers of uncomparable types,
// such as ObserverFunc, cannot be unsubscribed.
func (r *Registry) Unsubscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	i := r.find(o)
	if i < 0 {
		return
	}
	if r.subs[i].refs--; r.subs[i].refs > 0 {
		return
	}
	r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
	r.publish()
}

func (r *Registry) find(o Observer) int {
	t := reflect.TypeOf(o)
	if t == nil || !t.Comparable() {
		return -1
	}
	for i, sub := range r.subs {
		if reflect.TypeOf(sub.o) == t && sub.o == o {
			return i
		}
	}
	return -1
}

func (r *Registry) publish() {
	next := make([]Observer, len(r.subs))
	for i, sub := range r.subs {
		next[i] = sub.o
	}
	r.observers.Store(&next)
}

// Close releases every live handle and rejects further registrations.
// Handles with in-flight uses are destroyed when their last use ends.
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	// Collect first so destructors run without shard locks held.
	var live []*entry
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for _, e := range s.entries {
			live = append(live, e)
		}
		s.mu.Unlock()
	}

	var err error
	for _, e := range live {
		if !e.released.CompareAndSwap(false, true) {
			continue
		}
		if e.uses.Add(-1) == -1 {
			err = multierr.Append(err, e.finish(EventReleased))
		}
	}
	return err
}

func (r *Registry) shard(key uint64) *shard {
	return &r.shards[key%shardCount]
}

func (r *Registry) remove(e *entry) {
	s := r.shard(e.key)
	s.mu.Lock()
	_, ok := s.entries[e.key]
	delete(s.entries, e.key)
	s.mu.Unlock()
	if ok {
		r.outstanding[e.kind].Add(-1)
	}
}

func (r *Registry) notify(e Event) {
	obs := r.observers.Load()
	if obs == nil {
		return
	}
	for _, o := range *obs {
		o.OnResourceEvent(e)
	}
}
