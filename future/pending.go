package future

import "sync"

const pendingShards = 32

// pendingTable maps operation ids to unresolved futures. Each id has a
// single writer; shards keep unrelated operations off the same lock.
type pendingTable struct {
	shards [pendingShards]pendingShard
}

type pendingShard struct {
	m  map[uint64]*Future
	mu sync.Mutex
}

func newPendingTable() *pendingTable {
	t := &pendingTable{}
	for i := range t.shards {
		t.shards[i].m = make(map[uint64]*Future)
	}
	return t
}

func (t *pendingTable) put(f *Future) {
	s := &t.shards[f.id%pendingShards]
	s.mu.Lock()
	s.m[f.id] = f
	s.mu.Unlock()
}

// take removes and returns the future for id. It returns nil when the id is
// unknown or was already taken.
func (t *pendingTable) take(id uint64) *Future {
	s := &t.shards[id%pendingShards]
	s.mu.Lock()
	f, ok := s.m[id]
	if ok {
		delete(s.m, id)
	}
	s.mu.Unlock()
	return f
}

func (t *pendingTable) len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.m)
		s.mu.Unlock()
	}
	return n
}
