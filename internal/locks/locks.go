// Package locks provides a lock table keyed by session id. A session is the
// unit of contention: every mutation holds its lock for the duration of
// load → burn → reduce → persist → broadcast.
package locks

import (
	"context"
	"sync"
)

// Table hands out one mutex per key. Entries are reference-counted and
// reclaimed when the last holder releases, so the map does not grow with
// the number of sessions ever seen.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	ch   chan struct{} // 1-slot semaphore
	refs int
}

// NewTable creates an empty lock table.
func NewTable() *Table {
	return &Table{entries: make(map[string]*entry)}
}

// Acquire blocks until the key's lock is held or ctx expires. On success the
// caller must invoke the returned release function exactly once.
func (t *Table) Acquire(ctx context.Context, key string) (release func(), err error) {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		t.entries[key] = e
	}
	e.refs++
	t.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			t.put(key, e)
		}, nil
	case <-ctx.Done():
		t.put(key, e)
		return nil, ctx.Err()
	}
}

func (t *Table) put(key string, e *entry) {
	t.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(t.entries, key)
	}
	t.mu.Unlock()
}
