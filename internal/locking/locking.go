// Package locking serializes sale commits and reversals per stock batch.
package locking

import (
	"context"
	"sort"
	"sync"
)

// sortedUnique returns ids ascending without duplicates. Every locker takes
// locks in this order so two multi-batch sales cannot deadlock.
func sortedUnique(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Local is an in-process keyed lock. It is enough for a single instance.
type Local struct {
	mu    sync.Mutex
	slots map[int64]chan struct{}
}

func NewLocal() *Local {
	return &Local{slots: make(map[int64]chan struct{})}
}

func (l *Local) slot(id int64) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[id] = ch
	}
	return ch
}

// Lock acquires every batch id, waiting until they are free or ctx ends.
func (l *Local) Lock(ctx context.Context, ids []int64) (func(), error) {
	held := make([]chan struct{}, 0, len(ids))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}
	for _, id := range sortedUnique(ids) {
		ch := l.slot(id)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}
