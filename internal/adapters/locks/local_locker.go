package locks

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// LocalAccountLocker serializes account mutations within one process. Waiting
// honours context cancellation.
type LocalAccountLocker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

func NewLocalAccountLocker() *LocalAccountLocker {
	return &LocalAccountLocker{entries: map[string]*entry{}}
}

func (l *LocalAccountLocker) Lock(ctx context.Context, accountID string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[accountID]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		l.entries[accountID] = e
	}
	e.refs++
	l.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.unref(accountID, e)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.unref(accountID, e)
		})
	}, nil
}

func (l *LocalAccountLocker) unref(accountID string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, accountID)
	}
}

// held reports how many callers hold or wait on accountID.
func (l *LocalAccountLocker) held(accountID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[accountID]; ok {
		return e.refs
	}
	return 0
}
