package alloc

import (
	"sync"
	"sync/atomic"

	"golang.org/x/exp/constraints"
)

// Locked serializes access to an Allocator with a mutex, for callers that
// share one allocator between goroutines.
type Locked[I constraints.Unsigned] struct {
	mu sync.Mutex
	a  *Allocator[I]

	allocs    uint64
	frees     uint64
	overflows uint64
}

func NewLocked[I constraints.Unsigned](c Config[I]) *Locked[I] {
	return &Locked[I]{a: NewWithConfig(c)}
}

func (l *Locked[I]) Alloc() (I, error) {
	l.mu.Lock()
	id, err := l.a.Alloc()
	l.mu.Unlock()
	if err != nil {
		atomic.AddUint64(&l.overflows, 1)
		return 0, err
	}
	atomic.AddUint64(&l.allocs, 1)
	return id, nil
}

func (l *Locked[I]) Free(id I) {
	l.mu.Lock()
	l.a.Free(id)
	l.mu.Unlock()
	atomic.AddUint64(&l.frees, 1)
}

// InUse is Allocator.InUse under the lock.
func (l *Locked[I]) InUse() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.InUse()
}

type Stats struct {
	Allocs    uint64
	Frees     uint64
	Overflows uint64
}

// Stats returns operation counts. It does not take the lock, so the counts
// may be mutually inconsistent while other goroutines are running.
func (l *Locked[I]) Stats() Stats {
	return Stats{
		Allocs:    atomic.LoadUint64(&l.allocs),
		Frees:     atomic.LoadUint64(&l.frees),
		Overflows: atomic.LoadUint64(&l.overflows),
	}
}
