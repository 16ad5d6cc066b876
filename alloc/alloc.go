// Package alloc hands out small, dense integer ids and recycles freed ones.
//
// An Allocator is a frontier (the smallest id never issued) plus a free pool
// of ids that were issued and then freed. Alloc prefers the free pool and
// only advances the frontier when the pool is empty, so the ids in use stay
// close to zero and can index into arrays directly.
//
// An Allocator is not safe for concurrent use; see Locked.
package alloc

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// ErrOverflow is returned by Alloc when the free pool is empty and every id
// up to the maximum has already been issued.
var ErrOverflow = errors.New("id space exhausted")

// Order is the policy for reusing freed ids.
type Order int

const (
	// Stack reuses the most recently freed id first.
	Stack Order = iota
	// Queue reuses the least recently freed id first.
	Queue
)

func (o Order) String() string {
	switch o {
	case Stack:
		return "stack"
	case Queue:
		return "queue"
	}
	return "unknown"
}

// ParseOrder is the inverse of Order.String.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "stack", "lifo":
		return Stack, nil
	case "queue", "fifo":
		return Queue, nil
	}
	return 0, errors.Errorf("unknown reuse order %q", s)
}

// Config configures an Allocator.
type Config[I constraints.Unsigned] struct {
	// Max is the largest id that may be issued. Zero means the maximum value
	// of I.
	Max I
	// Order is the reuse policy for freed ids.
	Order Order
}

// Allocator is a recycling id allocator.
//
// The zero value is an empty allocator over all of I in Stack order, the
// same as New.
type Allocator[I constraints.Unsigned] struct {
	// ids < next have been issued or reserved; next == limit() with
	// exhausted set means the limit itself has been issued too
	next      I
	exhausted bool
	// zero means ^I(0)
	max   I
	order Order
	// ids reserved by SetMinimum, never handed out
	reserved uint64

	// free[head:] is the free pool; head is only nonzero in Queue order
	free []I
	head int
}

// New creates an allocator over all of I that reuses ids in Stack order.
func New[I constraints.Unsigned]() *Allocator[I] {
	return NewWithConfig(Config[I]{})
}

func NewWithConfig[I constraints.Unsigned](c Config[I]) *Allocator[I] {
	return &Allocator[I]{max: c.Max, order: c.Order}
}

func (a *Allocator[I]) limit() I {
	if a.max == 0 {
		return ^I(0)
	}
	return a.max
}

// Alloc returns an id that is not currently in use.
//
// Ids are reused from the free pool if there are any; otherwise the
// frontier is issued and advanced. Alloc fails with ErrOverflow only when the
// pool is empty and the maximum id has been issued.
func (a *Allocator[I]) Alloc() (I, error) {
	if a.NumFree() > 0 {
		return a.pop(), nil
	}
	if a.exhausted {
		return 0, errors.Wrapf(ErrOverflow, "all ids up to %d in use", a.limit())
	}
	id := a.next
	if id == a.limit() {
		a.exhausted = true
	} else {
		a.next++
	}
	return id, nil
}

// MustAlloc is like Alloc but panics on overflow.
func (a *Allocator[I]) MustAlloc() I {
	id, err := a.Alloc()
	if err != nil {
		panic(err)
	}
	return id
}

// Free makes id available to a later Alloc.
//
// The caller must only free ids returned by Alloc that have not been freed
// since. This is not checked: freeing an id twice (or one that was never
// issued) makes Alloc hand out an id that is still in use. Use Checked to
// detect misuse.
func (a *Allocator[I]) Free(id I) {
	a.free = append(a.free, id)
}

func (a *Allocator[I]) pop() I {
	if a.order == Queue {
		id := a.free[a.head]
		a.head++
		if a.head == len(a.free) {
			a.free = a.free[:0]
			a.head = 0
		} else if a.head >= 64 && a.head*2 >= len(a.free) {
			n := copy(a.free, a.free[a.head:])
			a.free = a.free[:n]
			a.head = 0
		}
		return id
	}
	n := len(a.free) - 1
	id := a.free[n]
	a.free = a.free[:n]
	return id
}

// SetMinimum reserves every id below min: none of them will be returned by
// Alloc, whether fresh or from the free pool. Reserved ids do not count as
// in use.
func (a *Allocator[I]) SetMinimum(min I) {
	limit := a.limit()
	if !a.exhausted {
		if min > limit {
			a.reserved += uint64(limit-a.next) + 1
			a.next = limit
			a.exhausted = true
		} else if a.next < min {
			a.reserved += uint64(min - a.next)
			a.next = min
		}
	}

	kept := a.free[:0]
	for _, id := range a.free[a.head:] {
		if id >= min {
			kept = append(kept, id)
		} else {
			a.reserved++
		}
	}
	a.free = kept
	a.head = 0
}

// Frontier returns the smallest id never issued or reserved. Once Exhausted,
// this is Max even though Max has been issued.
func (a *Allocator[I]) Frontier() I {
	return a.next
}

// Exhausted reports whether every id up to Max has been issued at least once.
func (a *Allocator[I]) Exhausted() bool {
	return a.exhausted
}

// NumFree returns the size of the free pool.
func (a *Allocator[I]) NumFree() int {
	return len(a.free) - a.head
}

// InUse returns the number of ids issued and not freed, assuming the caller
// honours Free's contract.
func (a *Allocator[I]) InUse() uint64 {
	n := uint64(a.next) - uint64(a.NumFree()) - a.reserved
	if a.exhausted {
		n++
	}
	return n
}

// Reserved returns the number of ids withheld by SetMinimum.
func (a *Allocator[I]) Reserved() uint64 {
	return a.reserved
}

func (a *Allocator[I]) Max() I {
	return a.limit()
}

func (a *Allocator[I]) Order() Order {
	return a.order
}
