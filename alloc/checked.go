package alloc

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// ErrNotAllocated is returned by Checked.Free for an id that is not
// currently allocated.
var ErrNotAllocated = errors.New("id not allocated")

// Checked is an Allocator that tracks which ids are outstanding, so that a
// double free or a free of an id that was never issued is reported instead
// of corrupting the free pool.
//
// Tracking costs one bit per id below the frontier.
type Checked[I constraints.Unsigned] struct {
	a     *Allocator[I]
	inUse *bitset.BitSet
}

func NewChecked[I constraints.Unsigned](c Config[I]) *Checked[I] {
	return &Checked[I]{
		a:     NewWithConfig(c),
		inUse: bitset.New(0),
	}
}

func (c *Checked[I]) Alloc() (I, error) {
	id, err := c.a.Alloc()
	if err != nil {
		return 0, err
	}
	c.inUse.Set(uint(id))
	return id, nil
}

// Free releases id, or returns ErrNotAllocated (leaving the allocator
// unchanged) if id is not outstanding.
func (c *Checked[I]) Free(id I) error {
	if !c.inUse.Test(uint(id)) {
		return errors.Wrapf(ErrNotAllocated, "free %d", id)
	}
	c.inUse.Clear(uint(id))
	c.a.Free(id)
	return nil
}

// Outstanding reports whether id has been allocated and not freed.
func (c *Checked[I]) Outstanding(id I) bool {
	return c.inUse.Test(uint(id))
}

func (c *Checked[I]) InUse() uint64 {
	return uint64(c.inUse.Count())
}

// Allocator returns the underlying allocator, for inspection.
func (c *Checked[I]) Allocator() *Allocator[I] {
	return c.a
}
