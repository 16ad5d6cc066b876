package eval

import (
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"

	"github.com/mit-pdos/idalloc/alloc"
	"github.com/mit-pdos/idalloc/trace"
)

// idAllocator erases the id width so one benchmark body can drive an
// allocator of any width.
type idAllocator interface {
	alloc() (uint64, error)
	free(id uint64)
	// capacity is the number of distinct ids, saturated at 1<<63
	capacity() uint64
}

type widthAdapter[I constraints.Unsigned] struct {
	a *alloc.Allocator[I]
}

func (w widthAdapter[I]) alloc() (uint64, error) {
	id, err := w.a.Alloc()
	return uint64(id), err
}

func (w widthAdapter[I]) free(id uint64) {
	w.a.Free(I(id))
}

func (w widthAdapter[I]) capacity() uint64 {
	max := uint64(w.a.Max())
	if max >= 1<<63 {
		return 1 << 63
	}
	return max + 1
}

func newAllocator(width int, order alloc.Order) (idAllocator, error) {
	switch width {
	case 8:
		return widthAdapter[uint8]{alloc.NewWithConfig(alloc.Config[uint8]{Order: order})}, nil
	case 16:
		return widthAdapter[uint16]{alloc.NewWithConfig(alloc.Config[uint16]{Order: order})}, nil
	case 32:
		return widthAdapter[uint32]{alloc.NewWithConfig(alloc.Config[uint32]{Order: order})}, nil
	case 64:
		return widthAdapter[uint64]{alloc.NewWithConfig(alloc.Config[uint64]{Order: order})}, nil
	}
	return nil, errors.Errorf("unsupported id width %d", width)
}

// allocatorFromConfig builds an allocator from {"width": ..., "order": ...}
func allocatorFromConfig(conf KeyValue) (idAllocator, error) {
	width, ok := conf["width"].(float64)
	if !ok {
		return nil, errors.New("allocator config has no width")
	}
	orderName, ok := conf["order"].(string)
	if !ok {
		orderName = alloc.Stack.String()
	}
	order, err := alloc.ParseOrder(orderName)
	if err != nil {
		return nil, err
	}
	return newAllocator(int(width), order)
}

type Benchmark struct {
	// Config has configuration related to the benchmark workload under test
	// "bench" is a map with benchmark options
	Config KeyValue
	// body runs the workload on a and returns the number of operations
	body func(a idAllocator) (int, error)
}

func (b Benchmark) Name() string {
	return b.Config["name"].(string)
}

// Run measures b's throughput on a, in operations per second.
func (b Benchmark) Run(a idAllocator) (opsPerSec float64, err error) {
	start := time.Now()
	ops, err := b.body(a)
	elapsed := time.Since(start)
	if err != nil {
		return 0, errors.Wrapf(err, "benchmark %s", b.Name())
	}
	if elapsed <= 0 {
		elapsed = time.Nanosecond
	}
	return float64(ops) / elapsed.Seconds(), nil
}

func newBench(name string, opts KeyValue,
	body func(a idAllocator) (int, error)) Benchmark {
	return Benchmark{
		Config: KeyValue{"bench": opts, "name": name},
		body:   body,
	}
}

func minU64(x, y uint64) uint64 {
	if x < y {
		return x
	}
	return y
}

// SequentialBench allocates batch ids and then frees them all, until ops
// operations have run. The batch is capped by the allocator's capacity.
func SequentialBench(ops int, batch int) Benchmark {
	return newBench("sequential",
		KeyValue{"ops": float64(ops), "batch": float64(batch)},
		func(a idAllocator) (int, error) {
			n := int(minU64(uint64(batch), a.capacity()))
			if n < 1 {
				n = 1
			}
			ids := make([]uint64, 0, n)
			done := 0
			for done < ops {
				for len(ids) < n {
					id, err := a.alloc()
					if err != nil {
						return done, err
					}
					ids = append(ids, id)
					done++
				}
				for _, id := range ids {
					a.free(id)
				}
				done += len(ids)
				ids = ids[:0]
			}
			return done, nil
		})
}

// ChurnBench keeps live ids outstanding and repeatedly frees a random one
// and allocates a replacement.
func ChurnBench(ops int, live int) Benchmark {
	return newBench("churn",
		KeyValue{"ops": float64(ops), "live": float64(live)},
		func(a idAllocator) (int, error) {
			n := int(minU64(uint64(live), a.capacity()))
			if n < 1 {
				n = 1
			}
			rng := rand.New(rand.NewSource(int64(live)))
			ids := make([]uint64, 0, n)
			for len(ids) < n {
				id, err := a.alloc()
				if err != nil {
					return 0, err
				}
				ids = append(ids, id)
			}
			done := 0
			for done < ops {
				j := rng.Intn(n)
				a.free(ids[j])
				id, err := a.alloc()
				if err != nil {
					return done, err
				}
				ids[j] = id
				done += 2
			}
			return done, nil
		})
}

// RoundTripBench allocates and immediately frees one id.
func RoundTripBench(ops int) Benchmark {
	return newBench("roundtrip",
		KeyValue{"ops": float64(ops)},
		func(a idAllocator) (int, error) {
			done := 0
			for done < ops {
				id, err := a.alloc()
				if err != nil {
					return done, err
				}
				a.free(id)
				done += 2
			}
			return done, nil
		})
}

// TraceBench replays t. Ids in the trace are treated as names: a freed id
// is mapped to whatever the allocator returned for it, so the trace replays
// under either reuse order.
//
// A trace that fails trace.Validate is not run; the benchmark reports the
// validation error instead.
func TraceBench(name string, t trace.Trace) Benchmark {
	s := t.Summary()
	invalid := trace.Validate(t)
	return newBench("trace",
		KeyValue{"trace": name, "ops": float64(len(t))},
		func(a idAllocator) (int, error) {
			if invalid != nil {
				return 0, invalid
			}
			if uint64(s.MaxLive) > a.capacity() {
				return 0, errors.Errorf("trace needs %d live ids, allocator has %d",
					s.MaxLive, a.capacity())
			}
			// validated ids are below len(t)
			actual := make([]uint64, len(t))
			for _, op := range t {
				switch op.Kind {
				case trace.KindAlloc:
					id, err := a.alloc()
					if err != nil {
						return 0, err
					}
					actual[op.ID] = id
				case trace.KindFree:
					a.free(actual[op.ID])
				}
			}
			return len(t), nil
		})
}
