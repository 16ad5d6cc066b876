package eval

import (
	"context"
	"math/rand"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/mit-pdos/idalloc/alloc"
)

type BenchmarkSuite struct {
	Iters     int
	Randomize bool
	// Allocators are allocator configurations, {"width": ..., "order": ...}
	Allocators []KeyValue
	Benches    []Benchmark
	// Progress shows a progress bar on stderr while running
	Progress bool
}

type Workload struct {
	Allocator KeyValue
	Bench     Benchmark
}

func (w Workload) Run() (Observation, error) {
	a, err := allocatorFromConfig(w.Allocator)
	if err != nil {
		return Observation{}, err
	}
	val, err := w.Bench.Run(a)
	if err != nil {
		return Observation{}, err
	}
	conf := w.Bench.Config.Clone()
	conf["alloc"] = w.Allocator.Clone()
	return Observation{
		Values: KeyValue{"val": val},
		Config: conf,
	}, nil
}

func (bs *BenchmarkSuite) Workloads() []Workload {
	var benches []Benchmark
	for i := 0; i < bs.Iters; i++ {
		for _, b := range bs.Benches {
			config := b.Config.Clone()
			config["meta"] = KeyValue{"iter": float64(i)}
			benches = append(benches, Benchmark{
				Config: config,
				body:   b.body,
			})
		}
	}
	var ws []Workload
	for _, allocOpts := range bs.Allocators {
		for _, b := range benches {
			ws = append(ws, Workload{allocOpts, b})
		}
	}
	if bs.Randomize {
		rand.Shuffle(len(ws), func(i int, j int) {
			ws[i], ws[j] = ws[j], ws[i]
		})
	}
	return ws
}

// Run runs every workload, stopping early if ctx is canceled. A workload
// that fails is logged and skipped.
func (bs *BenchmarkSuite) Run(ctx context.Context) []Observation {
	ws := bs.Workloads()
	var bar *progressbar.ProgressBar
	if bs.Progress {
		bar = progressbar.Default(int64(len(ws)), "benchmarks")
		defer bar.Finish()
	}
	var obs []Observation
	for _, w := range ws {
		if ctx.Err() != nil {
			logger.Warn("benchmarks canceled",
				zap.Int("done", len(obs)), zap.Int("total", len(ws)))
			break
		}
		o, err := w.Run()
		if err != nil {
			logger.Error("workload failed", zap.Error(err),
				zap.String("bench", w.Bench.Name()),
				zap.Any("alloc", w.Allocator))
		} else {
			logger.Debug("workload done",
				zap.String("bench", w.Bench.Name()),
				zap.Float64("ops/s", o.Values["val"].(float64)))
			obs = append(obs, o)
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	return obs
}

// AllocatorConfigs returns every combination of width and order.
func AllocatorConfigs(widths []int, orders []alloc.Order) []KeyValue {
	var kvs []KeyValue
	for _, w := range widths {
		for _, o := range orders {
			kvs = append(kvs, KeyValue{
				"width": float64(w),
				"order": o.String(),
			})
		}
	}
	return kvs
}

func BasicAllocators() []KeyValue {
	return AllocatorConfigs([]int{16, 32, 64}, []alloc.Order{alloc.Stack, alloc.Queue})
}

func BenchSuite(ops int) []Benchmark {
	return []Benchmark{
		SequentialBench(ops, 1000),
		ChurnBench(ops, 1000),
		RoundTripBench(ops),
	}
}

// ScaleSuite runs churn with the number of live ids growing by factors of 10
// up to maxLive.
func ScaleSuite(ops int, maxLive int) []Benchmark {
	var bs []Benchmark
	for live := 10; live <= maxLive; live *= 10 {
		bs = append(bs, ChurnBench(ops, live))
	}
	return bs
}
