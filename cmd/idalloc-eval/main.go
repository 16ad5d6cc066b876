package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/mit-pdos/idalloc/alloc"
	"github.com/mit-pdos/idalloc/eval"
	"github.com/mit-pdos/idalloc/trace"
)

// printObservations prints observations for manual inspection
func printObservations(w io.Writer, obs []eval.Observation) {
	for _, o := range obs {
		val := o.Values["val"].(float64)
		fmt.Fprintf(w, "%12.0f ops/s ", val)
		for _, kv := range o.Config.Flatten().Pairs() {
			fmt.Fprintf(w, "%s=%v ", kv.Key, kv.Val)
		}
		fmt.Fprintf(w, "\n")
	}
}

var suiteFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:  "randomize",
		Value: true,
		Usage: "randomize order of running benchmarks",
	},
	&cli.IntFlag{
		Name:    "iters",
		Value:   1,
		Usage:   "number of iterations to run each configuration",
		EnvVars: []string{"IDALLOC_ITERS"},
	},
	&cli.IntFlag{
		Name:    "ops",
		Value:   1_000_000,
		Usage:   "operations per benchmark run",
		EnvVars: []string{"IDALLOC_OPS"},
	},
	&cli.IntSliceFlag{
		Name:  "width",
		Value: cli.NewIntSlice(16, 32, 64),
		Usage: "id widths in bits (8, 16, 32, or 64)",
	},
	&cli.StringSliceFlag{
		Name:  "order",
		Value: cli.NewStringSlice("stack", "queue"),
		Usage: "reuse orders (stack or queue)",
	},
	&cli.StringFlag{
		Name:    "out",
		Value:   "",
		Usage:   "file to output to (use .gz extension for compression)",
		EnvVars: []string{"IDALLOC_OUT"},
	},
	&cli.BoolFlag{
		Name:  "flatten",
		Value: true,
		Usage: "flatten output configurations for compatibility with pandas",
	},
	&cli.BoolFlag{
		Name:  "progress",
		Usage: "show a progress bar",
	},
}

// OutputObservations outputs based on flags
func OutputObservations(c *cli.Context, obs []eval.Observation) error {
	outFile := c.String("out")
	if c.Bool("flatten") {
		for i := range obs {
			obs[i].Config = obs[i].Config.Flatten()
		}
	}
	if outFile == "" {
		printObservations(os.Stdout, obs)
		return nil
	}
	return eval.WriteObservationsFile(outFile, obs)
}

func initializeSuite(c *cli.Context) (*eval.BenchmarkSuite, error) {
	var orders []alloc.Order
	for _, name := range c.StringSlice("order") {
		o, err := alloc.ParseOrder(name)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return &eval.BenchmarkSuite{
		Iters:      c.Int("iters"),
		Randomize:  c.Bool("randomize"),
		Allocators: eval.AllocatorConfigs(c.IntSlice("width"), orders),
		Progress:   c.Bool("progress"),
	}, nil
}

func runSuite(c *cli.Context, benches []eval.Benchmark) error {
	suite, err := initializeSuite(c)
	if err != nil {
		return err
	}
	suite.Benches = benches
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()
	obs := suite.Run(ctx)
	return OutputObservations(c, obs)
}

var benchCommand = &cli.Command{
	Name:  "bench",
	Usage: "run sequential, churn, and round-trip benchmarks",
	Action: func(c *cli.Context) error {
		return runSuite(c, eval.BenchSuite(c.Int("ops")))
	},
}

var scaleCommand = &cli.Command{
	Name:  "scale",
	Usage: "benchmark churn with a growing number of live ids",
	Flags: []cli.Flag{&cli.IntFlag{
		Name:  "live",
		Value: 1_000_000,
		Usage: "maximum number of live ids",
	}},
	Action: func(c *cli.Context) error {
		return runSuite(c, eval.ScaleSuite(c.Int("ops"), c.Int("live")))
	},
}

var traceGenCommand = &cli.Command{
	Name:      "gen",
	Usage:     "record a random trace",
	ArgsUsage: "<trace file>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "n", Value: 100_000, Usage: "number of operations"},
		&cli.Float64Flag{Name: "free-ratio", Value: 0.45,
			Usage: "probability of freeing an outstanding id"},
		&cli.Int64Flag{Name: "seed", Value: 1},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return errors.New("expected a trace file")
		}
		rng := rand.New(rand.NewSource(c.Int64("seed")))
		t := trace.Generate(rng, c.Int("n"), c.Float64("free-ratio"))
		if err := os.WriteFile(c.Args().First(), trace.Encode(t), 0644); err != nil {
			return errors.Wrap(err, "could not write trace")
		}
		s := t.Summary()
		fmt.Printf("%d allocs, %d frees, %d max live, %d max id\n",
			s.Allocs, s.Frees, s.MaxLive, s.MaxID)
		return nil
	},
}

func readTrace(path string) (trace.Trace, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not read trace")
	}
	t, err := trace.Decode(b)
	return t, errors.Wrap(err, path)
}

func replay(t trace.Trace, width int) error {
	switch width {
	case 8:
		return trace.Replay(t, alloc.NewChecked(alloc.Config[uint8]{}))
	case 16:
		return trace.Replay(t, alloc.NewChecked(alloc.Config[uint16]{}))
	case 32:
		return trace.Replay(t, alloc.NewChecked(alloc.Config[uint32]{}))
	case 64:
		return trace.Replay(t, alloc.NewChecked(alloc.Config[uint64]{}))
	}
	return errors.Errorf("unsupported id width %d", width)
}

var traceReplayCommand = &cli.Command{
	Name:      "replay",
	Usage:     "check that a trace reproduces on a stack-order allocator",
	ArgsUsage: "<trace file>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "width", Value: 64, Usage: "id width in bits"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return errors.New("expected a trace file")
		}
		t, err := readTrace(c.Args().First())
		if err != nil {
			return err
		}
		if err := replay(t, c.Int("width")); err != nil {
			return err
		}
		fmt.Printf("replayed %d ops\n", len(t))
		return nil
	},
}

var traceBenchCommand = &cli.Command{
	Name:      "bench",
	Usage:     "benchmark replaying a trace",
	ArgsUsage: "<trace file>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return errors.New("expected a trace file")
		}
		t, err := readTrace(c.Args().First())
		if err != nil {
			return err
		}
		if err := trace.Validate(t); err != nil {
			return errors.Wrap(err, c.Args().First())
		}
		return runSuite(c, []eval.Benchmark{eval.TraceBench(c.Args().First(), t)})
	},
}

var traceCommand = &cli.Command{
	Name:  "trace",
	Usage: "record, replay, and benchmark allocation traces",
	Subcommands: []*cli.Command{
		traceGenCommand,
		traceReplayCommand,
		traceBenchCommand,
	},
}

func main() {
	app := &cli.App{
		Usage: "benchmark and check the id allocator",
		Flags: suiteFlags,
		Commands: []*cli.Command{
			benchCommand,
			scaleCommand,
			traceCommand,
		},
	}
	err := app.RunContext(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
