package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quill/internal/inference"
	"github.com/samcharles93/quill/internal/logger"
)

type benchRun struct {
	TPS      float64
	Duration time.Duration
	Tokens   int
}

func benchmarkCmd() *cli.Command {
	var (
		vo vocabOptions
		mo modelOptions
		so samplingOptions

		warmupRuns int64
		benchRuns  int64
		prompt     string
	)

	flags := []cli.Flag{
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       1,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of benchmark runs",
			Value:       3,
			Destination: &benchRuns,
		},
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "prompt text for benchmarking",
			Value:       "The quick brown fox jumps over the lazy dog.",
			Destination: &prompt,
		},
	}
	flags = append(flags, vocabFlags(&vo)...)
	flags = append(flags, modelFlags(&mo)...)
	flags = append(flags, samplingFlags(&so)...)

	return &cli.Command{
		Name:    "benchmark",
		Aliases: []string{"bench"},
		Usage:   "Measure generation throughput",
		Flags:   flags,
		Before:  setup,
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			if benchRuns < 1 {
				return cli.Exit("error: --runs must be >= 1", 1)
			}

			loadStart := time.Now()
			res, err := loadEngine(ctx, c, vo, mo)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}
			defer func() { _ = res.Close() }()
			loadDuration := time.Since(loadStart)

			opts := requestOptions(c, prompt, so)
			if opts.Seed == nil {
				seed := int64(42)
				opts.Seed = &seed
			}
			req, err := inference.ResolveRequest(opts, res.Defaults)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			fmt.Println("=== Quill Benchmark ===")
			fmt.Printf("Backend:    %s\n", res.Backend)
			fmt.Printf("Vocab:      %d\n", res.Vocabulary.Size())
			fmt.Printf("Window:     %d\n", res.Engine.Window())
			fmt.Printf("Strategy:   %s\n", req.Strategy)
			fmt.Printf("CPUs:       %d\n", runtime.NumCPU())
			fmt.Printf("GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))
			fmt.Printf("Load:       %s\n", loadDuration.Round(time.Millisecond))
			fmt.Printf("Warmup:     %d runs\n", warmupRuns)
			fmt.Printf("Runs:       %d\n", benchRuns)
			fmt.Println()

			for i := range int(warmupRuns) {
				log.Info("warmup run", "run", i+1)
				if _, err := res.Engine.Generate(ctx, &req, nil); err != nil {
					return cli.Exit(fmt.Sprintf("error: warmup run %d: %v", i+1, err), 1)
				}
			}

			results := make([]benchRun, 0, benchRuns)
			for i := range int(benchRuns) {
				log.Info("benchmark run", "run", i+1)
				result, err := res.Engine.Generate(ctx, &req, nil)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: benchmark run %d: %v", i+1, err), 1)
				}
				if result.State == inference.StateCancelled {
					return cli.Exit("benchmark cancelled", 130)
				}
				results = append(results, benchRun{
					TPS:      result.Stats.TPS,
					Duration: result.Stats.Duration,
					Tokens:   result.Stats.TokensGenerated,
				})
			}

			printBenchResults(os.Stdout, results)

			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			fmt.Printf("\nMemory: %.1f MB alloc, %.1f MB sys\n",
				float64(mem.Alloc)/(1024*1024),
				float64(mem.Sys)/(1024*1024))
			return nil
		},
	}
}

func printBenchResults(w io.Writer, results []benchRun) {
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "%-6s %10s %10s %8s\n", "Run", "tps", "Duration", "Tokens")

	var sum float64
	for i, r := range results {
		fmt.Fprintf(w, "%-6d %10.2f %10s %8d\n", i+1, r.TPS, r.Duration.Round(time.Millisecond), r.Tokens)
		sum += r.TPS
	}
	if len(results) > 0 {
		fmt.Fprintf(w, "\n%-6s %10.2f\n", "Avg", sum/float64(len(results)))
	}
}
