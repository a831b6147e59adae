package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"go.sazak.io/schedlat/cmd/schedlat/report"
	"go.sazak.io/schedlat/cmd/schedlat/sampler"
	"go.sazak.io/schedlat/cmd/schedlat/storage"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2

	progressTemplate pb.ProgressBarTemplate = `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }}`
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	log.SetOutput(stderr)
	log.SetPrefix("schedlat: ")
	log.SetFlags(log.Ltime)

	opts, err := parseFlags(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		return exitUsage
	}

	if opts.noColor {
		color.NoColor = true
	}

	cfg, err := opts.samplerConfig()
	if err != nil {
		log.Print(color.RedString("configuring sampler: %v", err))
		return exitUsage
	}

	fmt.Fprintf(stdout, "%d cycles - %dms sleep period - %d buffers allocated per cycle\n",
		opts.cycles, opts.periodMs, opts.buffers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bar *pb.ProgressBar
	if opts.progress {
		bar = progressTemplate.New(opts.cycles).SetWriter(stderr).Set("prefix", "Cycles ").Start()
		cfg.Observer = func(int, int64) {
			bar.Increment()
		}
	}

	res, err := measure(ctx, cfg)

	if bar != nil {
		bar.Finish()
	}

	if err != nil {
		log.Print(color.RedString("%s", describeFailure(err)))
		return exitFailure
	}

	log.Printf("Run %s completed in %s (alloc=%s, sleep=%s)",
		res.ID, res.Ended.Sub(res.Started).Round(time.Millisecond), opts.alloc, opts.sleep)

	fmt.Fprintf(stdout, "%s [Avg %d µs, Best %d µs, Worst %d µs]\n",
		color.New(color.Bold).Sprint("Latency:"), res.Average(), res.Stats.Min, res.Stats.Max)

	writeOutputs(opts, cfg, res, stdout)

	return exitOK
}

// measure runs the sampler with the calling goroutine pinned to its OS
// thread so every sleep is issued from the same thread.
func measure(ctx context.Context, cfg sampler.Config) (*sampler.Result, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	return sampler.Run(ctx, cfg)
}

func describeFailure(err error) string {
	switch {
	case errors.Is(err, sampler.ErrAlloc):
		return fmt.Sprintf("allocating scratch buffers: %v", err)
	case errors.Is(err, sampler.ErrSleep):
		return fmt.Sprintf("sleep system call failed: %v", err)
	case errors.Is(err, sampler.ErrClock):
		return fmt.Sprintf("reading monotonic clock: %v", err)
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("interrupted: %v", err)
	default:
		return fmt.Sprintf("run failed: %v", err)
	}
}

// writeOutputs persists the optional artifacts of a completed run. None of
// them can fail the run.
func writeOutputs(opts *options, cfg sampler.Config, res *sampler.Result, stdout io.Writer) {
	if opts.file != "" {
		if err := storage.Save(opts.file, opts.format, res.ID, res.Samples); err != nil {
			log.Printf("Not storing latencies: %v", err)
		}
	}

	if opts.metricsPath != "" {
		m := report.NewMetrics(res.ID)
		m.Observe(res, cfg)
		if err := m.WriteTextfile(opts.metricsPath); err != nil {
			log.Printf("Not writing metrics: %v", err)
		}
	}

	if opts.graphPath != "" {
		title := fmt.Sprintf("Go latency: cycles %d, %dms period, %d buffers", res.Cycles, opts.periodMs, opts.buffers)
		if err := report.SaveGraph(opts.graphPath, title, res.Samples); err != nil {
			log.Printf("Not rendering graph: %v", err)
		}
	}

	if opts.gcStats || opts.debug {
		if err := report.WriteGCStats(stdout, opts.debug); err != nil {
			log.Printf("Writing GC stats: %v", err)
		}
	}
}
