package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"go.sazak.io/schedlat/cmd/schedlat/sampler"
	"go.sazak.io/schedlat/cmd/schedlat/storage"
)

const (
	allocHeap = "heap"
	allocMmap = "mmap"

	sleepGo        = "go"
	sleepNanosleep = "nanosleep"

	// maxPeriodMs is the longest period that fits in a time.Duration.
	maxPeriodMs = math.MaxInt64 / int(time.Millisecond)
)

type options struct {
	cycles     int
	periodMs   int
	buffers    int
	bufferSize int

	file   string
	format string

	alloc string
	sleep string

	metricsPath string
	graphPath   string

	progress bool
	gcStats  bool
	debug    bool
	noColor  bool
}

// parseFlags parses args into options. Usage is printed to stderr for any
// parse or validation error; pflag.ErrHelp is returned for -h.
func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}

	fs := pflag.NewFlagSet("schedlat", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: schedlat [-c cycles] [-p period] [-b buffers] [-f file] [flags]\n\n")
		fs.PrintDefaults()
	}

	fs.IntVarP(&opts.cycles, "cycles", "c", 500, "Number of sleeping cycles")
	fs.IntVarP(&opts.periodMs, "period", "p", 100, "Sleeping period (in milliseconds)")
	fs.IntVarP(&opts.buffers, "buffers", "b", 10, "Number of scratch buffers allocated per cycle")
	fs.StringVarP(&opts.file, "file", "f", "", "File to store all latencies in microseconds")
	fs.StringVar(&opts.format, "format", storage.FormatText, "Latency file format: text or jsonl")
	fs.IntVar(&opts.bufferSize, "buffer-size", sampler.DefaultBufferSize, "Size of one scratch buffer in bytes")
	fs.StringVar(&opts.alloc, "alloc", allocHeap, "Scratch buffer allocator: heap or mmap")
	fs.StringVar(&opts.sleep, "sleep", sleepGo, "Sleep primitive: go or nanosleep")
	fs.StringVar(&opts.metricsPath, "metrics", "", "Write Prometheus textfile metrics to this path")
	fs.StringVar(&opts.graphPath, "graph", "", "Render a PNG latency graph to this path")
	fs.BoolVar(&opts.progress, "progress", false, "Display progress bar")
	fs.BoolVar(&opts.gcStats, "gc-stats", false, "Print Go GC statistics after the run")
	fs.BoolVar(&opts.debug, "debug", false, "Print GC statistics including every GC pause")
	fs.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		fmt.Fprintln(stderr, err)
		fs.Usage()
		return nil, err
	}

	if fs.NArg() > 0 {
		err := fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
		fmt.Fprintln(stderr, err)
		fs.Usage()
		return nil, err
	}

	if err := opts.validate(); err != nil {
		fmt.Fprintln(stderr, err)
		fs.Usage()
		return nil, err
	}

	return opts, nil
}

func (o *options) validate() error {
	if o.cycles <= 0 {
		return fmt.Errorf("-c must be positive, got %d", o.cycles)
	}
	if o.periodMs <= 0 {
		return fmt.Errorf("-p must be positive, got %d", o.periodMs)
	}
	if o.periodMs > maxPeriodMs {
		return fmt.Errorf("-p must not exceed %d, got %d", maxPeriodMs, o.periodMs)
	}
	if o.buffers < 0 {
		return fmt.Errorf("-b must not be negative, got %d", o.buffers)
	}
	if o.bufferSize <= 0 {
		return fmt.Errorf("--buffer-size must be positive, got %d", o.bufferSize)
	}
	if !storage.ValidFormat(o.format) {
		return fmt.Errorf("unknown --format %q (supported: text, jsonl)", o.format)
	}
	switch o.alloc {
	case allocHeap, allocMmap:
	default:
		return fmt.Errorf("unknown --alloc %q (supported: heap, mmap)", o.alloc)
	}
	switch o.sleep {
	case sleepGo, sleepNanosleep:
	default:
		return fmt.Errorf("unknown --sleep %q (supported: go, nanosleep)", o.sleep)
	}
	return nil
}

// keepSamples reports whether any output needs the full sample log.
func (o *options) keepSamples() bool {
	return o.file != "" || o.metricsPath != "" || o.graphPath != ""
}

func (o *options) samplerConfig() (sampler.Config, error) {
	cfg := sampler.Config{
		Cycles:      o.cycles,
		Period:      time.Duration(o.periodMs) * time.Millisecond,
		Buffers:     o.buffers,
		BufferSize:  o.bufferSize,
		KeepSamples: o.keepSamples(),
		Clock:       sampler.MonotonicClock{},
		Sleeper:     sampler.GoSleeper{},
		Allocator:   sampler.HeapAllocator{},
	}

	if o.alloc == allocMmap {
		alloc, err := sampler.NewMmapAllocator()
		if err != nil {
			return cfg, err
		}
		cfg.Allocator = alloc
	}

	if o.sleep == sleepNanosleep {
		sleeper, err := sampler.NewNanoSleeper()
		if err != nil {
			return cfg, err
		}
		cfg.Sleeper = sleeper
	}

	return cfg, cfg.Validate()
}
