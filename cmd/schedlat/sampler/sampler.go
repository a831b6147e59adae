// Package sampler measures scheduling latency by timing fixed-period sleeps,
// optionally under per-cycle memory pressure.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultBufferSize is the size of one scratch buffer (10 pages).
	DefaultBufferSize = 4096 * 10

	// maxSamplesHint caps the up-front sample log allocation; longer runs
	// grow it as samples arrive.
	maxSamplesHint = 1 << 16
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrAlloc         = errors.New("scratch buffer allocation failed")
	ErrSleep         = errors.New("sleep failed")
	ErrClock         = errors.New("reading clock failed")
)

// Observer is called after every completed cycle.
type Observer func(cycle int, latencyUs int64)

// Config describes a single measurement run.
type Config struct {
	Cycles     int
	Period     time.Duration
	Buffers    int
	BufferSize int

	// KeepSamples retains every per-cycle sample in Result.Samples.
	KeepSamples bool

	// Nil primitives fall back to the monotonic clock, GoSleeper and
	// HeapAllocator.
	Clock     Clock
	Sleeper   Sleeper
	Allocator Allocator

	Observer Observer
}

// Validate reports whether the configuration can be run.
func (c *Config) Validate() error {
	if c.Cycles <= 0 {
		return fmt.Errorf("%w: cycles must be positive, got %d", ErrInvalidConfig, c.Cycles)
	}
	if c.Period < 0 {
		return fmt.Errorf("%w: period must not be negative, got %s", ErrInvalidConfig, c.Period)
	}
	if c.Buffers < 0 {
		return fmt.Errorf("%w: buffers must not be negative, got %d", ErrInvalidConfig, c.Buffers)
	}
	if c.Buffers > 0 && c.BufferSize <= 0 {
		return fmt.Errorf("%w: buffer size must be positive, got %d", ErrInvalidConfig, c.BufferSize)
	}
	return nil
}

// Result holds the outcome of a completed run.
type Result struct {
	ID      string    `json:"id"`
	Cycles  int       `json:"cycles"`
	Stats   Stats     `json:"stats"`
	Samples []int64   `json:"samples,omitempty"`
	Started time.Time `json:"started"`
	Ended   time.Time `json:"ended"`
}

// Average returns the truncated mean latency in microseconds.
func (r *Result) Average() int64 {
	return r.Stats.Average()
}

// Run executes cfg.Cycles measurement cycles. Any failure aborts the run and
// no partial result is returned.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = MonotonicClock{}
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = GoSleeper{}
	}
	if cfg.Allocator == nil {
		cfg.Allocator = HeapAllocator{}
	}

	res := &Result{
		ID:      uuid.New().String(),
		Started: time.Now(),
	}
	if cfg.KeepSamples {
		res.Samples = make([]int64, 0, min(cfg.Cycles, maxSamplesHint))
	}

	for i := 0; i < cfg.Cycles; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("cycle %d: %w", i, err)
		}

		latency, err := runCycle(&cfg)
		if err != nil {
			return nil, fmt.Errorf("cycle %d: %w", i, err)
		}

		res.Stats.Add(latency)
		if cfg.KeepSamples {
			res.Samples = append(res.Samples, latency)
		}
		res.Cycles++

		if cfg.Observer != nil {
			cfg.Observer(i, latency)
		}
	}

	res.Ended = time.Now()
	return res, nil
}

// runCycle performs one allocate, sleep, measure step. The buffer set lives
// exactly as long as this call.
func runCycle(cfg *Config) (latency int64, err error) {
	if cfg.Buffers > 0 {
		set, aerr := AcquireBuffers(cfg.Allocator, cfg.Buffers, cfg.BufferSize)
		if aerr != nil {
			return 0, aerr
		}
		defer func() {
			if rerr := set.Release(); rerr != nil && err == nil {
				err = rerr
			}
		}()
	}

	t0, err := cfg.Clock.Nanotime()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrClock, err)
	}
	if err := cfg.Sleeper.Sleep(cfg.Period); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSleep, err)
	}
	t1, err := cfg.Clock.Nanotime()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrClock, err)
	}

	return Latency(t1-t0, cfg.Period), nil
}

// Latency converts an observed sleep duration in nanoseconds into the
// overshoot beyond period, in microseconds. It is never clamped.
func Latency(elapsedNs int64, period time.Duration) int64 {
	return (elapsedNs - period.Nanoseconds()) / 1000
}
