package sampler

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock advances only when fakeSleeper sleeps. failAt makes the n-th
// reading fail.
type fakeClock struct {
	now    int64
	reads  int
	failAt int
}

func (c *fakeClock) Nanotime() (int64, error) {
	c.reads++
	if c.failAt > 0 && c.reads == c.failAt {
		return 0, errors.New("clock unavailable")
	}
	return c.now, nil
}

// fakeSleeper advances the clock by the requested duration plus the next
// scripted overshoot (in nanoseconds). failAt makes the n-th sleep fail.
type fakeSleeper struct {
	clock     *fakeClock
	overshoot []int64
	calls     int
	failAt    int
	err       error
}

func (s *fakeSleeper) Sleep(d time.Duration) error {
	s.calls++
	if s.failAt > 0 && s.calls == s.failAt {
		return s.err
	}
	extra := int64(0)
	if len(s.overshoot) > 0 {
		extra = s.overshoot[(s.calls-1)%len(s.overshoot)]
	}
	s.clock.now += d.Nanoseconds() + extra
	return nil
}

// countingAllocator tracks live buffers and can fail the n-th allocation.
type countingAllocator struct {
	allocs int
	frees  int
	live   int
	failAt int
}

func (a *countingAllocator) Alloc(size int) ([]byte, error) {
	a.allocs++
	if a.failAt > 0 && a.allocs == a.failAt {
		return nil, errors.New("out of memory")
	}
	a.live++
	return make([]byte, size), nil
}

func (a *countingAllocator) Free([]byte) error {
	a.frees++
	a.live--
	return nil
}

func newFakes(overshoot ...int64) (*fakeClock, *fakeSleeper) {
	clock := &fakeClock{now: 1_000_000_000}
	return clock, &fakeSleeper{clock: clock, overshoot: overshoot}
}

func TestRunComputesLatency(t *testing.T) {
	tests := []struct {
		name      string
		overshoot []int64
		expected  []int64
		min, max  int64
		avg       int64
	}{
		{
			name:      "positive overshoot",
			overshoot: []int64{150_000, 50_000, 2_000_000},
			expected:  []int64{150, 50, 2000},
			min:       50,
			max:       2000,
			avg:       733,
		},
		{
			name:      "sub-microsecond overshoot truncates to zero",
			overshoot: []int64{999, 1, 0},
			expected:  []int64{0, 0, 0},
			min:       0,
			max:       0,
			avg:       0,
		},
		{
			name:      "early wakeups are negative",
			overshoot: []int64{-3_000, -1_000, -2_500},
			expected:  []int64{-3, -1, -2},
			min:       -3,
			max:       -1,
			avg:       -2,
		},
		{
			name:      "mixed signs truncate towards zero",
			overshoot: []int64{-5_000, 2_000, 0},
			expected:  []int64{-5, 2, 0},
			min:       -5,
			max:       2,
			avg:       -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock, sleeper := newFakes(tt.overshoot...)
			res, err := Run(context.Background(), Config{
				Cycles:      len(tt.overshoot),
				Period:      10 * time.Millisecond,
				KeepSamples: true,
				Clock:       clock,
				Sleeper:     sleeper,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if res.Cycles != len(tt.expected) {
				t.Errorf("expected %d cycles, got %d", len(tt.expected), res.Cycles)
			}
			if len(res.Samples) != len(tt.expected) {
				t.Fatalf("expected %d samples, got %d", len(tt.expected), len(res.Samples))
			}
			for i, want := range tt.expected {
				if res.Samples[i] != want {
					t.Errorf("sample %d: expected %d, got %d", i, want, res.Samples[i])
				}
			}
			if res.Stats.Min != tt.min || res.Stats.Max != tt.max {
				t.Errorf("expected min/max %d/%d, got %d/%d", tt.min, tt.max, res.Stats.Min, res.Stats.Max)
			}
			if res.Average() != tt.avg {
				t.Errorf("expected average %d, got %d", tt.avg, res.Average())
			}
			if res.Stats.Min > res.Average() || res.Average() > res.Stats.Max {
				t.Errorf("min <= avg <= max violated: %d, %d, %d", res.Stats.Min, res.Average(), res.Stats.Max)
			}
			if res.ID == "" {
				t.Error("expected a run ID")
			}
		})
	}
}

func TestRunWithoutKeepSamples(t *testing.T) {
	clock, sleeper := newFakes(10_000)
	res, err := Run(context.Background(), Config{
		Cycles:  4,
		Period:  time.Millisecond,
		Clock:   clock,
		Sleeper: sleeper,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Samples != nil {
		t.Errorf("expected no samples, got %v", res.Samples)
	}
	if res.Stats.Count != 4 || res.Cycles != 4 {
		t.Errorf("expected 4 cycles, got count=%d cycles=%d", res.Stats.Count, res.Cycles)
	}
}

func TestRunsAreIndependent(t *testing.T) {
	run := func(overshoot ...int64) *Result {
		clock, sleeper := newFakes(overshoot...)
		res, err := Run(context.Background(), Config{
			Cycles:  len(overshoot),
			Period:  time.Millisecond,
			Clock:   clock,
			Sleeper: sleeper,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return res
	}

	first := run(500_000, 900_000)
	second := run(-1_000, -2_000)

	if first.Stats.Max != 900 || first.Stats.Min != 500 {
		t.Errorf("first run: unexpected min/max %d/%d", first.Stats.Min, first.Stats.Max)
	}
	if second.Stats.Max != -1 || second.Stats.Min != -2 || second.Stats.Sum != -3 {
		t.Errorf("second run leaked state: %+v", second.Stats)
	}
	if first.ID == second.ID {
		t.Error("expected distinct run IDs")
	}
}

func TestRunAllocatesBuffersPerCycle(t *testing.T) {
	clock, sleeper := newFakes(0)
	alloc := &countingAllocator{}

	var liveDuringSleep []int
	observing := &observingSleeper{Sleeper: sleeper, onSleep: func() {
		liveDuringSleep = append(liveDuringSleep, alloc.live)
	}}

	_, err := Run(context.Background(), Config{
		Cycles:     3,
		Period:     time.Millisecond,
		Buffers:    4,
		BufferSize: 128,
		Clock:      clock,
		Sleeper:    observing,
		Allocator:  alloc,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if alloc.allocs != 12 || alloc.frees != 12 {
		t.Errorf("expected 12 allocs and frees, got %d/%d", alloc.allocs, alloc.frees)
	}
	if alloc.live != 0 {
		t.Errorf("expected no live buffers after run, got %d", alloc.live)
	}
	for i, live := range liveDuringSleep {
		if live != 4 {
			t.Errorf("cycle %d: expected 4 live buffers during sleep, got %d", i, live)
		}
	}
}

func TestRunZeroBuffersSkipsAllocation(t *testing.T) {
	clock, sleeper := newFakes(0)
	alloc := &countingAllocator{}

	_, err := Run(context.Background(), Config{
		Cycles:     5,
		Period:     time.Millisecond,
		Buffers:    0,
		BufferSize: 0,
		Clock:      clock,
		Sleeper:    sleeper,
		Allocator:  alloc,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alloc.allocs != 0 {
		t.Errorf("expected no allocations, got %d", alloc.allocs)
	}
}

func TestRunAllocationFailure(t *testing.T) {
	clock, sleeper := newFakes(0)
	// Cycle 0 allocates 1-3, cycle 1 fails on its second buffer.
	alloc := &countingAllocator{failAt: 5}

	res, err := Run(context.Background(), Config{
		Cycles:     10,
		Period:     time.Millisecond,
		Buffers:    3,
		BufferSize: 64,
		Clock:      clock,
		Sleeper:    sleeper,
		Allocator:  alloc,
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, ErrAlloc) {
		t.Errorf("expected ErrAlloc, got %v", err)
	}
	if res != nil {
		t.Errorf("expected no result, got %+v", res)
	}
	if alloc.live != 0 {
		t.Errorf("expected partial buffers to be released, %d still live", alloc.live)
	}
	if sleeper.calls != 1 {
		t.Errorf("expected the failing cycle not to sleep, got %d sleeps", sleeper.calls)
	}
}

func TestRunSleepFailure(t *testing.T) {
	clock, sleeper := newFakes(0)
	sleeper.failAt = 2
	sleeper.err = errors.New("interrupted system call")
	alloc := &countingAllocator{}

	res, err := Run(context.Background(), Config{
		Cycles:     5,
		Period:     time.Millisecond,
		Buffers:    2,
		BufferSize: 64,
		Clock:      clock,
		Sleeper:    sleeper,
		Allocator:  alloc,
	})
	if !errors.Is(err, ErrSleep) {
		t.Fatalf("expected ErrSleep, got %v", err)
	}
	if !errors.Is(err, sleeper.err) {
		t.Errorf("expected the sleeper error to be wrapped, got %v", err)
	}
	if res != nil {
		t.Errorf("expected no result, got %+v", res)
	}
	if alloc.live != 0 || alloc.allocs != 4 {
		t.Errorf("expected 4 allocations all released, got allocs=%d live=%d", alloc.allocs, alloc.live)
	}
}

func TestRunCancelled(t *testing.T) {
	clock, sleeper := newFakes(0)
	ctx, cancel := context.WithCancel(context.Background())

	res, err := Run(ctx, Config{
		Cycles:  10,
		Period:  time.Millisecond,
		Clock:   clock,
		Sleeper: sleeper,
		Observer: func(cycle int, _ int64) {
			if cycle == 2 {
				cancel()
			}
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res != nil {
		t.Errorf("expected no result, got %+v", res)
	}
	if sleeper.calls != 3 {
		t.Errorf("expected 3 sleeps before cancellation, got %d", sleeper.calls)
	}
}

func TestRunHugeCycleCountKeepingSamples(t *testing.T) {
	clock, sleeper := newFakes(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, Config{
		Cycles:      1 << 60,
		Period:      time.Millisecond,
		KeepSamples: true,
		Clock:       clock,
		Sleeper:     sleeper,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res != nil {
		t.Errorf("expected no result, got %+v", res)
	}
}

func TestRunSampleLogGrowsPastHint(t *testing.T) {
	clock, sleeper := newFakes(1_000)
	cycles := maxSamplesHint + 3

	res, err := Run(context.Background(), Config{
		Cycles:      cycles,
		Period:      0,
		KeepSamples: true,
		Clock:       clock,
		Sleeper:     sleeper,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Samples) != cycles {
		t.Errorf("expected %d samples, got %d", cycles, len(res.Samples))
	}
}

func TestRunClockFailure(t *testing.T) {
	for _, failAt := range []int{1, 2, 4} {
		clock, sleeper := newFakes(0)
		clock.failAt = failAt
		alloc := &countingAllocator{}

		res, err := Run(context.Background(), Config{
			Cycles:     5,
			Period:     time.Millisecond,
			Buffers:    1,
			BufferSize: 64,
			Clock:      clock,
			Sleeper:    sleeper,
			Allocator:  alloc,
		})
		if !errors.Is(err, ErrClock) {
			t.Errorf("failAt %d: expected ErrClock, got %v", failAt, err)
		}
		if res != nil {
			t.Errorf("failAt %d: expected no result, got %+v", failAt, res)
		}
		if alloc.live != 0 {
			t.Errorf("failAt %d: expected buffers released, %d live", failAt, alloc.live)
		}
	}
}

func TestRunObserver(t *testing.T) {
	clock, sleeper := newFakes(1_000, 2_000, 3_000)
	var cycles []int
	var latencies []int64

	_, err := Run(context.Background(), Config{
		Cycles:  3,
		Period:  time.Millisecond,
		Clock:   clock,
		Sleeper: sleeper,
		Observer: func(cycle int, latency int64) {
			cycles = append(cycles, cycle)
			latencies = append(latencies, latency)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range 3 {
		if cycles[i] != i || latencies[i] != int64(i+1) {
			t.Errorf("observation %d: got cycle %d latency %d", i, cycles[i], latencies[i])
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Cycles: 1, Period: time.Millisecond, Buffers: 1, BufferSize: 1}, false},
		{"zero period", Config{Cycles: 1}, false},
		{"zero buffers ignores size", Config{Cycles: 1, Period: time.Millisecond}, false},
		{"zero cycles", Config{Cycles: 0, Period: time.Millisecond}, true},
		{"negative cycles", Config{Cycles: -1, Period: time.Millisecond}, true},
		{"negative period", Config{Cycles: 1, Period: -time.Millisecond}, true},
		{"negative buffers", Config{Cycles: 1, Buffers: -1}, true},
		{"buffers without size", Config{Cycles: 1, Buffers: 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLatency(t *testing.T) {
	tests := []struct {
		elapsed  int64
		period   time.Duration
		expected int64
	}{
		{10_000_000, 10 * time.Millisecond, 0},
		{10_150_000, 10 * time.Millisecond, 150},
		{9_998_000, 10 * time.Millisecond, -2},
		{9_999_500, 10 * time.Millisecond, 0},
		{1_234, 0, 1},
	}

	for _, tt := range tests {
		if got := Latency(tt.elapsed, tt.period); got != tt.expected {
			t.Errorf("Latency(%d, %s): expected %d, got %d", tt.elapsed, tt.period, tt.expected, got)
		}
	}
}

func TestRunRealClock(t *testing.T) {
	if testing.Short() {
		t.Skip("sleeps for real")
	}

	res, err := Run(context.Background(), Config{
		Cycles:      5,
		Period:      10 * time.Millisecond,
		KeepSamples: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Cycles != 5 || len(res.Samples) != 5 {
		t.Fatalf("expected 5 cycles and samples, got %d/%d", res.Cycles, len(res.Samples))
	}
	if res.Stats.Min > res.Average() || res.Average() > res.Stats.Max {
		t.Errorf("min <= avg <= max violated: %+v", res.Stats)
	}
	// time.Sleep never returns early.
	if res.Stats.Min < 0 {
		t.Errorf("expected non-negative latencies from time.Sleep, got min %d", res.Stats.Min)
	}
}

func TestRunZeroSleepCalibration(t *testing.T) {
	res, err := Run(context.Background(), Config{
		Cycles:      20,
		Period:      0,
		Buffers:     2,
		BufferSize:  DefaultBufferSize,
		KeepSamples: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Samples) != 20 {
		t.Fatalf("expected 20 samples, got %d", len(res.Samples))
	}
	if res.Stats.Min < 0 {
		t.Errorf("a zero sleep cannot undershoot, got min %d", res.Stats.Min)
	}
}

type observingSleeper struct {
	Sleeper
	onSleep func()
}

func (s *observingSleeper) Sleep(d time.Duration) error {
	s.onSleep()
	return s.Sleeper.Sleep(d)
}
