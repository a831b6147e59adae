package sampler

import "time"

// Sleeper blocks the caller for the requested duration.
type Sleeper interface {
	Sleep(d time.Duration) error
}

// GoSleeper parks the goroutine with time.Sleep. It never fails.
type GoSleeper struct{}

func (GoSleeper) Sleep(d time.Duration) error {
	time.Sleep(d)
	return nil
}
