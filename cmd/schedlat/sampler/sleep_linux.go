//go:build linux

package sampler

import (
	"time"

	"golang.org/x/sys/unix"
)

// NanoSleeper issues nanosleep(2) directly and blocks the OS thread. An
// interrupted sleep is reported as an error and is not resumed.
type NanoSleeper struct{}

func NewNanoSleeper() (NanoSleeper, error) {
	return NanoSleeper{}, nil
}

func (NanoSleeper) Sleep(d time.Duration) error {
	ts := unix.NsecToTimespec(d.Nanoseconds())
	return unix.Nanosleep(&ts, nil)
}
