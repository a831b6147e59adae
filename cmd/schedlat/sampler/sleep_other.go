//go:build !linux

package sampler

import (
	"errors"
	"time"
)

type NanoSleeper struct{}

func NewNanoSleeper() (NanoSleeper, error) {
	return NanoSleeper{}, errors.New("nanosleep is only supported on linux")
}

func (NanoSleeper) Sleep(time.Duration) error {
	return errors.New("nanosleep is only supported on linux")
}
