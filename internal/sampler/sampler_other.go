//go:build !linux

package sampler

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("not supported on this platform")

func statDisk(string) (Usage, error) {
	return Usage{}, errUnsupported
}

func readUptime() (time.Duration, error) {
	return 0, errUnsupported
}
