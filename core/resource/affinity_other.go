//go:build !linux

package resource

import "errors"

// Scheduler affinity is only queryable on Linux; elsewhere the probe chain
// falls through to the raw core count.
func schedAffinityCores() (int, error) {
	return 0, errors.New("affinity probe unavailable")
}
