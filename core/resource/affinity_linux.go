//go:build linux

package resource

import "golang.org/x/sys/unix"

// schedAffinityCores counts the CPUs in the process's scheduler-affinity
// mask.
func schedAffinityCores() (int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return 0, err
	}
	return set.Count(), nil
}
