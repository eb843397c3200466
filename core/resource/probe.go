package resource

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// usableFraction leaves headroom for the host's own housekeeping and other
// co-located workers. Policy constant, not derived.
const usableFraction = 0.8

// Budget is the process-wide ceiling on concurrently usable CPU cores.
type Budget struct {
	TotalCores  int // most restrictive detected limit
	UsableCores int // floor(TotalCores * usableFraction), minimum 1
	PerJobCores int // UsableCores split across the max concurrent job count
}

// Probe detects the usable CPU core budget for the host, respecting
// container limits. Zero value probes the real system.
type Probe struct {
	// CgroupRoot overrides /sys/fs/cgroup, for tests.
	CgroupRoot string
	// Affinity overrides the scheduler-affinity probe, for tests.
	Affinity func() (int, error)
	// NumCPU overrides the raw logical core count, for tests.
	NumCPU func() int
}

// Budget computes the resource budget for maxConcurrentJobs worker slots.
// Idempotent and side-effect-free besides reading host limits.
func (p *Probe) Budget(maxConcurrentJobs int) Budget {
	total := p.detectCores()

	usable := int(float64(total) * usableFraction)
	if usable < 1 {
		usable = 1
	}

	if maxConcurrentJobs < 1 {
		maxConcurrentJobs = 1
	}
	perJob := usable / maxConcurrentJobs
	if perJob < 1 {
		perJob = 1
	}

	return Budget{TotalCores: total, UsableCores: usable, PerJobCores: perJob}
}

// detectCores walks the probe chain: cgroup v2 quota, cgroup v1 quota,
// scheduler affinity, raw core count. The first positive result wins; a
// probe that cannot be read is treated as unavailable, not as an error.
func (p *Probe) detectCores() int {
	if n := p.cgroupV2Cores(); n > 0 {
		return n
	}
	if n := p.cgroupV1Cores(); n > 0 {
		return n
	}
	if n := p.affinityCores(); n > 0 {
		return n
	}
	if p.NumCPU != nil {
		return p.NumCPU()
	}
	return runtime.NumCPU()
}

func (p *Probe) cgroupRoot() string {
	if p.CgroupRoot != "" {
		return p.CgroupRoot
	}
	return "/sys/fs/cgroup"
}

// cgroupV2Cores reads the unified hierarchy cpu.max file, formatted as
// "<quota> <period>" or "max <period>" when unlimited.
func (p *Probe) cgroupV2Cores() int {
	data, err := os.ReadFile(filepath.Join(p.cgroupRoot(), "cpu.max"))
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) != 2 || fields[0] == "max" {
		return 0
	}
	quota, err1 := strconv.Atoi(fields[0])
	period, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil || quota <= 0 || period <= 0 {
		return 0
	}
	return quotaToCores(quota, period)
}

// cgroupV1Cores reads cpu.cfs_quota_us / cpu.cfs_period_us. A quota of -1
// means unlimited.
func (p *Probe) cgroupV1Cores() int {
	quota := readIntFile(filepath.Join(p.cgroupRoot(), "cpu", "cpu.cfs_quota_us"))
	period := readIntFile(filepath.Join(p.cgroupRoot(), "cpu", "cpu.cfs_period_us"))
	if quota <= 0 || period <= 0 {
		return 0
	}
	return quotaToCores(quota, period)
}

func (p *Probe) affinityCores() int {
	fn := p.Affinity
	if fn == nil {
		fn = schedAffinityCores
	}
	n, err := fn()
	if err != nil {
		return 0
	}
	return n
}

// quotaToCores rounds a fractional CFS quota up so a container limited to
// e.g. 1.5 CPUs still counts 2 schedulable cores.
func quotaToCores(quota, period int) int {
	return (quota + period - 1) / period
}

func readIntFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return n
}
