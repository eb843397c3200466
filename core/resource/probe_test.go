package resource

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCgroupFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestDetectCoresCgroupV2(t *testing.T) {
	root := t.TempDir()
	writeCgroupFile(t, root, "cpu.max", "400000 100000\n")

	p := &Probe{CgroupRoot: root}
	if got := p.detectCores(); got != 4 {
		t.Fatalf("expected 4 cores from cgroup v2 quota, got %d", got)
	}
}

func TestDetectCoresCgroupV2FractionalRoundsUp(t *testing.T) {
	root := t.TempDir()
	writeCgroupFile(t, root, "cpu.max", "150000 100000")

	p := &Probe{CgroupRoot: root}
	if got := p.detectCores(); got != 2 {
		t.Fatalf("expected 1.5 CPUs to count as 2 cores, got %d", got)
	}
}

func TestDetectCoresCgroupV2Unlimited(t *testing.T) {
	root := t.TempDir()
	writeCgroupFile(t, root, "cpu.max", "max 100000")
	writeCgroupFile(t, root, "cpu/cpu.cfs_quota_us", "200000")
	writeCgroupFile(t, root, "cpu/cpu.cfs_period_us", "100000")

	p := &Probe{CgroupRoot: root}
	if got := p.detectCores(); got != 2 {
		t.Fatalf("expected fallback to cgroup v1, got %d", got)
	}
}

func TestDetectCoresCgroupV1(t *testing.T) {
	root := t.TempDir()
	writeCgroupFile(t, root, "cpu/cpu.cfs_quota_us", "300000")
	writeCgroupFile(t, root, "cpu/cpu.cfs_period_us", "100000")

	p := &Probe{CgroupRoot: root}
	if got := p.detectCores(); got != 3 {
		t.Fatalf("expected 3 cores from cgroup v1 quota, got %d", got)
	}
}

func TestDetectCoresCgroupV1Unlimited(t *testing.T) {
	root := t.TempDir()
	writeCgroupFile(t, root, "cpu/cpu.cfs_quota_us", "-1")
	writeCgroupFile(t, root, "cpu/cpu.cfs_period_us", "100000")

	p := &Probe{
		CgroupRoot: root,
		Affinity:   func() (int, error) { return 6, nil },
	}
	if got := p.detectCores(); got != 6 {
		t.Fatalf("expected fallback to affinity, got %d", got)
	}
}

func TestDetectCoresAffinityFallback(t *testing.T) {
	p := &Probe{
		CgroupRoot: t.TempDir(), // no cgroup files at all
		Affinity:   func() (int, error) { return 5, nil },
	}
	if got := p.detectCores(); got != 5 {
		t.Fatalf("expected 5 cores from affinity, got %d", got)
	}
}

func TestDetectCoresNumCPUFallback(t *testing.T) {
	p := &Probe{
		CgroupRoot: t.TempDir(),
		Affinity:   func() (int, error) { return 0, os.ErrNotExist },
		NumCPU:     func() int { return 12 },
	}
	if got := p.detectCores(); got != 12 {
		t.Fatalf("expected 12 cores from NumCPU, got %d", got)
	}
}

func TestBudgetUsableFraction(t *testing.T) {
	p := &Probe{
		CgroupRoot: t.TempDir(),
		Affinity:   func() (int, error) { return 10, nil },
	}
	b := p.Budget(2)
	if b.TotalCores != 10 {
		t.Fatalf("expected 10 total cores, got %d", b.TotalCores)
	}
	if b.UsableCores != 8 {
		t.Fatalf("expected 8 usable cores (80%% of 10), got %d", b.UsableCores)
	}
	if b.PerJobCores != 4 {
		t.Fatalf("expected 4 cores per job, got %d", b.PerJobCores)
	}
}

func TestBudgetFloorsAtOne(t *testing.T) {
	p := &Probe{
		CgroupRoot: t.TempDir(),
		Affinity:   func() (int, error) { return 1, nil },
	}
	b := p.Budget(4)
	if b.UsableCores != 1 {
		t.Fatalf("usable cores must floor at 1, got %d", b.UsableCores)
	}
	if b.PerJobCores != 1 {
		t.Fatalf("per-job cores must floor at 1, got %d", b.PerJobCores)
	}
}

func TestBudgetZeroConcurrency(t *testing.T) {
	p := &Probe{
		CgroupRoot: t.TempDir(),
		Affinity:   func() (int, error) { return 4, nil },
	}
	b := p.Budget(0)
	if b.PerJobCores != 3 {
		t.Fatalf("zero concurrency treated as 1 slot, expected 3 per-job cores, got %d", b.PerJobCores)
	}
}

func TestQuotaToCores(t *testing.T) {
	cases := []struct {
		quota, period, want int
	}{
		{100000, 100000, 1},
		{100001, 100000, 2},
		{50000, 100000, 1},
		{800000, 100000, 8},
	}
	for _, tc := range cases {
		if got := quotaToCores(tc.quota, tc.period); got != tc.want {
			t.Errorf("quotaToCores(%d, %d) = %d, want %d", tc.quota, tc.period, got, tc.want)
		}
	}
}
