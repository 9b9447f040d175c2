//go:build linux

package proc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/procfs/blockdevice"
)

// SysRoot is where sysfs is mounted.
var SysRoot = "/sys"

// ClockTicks returns the number of jiffies (clock ticks) per second.
// It first checks the env var CLK_TCK (useful for testing), otherwise
// falls back to 100 (common default).
//
// Note: the authoritative source is sysconf(_SC_CLK_TCK), which needs cgo.
func ClockTicks() int {
	v, _ := strconv.Atoi(os.Getenv("CLK_TCK"))
	if v > 0 {
		return v
	}
	return 100
}

func readTrimmed(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// OnlineCPUs returns the online CPU list in cpuset syntax, e.g. "0-3".
func OnlineCPUs() string {
	s, err := readTrimmed(filepath.Join(SysRoot, "devices/system/cpu/online"))
	if err != nil || s == "" {
		return "0"
	}
	return s
}

// OnlineNodes returns the online memory nodes. Kernels built without NUMA
// have no node directory and a single implicit node 0.
func OnlineNodes() string {
	s, err := readTrimmed(filepath.Join(SysRoot, "devices/system/node/online"))
	if err != nil || s == "" {
		return "0"
	}
	return s
}

// SchedRT returns the host real-time scheduling period and runtime in µs.
func SchedRT() (period, runtime int64) {
	period, runtime = 1000000, 950000
	if s, err := readTrimmed(filepath.Join(ProcRoot, "sys/kernel/sched_rt_period_us")); err == nil {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			period = v
		}
	}
	if s, err := readTrimmed(filepath.Join(ProcRoot, "sys/kernel/sched_rt_runtime_us")); err == nil {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			runtime = v
		}
	}
	return period, runtime
}

// HostCPUTicks returns the aggregate /proc/stat CPU time in clock ticks,
// divided by the number of CPUs. cpuacct.stat is in the same unit, so the
// ratio of their deltas is a share of one CPU.
func HostCPUTicks() (float64, error) {
	fs, err := newFS()
	if err != nil {
		return 0, err
	}
	st, err := fs.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "read /proc/stat")
	}
	if len(st.CPU) == 0 {
		return 0, ErrNoCPU
	}
	c := st.CPUTotal
	sec := c.User + c.Nice + c.System + c.Idle + c.Iowait + c.IRQ + c.SoftIRQ + c.Steal
	return sec * float64(ClockTicks()) / float64(len(st.CPU)), nil
}

// MemTotal returns the host physical memory in bytes.
func MemTotal() (int64, error) {
	fs, err := newFS()
	if err != nil {
		return 0, err
	}
	mi, err := fs.Meminfo()
	if err != nil {
		return 0, errors.Wrap(err, "read /proc/meminfo")
	}
	if mi.MemTotal == nil {
		return 0, ErrNoMemTotal
	}
	return int64(*mi.MemTotal) * 1024, nil
}

// BlockDevices maps "major:minor" to the kernel device name, as used in
// blkio statistics.
func BlockDevices() (map[string]string, error) {
	fs, err := blockdevice.NewFS(ProcRoot, SysRoot)
	if err != nil {
		return nil, errors.Wrap(err, "open block device fs")
	}
	stats, err := fs.ProcDiskstats()
	if err != nil {
		return nil, errors.Wrap(err, "read /proc/diskstats")
	}
	out := make(map[string]string, len(stats))
	for _, d := range stats {
		out[fmt.Sprintf("%d:%d", d.MajorNumber, d.MinorNumber)] = d.DeviceName
	}
	return out, nil
}
