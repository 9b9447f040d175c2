// Package proc reads the process and host facts the cgroup tools need:
// per-process identity (name, state, session, autogroup) for tree and
// pgrep views, host CPU time as the baseline for cgroup CPU percentages,
// MemTotal for rate rendering of memory limits, online CPUs and memory
// nodes for cpuset defaults, and block device names for blkio output.
//
// Parsing of /proc is delegated to github.com/prometheus/procfs. ProcRoot
// and SysRoot may be pointed at a fabricated tree in tests.
package proc
