//go:build linux

package cgroup

import (
	"github.com/ja7ad/cgutils/pkg/system/proc"
)

// MaxLimit is the "unlimited" value of memory limits: 2^63-1 rounded down
// to a 4 KiB page.
const MaxLimit int64 = 9223372036854771712

type hostDefaults struct {
	cpus      string
	mems      string
	rtPeriod  int64
	rtRuntime int64
}

func loadHostDefaults() hostDefaults {
	period, runtime := proc.SchedRT()
	return hostDefaults{
		cpus:      proc.OnlineCPUs(),
		mems:      proc.OnlineNodes(),
		rtPeriod:  period,
		rtRuntime: runtime,
	}
}

func buildRegistry(h hostDefaults) map[string]*Controller {
	zero := IntValue(0)
	noLimit := IntValue(MaxLimit)
	noRules := ListValue(nil)

	list := []*Controller{
		{
			Name: "cpu",
			Fields: prefixed("cpu",
				cfg("shares", KindInt, IntValue(1024)),
				cfg("cfs_period_us", KindInt, IntValue(100000)),
				cfg("cfs_quota_us", KindInt, IntValue(-1)),
				cfg("rt_period_us", KindInt, IntValue(h.rtPeriod)),
				cfg("rt_runtime_us", KindInt, IntValue(h.rtRuntime)),
				stat("stat", KindStat),
			),
		},
		{
			Name: "cpuacct",
			Fields: prefixed("cpuacct",
				resettable(stat("usage", KindInt)),
				stat("stat", KindStat),
				stat("usage_percpu", KindPercpu),
			),
		},
		{
			Name: "cpuset",
			Fields: prefixed("cpuset",
				cfg("cpu_exclusive", KindInt, zero),
				cfg("cpus", KindString, StringValue(h.cpus)),
				cfg("mem_exclusive", KindInt, zero),
				cfg("mem_hardwall", KindInt, zero),
				cfg("memory_migrate", KindInt, zero),
				cfg("memory_pressure_enabled", KindInt, zero),
				cfg("memory_spread_page", KindInt, zero),
				cfg("memory_spread_slab", KindInt, zero),
				cfg("mems", KindString, StringValue(h.mems)),
				cfg("sched_load_balance", KindInt, IntValue(1)),
				cfg("sched_relax_domain_level", KindInt, IntValue(-1)),
				stat("memory_pressure", KindInt),
			),
			Inherit: inheritCpuset,
		},
		{
			Name: "memory",
			Fields: prefixed("memory",
				cfg("limit_in_bytes", KindInt, noLimit),
				cfg("soft_limit_in_bytes", KindInt, noLimit),
				cfg("memsw.limit_in_bytes", KindInt, noLimit),
				cfg("kmem.limit_in_bytes", KindInt, noLimit),
				cfg("kmem.tcp.limit_in_bytes", KindInt, noLimit),
				cfg("swappiness", KindInt, IntValue(60)),
				cfg("use_hierarchy", KindInt, zero),
				cfg("move_charge_at_immigrate", KindInt, zero),
				cfg("oom_control", KindStat, StatValue(map[string]int64{"oom_kill_disable": 0, "under_oom": 0})),
				stat("usage_in_bytes", KindInt),
				resettable(stat("max_usage_in_bytes", KindInt)),
				resettable(stat("failcnt", KindInt)),
				stat("memsw.usage_in_bytes", KindInt),
				resettable(stat("memsw.max_usage_in_bytes", KindInt)),
				resettable(stat("memsw.failcnt", KindInt)),
				stat("kmem.usage_in_bytes", KindInt),
				stat("stat", KindStat),
				stat("numa_stat", KindNumaStat),
				ctl("force_empty", KindInt),
				ctl("pressure_level", KindString),
			),
			Derive: deriveMemory,
		},
		{
			Name: "blkio",
			Fields: prefixed("blkio",
				cfg("weight", KindInt, IntValue(500)),
				cfg("weight_device", KindList, noRules),
				cfg("throttle.read_bps_device", KindList, noRules),
				cfg("throttle.write_bps_device", KindList, noRules),
				cfg("throttle.read_iops_device", KindList, noRules),
				cfg("throttle.write_iops_device", KindList, noRules),
				stat("io_service_bytes", KindDeviceStat),
				stat("io_serviced", KindDeviceStat),
				stat("io_service_time", KindDeviceStat),
				stat("io_wait_time", KindDeviceStat),
				stat("io_merged", KindDeviceStat),
				stat("io_queued", KindDeviceStat),
				stat("throttle.io_service_bytes", KindDeviceStat),
				stat("throttle.io_serviced", KindDeviceStat),
				stat("sectors", KindDeviceStat),
				stat("time", KindDeviceStat),
				ctl("reset_stats", KindInt),
			),
			Derive: deriveBlkio,
		},
		{
			Name: "freezer",
			Fields: prefixed("freezer",
				cfg("state", KindString, StringValue("THAWED")),
				stat("self_freezing", KindInt),
				stat("parent_freezing", KindInt),
			),
		},
		{
			Name: "devices",
			Fields: prefixed("devices",
				stat("list", KindList),
				ctl("allow", KindString),
				ctl("deny", KindString),
			),
		},
		{
			Name: "net_cls",
			Fields: prefixed("net_cls",
				cfg("classid", KindInt, zero),
			),
		},
		{
			Name: "net_prio",
			Fields: prefixed("net_prio",
				cfg("ifpriomap", KindStat, StatValue(nil)),
				stat("prioidx", KindInt),
			),
		},
		{
			Name: "pids",
			Fields: prefixed("pids",
				cfg("max", KindString, StringValue("max")),
				stat("current", KindInt),
			),
		},
		{Name: "perf_event"},
		{Name: "hugetlb"},
	}

	reg := make(map[string]*Controller, len(list))
	for _, c := range list {
		reg[c.Name] = c
	}
	return reg
}

// deriveMemory exposes total/rss/swap. swap exists only when the kernel
// accounts swap (memsw files present).
func deriveMemory(s Stats) {
	usage, ok := s.Int("usage_in_bytes")
	if ok {
		s["total"] = IntValue(usage)
		if memsw, ok := s.Int("memsw.usage_in_bytes"); ok {
			s["swap"] = IntValue(memsw - usage)
		}
	}
	if rss, ok := s.Int("stat", "rss"); ok {
		s["rss"] = IntValue(rss)
	}
}

// deriveBlkio sums per-device Read/Write of io_service_bytes; the flat
// "Total" entry is skipped.
func deriveBlkio(s Stats) {
	v, ok := s["io_service_bytes"]
	if !ok {
		return
	}
	var read, write int64
	for _, dev := range v.Keys() {
		e, _ := v.Get(dev)
		if e.Kind() != KindStat {
			continue
		}
		if n, ok := e.m["Read"]; ok {
			read += n.n
		}
		if n, ok := e.m["Write"]; ok {
			write += n.n
		}
	}
	s["read"] = IntValue(read)
	s["write"] = IntValue(write)
}

// inheritCpuset copies cpus and mems: a new cpuset group starts with both
// empty and cannot accept tasks until they are set.
func inheritCpuset(parent Stats) Stats {
	out := Stats{}
	for _, name := range []string{"cpus", "mems"} {
		if v, ok := parent[name]; ok {
			out[name] = v
		}
	}
	return out
}
