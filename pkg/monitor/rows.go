package monitor

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Keys are the sortable row columns, in display order.
var Keys = []string{
	"cpu.user",
	"cpu.system",
	"bio.read",
	"bio.write",
	"mem.total",
	"mem.rss",
	"mem.swap",
	"n_procs",
	"name",
}

// ErrUnknownKey indicates a sort key outside Keys.
var ErrUnknownKey = errors.New("monitor: unknown sort key")

// Metric returns a numeric column. name and unknown keys yield 0.
func (r Row) Metric(key string) float64 {
	switch key {
	case "cpu.user":
		return r.CPUUser
	case "cpu.system":
		return r.CPUSystem
	case "bio.read":
		return r.BIORead
	case "bio.write":
		return r.BIOWrite
	case "mem.total":
		return float64(r.MemTotal)
	case "mem.rss":
		return float64(r.MemRSS)
	case "mem.swap":
		return float64(r.MemSwap)
	case "n_procs":
		return float64(r.NProcs)
	}
	return 0
}

// IsZero reports whether a numeric column is zero, for blanking cells.
func (r Row) IsZero(key string) bool {
	return key != "name" && r.Metric(key) == 0
}

// Active reports whether the group used any CPU or I/O, or holds memory.
func (r Row) Active() bool {
	return r.CPUUser+r.CPUSystem > 0 ||
		r.BIORead+r.BIOWrite > 0 ||
		r.MemTotal != 0 || r.MemRSS != 0 || r.MemSwap != 0
}

// Filter drops rows according to the flags, keeping order.
type Filter struct {
	ShowEmpty    bool // keep groups without processes
	ShowInactive bool // keep groups with no activity
}

func (f Filter) Apply(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if !f.ShowEmpty && r.NProcs == 0 {
			continue
		}
		if !f.ShowInactive && !r.Active() {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Sort orders rows in place by key. Ties keep their original order.
func Sort(rows []Row, key string, desc bool) error {
	valid := false
	for _, k := range Keys {
		if k == key {
			valid = true
			break
		}
	}
	if !valid {
		return errors.Wrapf(ErrUnknownKey, "%q (want one of %s)", key, strings.Join(Keys, ", "))
	}

	less := func(a, b Row) bool { return a.Metric(key) < b.Metric(key) }
	if key == "name" {
		less = func(a, b Row) bool { return a.Name < b.Name }
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if desc {
			return less(rows[j], rows[i])
		}
		return less(rows[i], rows[j])
	})
	return nil
}
