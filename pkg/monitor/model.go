package monitor

import (
	"time"
)

// Options configures an Engine.
// Units:
//   - RescanInterval: how often the hierarchies are rescanned for new and
//     removed groups; sampling in between reuses the scanned trees
//   - Smoothing: EMA alpha applied to CPU percentages [0..1], 0 disables
type Options struct {
	Controllers    []string
	RescanInterval time.Duration
	Smoothing      float64
	HideRoot       bool
}

// DefaultControllers are the hierarchies the monitor reads.
var DefaultControllers = []string{"cpuacct", "blkio", "memory"}

// readFilters restricts each controller to the files the row set needs.
var readFilters = map[string][]string{
	"cpuacct": {"stat"},
	"blkio":   {"io_service_bytes"},
	"memory":  {"usage_in_bytes", "memsw.usage_in_bytes", "stat"},
}

// _defaultOptions returns Options pre-filled with the monitor defaults.
func _defaultOptions() *Options {
	return &Options{
		Controllers:    append([]string(nil), DefaultControllers...),
		RescanInterval: 10 * time.Second,
		Smoothing:      0,
		HideRoot:       false,
	}
}

// merge overlays opts on the defaults. Non-positive durations and
// out-of-range alphas are treated as unset.
func merge(opts *Options) *Options {
	base := _defaultOptions()
	if opts == nil {
		return base
	}
	merged := *base
	if len(opts.Controllers) > 0 {
		merged.Controllers = append([]string(nil), opts.Controllers...)
	}
	if opts.RescanInterval > 0 {
		merged.RescanInterval = opts.RescanInterval
	}
	if opts.Smoothing > 0 && opts.Smoothing <= 1 {
		merged.Smoothing = opts.Smoothing
	}
	merged.HideRoot = opts.HideRoot
	return &merged
}

// State is the engine's sampling phase.
type State uint8

const (
	// Initial means no baseline exists yet and every rate is zero.
	Initial State = iota
	// Steady means rates are computed against the previous sample.
	Steady
)

func (s State) String() string {
	if s == Steady {
		return "steady"
	}
	return "initial"
}

// Row is the per-group line of a sample. CPU fields are percent of one
// CPU, block I/O fields bytes per second, memory fields absolute bytes.
type Row struct {
	Name      string  `json:"name" yaml:"name"`
	NProcs    int     `json:"n_procs" yaml:"n_procs"`
	CPUUser   float64 `json:"cpu.user" yaml:"cpu.user"`
	CPUSystem float64 `json:"cpu.system" yaml:"cpu.system"`
	BIORead   float64 `json:"bio.read" yaml:"bio.read"`
	BIOWrite  float64 `json:"bio.write" yaml:"bio.write"`
	MemTotal  int64   `json:"mem.total" yaml:"mem.total"`
	MemRSS    int64   `json:"mem.rss" yaml:"mem.rss"`
	MemSwap   int64   `json:"mem.swap" yaml:"mem.swap"`
}

// Sample is one complete sampling pass.
type Sample struct {
	Time    time.Time     `json:"time"`
	Elapsed time.Duration `json:"elapsed"`
	State   State         `json:"state"`
	Rows    []Row         `json:"rows"`
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
