//go:build linux

package cgroup

import (
	"sort"
	"sync"
)

// Category tells how a control file may be used.
type Category uint8

const (
	Config  Category = iota + 1 // read-write with a known default
	Stat                        // read-only counter or state
	Control                     // write-only action
)

func (c Category) String() string {
	switch c {
	case Config:
		return "config"
	case Stat:
		return "stat"
	case Control:
		return "control"
	default:
		return "unknown"
	}
}

// Field describes one control file of a controller.
type Field struct {
	Name     string // key in Stats maps, e.g. "usage_in_bytes"
	File     string // file name inside a group directory, e.g. "memory.usage_in_bytes"
	Category Category
	Kind     Kind
	Default  Value // Config only
	// Reset marks a stat counter that accepts a write of 0 through Control.
	Reset bool
}

// Controller is the static schema of one hierarchy type. Behaviour that
// differs between controllers is data here; the only code hooks are
// Derive and Inherit.
type Controller struct {
	Name   string
	Fields []Field

	// Derive adds convenience fields computed from already parsed stats.
	// It performs no I/O.
	Derive func(Stats)

	// Inherit returns the parameters a freshly created child must receive
	// from its parent's current configs. It is used by Mkdir only.
	Inherit func(parent Stats) Stats

	// Named marks a custom "name=X" hierarchy without a kernel controller.
	Named bool
}

// Field returns the field registered under name.
func (c *Controller) Field(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldsOf returns the fields of one category in table order.
func (c *Controller) FieldsOf(cat Category) []Field {
	var out []Field
	for _, f := range c.Fields {
		if f.Category == cat {
			out = append(out, f)
		}
	}
	return out
}

// DefaultConfigs returns the default of every Config field.
func (c *Controller) DefaultConfigs() Stats {
	out := Stats{}
	for _, f := range c.FieldsOf(Config) {
		out[f.Name] = f.Default
	}
	return out
}

func prefixed(controller string, fs ...Field) []Field {
	out := make([]Field, 0, len(fs))
	for _, f := range fs {
		f.File = controller + "." + f.Name
		out = append(out, f)
	}
	return out
}

func plain(fs ...Field) []Field {
	out := make([]Field, 0, len(fs))
	for _, f := range fs {
		f.File = f.Name
		out = append(out, f)
	}
	return out
}

func cfg(name string, kind Kind, def Value) Field {
	return Field{Name: name, Category: Config, Kind: kind, Default: def}
}

func stat(name string, kind Kind) Field {
	return Field{Name: name, Category: Stat, Kind: kind}
}

// resettable marks a stat counter that is cleared by writing 0.
func resettable(f Field) Field {
	f.Reset = true
	return f
}

func ctl(name string, kind Kind) Field {
	return Field{Name: name, Category: Control, Kind: kind}
}

// commonFields exist in every group of every v1 hierarchy.
var commonFields = plain(
	cfg("release_agent", KindString, StringValue("")),
	cfg("notify_on_release", KindInt, IntValue(0)),
	cfg("cgroup.clone_children", KindInt, IntValue(0)),
	ctl("tasks", KindList),
	ctl("cgroup.procs", KindList),
	ctl("cgroup.event_control", KindString),
)

var (
	registryMu sync.Mutex
	registry   map[string]*Controller
)

func controllers() map[string]*Controller {
	registryMu.Lock()
	defer registryMu.Unlock()
	if registry == nil {
		registry = buildRegistry(loadHostDefaults())
	}
	return registry
}

// Lookup returns the descriptor of a kernel controller.
func Lookup(name string) (*Controller, bool) {
	c, ok := controllers()[name]
	return c, ok
}

// Names lists the known kernel controllers.
func Names() []string {
	reg := controllers()
	names := make([]string, 0, len(reg))
	for n := range reg {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ReloadHostDefaults drops the cached descriptors so that host-derived
// defaults (online CPUs and memory nodes, RT scheduling budget) are read
// again on next use.
func ReloadHostDefaults() {
	registryMu.Lock()
	registry = nil
	registryMu.Unlock()
}

// namedController describes a custom "name=X" hierarchy.
func namedController(name string) *Controller {
	return &Controller{Name: name, Named: true}
}
