//go:build linux

package cgroup

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
)

// Subsystem is one row of /proc/cgroups.
type Subsystem struct {
	Name      string
	Hierarchy int
	Groups    int
	Enabled   bool
}

// Mount is one cgroup v1 hierarchy mount.
type Mount struct {
	Path       string
	Subsystems []string // kernel controllers co-mounted here, in option order
	Name       string   // custom hierarchy name from "name=X"
	// ReleaseAgent is the release_agent= mount option, if any.
	ReleaseAgent string
}

// MountTable joins /proc/cgroups with the cgroup entries of /proc/mounts.
type MountTable struct {
	subsystems map[string]Subsystem
	mounts     []*Mount
	byName     map[string]*Mount
}

// LoadMounts reads the tables under procRoot (normally "/proc").
func LoadMounts(procRoot string) (*MountTable, error) {
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "open procfs at %s", procRoot)
	}
	summaries, err := fs.CgroupSummarys()
	if err != nil {
		return nil, errors.Wrap(err, "read /proc/cgroups")
	}

	t := &MountTable{
		subsystems: make(map[string]Subsystem, len(summaries)),
		byName:     map[string]*Mount{},
	}
	for _, s := range summaries {
		t.subsystems[s.SubsysName] = Subsystem{
			Name:      s.SubsysName,
			Hierarchy: s.Hierarchy,
			Groups:    s.Cgroups,
			Enabled:   s.Enabled == 1,
		}
	}

	f, err := os.Open(filepath.Join(procRoot, "mounts"))
	if err != nil {
		return nil, errors.Wrap(err, "open mounts")
	}
	defer func() {
		_ = f.Close()
	}()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		// <source> <mountpoint> <fstype> <options> <dump> <pass>
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[2] != "cgroup" {
			continue
		}
		m := &Mount{Path: unescapeMount(fields[1])}
		for _, opt := range strings.Split(fields[3], ",") {
			switch {
			case strings.HasPrefix(opt, "name="):
				m.Name = strings.TrimPrefix(opt, "name=")
			case strings.HasPrefix(opt, "release_agent="):
				m.ReleaseAgent = strings.TrimPrefix(opt, "release_agent=")
			default:
				if _, ok := t.subsystems[opt]; ok {
					m.Subsystems = append(m.Subsystems, opt)
				}
			}
		}
		t.add(m)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scan mounts")
	}
	return t, nil
}

// add records a mount. A hierarchy mounted more than once keeps its first
// mount point.
func (t *MountTable) add(m *Mount) {
	keys := append([]string(nil), m.Subsystems...)
	if m.Name != "" {
		keys = append(keys, m.Name)
	}
	if len(keys) == 0 {
		return
	}
	added := false
	for _, k := range keys {
		if _, dup := t.byName[k]; dup {
			continue
		}
		t.byName[k] = m
		added = true
	}
	if added {
		t.mounts = append(t.mounts, m)
	}
}

// unescapeMount decodes the octal escapes (\040 for space) of /proc/mounts.
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Subsystem returns the /proc/cgroups row of a kernel controller.
func (t *MountTable) Subsystem(name string) (Subsystem, bool) {
	s, ok := t.subsystems[name]
	return s, ok
}

// Mount returns the mount of a controller or custom hierarchy name.
func (t *MountTable) Mount(name string) (*Mount, bool) {
	m, ok := t.byName[name]
	return m, ok
}

// Mounts lists every hierarchy mount in /proc/mounts order.
func (t *MountTable) Mounts() []*Mount {
	return append([]*Mount(nil), t.mounts...)
}

// Enabled lists the kernel controllers that are enabled and mounted.
func (t *MountTable) Enabled() []string {
	var out []string
	for name, s := range t.subsystems {
		if !s.Enabled {
			continue
		}
		if _, ok := t.byName[name]; ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Resolve returns the descriptor and mount point of a controller or custom
// hierarchy. Unknown names fail with ErrNotFound, known ones that cannot be
// used with an *UnavailableError.
func (t *MountTable) Resolve(name string) (*Controller, string, error) {
	s, known := t.subsystems[name]
	if !known {
		if m, ok := t.byName[name]; ok && m.Name == name {
			return namedController(name), m.Path, nil
		}
		return nil, "", errors.Wrap(ErrNotFound, name)
	}
	if !s.Enabled {
		return nil, "", &UnavailableError{Controller: name, Reason: ErrDisabled}
	}
	m, ok := t.byName[name]
	if !ok {
		return nil, "", &UnavailableError{Controller: name, Reason: ErrUnmounted}
	}
	ctrl, ok := Lookup(name)
	if !ok {
		ctrl = &Controller{Name: name}
	}
	return ctrl, m.Path, nil
}

// Owner returns the mount whose path is the longest prefix of absPath.
func (t *MountTable) Owner(absPath string) (*Mount, bool) {
	absPath = filepath.Clean(absPath)
	var best *Mount
	for _, m := range t.mounts {
		if absPath != m.Path && !strings.HasPrefix(absPath, m.Path+"/") {
			continue
		}
		if best == nil || len(m.Path) > len(best.Path) {
			best = m
		}
	}
	return best, best != nil
}
