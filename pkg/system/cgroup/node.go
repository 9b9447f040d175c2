//go:build linux

package cgroup

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// RootName is the display name of a hierarchy root.
const RootName = "<root>"

// mkdir creates a group directory. The kernel populates control files on
// its own; tests replace this to fabricate them.
var mkdir = os.Mkdir

// Node mirrors one group directory of a v1 hierarchy.
type Node struct {
	Controller *Controller
	MountPoint string
	AbsPath    string
	Path       string // relative to the mount, "/" for the root
	Name       string
	Depth      int
	Children   []*Node
	Pids       []int

	fields     []Field
	parentPath string

	current  Stats
	previous Stats
	delta    Stats
}

// NewNode builds the node for absPath, a directory under mountPoint, and
// takes its first snapshot. Filters restrict the config and stat files read.
func NewNode(ctrl *Controller, mountPoint, absPath string, filters ...string) (*Node, error) {
	mountPoint = filepath.Clean(mountPoint)
	absPath = filepath.Clean(absPath)
	rel, err := filepath.Rel(mountPoint, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return nil, errors.Errorf("cgroup: %s is outside %s", absPath, mountPoint)
	}
	fi, err := os.Stat(absPath)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", absPath)
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("cgroup: %s is not a directory", absPath)
	}

	n := &Node{
		Controller: ctrl,
		MountPoint: mountPoint,
		AbsPath:    absPath,
		Path:       "/",
		Name:       RootName,
	}
	if rel != "." {
		n.Path = "/" + rel
		n.Name = filepath.Base(rel)
		n.Depth = strings.Count(rel, "/") + 1
		n.parentPath = filepath.Dir(absPath)
	}
	if err := n.ApplyFilters(filters...); err != nil {
		return nil, err
	}

	if n.Pids, err = n.readPids(); err != nil {
		return nil, err
	}
	if n.current, err = n.Stats(); err != nil {
		return nil, err
	}
	n.delta = n.current.Delta(nil)
	return n, nil
}

// Open resolves an arbitrary group directory to the hierarchy mounted at
// the longest matching prefix. Co-mounted hierarchies resolve to their
// first controller.
func Open(mounts *MountTable, absPath string, filters ...string) (*Node, error) {
	m, ok := mounts.Owner(absPath)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "no hierarchy contains %s", absPath)
	}
	name := m.Name
	if len(m.Subsystems) > 0 {
		name = m.Subsystems[0]
	}
	ctrl, mountPoint, err := mounts.Resolve(name)
	if err != nil {
		return nil, err
	}
	return NewNode(ctrl, mountPoint, absPath, filters...)
}

func (n *Node) String() string { return n.Controller.Name + ":" + n.Path }

// IsRoot reports whether the node is the hierarchy root.
func (n *Node) IsRoot() bool { return n.Depth == 0 }

// Exists reports whether the directory is still present.
func (n *Node) Exists() bool {
	_, err := os.Stat(n.AbsPath)
	return err == nil
}

func (n *Node) schema() []Field {
	out := make([]Field, 0, len(n.Controller.Fields)+len(commonFields))
	out = append(out, n.Controller.Fields...)
	return append(out, commonFields...)
}

func (n *Node) field(name string) (Field, bool) {
	for _, f := range n.schema() {
		if f.Name == name || f.File == name {
			return f, true
		}
	}
	return Field{}, false
}

// ApplyFilters restricts reads to the named fields. Names may be given
// with or without the controller prefix. No names lifts the restriction.
func (n *Node) ApplyFilters(names ...string) error {
	if len(names) == 0 {
		n.fields = n.schema()
		return nil
	}
	seen := map[string]bool{}
	var fields []Field
	for _, name := range names {
		f, ok := n.field(name)
		if !ok {
			return errors.Wrapf(ErrUnknownControlFile, "%s has no %q", n.Controller.Name, name)
		}
		if seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		fields = append(fields, f)
	}
	n.fields = fields
	return nil
}

// read loads every field of one category. Missing and unsupported files
// are skipped, as are files the kernel filled with something unparsable.
func (n *Node) read(cat Category) (Stats, error) {
	out := Stats{}
	for _, f := range n.fields {
		if f.Category != cat {
			continue
		}
		path := filepath.Join(n.AbsPath, f.File)
		text, err := readFile(path)
		if err != nil {
			if isMissing(err) || isUnsupported(err) {
				continue
			}
			return nil, errors.Wrapf(err, "read %s", path)
		}
		v, err := Parse(f.Kind, text)
		if err != nil {
			var fe *FormatError
			if errors.As(err, &fe) {
				fe.Path = path
			}
			log.WithField("path", path).WithError(err).Warn("skipping unparsable control file")
			continue
		}
		out[f.Name] = v
	}
	return out, nil
}

// Configs reads the current value of every config field.
func (n *Node) Configs() (Stats, error) { return n.read(Config) }

// DefaultConfigs returns the defaults of the config fields in the active
// filter set.
func (n *Node) DefaultConfigs() Stats {
	out := Stats{}
	for _, f := range n.fields {
		if f.Category == Config {
			out[f.Name] = f.Default
		}
	}
	return out
}

// Stats reads every stat field and adds the controller's derived values.
func (n *Node) Stats() (Stats, error) {
	s, err := n.read(Stat)
	if err != nil {
		return nil, err
	}
	if n.Controller.Derive != nil {
		n.Controller.Derive(s)
	}
	return s, nil
}

// Current is the snapshot taken by the last Update (or NewNode).
func (n *Node) Current() Stats { return n.current }

// Previous is the snapshot before Current; nil until the first Update.
func (n *Node) Previous() Stats { return n.previous }

// Delta is Current minus Previous. Every entry is undefined until the
// first Update.
func (n *Node) Delta() Stats { return n.delta }

// Update re-reads membership and stats and recomputes the delta. It fails
// with an error matching fs.ErrNotExist once the group is removed.
func (n *Node) Update() error {
	if _, err := os.Stat(n.AbsPath); err != nil {
		return errors.Wrapf(err, "stat %s", n.AbsPath)
	}
	pids, err := n.readPids()
	if err != nil {
		return err
	}
	cur, err := n.Stats()
	if err != nil {
		return err
	}
	n.Pids = pids
	n.previous = n.current
	n.current = cur
	n.delta = cur.Delta(n.previous)
	return nil
}

func (n *Node) readPids() ([]int, error) {
	for _, name := range []string{"cgroup.procs", "tasks"} {
		path := filepath.Join(n.AbsPath, name)
		text, err := readFile(path)
		if err != nil {
			if isMissing(err) {
				continue
			}
			return nil, errors.Wrapf(err, "read %s", path)
		}
		pids, err := parsePids(text)
		if err != nil {
			var fe *FormatError
			if errors.As(err, &fe) {
				fe.Path = path
			}
			log.WithField("path", path).WithError(err).Warn("skipping unparsable pid entries")
		}
		return pids, nil
	}
	return []int{}, nil
}

func (n *Node) writable(name string, cat Category) (Field, error) {
	f, ok := n.field(name)
	if !ok {
		return Field{}, errors.Wrapf(ErrUnknownControlFile, "%s has no %q", n.Controller.Name, name)
	}
	if f.Category != cat && !(cat == Control && f.Reset) {
		return Field{}, errors.Wrapf(ErrUnknownControlFile, "%s is a %s file, not %s", f.File, f.Category, cat)
	}
	return f, nil
}

// SetConfig writes a config field.
func (n *Node) SetConfig(name string, v Value) error {
	f, err := n.writable(name, Config)
	if err != nil {
		return err
	}
	chunks, err := Encode(v)
	if err != nil {
		return err
	}
	return writeChunks(filepath.Join(n.AbsPath, f.File), chunks)
}

// Control performs a write-only action such as memory.force_empty, or
// resets a counter such as cpuacct.usage.
func (n *Node) Control(name string, v Value) error {
	f, err := n.writable(name, Control)
	if err != nil {
		return err
	}
	chunks, err := Encode(v)
	if err != nil {
		return err
	}
	path := filepath.Join(n.AbsPath, f.File)
	for _, c := range chunks {
		if err := appendString(path, c); err != nil {
			return err
		}
	}
	return nil
}

// Attach moves pid into this group.
func (n *Node) Attach(pid int) error { return writePid(n.AbsPath, pid) }

// Parent opens the parent group.
func (n *Node) Parent() (*Node, error) {
	if n.IsRoot() {
		return nil, errors.Wrapf(ErrRootOperation, "%s has no parent", n)
	}
	return NewNode(n.Controller, n.MountPoint, n.parentPath)
}

// Mkdir creates a child group. With inherit, the parameters the controller
// requires from the parent (cpuset.cpus and cpuset.mems) are copied into
// the child before it is returned.
func (n *Node) Mkdir(name string, inherit bool) (*Node, error) {
	if name == "" || strings.Contains(name, "/") || name == "." || name == ".." {
		return nil, errors.Errorf("cgroup: invalid group name %q", name)
	}
	abs := filepath.Join(n.AbsPath, name)
	if err := mkdir(abs, 0o755); err != nil {
		return nil, errors.Wrapf(err, "mkdir %s", abs)
	}

	if inherit && n.Controller.Inherit != nil {
		if err := n.inheritInto(abs); err != nil {
			// a child missing its inherited parameters cannot take tasks
			if rerr := rmdir(abs); rerr != nil {
				log.WithField("path", abs).WithError(rerr).Warn("cannot remove half-created group")
			}
			return nil, err
		}
	}
	return NewNode(n.Controller, n.MountPoint, abs)
}

func (n *Node) inheritInto(abs string) error {
	cfgs, err := n.Configs()
	if err != nil {
		return err
	}
	params := n.Controller.Inherit(cfgs)
	child := &Node{Controller: n.Controller, AbsPath: abs}
	child.fields = child.schema()
	for _, k := range params.Names() {
		if err := child.SetConfig(k, params[k]); err != nil {
			return errors.Wrapf(err, "inherit %s", k)
		}
	}
	return nil
}

// Rmdir moves every process of this group into target, or into the parent
// when target is nil, and removes the directory. Processes that exit
// during the migration are ignored.
func (n *Node) Rmdir(target *Node) error {
	if n.IsRoot() {
		return errors.Wrapf(ErrRootOperation, "refusing to remove %s", n)
	}
	if target == nil {
		p, err := n.Parent()
		if err != nil {
			return err
		}
		target = p
	}

	pids, err := n.readPids()
	if err != nil {
		return err
	}
	sort.Ints(pids)
	for _, pid := range pids {
		if err := target.Attach(pid); err != nil {
			if errors.Is(err, unix.ESRCH) {
				continue
			}
			return errors.Wrapf(err, "migrate %d to %s", pid, target)
		}
	}
	if err := rmdir(n.AbsPath); err != nil {
		return errors.Wrapf(err, "rmdir %s", n.AbsPath)
	}
	log.WithFields(log.Fields{"path": n.AbsPath, "migrated": len(pids)}).Debug("removed group")
	return nil
}
