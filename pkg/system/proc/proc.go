//go:build linux

package proc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
)

// ProcRoot is where procfs is mounted. Tests point it at a fabricated tree.
var ProcRoot = procfs.DefaultMountPoint

func newFS() (procfs.FS, error) {
	fs, err := procfs.NewFS(ProcRoot)
	if err != nil {
		return procfs.FS{}, errors.Wrapf(err, "open procfs at %s", ProcRoot)
	}
	return fs, nil
}

// Exists reports whether a given PID currently exists in /proc.
func Exists(pid int) bool {
	_, err := os.Stat(filepath.Join(ProcRoot, strconv.Itoa(pid)))
	return err == nil
}

// Process is the subset of /proc/<pid> the tree and pgrep views need.
type Process struct {
	PID  int
	PPID int
	PGID int
	SID  int

	// Name is the short command name. For user processes it is derived from
	// the command line so interpreters show the script they run.
	Name    string
	State   string
	Cmdline string

	// Autogroup is the scheduler autogroup label ("autogroup-324"), empty
	// for kernel threads.
	Autogroup string
}

// ReadProcess loads /proc/<pid>/{stat,cmdline,autogroup}.
func ReadProcess(pid int) (*Process, error) {
	fs, err := newFS()
	if err != nil {
		return nil, err
	}
	p, err := fs.Proc(pid)
	if err != nil {
		return nil, errors.Wrapf(err, "proc %d", pid)
	}
	st, err := p.Stat()
	if err != nil {
		return nil, fmt.Errorf("proc %d: %w: %w", pid, ErrNoStat, err)
	}

	pr := &Process{
		PID:   pid,
		PPID:  st.PPID,
		PGID:  st.PGRP,
		SID:   st.Session,
		Name:  st.Comm,
		State: st.State,
	}
	pr.Cmdline = pr.Name
	if !pr.IsKthread() {
		if args, err := p.CmdLine(); err == nil && len(args) > 0 {
			if name := commandName(args); name != "" {
				pr.Name = name
			}
			pr.Cmdline = strings.Join(args, " ")
		}
	}

	if b, err := os.ReadFile(filepath.Join(ProcRoot, strconv.Itoa(pid), "autogroup")); err == nil {
		// "/autogroup-324 nice 0"
		if fs := strings.Fields(string(b)); len(fs) > 0 {
			pr.Autogroup = strings.TrimPrefix(fs[0], "/")
		}
	}
	return pr, nil
}

// IsKthread reports kernel threads, which have neither process group nor session.
func (p *Process) IsKthread() bool { return p.PGID == 0 && p.SID == 0 }

func (p *Process) IsGroupLeader() bool   { return p.PID == p.PGID }
func (p *Process) IsSessionLeader() bool { return p.PID == p.SID }
func (p *Process) IsRunning() bool       { return p.State == "R" }

func (p *Process) String() string { return fmt.Sprintf("%s(%d)", p.Name, p.PID) }

var interpreters = []string{"python", "ruby", "perl"}

// commandName derives a display name from argv. Processes that rewrote
// their argv into a single string (setproctitle) are split on spaces.
func commandName(args []string) string {
	var argv []string
	for _, a := range args {
		if a != "" {
			argv = append(argv, a)
		}
	}
	if len(argv) == 1 && strings.Contains(argv[0], " ") {
		argv = strings.Fields(argv[0])
	}
	if len(argv) == 0 {
		return ""
	}

	name := argv[0]
	if strings.Contains(name, " ") {
		name = strings.Fields(name)[0]
	}
	if strings.HasPrefix(name, "/") {
		name = filepath.Base(name)
	}
	name = strings.TrimRight(name, ":")

	if len(argv) >= 2 {
		for _, in := range interpreters {
			if strings.Contains(name, in) {
				return filepath.Base(strings.Join(argv[:2], " "))
			}
		}
	}
	return name
}
