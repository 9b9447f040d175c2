//go:build linux

// Package cgroup reads and manipulates cgroup v1 hierarchies: typed
// control-file values, per-controller schemas, group nodes, tree scans and
// memory event notifications.
package cgroup

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

type Version int

const (
	Unsupported Version = iota // no cgroup mounts
	V1                         // legacy multi-hierarchy cgroup v1
	V2                         // unified cgroup v2 only
	Hybrid                     // both v1 and v2 present
)

func (v Version) String() string {
	switch v {
	case V1:
		return "cgroup v1"
	case V2:
		return "cgroup v2"
	case Hybrid:
		return "cgroup hybrid"
	default:
		return "unsupported"
	}
}

// HasV1 reports whether v1 hierarchies are available to this package.
func (v Version) HasV1() bool { return v == V1 || v == Hybrid }

// Detect returns the cgroup version of the host and a human-readable
// detail string, from <procRoot>/self/mountinfo.
func Detect(procRoot string) (Version, string, error) {
	f, err := os.Open(filepath.Join(procRoot, "self/mountinfo"))
	if err != nil {
		return Unsupported, "", errors.Wrap(err, "open mountinfo")
	}
	defer func() {
		_ = f.Close()
	}()

	var (
		v1Pts []string
		v2Pts []string
		sc    = bufio.NewScanner(f)
	)
	for sc.Scan() {
		line := sc.Text()
		// <fields> - <fstype> <source> <superopts>
		i := strings.LastIndex(line, " - ")
		if i < 0 {
			continue
		}
		tail := strings.Fields(line[i+3:])
		pre := strings.Fields(line[:i])
		if len(tail) < 1 || len(pre) < 5 {
			continue
		}
		switch tail[0] {
		case "cgroup2":
			v2Pts = append(v2Pts, pre[4])
		case "cgroup":
			v1Pts = append(v1Pts, pre[4])
		}
	}
	if err := sc.Err(); err != nil {
		return Unsupported, "", errors.Wrap(err, "scan mountinfo")
	}

	switch {
	case len(v1Pts) > 0 && len(v2Pts) > 0:
		return Hybrid, fmt.Sprintf("cgroup2 on %s; cgroup v1 on %s",
			strings.Join(v2Pts, ","), strings.Join(v1Pts, ",")), nil
	case len(v2Pts) > 0:
		return V2, "cgroup2 on " + strings.Join(v2Pts, ","), nil
	case len(v1Pts) > 0:
		return V1, "cgroup v1 on " + strings.Join(v1Pts, ","), nil
	default:
		return Unsupported, "no cgroup mounts found", nil
	}
}
