//go:build linux

package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"

	"github.com/ja7ad/cgutils/pkg/system/cgroup"
	"github.com/ja7ad/cgutils/pkg/types"
)

// valueString renders a value on one line for the text outputs.
func valueString(v cgroup.Value) string {
	switch v.Kind() {
	case cgroup.KindInt:
		n, _ := v.Int()
		return strconv.FormatInt(n, 10)
	case cgroup.KindString:
		s, _ := v.Str()
		return s
	case cgroup.KindList:
		return strings.Join(v.List(), ", ")
	case cgroup.KindPercpu:
		cpus := v.Percpu()
		out := make([]string, len(cpus))
		for i, c := range cpus {
			out[i] = strconv.FormatInt(c, 10)
		}
		return strings.Join(out, ", ")
	case cgroup.KindStat, cgroup.KindDeviceStat, cgroup.KindNumaStat:
		keys := v.Keys()
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			e, _ := v.Get(k)
			out = append(out, k+"="+valueString(e))
		}
		return strings.Join(out, " ")
	}
	return ""
}

// configString renders a config for the configs view. Byte limits are
// humanized and blank while unlimited; net_cls.classid shows its tc handle.
func configString(name string, v, def cgroup.Value) string {
	n, isInt := v.Int()
	switch {
	case isInt && strings.Contains(name, "in_bytes"):
		if v.Equal(def) {
			return ""
		}
		return types.Bytes(n).Humanized()
	case isInt && name == "classid":
		return fmt.Sprintf("%#x (%s)", n, netlink.HandleStr(uint32(n)))
	}
	return valueString(v)
}

// skipControllers are never touched by the apply-to-all variants of
// mkdir and rmdir.
var skipControllers = map[string]bool{"perf_event": true, "debug": true}

// counterparts maps a group directory onto the same relative path in every
// enabled hierarchy. Co-mounted controllers share one entry.
func counterparts(mounts *cgroup.MountTable, absPath string) ([]string, error) {
	owner, ok := mounts.Owner(absPath)
	if !ok {
		return nil, errors.Wrapf(cgroup.ErrNotFound, "no hierarchy contains %s", absPath)
	}
	rel, err := filepath.Rel(owner.Path, filepath.Clean(absPath))
	if err != nil {
		return nil, errors.Wrapf(err, "relative path of %s", absPath)
	}

	seen := map[string]bool{}
	var out []string
	for _, name := range mounts.Enabled() {
		if skipControllers[name] {
			continue
		}
		m, ok := mounts.Mount(name)
		if !ok || seen[m.Path] {
			continue
		}
		seen[m.Path] = true
		out = append(out, filepath.Join(m.Path, rel))
	}
	return out, nil
}
