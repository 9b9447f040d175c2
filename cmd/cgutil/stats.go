//go:build linux

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ja7ad/cgutils/pkg/system/cgroup"
	"github.com/ja7ad/cgutils/pkg/system/proc"
	"github.com/ja7ad/cgutils/pkg/types"
)

type statsOptions struct {
	controller string
	hideEmpty  bool
	showZero   bool
	out        outputFlags
}

func newStatsCmd() *cobra.Command {
	var o statsOptions
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the statistics of every group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(&o)
		},
	}
	cmd.Flags().StringVarP(&o.controller, "controller", "o", "cpu", "controller or named hierarchy")
	cmd.Flags().BoolVarP(&o.hideEmpty, "hide-empty", "e", false, "hide groups without processes")
	cmd.Flags().BoolVarP(&o.showZero, "show-zero", "z", false, "show zero values")
	o.out.register(cmd)
	return cmd
}

func runStats(o *statsOptions) error {
	_, root, err := scanTarget(o.controller)
	if err != nil {
		return err
	}

	groups := collectStats(root, o.hideEmpty)

	if o.out.structured() {
		m := make(map[string]cgroup.Stats, len(groups))
		for _, g := range groups {
			m[g.path] = g.stats
		}
		return o.out.dump(os.Stdout, m)
	}

	devices, err := proc.BlockDevices()
	if err != nil {
		log.WithError(err).Debug("block device names unavailable")
	}
	p := statsPrinter{w: os.Stdout, showZero: o.showZero, devices: devices, controller: root.Controller.Name}
	for _, g := range groups {
		p.group(g.path, g.stats)
	}
	return nil
}

type groupStats struct {
	path  string
	stats cgroup.Stats
}

// collectStats reads the stats of every group in walk order. A group that
// cannot be read is logged and left out.
func collectStats(root *cgroup.Node, hideEmpty bool) []groupStats {
	var groups []groupStats
	cgroup.Walk(root, func(n *cgroup.Node) bool {
		if hideEmpty && len(n.Pids) == 0 {
			return true
		}
		s, err := n.Stats()
		if err != nil {
			log.WithField("group", n.String()).WithError(err).Warn("skipping unreadable group")
			return true
		}
		groups = append(groups, groupStats{path: n.Path, stats: s})
		return true
	})
	return groups
}

const statsIndent = "    "

// statsPrinter writes nested stats as an indented listing. Zero leaves are
// omitted unless showZero, and so are maps left without any line.
type statsPrinter struct {
	w          io.Writer
	showZero   bool
	devices    map[string]string
	controller string
}

func (p statsPrinter) group(path string, s cgroup.Stats) {
	var b strings.Builder
	for _, name := range s.Names() {
		b.WriteString(p.value(name, s[name], 1))
	}
	if b.Len() > 0 {
		fmt.Fprintf(p.w, "%s:\n%s", path, b.String())
	}
}

func (p statsPrinter) value(name string, v cgroup.Value, depth int) string {
	indent := strings.Repeat(statsIndent, depth)
	switch v.Kind() {
	case cgroup.KindStat, cgroup.KindDeviceStat, cgroup.KindNumaStat:
		var b strings.Builder
		for _, k := range v.Keys() {
			e, _ := v.Get(k)
			label := k
			if dev, ok := p.devices[k]; ok && v.Kind() == cgroup.KindDeviceStat {
				label = k + " (" + dev + ")"
			}
			b.WriteString(p.value(label, e, depth+1))
		}
		if b.Len() == 0 {
			return ""
		}
		return fmt.Sprintf("%s%s:\n%s", indent, name, b.String())
	case cgroup.KindUndefined:
		return ""
	}
	if !p.showZero && v.IsZero() {
		return ""
	}
	text := valueString(v)
	if n, ok := v.Int(); ok && depth == 1 && p.controller == "cpuacct" && name == "usage" {
		text += " (" + types.Nanoseconds(n).String() + ")"
	}
	return fmt.Sprintf("%s%s=%s\n", indent, name, text)
}
