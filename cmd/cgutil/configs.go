//go:build linux

package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ja7ad/cgutils/pkg/system/cgroup"
	"github.com/ja7ad/cgutils/pkg/system/proc"
	"github.com/ja7ad/cgutils/pkg/system/util"
	"github.com/ja7ad/cgutils/pkg/types"
)

type configsOptions struct {
	controller  string
	showDefault bool
	showRate    bool
	hideEmpty   bool
	out         outputFlags
}

// memoryRated configs are shown relative to host memory; the others
// relative to their default.
var (
	memoryRated = map[string]bool{
		"limit_in_bytes":          true,
		"soft_limit_in_bytes":     true,
		"memsw.limit_in_bytes":    true,
		"kmem.tcp.limit_in_bytes": true,
	}
	defaultRated = map[string]bool{
		"swappiness": true,
		"shares":     true,
		"weight":     true,
	}
)

func newConfigsCmd() *cobra.Command {
	var o configsOptions
	cmd := &cobra.Command{
		Use:   "configs",
		Short: "Show group configs that differ from the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigs(&o)
		},
	}
	cmd.Flags().StringVarP(&o.controller, "controller", "o", "cpu", "controller or named hierarchy")
	cmd.Flags().BoolVarP(&o.showDefault, "show-default", "d", false, "show every config including default values")
	cmd.Flags().BoolVarP(&o.showRate, "show-rate", "r", false, "show values as a ratio of host memory or the default")
	cmd.Flags().BoolVarP(&o.hideEmpty, "hide-empty", "e", false, "hide groups without processes")
	o.out.register(cmd)
	return cmd
}

type groupConfigs struct {
	path     string
	configs  cgroup.Stats
	defaults cgroup.Stats
}

func runConfigs(o *configsOptions) error {
	_, root, err := scanTarget(o.controller)
	if err != nil {
		return err
	}

	groups := collectConfigs(root, o.hideEmpty, o.showDefault)

	if o.out.structured() {
		m := make(map[string]cgroup.Stats, len(groups))
		for _, g := range groups {
			m[g.path] = g.configs
		}
		return o.out.dump(os.Stdout, m)
	}

	var memTotal int64
	if o.showRate {
		if memTotal, err = proc.MemTotal(); err != nil {
			log.WithError(err).Warn("memory rates unavailable")
		}
	}
	for _, g := range groups {
		fmt.Println(g.path)
		for _, name := range g.configs.Names() {
			v := g.configs[name]
			line := fmt.Sprintf("\t%s=%s", name, configString(name, v, g.defaults[name]))
			if o.showRate {
				if r, ok := configRate(name, v, g.defaults[name], memTotal); ok {
					line += " (" + r.String() + ")"
				}
			}
			fmt.Println(line)
		}
	}
	return nil
}

// collectConfigs reads the configs of every group in walk order, keeping
// only changed values unless showDefault. A group that cannot be read is
// logged and left out.
func collectConfigs(root *cgroup.Node, hideEmpty, showDefault bool) []groupConfigs {
	var groups []groupConfigs
	cgroup.Walk(root, func(n *cgroup.Node) bool {
		log.WithField("group", n.String()).Debug("configs")
		if hideEmpty && len(n.Pids) == 0 {
			return true
		}
		cfgs, err := n.Configs()
		if err != nil {
			log.WithField("group", n.String()).WithError(err).Warn("skipping unreadable group")
			return true
		}
		defs := n.DefaultConfigs()
		if !showDefault {
			cfgs = changed(cfgs, defs)
		}
		if len(cfgs) > 0 || showDefault {
			groups = append(groups, groupConfigs{path: n.Path, configs: cfgs, defaults: defs})
		}
		return true
	})
	return groups
}

// changed keeps the configs whose value differs from the default. Configs
// without a known default are kept.
func changed(cfgs, defs cgroup.Stats) cgroup.Stats {
	out := cgroup.Stats{}
	for name, v := range cfgs {
		if d, ok := defs[name]; ok && v.Equal(d) {
			continue
		}
		out[name] = v
	}
	return out
}

func configRate(name string, v, def cgroup.Value, memTotal int64) (types.Percent, bool) {
	n, ok := v.Int()
	if !ok {
		return 0, false
	}
	switch {
	case memoryRated[name]:
		if memTotal <= 0 {
			return 0, false
		}
		return types.Percent(util.SafeDiv(float64(n), float64(memTotal)) * 100), true
	case defaultRated[name]:
		d, ok := def.Int()
		if !ok || d == 0 {
			return 0, false
		}
		return types.Percent(util.SafeDiv(float64(n), float64(d)) * 100), true
	}
	return 0, false
}
