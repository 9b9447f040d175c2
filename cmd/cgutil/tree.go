//go:build linux

package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ja7ad/cgutils/pkg/system/cgroup"
	"github.com/ja7ad/cgutils/pkg/system/proc"
)

type treeOptions struct {
	controller    string
	hideEmpty     bool
	showKthread   bool
	color         bool
	showPid       bool
	showNprocs    bool
	showProcs     bool
	showAutogroup bool
}

func newTreeCmd() *cobra.Command {
	var o treeOptions
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show the group hierarchy, optionally with its processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTree(&o, os.Stdout)
		},
	}
	cmd.Flags().StringVarP(&o.controller, "controller", "o", "cpu", "controller or named hierarchy")
	cmd.Flags().BoolVarP(&o.hideEmpty, "hide-empty", "e", false, "hide groups without processes or children")
	cmd.Flags().BoolVarP(&o.showKthread, "show-kthread", "k", false, "show kernel threads")
	cmd.Flags().BoolVarP(&o.color, "color", "c", false, "colorize output")
	cmd.Flags().BoolVarP(&o.showPid, "show-pid", "i", false, "show PIDs")
	cmd.Flags().BoolVarP(&o.showNprocs, "show-nprocs", "n", false, "show the number of processes of each group")
	cmd.Flags().BoolVarP(&o.showProcs, "show-procs", "p", false, "show the processes of each group")
	cmd.Flags().BoolVarP(&o.showAutogroup, "show-autogroup", "a", false, "group root processes by scheduler autogroup")
	return cmd
}

const (
	ansiReset     = "\033[0m"
	ansiRed       = "\033[31m"
	ansiGreen     = "\033[32m"
	ansiBold      = "\033[1m"
	ansiLightBlue = "\033[95m"
	ansiUnderline = "\033[4m"
	ansiBlink     = "\033[5m"
)

func paint(s string, codes ...string) string {
	return strings.Join(codes, "") + s + ansiReset
}

// treeItem is one printed line with its children.
type treeItem struct {
	label    string
	children []*treeItem
}

func runTree(o *treeOptions, w io.Writer) error {
	if o.showAutogroup && o.controller != "cpu" {
		return errors.Errorf("autogroup is meaningless for the %s controller", o.controller)
	}
	_, root, err := scanTarget(o.controller)
	if err != nil {
		return err
	}
	printTree(w, buildGroupItem(o, root), nil)
	return nil
}

func buildGroupItem(o *treeOptions, n *cgroup.Node) *treeItem {
	label := n.Name
	if o.color {
		label = paint(label, ansiBold, ansiRed)
	}
	if o.showNprocs {
		label += fmt.Sprintf("(%d)", len(n.Pids))
	}
	item := &treeItem{label: label}

	for _, c := range n.Children {
		if o.hideEmpty && len(c.Children) == 0 && len(c.Pids) == 0 {
			continue
		}
		item.children = append(item.children, buildGroupItem(o, c))
	}
	if !o.showProcs {
		return item
	}
	if o.showAutogroup && n.IsRoot() {
		item.children = append(item.children, autogroupItems(o, n.Pids)...)
	} else {
		item.children = append(item.children, processItems(o, n.Pids)...)
	}
	return item
}

func readProcesses(pids []int) []*proc.Process {
	out := make([]*proc.Process, 0, len(pids))
	for _, pid := range pids {
		p, err := proc.ReadProcess(pid)
		if err != nil {
			log.WithField("pid", pid).WithError(err).Debug("process vanished")
			continue
		}
		out = append(out, p)
	}
	return out
}

// processItems arranges the processes of one group by parentage. Processes
// whose parent is outside the group become top-level entries.
func processItems(o *treeOptions, pids []int) []*treeItem {
	procs := readProcesses(pids)
	inGroup := make(map[int]bool, len(procs))
	children := map[int][]*proc.Process{}
	for _, p := range procs {
		inGroup[p.PID] = true
		children[p.PPID] = append(children[p.PPID], p)
	}
	var tops []*proc.Process
	for _, p := range procs {
		if !inGroup[p.PPID] {
			tops = append(tops, p)
		}
	}
	if len(tops) == 0 {
		tops = procs
	}

	var build func(ps []*proc.Process) []*treeItem
	build = func(ps []*proc.Process) []*treeItem {
		var out []*treeItem
		for _, p := range ps {
			if p.IsKthread() && !o.showKthread {
				continue
			}
			it := &treeItem{label: processLabel(o, p)}
			it.children = build(children[p.PID])
			out = append(out, it)
		}
		return out
	}
	return build(tops)
}

func processLabel(o *treeOptions, p *proc.Process) string {
	var s string
	if p.IsKthread() {
		s = "[" + p.Name + "]"
	} else {
		s = p.Name
		if o.color {
			if p.IsGroupLeader() {
				s = paint(s, ansiLightBlue)
			}
			if p.IsSessionLeader() {
				s = paint(s, ansiUnderline)
			}
			if p.IsRunning() {
				s = paint(s, ansiBlink)
			}
		}
	}
	if o.showPid {
		s += fmt.Sprintf("(%d)", p.PID)
	}
	return s
}

// autogroupItems groups processes by scheduler autogroup. Kernel threads
// have none and are appended last when shown.
func autogroupItems(o *treeOptions, pids []int) []*treeItem {
	groups := map[string][]int{}
	for _, p := range readProcesses(pids) {
		groups[p.Autogroup] = append(groups[p.Autogroup], p.PID)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []*treeItem
	for _, name := range names {
		label := name
		if o.color {
			label = paint(label, ansiBold, ansiGreen)
		}
		if o.showNprocs {
			label += fmt.Sprintf("(%d)", len(groups[name]))
		}
		out = append(out, &treeItem{label: label, children: processItems(o, groups[name])})
	}
	if kthreads, ok := groups[""]; ok && o.showKthread {
		out = append(out, processItems(o, kthreads)...)
	}
	return out
}

const treeIndentSize = 4

// treeIndent draws the connector column for an item. last records, per
// ancestor level, whether that level's item was the last of its siblings.
func treeIndent(last []bool) string {
	var b strings.Builder
	pad := strings.Repeat(" ", treeIndentSize-1)
	for i, l := range last {
		switch {
		case i == len(last)-1 && l:
			b.WriteString(pad + "`")
		case i == len(last)-1:
			b.WriteString(pad + "+")
		case l:
			b.WriteString(pad + " ")
		default:
			b.WriteString(pad + "|")
		}
	}
	return b.String()
}

func printTree(w io.Writer, it *treeItem, last []bool) {
	fmt.Fprintln(w, treeIndent(last)+it.label)
	for i, c := range it.children {
		printTree(w, c, append(append([]bool(nil), last...), i == len(it.children)-1))
	}
}
