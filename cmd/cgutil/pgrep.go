//go:build linux

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ja7ad/cgutils/pkg/system/cgroup"
	"github.com/ja7ad/cgutils/pkg/system/proc"
)

type pgrepOptions struct {
	controller string
	cmdline    bool
	showName   bool
	ignoreCase bool
}

func newPgrepCmd() *cobra.Command {
	var o pgrepOptions
	cmd := &cobra.Command{
		Use:   "pgrep [flags] <name>",
		Short: "Find processes by name and print the group each one belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPgrep(&o, args[0], os.Stdout)
		},
	}
	cmd.Flags().StringVarP(&o.controller, "controller", "o", "cpu", "controller or named hierarchy")
	cmd.Flags().BoolVarP(&o.cmdline, "cmdline", "f", false, "match against the full command line")
	cmd.Flags().BoolVarP(&o.showName, "show-name", "l", false, "print the process name next to the PID")
	cmd.Flags().BoolVarP(&o.ignoreCase, "ignore-case", "i", false, "ignore case")
	return cmd
}

func runPgrep(o *pgrepOptions, pattern string, w io.Writer) error {
	_, root, err := scanTarget(o.controller)
	if err != nil {
		return err
	}
	if o.ignoreCase {
		pattern = strings.ToLower(pattern)
	}
	self := os.Getpid()

	cgroup.Walk(root, func(n *cgroup.Node) bool {
		for _, pid := range n.Pids {
			if pid == self {
				continue
			}
			p, err := proc.ReadProcess(pid)
			if err != nil {
				continue
			}
			if line, ok := pgrepMatch(o, p, pattern); ok {
				fmt.Fprintf(w, "%s: %s\n", n.Path, line)
			}
		}
		return true
	})
	return nil
}

// pgrepMatch tests a process against pattern, which is already lowered
// when matching ignores case, and returns the line to print.
func pgrepMatch(o *pgrepOptions, p *proc.Process, pattern string) (string, bool) {
	subject := p.Name
	if o.cmdline {
		subject = p.Cmdline
	}
	if o.ignoreCase {
		subject = strings.ToLower(subject)
	}
	if !strings.Contains(subject, pattern) {
		return "", false
	}
	line := strconv.Itoa(p.PID)
	if o.showName {
		if o.cmdline {
			line += " " + p.Cmdline
		} else {
			line += " " + p.Name
		}
	}
	return line, true
}
