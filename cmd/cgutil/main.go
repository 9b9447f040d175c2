//go:build linux

package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ja7ad/cgutils/pkg/system/cgroup"
	"github.com/ja7ad/cgutils/pkg/system/proc"
)

var (
	procRoot string
	debug    bool
	logJSON  bool
)

// exitError carries a specific process exit status out of a command.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func main() {
	root := &cobra.Command{
		Use:   "cgutil",
		Short: "Inspect and monitor Linux cgroup v1 hierarchies",
		Long: `cgutil reads the cgroup v1 hierarchies mounted on this host and shows
their configuration, statistics, group trees and live resource usage.
It can also create and remove groups and wait for memory notifications.

Examples:
  cgutil configs -o memory
  cgutil stats -o cpuacct --json
  cgutil tree -o cpu -n -p
  cgutil top -b -n 3 -d 2s
  cgutil event /sys/fs/cgroup/memory/web/memory.usage_in_bytes +64M -t 30s`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	root.PersistentFlags().StringVar(&procRoot, "proc-root", procfs.DefaultMountPoint, "procfs mount point")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")

	root.AddCommand(
		newConfigsCmd(),
		newStatsCmd(),
		newTreeCmd(),
		newPgrepCmd(),
		newTopCmd(),
		newEventCmd(),
		newMkdirCmd(),
		newRmdirCmd(),
		newExporterCmd(),
	)

	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.msg != "" {
				fmt.Fprintln(os.Stderr, ee.msg)
			}
			os.Exit(ee.code)
		}
		log.Error(err.Error())
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	log.SetOutput(os.Stderr)
	if debug {
		log.SetLevel(log.DebugLevel)
	}
	if logJSON {
		log.SetFormatter(&log.JSONFormatter{})
	}
	proc.ProcRoot = procRoot

	v, _, err := cgroup.Detect(procRoot)
	if err != nil {
		return err
	}
	if !v.HasV1() {
		log.WithField("version", v.String()).Warn("no cgroup v1 hierarchy mounted")
	}
	return nil
}

func loadMounts() (*cgroup.MountTable, error) {
	return cgroup.LoadMounts(procRoot)
}

// scanTarget loads the mount table and scans one controller's hierarchy.
func scanTarget(controller string) (*cgroup.MountTable, *cgroup.Node, error) {
	mounts, err := loadMounts()
	if err != nil {
		return nil, nil, err
	}
	root, err := cgroup.Scan(mounts, controller)
	if err != nil {
		return nil, nil, err
	}
	return mounts, root, nil
}
