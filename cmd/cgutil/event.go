//go:build linux

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ja7ad/cgutils/pkg/system/cgroup"
	"github.com/ja7ad/cgutils/pkg/system/util"
	"github.com/ja7ad/cgutils/pkg/types"
)

const (
	exitTimeout = 2
	exitRemoved = 1
)

type eventOptions struct {
	timeout time.Duration
	verbose bool
}

func newEventCmd() *cobra.Command {
	var o eventOptions
	cmd := &cobra.Command{
		Use:   "event [flags] <target_file> [<argument>]",
		Short: "Wait for a memory notification of a group",
		Long: `event registers a notification on a memory control file and waits for it.

  memory.usage_in_bytes, memory.memsw.usage_in_bytes
      take a threshold in bytes: 100M, or +10M / -10M relative to the current usage
  memory.oom_control
      takes no argument
  memory.pressure_level
      takes low, medium or critical

The exit status is 0 when the event fired, 2 on timeout and 1 when the
group was removed while waiting.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := ""
			if len(args) > 1 {
				arg = args[1]
			}
			return runEvent(cmd.Context(), &o, args[0], arg)
		},
	}
	cmd.Flags().DurationVarP(&o.timeout, "timeout", "t", 0, "give up after this long (0 = wait forever)")
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "print memory usage before and after")
	return cmd
}

func runEvent(ctx context.Context, o *eventOptions, targetFile, arg string) error {
	if _, err := os.Stat(targetFile); err != nil {
		return errors.Wrap(err, "target file")
	}
	target := filepath.Base(targetFile)

	mounts, err := loadMounts()
	if err != nil {
		return err
	}
	node, err := cgroup.Open(mounts, filepath.Dir(targetFile))
	if err != nil {
		return err
	}

	if strings.HasSuffix(target, "usage_in_bytes") {
		if arg == "" {
			return errors.Errorf("%s needs a threshold", target)
		}
		cur, _ := node.Current().Int(strings.TrimPrefix(target, "memory."))
		threshold, err := util.ResolveThreshold(arg, cur)
		if err != nil {
			return err
		}
		if o.verbose {
			fmt.Printf("Threshold: %d (%s)\n", threshold, types.Bytes(threshold).Humanized())
		}
		arg = strconv.FormatInt(threshold, 10)
	}

	l, err := cgroup.NewEventListener(node, target)
	if err != nil {
		return err
	}
	defer l.Close()
	if err := l.Register(arg); err != nil {
		return err
	}

	if o.verbose {
		showMemoryUsage("Before", node)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	n, err := l.Wait(ctx)
	timedOut := errors.Is(err, context.DeadlineExceeded)
	if err != nil && !timedOut {
		return err
	}
	log.WithFields(log.Fields{"target": target, "count": n}).Debug("event delivered")

	if !node.Exists() {
		return &exitError{code: exitRemoved, msg: "The cgroup seems to have been removed."}
	}
	if o.verbose {
		if err := node.Update(); err == nil {
			showMemoryUsage("After", node)
		}
	}
	if timedOut {
		msg := ""
		if o.verbose {
			msg = "Timed out"
		}
		return &exitError{code: exitTimeout, msg: msg}
	}
	return nil
}

func showMemoryUsage(title string, n *cgroup.Node) {
	s := n.Current()
	if usage, ok := s.Int("usage_in_bytes"); ok {
		fmt.Printf("%s: %d (%s)\n", title, usage, types.Bytes(usage).Humanized())
	}
	if usage, ok := s.Int("memsw.usage_in_bytes"); ok {
		fmt.Printf("%s(memsw): %d (%s)\n", title, usage, types.Bytes(usage).Humanized())
	}
}
