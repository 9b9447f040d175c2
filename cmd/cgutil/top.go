//go:build linux

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ja7ad/cgutils/pkg/monitor"
	"github.com/ja7ad/cgutils/pkg/types"
)

type topOptions struct {
	controllers  []string
	showInactive bool
	showZero     bool
	showEmpty    bool
	hideRoot     bool
	iterations   int
	delay        time.Duration
	rescan       time.Duration
	smoothing    float64
	sortKey      string
	ascending    bool
}

func newTopCmd() *cobra.Command {
	var o topOptions
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show per-group CPU, block I/O and memory usage periodically",
		Long: `top samples the cpuacct, blkio and memory hierarchies and prints one
table per interval. The first sample only establishes a baseline and is
not printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTop(cmd.Context(), &o)
		},
	}
	cmd.Flags().StringSliceVarP(&o.controllers, "controllers", "o", monitor.DefaultControllers, "controllers to sample")
	cmd.Flags().BoolVarP(&o.showInactive, "show-inactive", "i", false, "show groups without activity")
	cmd.Flags().BoolVarP(&o.showZero, "show-zero", "z", false, "print zero values instead of blanks")
	cmd.Flags().BoolVarP(&o.showEmpty, "show-empty", "e", false, "show groups without processes")
	cmd.Flags().BoolVarP(&o.hideRoot, "hide-root", "r", false, "hide the root group")
	cmd.Flags().IntVarP(&o.iterations, "iter", "n", 0, "number of tables to print (0 = until interrupted)")
	cmd.Flags().DurationVarP(&o.delay, "delay", "d", 3*time.Second, "interval between samples")
	cmd.Flags().DurationVarP(&o.rescan, "update-cgroups-interval", "u", 10*time.Second, "interval between hierarchy rescans")
	cmd.Flags().Float64Var(&o.smoothing, "smoothing", 0, "EMA alpha applied to CPU percentages [0..1], 0 disables")
	cmd.Flags().StringVarP(&o.sortKey, "sort", "s", "cpu.user", "sort key: "+strings.Join(monitor.Keys, ", "))
	cmd.Flags().BoolVar(&o.ascending, "asc", false, "sort ascending")
	return cmd
}

var topColumns = []string{
	"cpu.user", "cpu.system", "bio.read", "bio.write",
	"mem.total", "mem.rss", "mem.swap", "n_procs",
}

func runTop(ctx context.Context, o *topOptions) error {
	if o.smoothing < 0 || o.smoothing > 1 {
		return errors.New("smoothing must be in [0,1]")
	}
	if err := monitor.Sort(nil, o.sortKey, false); err != nil {
		return err
	}
	mounts, err := loadMounts()
	if err != nil {
		return err
	}
	eng := monitor.New(mounts, &monitor.Options{
		Controllers:    o.controllers,
		RescanInterval: o.rescan,
		Smoothing:      o.smoothing,
		HideRoot:       o.hideRoot,
	})

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	filter := monitor.Filter{ShowEmpty: o.showEmpty, ShowInactive: o.showInactive}
	printed := 0
	err = eng.Run(ctx, o.delay, func(s *monitor.Sample) {
		if s.State == monitor.Initial {
			return
		}
		rows := filter.Apply(s.Rows)
		_ = monitor.Sort(rows, o.sortKey, !o.ascending)
		printTop(newTable(), s, rows, o.showZero)

		printed++
		if o.iterations > 0 && printed >= o.iterations {
			cancel()
		}
	})
	if errors.Is(err, context.Canceled) {
		log.Debug("top stopped")
		return nil
	}
	return err
}

func printTop(tw *tabwriter.Writer, s *monitor.Sample, rows []monitor.Row, showZero bool) {
	fmt.Fprintf(os.Stdout, "[%s] %d groups, interval %s\n",
		s.Time.Format("2006-01-02 15:04:05"), len(rows), s.Elapsed.Round(time.Millisecond))

	header := make([]string, 0, len(topColumns)+1)
	for _, c := range topColumns {
		header = append(header, strings.ToUpper(c))
	}
	header = append(header, "NAME")
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, r := range rows {
		cells := make([]string, 0, len(topColumns)+1)
		for _, c := range topColumns {
			if !showZero && r.IsZero(c) {
				cells = append(cells, "")
				continue
			}
			cells = append(cells, topCell(r, c))
		}
		cells = append(cells, r.Name)
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
	fmt.Fprintln(os.Stdout)
}

func topCell(r monitor.Row, key string) string {
	switch key {
	case "cpu.user":
		return types.Percent(r.CPUUser).String()
	case "cpu.system":
		return types.Percent(r.CPUSystem).String()
	case "bio.read":
		return types.ByteRate(r.BIORead).String()
	case "bio.write":
		return types.ByteRate(r.BIOWrite).String()
	case "mem.total":
		return types.Bytes(r.MemTotal).Compact()
	case "mem.rss":
		return types.Bytes(r.MemRSS).Compact()
	case "mem.swap":
		return types.Bytes(r.MemSwap).Compact()
	case "n_procs":
		return fmt.Sprint(r.NProcs)
	}
	return ""
}
