//go:build linux

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ja7ad/cgutils/pkg/exporter"
	"github.com/ja7ad/cgutils/pkg/monitor"
)

type exporterOptions struct {
	listen      string
	interval    time.Duration
	rescan      time.Duration
	controllers []string
	hideRoot    bool
}

func newExporterCmd() *cobra.Command {
	var o exporterOptions
	cmd := &cobra.Command{
		Use:   "exporter",
		Short: "Serve per-group usage as Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExporter(cmd.Context(), &o)
		},
	}
	cmd.Flags().StringVar(&o.listen, "listen", ":9753", "address to serve /metrics on")
	cmd.Flags().DurationVar(&o.interval, "interval", 5*time.Second, "sampling interval")
	cmd.Flags().DurationVar(&o.rescan, "rescan", 10*time.Second, "interval between hierarchy rescans")
	cmd.Flags().StringSliceVarP(&o.controllers, "controllers", "o", monitor.DefaultControllers, "controllers to sample")
	cmd.Flags().BoolVar(&o.hideRoot, "hide-root", false, "do not export the root group")
	return cmd
}

func runExporter(ctx context.Context, o *exporterOptions) error {
	mounts, err := loadMounts()
	if err != nil {
		return err
	}
	eng := monitor.New(mounts, &monitor.Options{
		Controllers:    o.controllers,
		RescanInterval: o.rescan,
		HideRoot:       o.hideRoot,
	})

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sampled := make(chan error, 1)
	go func() { sampled <- eng.Run(ctx, o.interval, nil) }()

	if err := exporter.Serve(ctx, o.listen, eng); err != nil {
		return err
	}
	if err := <-sampled; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("exporter stopped")
	return nil
}
