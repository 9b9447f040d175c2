// Package exporter publishes monitor samples as Prometheus metrics.
package exporter

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/ja7ad/cgutils/pkg/monitor"
)

const namespace = "cgutils"

// Source yields the last complete sample. *monitor.Engine implements it.
type Source interface {
	Latest() *monitor.Sample
}

// Collector converts the latest sample of a Source into gauges, one
// series per group. Before the first sample it only reports the group count.
type Collector struct {
	src Source

	groups    *prometheus.Desc
	steady    *prometheus.Desc
	procs     *prometheus.Desc
	cpuUser   *prometheus.Desc
	cpuSystem *prometheus.Desc
	bioRead   *prometheus.Desc
	bioWrite  *prometheus.Desc
	memTotal  *prometheus.Desc
	memRSS    *prometheus.Desc
	memSwap   *prometheus.Desc
}

func NewCollector(src Source) *Collector {
	group := []string{"group"}
	desc := func(subsystem, name, help string, labels []string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
	}
	return &Collector{
		src:       src,
		groups:    desc("", "groups", "Number of cgroups in the last sample", nil),
		steady:    desc("", "sample_steady", "1 once rates are computed against a previous sample", nil),
		procs:     desc("group", "processes", "Number of distinct processes in the group", group),
		cpuUser:   desc("cpu", "user_percent", "User CPU time as percent of one CPU", group),
		cpuSystem: desc("cpu", "system_percent", "System CPU time as percent of one CPU", group),
		bioRead:   desc("blkio", "read_bytes_per_second", "Block I/O read throughput", group),
		bioWrite:  desc("blkio", "write_bytes_per_second", "Block I/O write throughput", group),
		memTotal:  desc("memory", "usage_bytes", "Memory usage including page cache", group),
		memRSS:    desc("memory", "rss_bytes", "Anonymous and swap cache memory", group),
		memSwap:   desc("memory", "swap_bytes", "Swap usage", group),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.groups, c.steady, c.procs, c.cpuUser, c.cpuSystem,
		c.bioRead, c.bioWrite, c.memTotal, c.memRSS, c.memSwap,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Latest()
	if s == nil {
		ch <- prometheus.MustNewConstMetric(c.groups, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.groups, prometheus.GaugeValue, float64(len(s.Rows)))
	steady := 0.0
	if s.State == monitor.Steady {
		steady = 1
	}
	ch <- prometheus.MustNewConstMetric(c.steady, prometheus.GaugeValue, steady)

	for _, r := range s.Rows {
		ch <- prometheus.MustNewConstMetric(c.procs, prometheus.GaugeValue, float64(r.NProcs), r.Name)
		ch <- prometheus.MustNewConstMetric(c.cpuUser, prometheus.GaugeValue, r.CPUUser, r.Name)
		ch <- prometheus.MustNewConstMetric(c.cpuSystem, prometheus.GaugeValue, r.CPUSystem, r.Name)
		ch <- prometheus.MustNewConstMetric(c.bioRead, prometheus.GaugeValue, r.BIORead, r.Name)
		ch <- prometheus.MustNewConstMetric(c.bioWrite, prometheus.GaugeValue, r.BIOWrite, r.Name)
		ch <- prometheus.MustNewConstMetric(c.memTotal, prometheus.GaugeValue, float64(r.MemTotal), r.Name)
		ch <- prometheus.MustNewConstMetric(c.memRSS, prometheus.GaugeValue, float64(r.MemRSS), r.Name)
		ch <- prometheus.MustNewConstMetric(c.memSwap, prometheus.GaugeValue, float64(r.MemSwap), r.Name)
	}
}

// Handler returns the /metrics handler for a registry holding the collector.
func Handler(src Source) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(src)); err != nil {
		return nil, errors.Wrap(err, "register collector")
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

// Serve listens on addr until ctx is done.
func Serve(ctx context.Context, addr string, src Source) error {
	h, err := Handler(src)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("serving metrics")
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve metrics")
	}
}
