//go:build linux

// Package monitor samples cgroup v1 hierarchies periodically and turns
// counter deltas into per-group CPU, block I/O and memory rows.
package monitor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ja7ad/cgutils/pkg/system/cgroup"
	"github.com/ja7ad/cgutils/pkg/system/proc"
	"github.com/ja7ad/cgutils/pkg/system/util"
)

// Engine keeps a two-sample window per group across the monitored
// hierarchies, plus the host CPU and wall-clock baselines.
type Engine struct {
	opts   *Options
	mounts *cgroup.MountTable

	// groups holds the scanned nodes per hierarchy path, order the paths
	// in first-seen order.
	groups   map[string][]*cgroup.Node
	order    []string
	lastScan time.Time
	warned   map[string]bool

	prevs    map[string]cgroup.Stats
	ema      map[string]*util.EMA
	hostPrev float64
	timePrev time.Time
	state    State

	latest atomic.Pointer[Sample]

	now       func() time.Time
	hostTicks func() (float64, error)
}

// New creates an engine over the given mount table. Fields of opts left
// at their zero value take the defaults.
func New(mounts *cgroup.MountTable, opts *Options) *Engine {
	return &Engine{
		opts:      merge(opts),
		mounts:    mounts,
		warned:    map[string]bool{},
		prevs:     map[string]cgroup.Stats{},
		ema:       map[string]*util.EMA{},
		now:       time.Now,
		hostTicks: proc.HostCPUTicks,
	}
}

// Options returns the effective options.
func (e *Engine) Options() Options { return *e.opts }

// State reports whether a baseline exists.
func (e *Engine) State() State { return e.state }

// Latest returns the last complete sample, or nil before the first one.
func (e *Engine) Latest() *Sample { return e.latest.Load() }

// rescan rebuilds every tree. A controller that cannot be scanned is
// skipped with a single warning for the engine's lifetime.
func (e *Engine) rescan() {
	groups := map[string][]*cgroup.Node{}
	var order []string
	for _, name := range e.opts.Controllers {
		root, err := cgroup.Scan(e.mounts, name, readFilters[name]...)
		if err != nil {
			if !e.warned[name] {
				log.WithField("controller", name).WithError(err).Warn("controller unavailable, skipping")
				e.warned[name] = true
			}
			continue
		}
		cgroup.Walk(root, func(n *cgroup.Node) bool {
			if _, seen := groups[n.Path]; !seen {
				order = append(order, n.Path)
			}
			groups[n.Path] = append(groups[n.Path], n)
			return true
		})
	}
	if e.opts.HideRoot {
		delete(groups, "/")
	}
	e.groups = groups
	e.order = order[:0:0]
	for _, p := range order {
		if _, ok := groups[p]; ok {
			e.order = append(e.order, p)
		}
	}
	e.lastScan = e.now()
	log.WithField("groups", len(e.order)).Debug("rescanned hierarchies")
}

func prevKey(n *cgroup.Node) string { return n.Controller.Name + ":" + n.Path }

// Sample performs one pass: update every node, compute deltas against the
// previous pass and publish the rows.
func (e *Engine) Sample() (*Sample, error) {
	now := e.now()
	if e.groups == nil || now.Sub(e.lastScan) >= e.opts.RescanInterval {
		e.rescan()
	}

	host, err := e.hostTicks()
	if err != nil {
		return nil, errors.Wrap(err, "host cpu ticks")
	}
	var dHost, dt float64
	state := e.state
	if state == Steady {
		dHost = host - e.hostPrev
		dt = now.Sub(e.timePrev).Seconds()
	}

	seen := map[string]bool{}
	rows := make([]Row, 0, len(e.order))
	var live []string
	for _, path := range e.order {
		row, ok := e.sampleGroup(path, e.groups[path], dHost, dt, seen)
		if !ok {
			delete(e.groups, path)
			continue
		}
		live = append(live, path)
		rows = append(rows, row)
	}
	e.order = live
	for k := range e.prevs {
		if !seen[k] {
			delete(e.prevs, k)
			delete(e.ema, k+".user")
			delete(e.ema, k+".system")
		}
	}

	s := &Sample{Time: now, State: state, Rows: rows}
	if state == Steady {
		s.Elapsed = now.Sub(e.timePrev)
	}
	e.hostPrev, e.timePrev, e.state = host, now, Steady
	e.latest.Store(s)
	return s, nil
}

// sampleGroup merges the nodes sharing one path into a row. A group whose
// directory vanished reports !ok and is dropped.
func (e *Engine) sampleGroup(path string, nodes []*cgroup.Node, dHost, dt float64, seen map[string]bool) (Row, bool) {
	row := Row{Name: path}
	pids := map[int]struct{}{}
	for _, n := range nodes {
		if err := n.Update(); err != nil {
			log.WithFields(log.Fields{"controller": n.Controller.Name, "path": path}).
				WithError(err).Debug("group dropped")
			return Row{}, false
		}
		for _, pid := range n.Pids {
			pids[pid] = struct{}{}
		}

		key := prevKey(n)
		cur := n.Current()
		delta := cur.Delta(e.prevs[key])
		e.prevs[key] = cur
		seen[key] = true

		switch n.Controller.Name {
		case "cpuacct":
			if dHost > 0 {
				row.CPUUser = e.smooth(key+".user", percent(delta, "user", dHost))
				row.CPUSystem = e.smooth(key+".system", percent(delta, "system", dHost))
			}
		case "blkio":
			if dt > 0 {
				row.BIORead = rate(delta, "read", dt)
				row.BIOWrite = rate(delta, "write", dt)
			}
		case "memory":
			row.MemTotal, _ = cur.Int("total")
			row.MemRSS, _ = cur.Int("rss")
			row.MemSwap, _ = cur.Int("swap")
		}
	}
	row.NProcs = len(pids)
	return row, true
}

func percent(delta cgroup.Stats, field string, dHost float64) float64 {
	d, ok := delta.Int("stat", field)
	if !ok {
		return 0
	}
	return util.NonNegative(util.SafeDiv(float64(d)*100, dHost))
}

func rate(delta cgroup.Stats, field string, dt float64) float64 {
	d, ok := delta.Int(field)
	if !ok {
		return 0
	}
	return util.NonNegative(util.SafeDiv(float64(d), dt))
}

func (e *Engine) smooth(key string, v float64) float64 {
	if e.opts.Smoothing <= 0 {
		return v
	}
	m, ok := e.ema[key]
	if !ok {
		m = util.NewEMA(e.opts.Smoothing)
		e.ema[key] = m
	}
	return m.Next(v)
}

// Paths lists the tracked groups in first-seen order.
func (e *Engine) Paths() []string { return append([]string(nil), e.order...) }

// Run samples immediately and then on every tick until ctx is done,
// handing each complete sample to fn. Sampling errors are logged and the
// loop continues.
func (e *Engine) Run(ctx context.Context, interval time.Duration, fn func(*Sample)) error {
	if interval <= 0 {
		return errors.New("monitor: interval must be > 0")
	}
	tick := func() {
		s, err := e.Sample()
		if err != nil {
			log.WithError(err).Warn("sample failed")
			return
		}
		if fn != nil {
			fn(s)
		}
	}

	tick()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tick()
		}
	}
}
