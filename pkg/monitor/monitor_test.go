//go:build linux

package monitor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/cgutils/pkg/system/cgroup"
)

type fakeHost struct {
	cgRoot string
	mounts *cgroup.MountTable
	now    time.Time
	ticks  float64
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newFakeHost fabricates cpuacct, blkio and memory hierarchies holding a
// root group and /web.
func newFakeHost(t *testing.T) *fakeHost {
	t.Helper()
	dir := t.TempDir()
	procRoot := filepath.Join(dir, "proc")
	cgRoot := filepath.Join(dir, "cgroup")

	write(t, filepath.Join(procRoot, "cgroups"), strings.Join([]string{
		"#subsys_name\thierarchy\tnum_cgroups\tenabled",
		"cpuacct\t2\t2\t1",
		"blkio\t3\t2\t1",
		"memory\t4\t2\t1",
		"",
	}, "\n"))
	write(t, filepath.Join(procRoot, "mounts"), strings.Join([]string{
		"cgroup " + cgRoot + "/cpuacct cgroup rw,cpuacct 0 0",
		"cgroup " + cgRoot + "/blkio cgroup rw,blkio 0 0",
		"cgroup " + cgRoot + "/memory cgroup rw,memory 0 0",
		"",
	}, "\n"))

	files := map[string]string{
		"cpuacct/cgroup.procs":              "1\n",
		"cpuacct/cpuacct.stat":              "user 100\nsystem 50\n",
		"cpuacct/web/cgroup.procs":          "100\n101\n",
		"cpuacct/web/cpuacct.stat":          "user 10\nsystem 5\n",
		"blkio/cgroup.procs":                "1\n",
		"blkio/web/cgroup.procs":            "100\n",
		"blkio/web/blkio.io_service_bytes":  "8:0 Read 1000\n8:0 Write 0\nTotal 1000\n",
		"memory/cgroup.procs":               "1\n",
		"memory/memory.usage_in_bytes":      "8388608\n",
		"memory/web/cgroup.procs":           "100\n101\n",
		"memory/web/memory.usage_in_bytes":  "2097152\n",
		"memory/web/memory.stat":            "rss 1048576\ncache 0\n",
		"memory/idle/cgroup.procs":          "",
		"memory/idle/memory.usage_in_bytes": "0\n",
	}
	for name, content := range files {
		write(t, filepath.Join(cgRoot, name), content)
	}

	mt, err := cgroup.LoadMounts(procRoot)
	require.NoError(t, err)
	return &fakeHost{
		cgRoot: cgRoot,
		mounts: mt,
		now:    time.Unix(1700000000, 0),
		ticks:  1000,
	}
}

func (h *fakeHost) engine(opts *Options) *Engine {
	e := New(h.mounts, opts)
	e.now = func() time.Time { return h.now }
	e.hostTicks = func() (float64, error) { return h.ticks, nil }
	return e
}

func rowByName(t *testing.T, s *Sample, name string) Row {
	t.Helper()
	for _, r := range s.Rows {
		if r.Name == name {
			return r
		}
	}
	require.Failf(t, "row not found", "%s", name)
	return Row{}
}

func TestEngine_InitialThenSteady(t *testing.T) {
	h := newFakeHost(t)
	e := h.engine(&Options{RescanInterval: time.Hour})
	assert.Nil(t, e.Latest())

	first, err := e.Sample()
	require.NoError(t, err)
	assert.Equal(t, Initial, first.State)
	assert.Zero(t, first.Elapsed)

	web := rowByName(t, first, "/web")
	assert.Equal(t, 2, web.NProcs)
	assert.Zero(t, web.CPUUser)
	assert.Zero(t, web.CPUSystem)
	assert.Zero(t, web.BIORead)
	assert.Equal(t, int64(2097152), web.MemTotal)
	assert.Equal(t, int64(1048576), web.MemRSS)
	assert.Zero(t, web.MemSwap)

	write(t, filepath.Join(h.cgRoot, "cpuacct/web/cpuacct.stat"), "user 60\nsystem 15\n")
	write(t, filepath.Join(h.cgRoot, "blkio/web/blkio.io_service_bytes"), "8:0 Read 3048\n8:0 Write 512\nTotal 3560\n")
	write(t, filepath.Join(h.cgRoot, "memory/web/memory.usage_in_bytes"), "3145728\n")
	h.now = h.now.Add(2 * time.Second)
	h.ticks += 100

	second, err := e.Sample()
	require.NoError(t, err)
	assert.Equal(t, Steady, second.State)
	assert.Equal(t, 2*time.Second, second.Elapsed)

	web = rowByName(t, second, "/web")
	assert.InDelta(t, 50.0, web.CPUUser, 1e-9)
	assert.InDelta(t, 10.0, web.CPUSystem, 1e-9)
	assert.InDelta(t, 1024.0, web.BIORead, 1e-9)
	assert.InDelta(t, 256.0, web.BIOWrite, 1e-9)
	assert.Equal(t, int64(3145728), web.MemTotal)
	assert.True(t, web.Active())

	assert.Same(t, second, e.Latest())
}

func TestEngine_PathOrderAndHideRoot(t *testing.T) {
	h := newFakeHost(t)

	s, err := h.engine(nil).Sample()
	require.NoError(t, err)
	var names []string
	for _, r := range s.Rows {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"/", "/web", "/idle"}, names)

	s, err = h.engine(&Options{HideRoot: true}).Sample()
	require.NoError(t, err)
	for _, r := range s.Rows {
		assert.NotEqual(t, "/", r.Name)
	}
}

func TestEngine_DropsVanishedGroup(t *testing.T) {
	h := newFakeHost(t)
	e := h.engine(&Options{RescanInterval: time.Hour})
	_, err := e.Sample()
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Join(h.cgRoot, "memory/web")))
	h.now = h.now.Add(time.Second)

	s, err := e.Sample()
	require.NoError(t, err)
	for _, r := range s.Rows {
		assert.NotEqual(t, "/web", r.Name)
	}
	assert.NotContains(t, e.Paths(), "/web")
	assert.Contains(t, e.Paths(), "/idle")
}

func TestEngine_Rescan(t *testing.T) {
	h := newFakeHost(t)
	e := h.engine(&Options{RescanInterval: 10 * time.Second})
	_, err := e.Sample()
	require.NoError(t, err)

	write(t, filepath.Join(h.cgRoot, "memory/batch/cgroup.procs"), "7\n")
	h.now = h.now.Add(time.Second)
	_, err = e.Sample()
	require.NoError(t, err)
	assert.NotContains(t, e.Paths(), "/batch")

	h.now = h.now.Add(10 * time.Second)
	_, err = e.Sample()
	require.NoError(t, err)
	assert.Contains(t, e.Paths(), "/batch")
}

func TestEngine_SkipsUnavailableController(t *testing.T) {
	h := newFakeHost(t)
	e := h.engine(&Options{Controllers: []string{"memory", "pids", "cpuset"}})

	s, err := e.Sample()
	require.NoError(t, err)
	assert.NotEmpty(t, s.Rows)
	assert.True(t, e.warned["pids"])
	assert.True(t, e.warned["cpuset"])
}

func TestEngine_Run(t *testing.T) {
	h := newFakeHost(t)
	e := h.engine(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []*Sample
	err := e.Run(ctx, time.Hour, func(s *Sample) {
		got = append(got, s)
		cancel()
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, got, 1)
	assert.Same(t, got[0], e.Latest())

	assert.Error(t, e.Run(context.Background(), 0, nil))
}

func TestOptions_Merge(t *testing.T) {
	o := merge(nil)
	assert.Equal(t, DefaultControllers, o.Controllers)
	assert.Equal(t, 10*time.Second, o.RescanInterval)

	o = merge(&Options{Smoothing: 2, RescanInterval: -1, Controllers: []string{"memory"}})
	assert.Equal(t, []string{"memory"}, o.Controllers)
	assert.Equal(t, 10*time.Second, o.RescanInterval)
	assert.Zero(t, o.Smoothing)

	o = merge(&Options{Smoothing: 0.5})
	assert.Equal(t, 0.5, o.Smoothing)
}

func TestEngine_BrokenSiblingKeepsController(t *testing.T) {
	h := newFakeHost(t)
	write(t, filepath.Join(h.cgRoot, "cpuacct/broken/cgroup.procs"), "garbage\n")
	require.NoError(t, os.MkdirAll(filepath.Join(h.cgRoot, "cpuacct/odd/cpuacct.stat"), 0o755))

	e := h.engine(&Options{Controllers: []string{"cpuacct"}, RescanInterval: time.Hour})
	_, err := e.Sample()
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/broken", "/web"}, e.Paths())

	write(t, filepath.Join(h.cgRoot, "cpuacct/web/cpuacct.stat"), "user 60\nsystem 15\n")
	h.now = h.now.Add(time.Second)
	h.ticks += 100

	s, err := e.Sample()
	require.NoError(t, err)
	web := rowByName(t, s, "/web")
	assert.InDelta(t, 50.0, web.CPUUser, 1e-9)
	assert.InDelta(t, 10.0, web.CPUSystem, 1e-9)
	assert.Zero(t, rowByName(t, s, "/broken").NProcs)
}
