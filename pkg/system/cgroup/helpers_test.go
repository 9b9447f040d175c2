//go:build linux

package cgroup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func readTree(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

// fakeHost fabricates /proc/cgroups and /proc/mounts describing v1
// hierarchies mounted under a scratch directory. It returns the proc root
// and the cgroup root.
func fakeHost(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	procRoot := filepath.Join(dir, "proc")
	cgRoot := filepath.Join(dir, "cgroup")

	cgroups := strings.Join([]string{
		"#subsys_name\thierarchy\tnum_cgroups\tenabled",
		"cpuset\t2\t1\t1",
		"cpu\t3\t4\t1",
		"cpuacct\t3\t4\t1",
		"blkio\t6\t1\t1",
		"memory\t4\t3\t1",
		"devices\t5\t1\t0",
		"",
	}, "\n")
	mounts := strings.Join([]string{
		"proc /proc proc rw,nosuid,nodev,noexec,relatime 0 0",
		"tmpfs " + cgRoot + " tmpfs ro,nosuid,nodev,noexec,mode=755 0 0",
		"cgroup2 " + cgRoot + "/unified cgroup2 rw,nosuid,nodev,noexec,relatime 0 0",
		"cgroup " + cgRoot + "/systemd cgroup rw,xattr,release_agent=/lib/systemd/systemd-cgroups-agent,name=systemd 0 0",
		"cgroup " + cgRoot + "/cpuset cgroup rw,nosuid,nodev,noexec,relatime,cpuset 0 0",
		"cgroup " + cgRoot + "/cpu,cpuacct cgroup rw,nosuid,nodev,noexec,relatime,cpu,cpuacct 0 0",
		"cgroup " + cgRoot + "/memory cgroup rw,nosuid,nodev,noexec,relatime,memory 0 0",
		"",
	}, "\n")
	writeTree(t, procRoot, map[string]string{"cgroups": cgroups, "mounts": mounts})
	for _, d := range []string{"systemd", "cpuset", "cpu,cpuacct", "memory"} {
		require.NoError(t, os.MkdirAll(filepath.Join(cgRoot, d), 0o755))
	}
	return procRoot, cgRoot
}

func memoryController(t *testing.T) *Controller {
	t.Helper()
	c, ok := Lookup("memory")
	require.True(t, ok)
	return c
}
