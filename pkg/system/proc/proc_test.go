//go:build linux

package proc

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRoot points ProcRoot and SysRoot at a scratch tree for the test.
func fakeRoot(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	oldProc, oldSys := ProcRoot, SysRoot
	ProcRoot = filepath.Join(dir, "proc")
	SysRoot = filepath.Join(dir, "sys")
	require.NoError(t, os.MkdirAll(ProcRoot, 0o755))
	require.NoError(t, os.MkdirAll(SysRoot, 0o755))
	t.Cleanup(func() { ProcRoot, SysRoot = oldProc, oldSys })
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeProc(t *testing.T, pid, ppid, pgid, sid int, comm, state string, argv []string, autogroup string) {
	t.Helper()
	dir := filepath.Join(ProcRoot, strconv.Itoa(pid))
	stat := fmt.Sprintf("%d (%s) %s %d %d %d", pid, comm, state, ppid, pgid, sid) + strings.Repeat(" 0", 46) + "\n"
	writeFile(t, filepath.Join(dir, "stat"), stat)
	cmdline := ""
	if len(argv) > 0 {
		cmdline = strings.Join(argv, "\x00") + "\x00"
	}
	writeFile(t, filepath.Join(dir, "cmdline"), cmdline)
	if autogroup != "" {
		writeFile(t, filepath.Join(dir, "autogroup"), autogroup)
	}
}

func TestReadProcess(t *testing.T) {
	fakeRoot(t)

	t.Run("interpreter_shows_script", func(t *testing.T) {
		writeProc(t, 100, 1, 100, 100, "python3", "S",
			[]string{"/usr/bin/python3", "/opt/app/worker.py", "--fast"}, "/autogroup-324 nice 0\n")

		p, err := ReadProcess(100)
		require.NoError(t, err)
		assert.Equal(t, 1, p.PPID)
		assert.Equal(t, "worker.py", p.Name)
		assert.Equal(t, "/usr/bin/python3 /opt/app/worker.py --fast", p.Cmdline)
		assert.Equal(t, "autogroup-324", p.Autogroup)
		assert.True(t, p.IsGroupLeader())
		assert.True(t, p.IsSessionLeader())
		assert.False(t, p.IsKthread())
		assert.False(t, p.IsRunning())
	})

	t.Run("kernel_thread", func(t *testing.T) {
		writeProc(t, 2, 0, 0, 0, "kthreadd", "R", nil, "")

		p, err := ReadProcess(2)
		require.NoError(t, err)
		assert.True(t, p.IsKthread())
		assert.True(t, p.IsRunning())
		assert.Equal(t, "kthreadd", p.Name)
		assert.Equal(t, "kthreadd", p.Cmdline)
		assert.Empty(t, p.Autogroup)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := ReadProcess(999)
		require.Error(t, err)
		assert.False(t, Exists(999))
		assert.True(t, Exists(100))
	})

	t.Run("unreadable_stat_keeps_cause", func(t *testing.T) {
		require.NoError(t, os.MkdirAll(filepath.Join(ProcRoot, "300"), 0o755))

		_, err := ReadProcess(300)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNoStat)
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})
}

func TestCommandName(t *testing.T) {
	cases := []struct {
		name string
		argv []string
		want string
	}{
		{"absolute_path", []string{"/usr/sbin/sshd", "-D"}, "sshd"},
		{"setproctitle", []string{"nginx: master process /usr/sbin/nginx"}, "nginx"},
		{"ruby_script", []string{"ruby", "bin/rails", "server"}, "rails"},
		{"trailing_empty_args", []string{"bash", "", ""}, "bash"},
		{"empty", []string{"", ""}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, commandName(tc.argv))
		})
	}
}

func TestHostDefaults(t *testing.T) {
	fakeRoot(t)

	t.Run("fallbacks", func(t *testing.T) {
		assert.Equal(t, "0", OnlineCPUs())
		assert.Equal(t, "0", OnlineNodes())
		period, runtime := SchedRT()
		assert.Equal(t, int64(1000000), period)
		assert.Equal(t, int64(950000), runtime)
	})

	t.Run("from_files", func(t *testing.T) {
		writeFile(t, filepath.Join(SysRoot, "devices/system/cpu/online"), "0-7\n")
		writeFile(t, filepath.Join(SysRoot, "devices/system/node/online"), "0-1\n")
		writeFile(t, filepath.Join(ProcRoot, "sys/kernel/sched_rt_period_us"), "500000\n")
		writeFile(t, filepath.Join(ProcRoot, "sys/kernel/sched_rt_runtime_us"), "-1\n")

		assert.Equal(t, "0-7", OnlineCPUs())
		assert.Equal(t, "0-1", OnlineNodes())
		period, runtime := SchedRT()
		assert.Equal(t, int64(500000), period)
		assert.Equal(t, int64(-1), runtime)
	})
}

func TestHostCPUTicks(t *testing.T) {
	fakeRoot(t)
	t.Setenv("CLK_TCK", "100")
	writeFile(t, filepath.Join(ProcRoot, "stat"), strings.Join([]string{
		"cpu  300 0 200 1500 0 0 0 0 0 0",
		"cpu0 150 0 100 750 0 0 0 0 0 0",
		"cpu1 150 0 100 750 0 0 0 0 0 0",
		"intr 0",
		"ctxt 0",
		"btime 1700000000",
		"processes 10",
		"procs_running 1",
		"procs_blocked 0",
		"",
	}, "\n"))

	ticks, err := HostCPUTicks()
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, ticks, 1e-6)
}

func TestMemTotal(t *testing.T) {
	fakeRoot(t)
	writeFile(t, filepath.Join(ProcRoot, "meminfo"), "MemTotal:       16384 kB\nMemFree:         1024 kB\n")

	n, err := MemTotal()
	require.NoError(t, err)
	assert.Equal(t, int64(16384*1024), n)
}

func TestClockTicks(t *testing.T) {
	t.Setenv("CLK_TCK", "250")
	assert.Equal(t, 250, ClockTicks())
	t.Setenv("CLK_TCK", "bogus")
	assert.Equal(t, 100, ClockTicks())
}
