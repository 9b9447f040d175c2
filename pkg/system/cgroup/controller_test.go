//go:build linux

package cgroup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/cgutils/pkg/system/proc"
)

func TestReloadHostDefaults(t *testing.T) {
	sys := t.TempDir()
	for name, content := range map[string]string{
		"devices/system/cpu/online":  "0-7\n",
		"devices/system/node/online": "0-1\n",
	} {
		p := filepath.Join(sys, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	old := proc.SysRoot
	t.Cleanup(func() {
		proc.SysRoot = old
		ReloadHostDefaults()
	})

	ReloadHostDefaults()
	proc.SysRoot = filepath.Join(sys, "missing")
	c, ok := Lookup("cpuset")
	require.True(t, ok)
	assert.Equal(t, StringValue("0"), c.DefaultConfigs()["cpus"])

	// cached until reloaded
	proc.SysRoot = sys
	c, _ = Lookup("cpuset")
	assert.Equal(t, StringValue("0"), c.DefaultConfigs()["cpus"])

	ReloadHostDefaults()
	c, _ = Lookup("cpuset")
	defs := c.DefaultConfigs()
	assert.Equal(t, StringValue("0-7"), defs["cpus"])
	assert.Equal(t, StringValue("0-1"), defs["mems"])
}

func TestController_Fields(t *testing.T) {
	c := memoryController(t)

	f, ok := c.Field("max_usage_in_bytes")
	require.True(t, ok)
	assert.Equal(t, "memory.max_usage_in_bytes", f.File)
	assert.Equal(t, Stat, f.Category)
	assert.True(t, f.Reset)

	_, ok = c.Field("memory.max_usage_in_bytes")
	assert.False(t, ok)

	for _, f := range c.FieldsOf(Control) {
		assert.Equal(t, Control, f.Category)
	}
	assert.Equal(t, IntValue(MaxLimit), c.DefaultConfigs()["limit_in_bytes"])
	assert.Contains(t, Names(), "memory")
}
