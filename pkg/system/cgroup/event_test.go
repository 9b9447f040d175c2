//go:build linux

package cgroup

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func eventNode(t *testing.T) *Node {
	t.Helper()
	mount, group := memoryTree(t, map[string]string{
		"cgroup.event_control":  "",
		"memory.usage_in_bytes": "2097152\n",
		"memory.oom_control":    "oom_kill_disable 0\nunder_oom 0\n",
		"memory.pressure_level": "",
	})
	n, err := NewNode(memoryController(t), mount, group)
	require.NoError(t, err)
	return n
}

func signal(t *testing.T, l *EventListener, n uint64) {
	t.Helper()
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], n)
	_, err := unix.Write(l.efdNum, buf[:])
	require.NoError(t, err)
}

func TestEventListener_Register(t *testing.T) {
	n := eventNode(t)

	cases := []struct {
		target string
		arg    string
	}{
		{"memory.usage_in_bytes", "1048576"},
		{"memory.oom_control", ""},
		{"memory.pressure_level", "critical"},
	}
	for _, tc := range cases {
		t.Run(tc.target, func(t *testing.T) {
			writeTree(t, n.AbsPath, map[string]string{"cgroup.event_control": ""})

			l, err := NewEventListener(n, tc.target)
			require.NoError(t, err)
			defer l.Close()

			require.NoError(t, l.Register(tc.arg))

			want := fmt.Sprintf("%d %d", l.efdNum, l.tfd.Fd())
			if tc.arg != "" {
				want += " " + tc.arg
			}
			assert.Equal(t, want+"\x00", readTree(t, filepath.Join(n.AbsPath, "cgroup.event_control")))
		})
	}
}

func TestEventListener_Rejects(t *testing.T) {
	n := eventNode(t)

	_, err := NewEventListener(n, "memory.stat")
	assert.ErrorIs(t, err, ErrUnsupportedEvent)

	l, err := NewEventListener(n, "memory.usage_in_bytes")
	require.NoError(t, err)
	defer l.Close()
	assert.ErrorIs(t, l.Register("10M"), ErrUnsupportedEvent)
	assert.ErrorIs(t, l.Register(""), ErrUnsupportedEvent)

	p, err := NewEventListener(n, "memory.pressure_level")
	require.NoError(t, err)
	defer p.Close()
	assert.ErrorIs(t, p.Register("severe"), ErrUnsupportedEvent)

	o, err := NewEventListener(n, "memory.oom_control")
	require.NoError(t, err)
	defer o.Close()
	assert.ErrorIs(t, o.Register("1"), ErrUnsupportedEvent)
}

func TestEventListener_WaitOnce(t *testing.T) {
	n := eventNode(t)
	l, err := NewEventListener(n, "memory.oom_control")
	require.NoError(t, err)
	defer l.Close()
	require.NoError(t, l.Register(""))

	signal(t, l, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := l.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got)

	_, err = l.Wait(ctx)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestEventListener_WaitTimeout(t *testing.T) {
	n := eventNode(t)
	l, err := NewEventListener(n, "memory.usage_in_bytes")
	require.NoError(t, err)
	defer l.Close()
	require.NoError(t, l.Register("4194304"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, n.Exists())

	_, err = l.Wait(context.Background())
	assert.ErrorIs(t, err, ErrExhausted)
}
