//go:build linux

package cgroup

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

type eventArg uint8

const (
	argNone eventArg = iota
	argThreshold
	argLevel
)

// eventTargets lists the control files that accept notifications.
var eventTargets = map[string]eventArg{
	"memory.usage_in_bytes":       argThreshold,
	"memory.memsw.usage_in_bytes": argThreshold,
	"memory.oom_control":          argNone,
	"memory.pressure_level":       argLevel,
}

var pressureLevels = map[string]bool{"low": true, "medium": true, "critical": true}

// EventListener is a single-shot subscription to one kernel notification
// on a memory control file.
//
// The eventfd is non-blocking and served by the runtime poller, so Wait
// honours context cancellation. A Wait abandoned that way keeps the kernel
// registration alive until Close.
type EventListener struct {
	node   *Node
	target string
	kind   eventArg

	efdNum int
	efd    *os.File
	tfd    *os.File

	mu       sync.Mutex
	consumed bool
}

// NewEventListener opens target (e.g. "memory.usage_in_bytes") of node and
// creates the eventfd.
func NewEventListener(node *Node, target string) (*EventListener, error) {
	kind, ok := eventTargets[target]
	if !ok {
		return nil, errors.Wrap(ErrUnsupportedEvent, target)
	}
	tfd, err := os.Open(filepath.Join(node.AbsPath, target))
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", target)
	}
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = tfd.Close()
		return nil, errors.Wrap(err, "eventfd")
	}
	return &EventListener{
		node:   node,
		target: target,
		kind:   kind,
		efdNum: fd,
		efd:    os.NewFile(uintptr(fd), "eventfd"),
		tfd:    tfd,
	}, nil
}

// Target is the control file the listener watches.
func (l *EventListener) Target() string { return l.target }

// Register arms the notification. Usage targets take a threshold in
// bytes, memory.pressure_level takes low, medium or critical, and
// memory.oom_control takes no argument.
func (l *EventListener) Register(arg string) error {
	switch l.kind {
	case argNone:
		if arg != "" {
			return errors.Wrapf(ErrUnsupportedEvent, "%s takes no argument", l.target)
		}
	case argThreshold:
		if _, err := strconv.ParseUint(arg, 10, 64); err != nil {
			return errors.Wrapf(ErrUnsupportedEvent, "%s needs a byte threshold, got %q", l.target, arg)
		}
	case argLevel:
		if !pressureLevels[arg] {
			return errors.Wrapf(ErrUnsupportedEvent, "%s needs low, medium or critical, got %q", l.target, arg)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	rec := registrationRecord(l.efdNum, int(l.tfd.Fd()), arg)
	if err := appendString(filepath.Join(l.node.AbsPath, "cgroup.event_control"), rec); err != nil {
		return err
	}
	log.WithFields(log.Fields{"path": l.node.AbsPath, "target": l.target, "arg": arg}).Debug("event registered")
	return nil
}

func registrationRecord(efd, tfd int, arg string) string {
	rec := fmt.Sprintf("%d %d", efd, tfd)
	if arg != "" {
		rec += " " + arg
	}
	return rec + "\x00"
}

// Wait blocks until the kernel signals the event and returns the eventfd
// counter. The listener is spent by its first Wait, whatever the outcome;
// later calls fail with ErrExhausted.
func (l *EventListener) Wait(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	if l.consumed {
		l.mu.Unlock()
		return 0, ErrExhausted
	}
	l.consumed = true
	l.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = l.efd.SetReadDeadline(time.Now())
	})
	defer stop()

	var buf [8]byte
	if _, err := l.efd.Read(buf[:]); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) && ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, errors.Wrap(err, "read eventfd")
	}
	return binary.NativeEndian.Uint64(buf[:]), nil
}

// Close releases the eventfd, which also drops the kernel registration.
func (l *EventListener) Close() error {
	err := l.efd.Close()
	if terr := l.tfd.Close(); err == nil {
		err = terr
	}
	return err
}
