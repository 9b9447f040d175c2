//go:build linux

package cgroup

import (
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// rmdir removes an empty group directory. Tests swap it for os.RemoveAll
// since regular directories are not emptied by the kernel.
var rmdir = os.Remove

func isMissing(err error) bool { return errors.Is(err, fs.ErrNotExist) }

func isUnsupported(err error) bool {
	return errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOTSUP)
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// writeChunks writes every chunk with its own write(2) on one descriptor.
// Writing an empty list still truncates, which is what clearing a rule
// file in a scratch tree looks like.
func writeChunks(path string, chunks []string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return writeErr(path, err)
	}
	defer f.Close()
	for _, c := range chunks {
		if _, err := f.WriteString(c); err != nil {
			return writeErr(path, err)
		}
	}
	return nil
}

// appendString performs one appending write, as cgroup.procs and
// cgroup.event_control expect.
func appendString(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return writeErr(path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(s); err != nil {
		return writeErr(path, err)
	}
	return nil
}

// writePid moves one pid into the group at dir.
func writePid(dir string, pid int) error {
	return appendString(filepath.Join(dir, "cgroup.procs"), strconv.Itoa(pid)+"\n")
}

func writeErr(path string, err error) error {
	if isUnsupported(err) {
		return errors.Wrapf(ErrUnsupported, "write %s: %v", path, err)
	}
	return errors.Wrapf(err, "write %s", path)
}
