//go:build linux

package cgroup

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Scan builds the tree of one controller's hierarchy, depth first with
// children in name order. Groups removed while the scan runs are left out.
func Scan(mounts *MountTable, controller string, filters ...string) (*Node, error) {
	ctrl, mountPoint, err := mounts.Resolve(controller)
	if err != nil {
		return nil, err
	}
	return ScanFrom(ctrl, mountPoint, mountPoint, filters...)
}

// readDir lists a group directory; tests replace it to remove groups
// between listing and descent.
var readDir = os.ReadDir

// ScanFrom builds the subtree rooted at absPath. Only a failure on absPath
// itself fails the scan; a child group that cannot be read is logged and
// left out together with its subtree.
func ScanFrom(ctrl *Controller, mountPoint, absPath string, filters ...string) (*Node, error) {
	root, err := NewNode(ctrl, mountPoint, absPath, filters...)
	if err != nil {
		return nil, err
	}
	if err := scanChildren(root, filters); err != nil {
		return nil, err
	}
	return root, nil
}

func scanChildren(parent *Node, filters []string) error {
	entries, err := readDir(parent.AbsPath)
	if err != nil {
		if isMissing(err) {
			return nil
		}
		return errors.Wrapf(err, "list %s", parent.AbsPath)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		abs := filepath.Join(parent.AbsPath, name)
		fields := log.Fields{"controller": parent.Controller.Name, "path": abs}
		child, err := NewNode(parent.Controller, parent.MountPoint, abs, filters...)
		if err != nil {
			if isMissing(err) {
				log.WithFields(fields).Warn("group vanished during scan")
			} else {
				log.WithFields(fields).WithError(err).Warn("skipping unreadable group")
			}
			continue
		}
		if err := scanChildren(child, filters); err != nil {
			log.WithFields(fields).WithError(err).Warn("skipping unreadable group")
			continue
		}
		parent.Children = append(parent.Children, child)
	}
	return nil
}

// Walk calls fn for every node of the tree, parents before children.
// Returning false from fn skips the node's subtree.
func Walk(root *Node, fn func(*Node) bool) {
	if root == nil || !fn(root) {
		return
	}
	for _, c := range root.Children {
		Walk(c, fn)
	}
}

// Flatten lists the tree in walk order.
func Flatten(root *Node) []*Node {
	var out []*Node
	Walk(root, func(n *Node) bool {
		out = append(out, n)
		return true
	})
	return out
}

// Find returns the node with the given hierarchy path ("/" for the root).
func Find(root *Node, path string) (*Node, bool) {
	path = filepath.Clean("/" + path)
	var found *Node
	Walk(root, func(n *Node) bool {
		if found != nil {
			return false
		}
		if n.Path == path {
			found = n
			return false
		}
		return true
	})
	return found, found != nil
}
