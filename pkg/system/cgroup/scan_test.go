//go:build linux

package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTree creates a complete tree of the given depth and branching
// factor below dir.
func buildTree(t *testing.T, dir string, depth, branch int) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "memory.usage_in_bytes"), []byte("0\n"), 0o644))
	if depth == 0 {
		return
	}
	for i := 0; i < branch; i++ {
		child := filepath.Join(dir, fmt.Sprintf("g%d", i))
		require.NoError(t, os.Mkdir(child, 0o755))
		buildTree(t, child, depth-1, branch)
	}
}

func TestScan_TreeShape(t *testing.T) {
	cases := []struct{ depth, branch int }{{1, 2}, {2, 3}, {3, 2}}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("depth%d_branch%d", tc.depth, tc.branch), func(t *testing.T) {
			mount := t.TempDir()
			buildTree(t, mount, tc.depth, tc.branch)

			root, err := ScanFrom(memoryController(t), mount, mount)
			require.NoError(t, err)

			want := 1
			for i, p := 0, 1; i < tc.depth; i++ {
				p *= tc.branch
				want += p
			}
			nodes := Flatten(root)
			assert.Len(t, nodes, want)

			seen := map[string]int{}
			for i, n := range nodes {
				seen[n.Path] = i
				for _, c := range n.Children {
					assert.Equal(t, n.Depth+1, c.Depth)
				}
			}
			assert.Len(t, seen, want, "paths are unique")

			// pre-order: every node precedes its descendants
			for _, n := range nodes {
				if n.IsRoot() {
					continue
				}
				parent := filepath.Dir(n.Path)
				assert.Less(t, seen[parent], seen[n.Path])
			}
		})
	}
}

func TestScan_SortedChildren(t *testing.T) {
	mount := t.TempDir()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, os.Mkdir(filepath.Join(mount, name), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(mount, "memory.stat"), []byte("rss 1\n"), 0o644))

	root, err := ScanFrom(memoryController(t), mount, mount)
	require.NoError(t, err)

	var names []string
	for _, c := range root.Children {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestScan_Controller(t *testing.T) {
	procRoot, cgRoot := fakeHost(t)
	mt, err := LoadMounts(procRoot)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(cgRoot, "memory", "a", "b"), 0o755))

	root, err := Scan(mt, "memory", "usage_in_bytes")
	require.NoError(t, err)

	n, ok := Find(root, "/a/b")
	require.True(t, ok)
	assert.Equal(t, 2, n.Depth)

	n, ok = Find(root, "a")
	require.True(t, ok)
	assert.Equal(t, "/a", n.Path)

	_, ok = Find(root, "/nope")
	assert.False(t, ok)

	_, err = Scan(mt, "blkio")
	assert.ErrorIs(t, err, ErrUnmounted)

	_, err = Scan(mt, "memory", "bogus")
	assert.ErrorIs(t, err, ErrUnknownControlFile)
}

func TestWalk_SkipSubtree(t *testing.T) {
	mount := t.TempDir()
	buildTree(t, mount, 2, 2)
	root, err := ScanFrom(memoryController(t), mount, mount)
	require.NoError(t, err)

	var visited []string
	Walk(root, func(n *Node) bool {
		visited = append(visited, n.Path)
		return n.Path != "/g0"
	})
	assert.Equal(t, []string{"/", "/g0", "/g1", "/g1/g0", "/g1/g1"}, visited)
}

func TestScan_SkipsBrokenSiblings(t *testing.T) {
	mount := t.TempDir()
	writeTree(t, mount, map[string]string{
		"good/cgroup.procs":          "1\n2\n",
		"good/memory.usage_in_bytes": "4096\n",
		"bad/cgroup.procs":           "12\nnot-a-pid\n",
		"bad/memory.usage_in_bytes":  "1\n",
		"odd/memory.usage_in_bytes":  "2\n",
		"odd/child/cgroup.procs":     "3\n",
		"zeta/memory.usage_in_bytes": "3\n",
		"zeta/sub/cgroup.procs":      "4\n",
	})
	// a control file the kernel would never serve as a directory
	require.NoError(t, os.Mkdir(filepath.Join(mount, "odd", "memory.stat"), 0o755))

	root, err := ScanFrom(memoryController(t), mount, mount)
	require.NoError(t, err)

	var paths []string
	for _, n := range Flatten(root) {
		paths = append(paths, n.Path)
	}
	assert.Equal(t, []string{"/", "/bad", "/good", "/zeta", "/zeta/sub"}, paths)

	bad, ok := Find(root, "/bad")
	require.True(t, ok)
	assert.Equal(t, []int{12}, bad.Pids)
	usage, ok := bad.Current().Int("usage_in_bytes")
	require.True(t, ok)
	assert.EqualValues(t, 1, usage)

	good, ok := Find(root, "/good")
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, good.Pids)
}

func TestScan_SkipsVanishedChild(t *testing.T) {
	mount := t.TempDir()
	for _, name := range []string{"gone", "kept"} {
		require.NoError(t, os.MkdirAll(filepath.Join(mount, name, "inner"), 0o755))
	}

	old := readDir
	readDir = func(name string) ([]os.DirEntry, error) {
		entries, err := old(name)
		if name == mount {
			// removed after listing, before descent
			require.NoError(t, os.RemoveAll(filepath.Join(mount, "gone")))
		}
		return entries, err
	}
	t.Cleanup(func() { readDir = old })

	root, err := ScanFrom(memoryController(t), mount, mount)
	require.NoError(t, err)

	var paths []string
	for _, n := range Flatten(root) {
		paths = append(paths, n.Path)
	}
	assert.Equal(t, []string{"/", "/kept", "/kept/inner"}, paths)
}
