//go:build linux

package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ja7ad/cgutils/pkg/system/cgroup"
)

type mkdirOptions struct {
	applyAll  bool
	noInherit bool
}

func newMkdirCmd() *cobra.Command {
	var o mkdirOptions
	cmd := &cobra.Command{
		Use:   "mkdir [flags] <group_dir>",
		Short: "Create a group",
		Long: `mkdir creates a group directory. Parameters a new group cannot work
without, such as cpuset.cpus and cpuset.mems, are copied from the parent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMkdir(&o, args[0])
		},
	}
	cmd.Flags().BoolVarP(&o.applyAll, "apply-all", "a", false, "create the group in every enabled hierarchy")
	cmd.Flags().BoolVar(&o.noInherit, "no-inherit", false, "do not copy parameters from the parent")
	return cmd
}

func runMkdir(o *mkdirOptions, dir string) error {
	mounts, err := loadMounts()
	if err != nil {
		return err
	}
	dir = filepath.Clean(dir)
	targets := []string{dir}
	if o.applyAll {
		if targets, err = counterparts(mounts, dir); err != nil {
			return err
		}
	}

	for _, t := range targets {
		parent, err := cgroup.Open(mounts, filepath.Dir(t))
		if err != nil {
			return err
		}
		child, err := parent.Mkdir(filepath.Base(t), !o.noInherit)
		if err != nil {
			return err
		}
		log.WithField("group", child.String()).Debug("created")
	}
	return nil
}

type rmdirOptions struct {
	applyAll bool
}

func newRmdirCmd() *cobra.Command {
	var o rmdirOptions
	cmd := &cobra.Command{
		Use:   "rmdir [flags] <group_dir>",
		Short: "Remove a group, moving its processes to the parent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRmdir(&o, args[0])
		},
	}
	cmd.Flags().BoolVarP(&o.applyAll, "apply-all", "a", false, "remove the group from every enabled hierarchy")
	return cmd
}

func runRmdir(o *rmdirOptions, dir string) error {
	mounts, err := loadMounts()
	if err != nil {
		return err
	}
	dir = filepath.Clean(dir)
	targets := []string{dir}
	if o.applyAll {
		if targets, err = counterparts(mounts, dir); err != nil {
			return err
		}
	}

	// all groups must exist before anything is removed
	for _, t := range targets {
		fi, err := os.Stat(t)
		if err != nil {
			return errors.Wrapf(err, "%s not found", t)
		}
		if !fi.IsDir() {
			return errors.Errorf("%s is not a directory", t)
		}
	}

	for _, t := range targets {
		n, err := cgroup.Open(mounts, t)
		if err != nil {
			return err
		}
		if n.IsRoot() {
			return errors.Wrapf(cgroup.ErrRootOperation, "%s is a root group", t)
		}
		if err := n.Rmdir(nil); err != nil {
			return err
		}
	}
	return nil
}
