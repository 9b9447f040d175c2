//go:build linux

package main

import (
	"encoding/json"
	"io"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type outputFlags struct {
	json bool
	yaml bool
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&o.json, "json", "j", false, "dump as JSON")
	cmd.Flags().BoolVar(&o.yaml, "yaml", false, "dump as YAML")
	cmd.MarkFlagsMutuallyExclusive("json", "yaml")
}

func (o *outputFlags) structured() bool { return o.json || o.yaml }

// dump writes v as indented JSON or YAML, whichever was requested.
func (o *outputFlags) dump(w io.Writer, v any) error {
	if o.yaml {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return errors.Wrap(enc.Encode(v), "encode json")
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}
