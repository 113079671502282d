package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"normalize/internal/config"
	"normalize/internal/probe"
)

var probeOpts struct {
	maxBytes int64
	maxRows  int
	ratio    float64
	columns  bool
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Sample the source of a pipeline and draft its resource schema",
	Long: `probe reads the start of the configured source, infers field types with
the same coercion rules a run applies, and prints a draft of the resource,
parser header_map and candidate groups as JSON. The pipeline only needs a
source and a parser.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := config.Load(flags.config)
		if err != nil {
			return err
		}
		res, err := probe.Source(cmd.Context(), p.Source, p.Parser, p.Resource.Name, probe.Options{
			MaxBytes:   probeOpts.maxBytes,
			MaxRows:    probeOpts.maxRows,
			GroupRatio: probeOpts.ratio,
		})
		if err != nil {
			return err
		}
		return printDraft(cmd, res)
	},
}

func init() {
	f := probeCmd.Flags()
	f.Int64Var(&probeOpts.maxBytes, "max-bytes", 4<<20, "bytes sampled from the start of the source")
	f.IntVar(&probeOpts.maxRows, "max-rows", 10_000, "records sampled")
	f.Float64Var(&probeOpts.ratio, "group-ratio", 0.1, "largest distinct/rows ratio of a suggested group")
	f.BoolVar(&probeOpts.columns, "columns", false, "also print per-column statistics")
	RootCmd.AddCommand(probeCmd)
}

func printDraft(cmd *cobra.Command, res probe.Result) error {
	type draftParser struct {
		Options config.Options `json:"options,omitempty"`
	}
	type draftNormalize struct {
		Groups []config.Group `json:"groups"`
	}
	out := struct {
		Parser    *draftParser    `json:"parser,omitempty"`
		Resource  config.Resource `json:"resource"`
		Normalize draftNormalize  `json:"normalize"`
		Rows      int             `json:"sampled_rows"`
		Columns   []probe.Column  `json:"columns,omitempty"`
	}{
		Resource:  res.Resource,
		Normalize: draftNormalize{Groups: res.Groups},
		Rows:      res.Rows,
	}
	if len(res.HeaderMap) > 0 {
		out.Parser = &draftParser{Options: config.Options{"header_map": res.HeaderMap}}
	}
	if probeOpts.columns {
		out.Columns = res.Columns
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("probe: render: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
