package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"normalize/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a pipeline config and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := loadPipeline(flags.config, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %s\n", flags.config)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(validateCmd)
}

// loadPipeline reads and validates the pipeline at path. Every issue is
// printed to w; any error-severity issue fails the load.
func loadPipeline(path string, w io.Writer) (*config.Pipeline, error) {
	p, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	issues := config.ValidatePipeline(*p)
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return nil, fmt.Errorf("configuration is invalid: %s", path)
	}
	return p, nil
}
