package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/a11y-lens/backend/normalizer"
)

var normalizeFlags struct {
	fallback bool
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize [file]",
	Short: "Convert a raw analysis response into canonical results",
	Long:  "Reads a raw analysis engine response from file, or stdin when no file\nis given, and prints the normalized results as JSON.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runNormalize,
}

func init() {
	normalizeCmd.Flags().BoolVar(&normalizeFlags.fallback, "fallback", false, "Print sample results instead of failing on malformed input")
}

func runNormalize(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	var results *normalizer.AnalysisResults
	if normalizeFlags.fallback {
		var used bool
		results, used = normalizer.NormalizeOrFallback(data, nil)
		if used {
			fmt.Fprintln(cmd.ErrOrStderr(), "input is malformed, printing sample results")
		}
	} else {
		results, err = normalizer.Normalize(data)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
