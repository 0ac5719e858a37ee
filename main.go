package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags
var version = "dev"

var rootFlags struct {
	configPath string
}

var rootCmd = &cobra.Command{
	Use:   "a11y-lens",
	Short: "Accessibility analysis gateway",
	Long: "a11y-lens accepts HTML, CSS, JavaScript and TypeScript uploads or a URL,\n" +
		"forwards them to the analysis engine, and serves normalized results.",
	SilenceUsage: true,
	RunE:         runServe,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlags.configPath, "config", "c", "config.yaml", "YAML config file (optional)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(normalizeCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
