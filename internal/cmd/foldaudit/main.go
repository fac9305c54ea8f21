// foldaudit inspects conversation JSON files with the same pipeline the
// agent uses at request time: budget checks, trimming, and rule-based
// summarization.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "foldaudit",
	Short:         "Audit conversations against the context folding pipeline",
	Long:          "Audit conversation JSON files (arrays of chat messages) against the budget, trim, and summarization behavior used at request time.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML pipeline configuration")
	rootCmd.PersistentFlags().String("provider", "", "Provider name for tokenizer selection")
	rootCmd.PersistentFlags().String("model", "", "Model name for tokenizer selection")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "foldaudit: %v\n", err)
		os.Exit(1)
	}
}
