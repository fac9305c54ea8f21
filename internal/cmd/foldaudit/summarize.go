package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tokenfold/tokenfold/internal/fold"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <conversation.json>",
	Short: "Summarize a conversation's tool results",
	Long:  "Produce the rule-based summary the pipeline would retain if this conversation were folded, printing the summary text to stdout.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, cfg, err := loadInputs(cmd, args[0])
		if err != nil {
			return err
		}

		maxTokens, _ := cmd.Flags().GetInt("max-tokens")
		if maxTokens <= 0 {
			maxTokens = cfg.MaxSummaryTokens
		}
		provider, _ := cmd.Flags().GetString("provider")
		model, _ := cmd.Flags().GetString("model")

		res, err := fold.RuleSummarizer{}.Summarize(cmd.Context(), conv, fold.SummarizeOptions{
			MaxSummaryTokens:     maxTokens,
			PreserveErrorDetails: cfg.PreserveErrorDetails,
			Provider:             provider,
			Model:                model,
		})
		if err != nil {
			return err
		}

		cmd.Println(res.Text)
		cmd.PrintErrf("foldaudit summarize: %d messages -> %s tokens (budget %s)\n",
			res.MessagesProcessed,
			humanize.Comma(int64(res.Tokens)),
			humanize.Comma(int64(maxTokens)))
		return nil
	},
}

func init() {
	summarizeCmd.Flags().Int("max-tokens", 0, "Summary token budget (default: from the configuration)")

	rootCmd.AddCommand(summarizeCmd)
}
