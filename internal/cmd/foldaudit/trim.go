package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tokenfold/tokenfold/internal/fold"
	"github.com/tokenfold/tokenfold/internal/message"
)

var trimCmd = &cobra.Command{
	Use:   "trim <conversation.json>",
	Short: "Trim a conversation to its input budget",
	Long:  "Run the context trimmer over a conversation JSON file and write the surviving sequence as JSON, with a drop report on stderr.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, cfg, err := loadInputs(cmd, args[0])
		if err != nil {
			return err
		}

		target, _ := cmd.Flags().GetInt("target")
		if target <= 0 {
			target = fold.ComputeMaxInputTokens(cfg)
		}

		res := fold.EnforceContextLimit(fold.SanitizeMessages(conv).Messages, target, trimOptionsFromFlags(cmd, cfg))

		if res.Truncated {
			cmd.PrintErrf("foldaudit trim: dropped %d of %d messages (%s -> %s tokens, target %s)\n",
				res.DroppedCount, len(conv),
				humanize.Comma(int64(res.OriginalTokens)),
				humanize.Comma(int64(res.FinalTokens)),
				humanize.Comma(int64(target)))
		} else {
			cmd.PrintErrf("foldaudit trim: nothing to do (%s tokens <= %s)\n",
				humanize.Comma(int64(res.OriginalTokens)),
				humanize.Comma(int64(target)))
		}

		outPath, _ := cmd.Flags().GetString("out")
		return writeConversation(cmd, outPath, res.Messages)
	},
}

func init() {
	trimCmd.Flags().Int("target", 0, "Target token count (default: input budget from the configuration)")
	trimCmd.Flags().String("strategy", "", "Trim strategy: priority or age (default: from the configuration)")
	trimCmd.Flags().StringP("out", "o", "", "Write the trimmed conversation to this file instead of stdout")

	rootCmd.AddCommand(trimCmd)
}

// trimOptionsFromFlags projects the configuration and command flags onto
// one trim invocation.
func trimOptionsFromFlags(cmd *cobra.Command, cfg fold.Config) fold.TrimOptions {
	opts := fold.DefaultTrimOptions()
	opts.PreserveErrors = cfg.PreserveErrorDetails
	opts.PreserveRecentTurns = cfg.PreserveRecentTurns
	opts.Strategy = cfg.TrimStrategy
	if strategy, _ := cmd.Flags().GetString("strategy"); strategy != "" {
		opts.Strategy = fold.Strategy(strategy)
	}
	opts.Provider, _ = cmd.Flags().GetString("provider")
	opts.Model, _ = cmd.Flags().GetString("model")
	return opts
}

// writeConversation marshals the sequence as indented JSON to path, or to
// stdout when path is empty.
func writeConversation(cmd *cobra.Command, path string, conv []message.Message) error {
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding trimmed conversation: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		cmd.Print(string(data))
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing trimmed conversation: %w", err)
	}
	return nil
}
