package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tokenfold/tokenfold/internal/fold"
	"github.com/tokenfold/tokenfold/internal/message"
	"github.com/tokenfold/tokenfold/internal/token"
)

var errOverBudget = errors.New("over budget")

// largestReported is how many of the most expensive messages check lists.
const largestReported = 3

type roleTotal struct {
	role     message.Role
	messages int
	tokens   int
}

type messageCost struct {
	index  int
	role   message.Role
	tool   string
	tokens int
}

var checkCmd = &cobra.Command{
	Use:   "check <conversation.json>",
	Short: "Report a conversation's budget utilization",
	Long:  "Report how a conversation JSON file sits against the input token budget, with per-role totals and the most expensive messages.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, cfg, err := loadInputs(cmd, args[0])
		if err != nil {
			return err
		}

		provider, _ := cmd.Flags().GetString("provider")
		model, _ := cmd.Flags().GetString("model")
		est := token.Default().ForModel(provider, model)

		report := fold.CheckBudget(conv, cfg, provider, model)
		printBudgetReport(cmd, conv, report, est)

		if !report.WithinBudget {
			return errOverBudget
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

// loadInputs reads the conversation file named by arg and the YAML
// configuration from the persistent --config flag.
func loadInputs(cmd *cobra.Command, conversationPath string) ([]message.Message, fold.Config, error) {
	conv, err := loadConversation(conversationPath)
	if err != nil {
		return nil, fold.Config{}, err
	}

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fold.Config{}, err
	}
	return conv, cfg, nil
}

func loadConversation(path string) ([]message.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading conversation %q: %w", path, err)
	}

	var conv []message.Message
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("parsing conversation %q: %w", path, err)
	}
	return conv, nil
}

// loadConfig parses a YAML pipeline configuration; an empty path selects
// the defaults.
func loadConfig(path string) (fold.Config, error) {
	if path == "" {
		return fold.DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fold.Config{}, fmt.Errorf("reading config %q: %w", path, err)
	}

	cfg := fold.DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fold.Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}

func printBudgetReport(cmd *cobra.Command, conv []message.Message, report fold.BudgetReport, est *token.Estimator) {
	verdict := "within budget"
	if !report.WithinBudget {
		verdict = "over budget"
	}
	cmd.Printf("foldaudit check: %s\n", verdict)
	cmd.Printf("  messages:    %d\n", len(conv))
	cmd.Printf("  tokens:      %s of %s (%d%%)\n",
		humanize.Comma(int64(report.CurrentTokens)),
		humanize.Comma(int64(report.MaxInputTokens)),
		report.Utilization)
	cmd.Printf("  available:   %s\n", humanize.Comma(int64(report.AvailableTokens)))
	cmd.Printf("  tokenizer:   %s\n", est.Name())

	if !fold.ValidateMessageList(conv) {
		cmd.Println("  note: sequence violates chat-backend ordering constraints")
	}

	if len(conv) == 0 {
		return
	}

	cmd.Println("\nby role:")
	for _, rt := range roleTotals(conv, est) {
		cmd.Printf("  %-10s %3d  %s tokens\n", rt.role, rt.messages, humanize.Comma(int64(rt.tokens)))
	}

	cmd.Println("\nlargest messages:")
	for _, mc := range largestMessages(conv, est, largestReported) {
		label := string(mc.role)
		if mc.tool != "" {
			label += " (" + mc.tool + ")"
		}
		cmd.Printf("  #%-3d %-22s %s tokens\n", mc.index, label, humanize.Comma(int64(mc.tokens)))
	}
}

// roleTotals sums message counts and token costs per role, ordered
// system, user, assistant, tool.
func roleTotals(conv []message.Message, est *token.Estimator) []roleTotal {
	order := []message.Role{message.RoleSystem, message.RoleUser, message.RoleAssistant, message.RoleTool}
	byRole := make(map[message.Role]*roleTotal, len(order))
	for _, m := range conv {
		rt, ok := byRole[m.Role]
		if !ok {
			rt = &roleTotal{role: m.Role}
			byRole[m.Role] = rt
		}
		rt.messages++
		rt.tokens += est.CountMessage(m)
	}

	out := make([]roleTotal, 0, len(byRole))
	for _, role := range order {
		if rt, ok := byRole[role]; ok {
			out = append(out, *rt)
		}
	}
	return out
}

// largestMessages returns the n most expensive messages, ties broken by
// original position.
func largestMessages(conv []message.Message, est *token.Estimator, n int) []messageCost {
	costs := make([]messageCost, 0, len(conv))
	for i, m := range conv {
		mc := messageCost{index: i, role: m.Role, tokens: est.CountMessage(m)}
		if m.Role == message.RoleTool {
			mc.tool = m.Name
		} else if m.HasToolCalls() {
			mc.tool = m.ToolCalls[0].Name
		}
		costs = append(costs, mc)
	}

	sort.SliceStable(costs, func(a, b int) bool {
		if costs[a].tokens != costs[b].tokens {
			return costs[a].tokens > costs[b].tokens
		}
		return costs[a].index < costs[b].index
	})

	if len(costs) > n {
		costs = costs[:n]
	}
	return costs
}
