package fold

import (
	"math"

	"github.com/tokenfold/tokenfold/internal/message"
	"github.com/tokenfold/tokenfold/internal/token"
)

// BudgetReport compares a conversation's estimated size against the input
// budget derived from a Config.
type BudgetReport struct {
	MaxInputTokens int
	CurrentTokens  int

	// AvailableTokens is signed: negative when the conversation is already
	// over budget.
	AvailableTokens int

	WithinBudget bool

	// Utilization is the percentage of the input budget in use, rounded to
	// the nearest integer. May exceed 100.
	Utilization int
}

// ComputeMaxInputTokens returns the token budget available for request
// input: the context window minus the reservation for model output. Sane
// configurations keep this positive; callers own that contract.
func ComputeMaxInputTokens(cfg Config) int {
	cfg = cfg.normalize()
	return cfg.MaxContextTokens - cfg.ReservedOutputTokens
}

// CheckBudget estimates the conversation with the tokenizer selected for
// provider/model and reports how it sits against the input budget.
func CheckBudget(msgs []message.Message, cfg Config, provider, model string) BudgetReport {
	return checkBudget(msgs, cfg, token.Default().ForModel(provider, model))
}

func checkBudget(msgs []message.Message, cfg Config, est *token.Estimator) BudgetReport {
	maxInput := ComputeMaxInputTokens(cfg)
	current := est.CountMessages(msgs)

	report := BudgetReport{
		MaxInputTokens:  maxInput,
		CurrentTokens:   current,
		AvailableTokens: maxInput - current,
		WithinBudget:    current <= maxInput,
	}
	if maxInput > 0 {
		report.Utilization = int(math.Round(float64(current) / float64(maxInput) * 100))
	}
	return report
}
