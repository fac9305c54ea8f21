package fold

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tokenfold/tokenfold/internal/message"
	"github.com/tokenfold/tokenfold/internal/token"
)

// PromptResult is the orchestrator's report: the final sequence to send and
// how it was produced.
type PromptResult struct {
	Messages     []message.Message
	TokenCount   int
	WithinBudget bool
	WasTrimmed   bool
	DroppedCount int
	Summarized   bool
}

// OverflowError reports a conversation that cannot fit its input budget
// even after trimming and summarization. It is the pipeline's only
// unrecoverable condition; everything below it degrades in place.
type OverflowError struct {
	CurrentTokens int
	MaxTokens     int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("conversation requires %d tokens but the input budget is %d; narrow the task scope or start a new session",
		e.CurrentTokens, e.MaxTokens)
}

// BuildOptions supply the orchestrator's collaborators. All fields are
// optional: the zero value selects the default tokenizer and disables
// summarization.
type BuildOptions struct {
	// Provider and Model select the tokenizer; Estimator overrides that
	// resolution when set.
	Provider  string
	Model     string
	Estimator *token.Estimator

	// Summarizer and Store enable summarize-on-truncate together with
	// Config.SummarizeOnTruncate.
	Summarizer Summarizer
	Store      *SummaryStore
}

func (o BuildOptions) estimator() *token.Estimator {
	if o.Estimator != nil {
		return o.Estimator
	}
	return token.Default().ForModel(o.Provider, o.Model)
}

// BuildFinalPrompt assembles the message sequence for one model request:
// sanitize, fit to the input budget, summarize what was dropped when
// configured, and re-inject the stored summary. It fails only when no
// arrangement fits.
func BuildFinalPrompt(ctx context.Context, msgs []message.Message, cfg Config, opts BuildOptions) (PromptResult, error) {
	cfg = cfg.normalize()
	est := opts.estimator()

	current := SanitizeMessages(msgs).Messages
	maxInput := ComputeMaxInputTokens(cfg)

	summaryReserve := 0
	summaryMsg, haveSummary := message.Message{}, false
	if opts.Store != nil {
		if sm, ok := opts.Store.SummaryMessage(); ok {
			summaryMsg, haveSummary = sm, true
			summaryReserve = est.CountMessage(sm)
		}
	}

	if est.CountMessages(current)+summaryReserve <= maxInput {
		final := current
		if haveSummary {
			final = prepend(summaryMsg, current)
		}
		return PromptResult{
			Messages:     final,
			TokenCount:   est.CountMessages(final),
			WithinBudget: true,
		}, nil
	}

	res := EnforceContextLimit(current, maxInput-summaryReserve, trimOptions(cfg, opts))

	summarized := false
	if cfg.SummarizeOnTruncate && opts.Summarizer != nil && opts.Store != nil && res.DroppedCount > 0 {
		if _, err := opts.Store.UpdateSummary(ctx, res.Dropped, opts.Summarizer, summarizeOptions(cfg, opts)); err != nil {
			slog.Warn("Summary update failed, continuing with previous summary",
				"dropped", res.DroppedCount, "err", err)
		} else {
			summarized = true
		}
	}

	final := res.Messages
	if opts.Store != nil {
		if sm, ok := opts.Store.SummaryMessage(); ok {
			final = prepend(sm, final)
		}
	}

	finalTokens := est.CountMessages(final)
	if finalTokens > maxInput {
		return PromptResult{}, &OverflowError{CurrentTokens: finalTokens, MaxTokens: maxInput}
	}

	return PromptResult{
		Messages:     final,
		TokenCount:   finalTokens,
		WithinBudget: true,
		WasTrimmed:   res.Truncated,
		DroppedCount: res.DroppedCount,
		Summarized:   summarized,
	}, nil
}

// trimOptions projects the flat configuration onto one trim invocation.
func trimOptions(cfg Config, opts BuildOptions) TrimOptions {
	return TrimOptions{
		PreserveErrors:       cfg.PreserveErrorDetails,
		PreserveSmallOutputs: true,
		PreserveRecentTurns:  cfg.PreserveRecentTurns,
		Strategy:             cfg.TrimStrategy,
		Provider:             opts.Provider,
		Model:                opts.Model,
		Estimator:            opts.Estimator,
	}
}

// summarizeOptions projects the flat configuration onto one summarization.
func summarizeOptions(cfg Config, opts BuildOptions) SummarizeOptions {
	return SummarizeOptions{
		MaxSummaryTokens:     cfg.MaxSummaryTokens,
		PreserveErrorDetails: cfg.PreserveErrorDetails,
		Provider:             opts.Provider,
		Model:                opts.Model,
		Estimator:            opts.Estimator,
	}
}

// prepend returns a new slice with msg at the front; the input is not
// modified.
func prepend(msg message.Message, msgs []message.Message) []message.Message {
	out := make([]message.Message, 0, len(msgs)+1)
	out = append(out, msg)
	return append(out, msgs...)
}
