// Package fold keeps a conversation inside its model context window. It
// sanitizes message sequences, scores and trims them against a token budget,
// summarizes what was dropped, and assembles the final prompt, failing only
// when no arrangement fits.
//
// The entry point for callers is BuildFinalPrompt; CheckBudget,
// TrimConversation, EnforceContextLimit, SanitizeMessages, and
// ValidateMessageList are exposed for partial control.
package fold

import "strings"

// Strategy selects how the trimmer scores removal candidates.
type Strategy string

const (
	// StrategyPriority scores messages by role, recency, error content, and
	// active-file signals.
	StrategyPriority Strategy = "priority"

	// StrategyAge scores messages purely by recency; oldest leave first
	// regardless of role. System messages are still never removed.
	StrategyAge Strategy = "age"
)

// Mode selects the summarization strategy.
type Mode string

const (
	// ModeRule is the deterministic, offline per-tool summarizer.
	ModeRule Mode = "rule"

	// ModeLLM asks a model backend for the summary, falling back to
	// ModeRule on any failure.
	ModeLLM Mode = "llm"
)

const (
	// DefaultMaxContextTokens is the assumed context window when the
	// configuration does not name one.
	DefaultMaxContextTokens = 128000

	// DefaultReservedOutputTokens is held back from the window for model
	// output.
	DefaultReservedOutputTokens = 4096

	// DefaultPreserveRecentTurns is how many recent steps of user and
	// assistant messages keep elevated priority.
	DefaultPreserveRecentTurns = 5

	// DefaultMaxSummaryTokens bounds generated summaries.
	DefaultMaxSummaryTokens = 500

	// DefaultMaxAgeSteps is the age horizon for StrategyAge.
	DefaultMaxAgeSteps = 20

	// DefaultToolOutputTokenCap is the size above which a low-priority tool
	// result is replaced by a placeholder.
	DefaultToolOutputTokenCap = 200

	// DefaultSmallOutputTokens is the size at or below which a tool result
	// is exempt from placeholder replacement.
	DefaultSmallOutputTokens = 100
)

// DefaultPlaceholderTemplate is substituted for pruned tool results. {age}
// expands to the message's age in steps and {tokens} to its original token
// estimate.
const DefaultPlaceholderTemplate = "[Tool result pruned: ~{tokens} tokens, {age} steps old]"

// Config is the flat option set consumed by the budget, trimmer, and prompt
// builder. Numeric and string zero values mean "use the default"; boolean
// options are only defaulted by DefaultConfig, so compose custom
// configurations from it.
type Config struct {
	MaxContextTokens     int      `json:"max_context_tokens,omitempty" yaml:"max_context_tokens,omitempty"`
	ReservedOutputTokens int      `json:"reserved_output_tokens,omitempty" yaml:"reserved_output_tokens,omitempty"`
	PreserveRecentTurns  int      `json:"preserve_recent_turns,omitempty" yaml:"preserve_recent_turns,omitempty"`
	TrimStrategy         Strategy `json:"trim_strategy,omitempty" yaml:"trim_strategy,omitempty"`
	SummarizeOnTruncate  bool     `json:"summarize_on_truncate,omitempty" yaml:"summarize_on_truncate,omitempty"`
	MaxSummaryTokens     int      `json:"max_summary_tokens,omitempty" yaml:"max_summary_tokens,omitempty"`
	PreserveErrorDetails bool     `json:"preserve_error_details,omitempty" yaml:"preserve_error_details,omitempty"`
	SummarizationMode    Mode     `json:"summarization_mode,omitempty" yaml:"summarization_mode,omitempty"`
}

// DefaultConfig returns the fully populated default configuration.
func DefaultConfig() Config {
	return Config{
		MaxContextTokens:     DefaultMaxContextTokens,
		ReservedOutputTokens: DefaultReservedOutputTokens,
		PreserveRecentTurns:  DefaultPreserveRecentTurns,
		TrimStrategy:         StrategyPriority,
		SummarizeOnTruncate:  false,
		MaxSummaryTokens:     DefaultMaxSummaryTokens,
		PreserveErrorDetails: true,
		SummarizationMode:    ModeRule,
	}
}

// normalize fills numeric and string zero values with defaults. Boolean
// fields are left as given.
func (c Config) normalize() Config {
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = DefaultMaxContextTokens
	}
	if c.ReservedOutputTokens <= 0 {
		c.ReservedOutputTokens = DefaultReservedOutputTokens
	}
	if c.PreserveRecentTurns <= 0 {
		c.PreserveRecentTurns = DefaultPreserveRecentTurns
	}
	if c.TrimStrategy == "" {
		c.TrimStrategy = StrategyPriority
	}
	if c.MaxSummaryTokens <= 0 {
		c.MaxSummaryTokens = DefaultMaxSummaryTokens
	}
	if c.SummarizationMode == "" {
		c.SummarizationMode = ModeRule
	}
	return c
}

// Tool names the pipeline knows how to inspect.
const (
	toolReadFile      = "read_file"
	toolWriteFile     = "write_file"
	toolStringReplace = "string_replace"
	toolExecuteBash   = "execute_bash"
	toolSearchFiles   = "search_files"
)

// errorIndicators are the lowercase substrings that mark a tool result as
// an error worth preserving.
var errorIndicators = []string{"error", "exception", "failed", "fatal", "cannot", "unable to"}

// containsErrorIndicator reports whether text matches the error heuristic.
func containsErrorIndicator(text string) bool {
	lower := strings.ToLower(text)
	for _, indicator := range errorIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// firstErrorIndicator returns the first matched error word, or "".
func firstErrorIndicator(text string) string {
	lower := strings.ToLower(text)
	for _, indicator := range errorIndicators {
		if strings.Contains(lower, indicator) {
			return indicator
		}
	}
	return ""
}

// truncateRunes shortens s to at most limit runes, marking the cut.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// countLines counts newline-delimited lines; empty text has none.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
