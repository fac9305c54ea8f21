package fold

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tokenfold/tokenfold/internal/message"
	"github.com/tokenfold/tokenfold/internal/token"
)

// LLMClient is the interface for calling an LLM. Transport, auth, and retry
// behavior belong to the implementation.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// SummarizeOptions control a single summarization.
type SummarizeOptions struct {
	// MaxSummaryTokens bounds the generated summary.
	MaxSummaryTokens int

	// PreserveErrorDetails includes matched error facts in rule-based tags.
	PreserveErrorDetails bool

	// Provider and Model select the tokenizer; Estimator overrides that
	// resolution when set.
	Provider  string
	Model     string
	Estimator *token.Estimator
}

func (o SummarizeOptions) normalize() SummarizeOptions {
	if o.MaxSummaryTokens <= 0 {
		o.MaxSummaryTokens = DefaultMaxSummaryTokens
	}
	return o
}

func (o SummarizeOptions) estimator() *token.Estimator {
	if o.Estimator != nil {
		return o.Estimator
	}
	return token.Default().ForModel(o.Provider, o.Model)
}

// SummaryResult is one summarization outcome.
type SummaryResult struct {
	Text              string
	Tokens            int
	MessagesProcessed int
	Mode              Mode
}

// Summarizer compresses dropped messages into retained text. Summarization
// is best-effort: implementations degrade rather than fail, and the returned
// error exists only for future strategies that genuinely cannot degrade.
type Summarizer interface {
	Summarize(ctx context.Context, msgs []message.Message, opts SummarizeOptions) (SummaryResult, error)
}

// NewSummarizer selects the strategy for mode. ModeLLM without a client
// degrades to the rule-based strategy.
func NewSummarizer(mode Mode, client LLMClient) Summarizer {
	if mode == ModeLLM && client != nil {
		return NewModelSummarizer(client)
	}
	return RuleSummarizer{}
}

// RuleSummarizer produces deterministic, offline summaries from per-tool
// heuristics. It never returns an error.
type RuleSummarizer struct{}

var _ Summarizer = RuleSummarizer{}

// userVerbatimLimit is how many characters of a user message are carried
// into the summary verbatim.
const userVerbatimLimit = 100

// Summarize renders tool results as bracketed fact tags and user messages
// verbatim, newline-joined under a count header.
func (RuleSummarizer) Summarize(_ context.Context, msgs []message.Message, opts SummarizeOptions) (SummaryResult, error) {
	opts = opts.normalize()

	var lines []string
	toolResults := 0
	for _, m := range msgs {
		switch m.Role {
		case message.RoleTool:
			lines = append(lines, summarizeToolResult(m, opts.PreserveErrorDetails))
			toolResults++
		case message.RoleUser:
			lines = append(lines, "user: "+truncateRunes(m.Content, userVerbatimLimit))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Summarized %d tool results:", toolResults)
	for _, line := range lines {
		b.WriteString("\n")
		b.WriteString(line)
	}
	text := b.String()

	return SummaryResult{
		Text:              text,
		Tokens:            opts.estimator().CountText(text),
		MessagesProcessed: len(msgs),
		Mode:              ModeRule,
	}, nil
}

// summarizeToolResult renders one tool result as a one-line fact tag, e.g.
// [✓ read_file: 120 lines | 4311 bytes] or [❌ execute_bash: error: failed |
// 3 output lines].
func summarizeToolResult(m message.Message, preserveErrors bool) string {
	name := m.Name
	if name == "" {
		name = "tool"
	}
	content := m.Content
	isErr := containsErrorIndicator(content)

	var facts []string
	if isErr && preserveErrors {
		facts = append(facts, "error: "+firstErrorIndicator(content))
	}
	switch name {
	case toolReadFile:
		facts = append(facts, fmt.Sprintf("%d lines", countLines(content)))
		facts = append(facts, fmt.Sprintf("%d bytes", len(content)))
		if strings.Contains(strings.ToLower(content), "export") {
			facts = append(facts, "has exports")
		}
	case toolExecuteBash:
		facts = append(facts, fmt.Sprintf("%d output lines", countLines(content)))
	case toolSearchFiles:
		facts = append(facts, fmt.Sprintf("%d matches", countLines(content)))
	case toolWriteFile, toolStringReplace:
		facts = append(facts, fmt.Sprintf("%d lines written", countLines(content)))
	default:
		facts = append(facts, fmt.Sprintf("%d lines", countLines(content)))
	}

	marker := "✓"
	if isErr {
		marker = "❌"
	}
	return fmt.Sprintf("[%s %s: %s]", marker, name, strings.Join(facts, " | "))
}

// ModelSummarizer asks a model backend to compress messages, substituting
// the rule-based result whenever the call cannot or should not be made.
type ModelSummarizer struct {
	client   LLMClient
	fallback RuleSummarizer
}

var _ Summarizer = (*ModelSummarizer)(nil)

// NewModelSummarizer creates a ModelSummarizer around the given client.
func NewModelSummarizer(client LLMClient) *ModelSummarizer {
	return &ModelSummarizer{client: client}
}

const (
	// perMessageChars bounds each message's contribution to the combined
	// block sent for summarization.
	perMessageChars = 500

	// contextBudgetFactor: a combined block above this multiple of the
	// summary budget skips the model call entirely, so one summary never
	// spends a model call on an unbounded amount of context.
	contextBudgetFactor = 3
)

const summarizeSystemPrompt = `You are a conversation summarizer. Create a concise, accurate summary of the provided messages that preserves all important technical details, decisions, and context. The summary will replace the original messages in the conversation history.

Format your response as plain text. Include:
- Key decisions made
- Important technical details
- Context needed to continue the work
- File paths, function names, and other specific references`

// Summarize sends the combined block to the model; any failure, empty
// response, or oversized context falls back to the rule-based strategy.
// The fallback is an explicit sequential attempt so both paths stay equally
// visible.
func (s *ModelSummarizer) Summarize(ctx context.Context, msgs []message.Message, opts SummarizeOptions) (SummaryResult, error) {
	opts = opts.normalize()
	if s.client == nil {
		return s.fallback.Summarize(ctx, msgs, opts)
	}

	est := opts.estimator()
	block := combineForSummary(msgs)
	if est.CountText(block) > contextBudgetFactor*opts.MaxSummaryTokens {
		slog.Debug("Summary context too large for a model call, using rule-based summary",
			"context_tokens", est.CountText(block),
			"summary_budget", opts.MaxSummaryTokens)
		return s.fallback.Summarize(ctx, msgs, opts)
	}

	userPrompt := fmt.Sprintf("Summarize the following conversation slice in at most %d tokens.\n\n%s",
		opts.MaxSummaryTokens, block)

	text, err := s.client.Complete(ctx, summarizeSystemPrompt, userPrompt)
	if err != nil {
		slog.Warn("Model summarization failed, using rule-based summary", "err", err)
		return s.fallback.Summarize(ctx, msgs, opts)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		slog.Warn("Model returned an empty summary, using rule-based summary")
		return s.fallback.Summarize(ctx, msgs, opts)
	}

	return SummaryResult{
		Text:              text,
		Tokens:            est.CountText(text),
		MessagesProcessed: len(msgs),
		Mode:              ModeLLM,
	}, nil
}

// combineForSummary renders messages as role-prefixed blocks, each bounded
// to perMessageChars runes.
func combineForSummary(msgs []message.Message) string {
	var b strings.Builder
	b.WriteString("<messages>\n")
	for _, m := range msgs {
		content := truncateRunes(m.Content, perMessageChars)
		if content == "" && m.HasToolCalls() {
			names := make([]string, len(m.ToolCalls))
			for i, call := range m.ToolCalls {
				names[i] = call.Name
			}
			content = "[tool calls: " + strings.Join(names, ", ") + "]"
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, content)
	}
	b.WriteString("</messages>")
	return b.String()
}
