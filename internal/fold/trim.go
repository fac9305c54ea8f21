package fold

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/tokenfold/tokenfold/internal/message"
	"github.com/tokenfold/tokenfold/internal/token"
)

// Priority tiers used by StrategyPriority. Higher survives longer.
const (
	prioritySystem          = 100
	priorityRecentUser      = 85
	priorityRecentAssistant = 80
	priorityToolError       = 75
	priorityToolFresh       = 55
	priorityToolAging       = 35
	priorityToolStale       = 20
	priorityDefault         = 40
	priorityAging           = 30
	priorityOld             = 15

	// placeholderPriorityCeiling: tool results at or above this score keep
	// their content through the placeholder pass.
	placeholderPriorityCeiling = 60

	// activeFileBoost raises tool results that touch a currently active
	// file; activeFileCeiling keeps them below the error-preservation and
	// recent-turn tiers.
	activeFileBoost   = 15
	activeFileCeiling = 70
)

// TrimOptions control a single trim invocation. Numeric and string zero
// values mean defaults; the boolean preservation flags are only enabled by
// DefaultTrimOptions, so compose custom options from it.
type TrimOptions struct {
	// MaxAgeSteps is the recency horizon for StrategyAge; older messages
	// drop to the floor priority.
	MaxAgeSteps int

	// ToolOutputTokenCap is the cost above which a low-priority tool result
	// is replaced by a placeholder.
	ToolOutputTokenCap int

	// PlaceholderTemplate may reference {age} and {tokens}.
	PlaceholderTemplate string

	// PreserveErrors keeps tool results matching the error heuristic at
	// elevated priority and exempts them from placeholder replacement.
	PreserveErrors bool

	// PreserveSmallOutputs exempts tool results at or under
	// SmallOutputTokens from placeholder replacement.
	PreserveSmallOutputs bool
	SmallOutputTokens    int

	// PreserveRecentTurns is the age window within which user and
	// assistant messages keep elevated priority.
	PreserveRecentTurns int

	Strategy Strategy

	// Provider and Model select the tokenizer; Estimator overrides that
	// resolution when set.
	Provider  string
	Model     string
	Estimator *token.Estimator
}

// DefaultTrimOptions returns the fully populated default options.
func DefaultTrimOptions() TrimOptions {
	return TrimOptions{
		MaxAgeSteps:          DefaultMaxAgeSteps,
		ToolOutputTokenCap:   DefaultToolOutputTokenCap,
		PlaceholderTemplate:  DefaultPlaceholderTemplate,
		PreserveErrors:       true,
		PreserveSmallOutputs: true,
		SmallOutputTokens:    DefaultSmallOutputTokens,
		PreserveRecentTurns:  DefaultPreserveRecentTurns,
		Strategy:             StrategyPriority,
	}
}

func (o TrimOptions) normalize() TrimOptions {
	if o.MaxAgeSteps <= 0 {
		o.MaxAgeSteps = DefaultMaxAgeSteps
	}
	if o.ToolOutputTokenCap <= 0 {
		o.ToolOutputTokenCap = DefaultToolOutputTokenCap
	}
	if o.PlaceholderTemplate == "" {
		o.PlaceholderTemplate = DefaultPlaceholderTemplate
	}
	if o.SmallOutputTokens <= 0 {
		o.SmallOutputTokens = DefaultSmallOutputTokens
	}
	if o.PreserveRecentTurns <= 0 {
		o.PreserveRecentTurns = DefaultPreserveRecentTurns
	}
	if o.Strategy == "" {
		o.Strategy = StrategyPriority
	}
	return o
}

func (o TrimOptions) estimator() *token.Estimator {
	if o.Estimator != nil {
		return o.Estimator
	}
	return token.Default().ForModel(o.Provider, o.Model)
}

// scoredMessage pairs a message with its trim bookkeeping for one
// invocation.
type scoredMessage struct {
	msg      message.Message
	index    int
	step     int
	age      int
	priority int
	tokens   int
}

// TrimResult reports one EnforceContextLimit pass.
type TrimResult struct {
	Messages       []message.Message
	Truncated      bool
	DroppedCount   int
	OriginalTokens int
	FinalTokens    int

	// Dropped holds the removed messages in original order, for downstream
	// summarization. Placeholder-replaced messages are not dropped.
	Dropped []message.Message
}

// TrimConversation reduces a sanitized sequence to the target token budget,
// preserving original relative order. Sequences already at or under target
// are returned unchanged. System messages are never removed, so a
// pathological oversized system prompt can leave the result over target;
// the hard ceiling belongs to BuildFinalPrompt.
func TrimConversation(msgs []message.Message, targetTokens int, opts TrimOptions) []message.Message {
	opts = opts.normalize()
	trimmed, _ := trim(msgs, targetTokens, opts, opts.estimator())
	return trimmed
}

// EnforceContextLimit trims msgs to maxTokens and reports what happened,
// including the literal dropped messages.
func EnforceContextLimit(msgs []message.Message, maxTokens int, opts TrimOptions) TrimResult {
	opts = opts.normalize()
	est := opts.estimator()

	original := est.CountMessages(msgs)
	if original <= maxTokens {
		return TrimResult{Messages: msgs, OriginalTokens: original, FinalTokens: original}
	}

	trimmed, kept := trim(msgs, maxTokens, opts, est)
	res := TrimResult{
		Messages:       trimmed,
		Truncated:      true,
		OriginalTokens: original,
		FinalTokens:    est.CountMessages(trimmed),
	}
	for i, m := range msgs {
		if _, ok := kept[i]; !ok {
			res.Dropped = append(res.Dropped, m)
		}
	}
	res.DroppedCount = len(res.Dropped)

	slog.Debug("Enforced context limit",
		"max_tokens", maxTokens,
		"original_tokens", original,
		"final_tokens", res.FinalTokens,
		"dropped", res.DroppedCount)
	return res
}

// trim runs the two-pass reduction and returns the survivors plus the set
// of original indexes that survived.
func trim(msgs []message.Message, targetTokens int, opts TrimOptions, est *token.Estimator) ([]message.Message, map[int]struct{}) {
	kept := make(map[int]struct{}, len(msgs))
	if est.CountMessages(msgs) <= targetTokens {
		for i := range msgs {
			kept[i] = struct{}{}
		}
		return msgs, kept
	}

	scored := scoreMessages(msgs, opts, est)

	// Pass 1: replace large, low-priority tool outputs with placeholders,
	// then re-estimate before deciding whether removal is needed at all.
	replaced := 0
	for _, sm := range scored {
		if !placeholderEligible(sm, opts) {
			continue
		}
		sm.msg = sm.msg.WithContent(renderPlaceholder(opts.PlaceholderTemplate, sm.age, sm.tokens))
		sm.tokens = est.CountMessage(sm.msg)
		replaced++
	}
	if replaced > 0 {
		slog.Debug("Replaced large tool outputs with placeholders", "count", replaced)
	}
	total := scoredTokens(scored, est)
	if total <= targetTokens {
		out := make([]message.Message, len(scored))
		for i, sm := range scored {
			out[i] = sm.msg
			kept[sm.index] = struct{}{}
		}
		return out, kept
	}

	// Pass 2: remove lowest priority first. System messages never leave,
	// even if that keeps the sequence over target.
	order := make([]*scoredMessage, len(scored))
	copy(order, scored)
	sort.SliceStable(order, func(a, b int) bool {
		if order[a].priority != order[b].priority {
			return order[a].priority < order[b].priority
		}
		return order[a].index < order[b].index
	})

	removed := make(map[int]struct{})
	for _, sm := range order {
		if total <= targetTokens {
			break
		}
		if sm.msg.Role == message.RoleSystem {
			continue
		}
		removed[sm.index] = struct{}{}
		total -= sm.tokens
	}

	out := make([]message.Message, 0, len(scored)-len(removed))
	for _, sm := range scored {
		if _, gone := removed[sm.index]; gone {
			continue
		}
		out = append(out, sm.msg)
		kept[sm.index] = struct{}{}
	}
	return out, kept
}

// scoreMessages tags every message with its step, age, priority, and token
// cost. Steps increment on each assistant message carrying tool calls; age
// is measured backward from the latest step.
func scoreMessages(msgs []message.Message, opts TrimOptions, est *token.Estimator) []*scoredMessage {
	steps := make([]int, len(msgs))
	step := 0
	for i, m := range msgs {
		if m.Role == message.RoleAssistant && m.HasToolCalls() {
			step++
		}
		steps[i] = step
	}
	totalSteps := step

	active := activeFiles(extractFileReferences(msgs), opts.PreserveRecentTurns)
	callPaths := make(map[string]string)
	for _, m := range msgs {
		for _, call := range m.ToolCalls {
			if path := filePathArg(call.Arguments); path != "" {
				callPaths[call.ID] = path
			}
		}
	}

	scored := make([]*scoredMessage, len(msgs))
	for i, m := range msgs {
		age := totalSteps - steps[i]
		scored[i] = &scoredMessage{
			msg:      m,
			index:    i,
			step:     steps[i],
			age:      age,
			tokens:   est.CountMessage(m),
			priority: scoreMessage(m, age, opts, active, callPaths),
		}
	}
	return scored
}

func scoreMessage(m message.Message, age int, opts TrimOptions, active map[string]struct{}, callPaths map[string]string) int {
	if m.Role == message.RoleSystem {
		return prioritySystem
	}

	if opts.Strategy == StrategyAge {
		if age > opts.MaxAgeSteps {
			return 1
		}
		p := 60 - 2*age
		if p < 1 {
			p = 1
		}
		return p
	}

	switch m.Role {
	case message.RoleUser:
		if age <= opts.PreserveRecentTurns {
			return priorityRecentUser
		}
	case message.RoleAssistant:
		if age <= opts.PreserveRecentTurns {
			return priorityRecentAssistant
		}
	case message.RoleTool:
		if opts.PreserveErrors && containsErrorIndicator(m.Content) {
			return priorityToolError
		}
		p := priorityToolStale
		switch {
		case age <= 2:
			p = priorityToolFresh
		case age <= 5:
			p = priorityToolAging
		}
		if touchesActiveFile(m, active, callPaths) {
			p += activeFileBoost
			if p > activeFileCeiling {
				p = activeFileCeiling
			}
		}
		return p
	}

	switch {
	case age > 10:
		return priorityOld
	case age > 5:
		return priorityAging
	default:
		return priorityDefault
	}
}

// touchesActiveFile reports whether a tool result answers a call that named
// a currently active file.
func touchesActiveFile(m message.Message, active map[string]struct{}, callPaths map[string]string) bool {
	if len(active) == 0 || m.ToolCallID == "" {
		return false
	}
	path, ok := callPaths[m.ToolCallID]
	if !ok {
		return false
	}
	_, hot := active[path]
	return hot
}

func placeholderEligible(sm *scoredMessage, opts TrimOptions) bool {
	if sm.msg.Role != message.RoleTool {
		return false
	}
	if sm.tokens <= opts.ToolOutputTokenCap || sm.priority >= placeholderPriorityCeiling {
		return false
	}
	if opts.PreserveErrors && containsErrorIndicator(sm.msg.Content) {
		return false
	}
	if opts.PreserveSmallOutputs && sm.tokens <= opts.SmallOutputTokens {
		return false
	}
	return true
}

func renderPlaceholder(template string, age, tokens int) string {
	out := strings.ReplaceAll(template, "{age}", strconv.Itoa(age))
	return strings.ReplaceAll(out, "{tokens}", strconv.Itoa(tokens))
}

// scoredTokens re-estimates the whole working sequence, placeholders
// included.
func scoredTokens(scored []*scoredMessage, est *token.Estimator) int {
	current := make([]message.Message, len(scored))
	for i, sm := range scored {
		current[i] = sm.msg
	}
	return est.CountMessages(current)
}
