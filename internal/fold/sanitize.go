package fold

import (
	"strings"

	"github.com/tokenfold/tokenfold/internal/message"
)

// SanitizeResult carries the possibly rewritten sequence and what changed.
type SanitizeResult struct {
	Messages []message.Message
	Changed  bool

	// CombinedAssistantMessages counts assistant messages merged away; a
	// run of k consecutive assistant messages contributes k-1.
	CombinedAssistantMessages int
}

// SanitizeMessages merges runs of two or more consecutive assistant
// messages anywhere in the sequence. Backends reject a list ending in more
// than one assistant turn, and mid-sequence runs are a symptom of retried
// generation; merging never discards information. Everything else passes
// through unchanged.
func SanitizeMessages(msgs []message.Message) SanitizeResult {
	res := SanitizeResult{Messages: msgs}
	if len(msgs) < 2 {
		return res
	}

	out := make([]message.Message, 0, len(msgs))
	for i := 0; i < len(msgs); {
		if msgs[i].Role != message.RoleAssistant {
			out = append(out, msgs[i])
			i++
			continue
		}

		j := i + 1
		for j < len(msgs) && msgs[j].Role == message.RoleAssistant {
			j++
		}
		if j-i == 1 {
			out = append(out, msgs[i])
		} else {
			out = append(out, mergeAssistantRun(msgs[i:j]))
			res.CombinedAssistantMessages += j - i - 1
		}
		i = j
	}

	if res.CombinedAssistantMessages > 0 {
		res.Messages = out
		res.Changed = true
	}
	return res
}

// mergeAssistantRun folds consecutive assistant messages into one: each
// member's non-empty content joined by blank lines, a marker line naming
// each member's tool calls, and the concatenated tool-call list in original
// order.
func mergeAssistantRun(run []message.Message) message.Message {
	var blocks []string
	var calls []message.ToolCall
	for _, m := range run {
		if m.Content != "" {
			blocks = append(blocks, m.Content)
		}
		if m.HasToolCalls() {
			names := make([]string, len(m.ToolCalls))
			for i, call := range m.ToolCalls {
				names[i] = call.Name
			}
			blocks = append(blocks, "[tool calls: "+strings.Join(names, ", ")+"]")
			calls = append(calls, m.ToolCalls...)
		}
	}
	return message.Message{
		Role:      message.RoleAssistant,
		Content:   strings.Join(blocks, "\n\n"),
		ToolCalls: calls,
	}
}

// ValidateMessageList reports whether a sequence satisfies the structural
// constraints shared by chat backends: at most one trailing assistant
// message, no tool result before any assistant message, and no two
// consecutive user messages. An empty sequence is valid.
func ValidateMessageList(msgs []message.Message) bool {
	if len(msgs) == 0 {
		return true
	}

	trailing := 0
	for i := len(msgs) - 1; i >= 0 && msgs[i].Role == message.RoleAssistant; i-- {
		trailing++
	}
	if trailing > 1 {
		return false
	}

	seenAssistant := false
	for i, m := range msgs {
		switch m.Role {
		case message.RoleAssistant:
			seenAssistant = true
		case message.RoleTool:
			if !seenAssistant {
				return false
			}
		case message.RoleUser:
			if i > 0 && msgs[i-1].Role == message.RoleUser {
				return false
			}
		}
	}
	return true
}
