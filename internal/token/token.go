// Package token estimates token costs for conversation messages. Exact
// counts come from tiktoken BPE encodings where a model family is known;
// everything else degrades to a conservative character heuristic. Estimation
// never fails and never does I/O after an encoder is resolved.
package token

import "github.com/tokenfold/tokenfold/internal/message"

const (
	// messageOverhead approximates the per-message structural cost of role
	// markers and separators in a chat request.
	messageOverhead = 4

	// toolCallOverhead approximates the per-call structural cost of the
	// function-call envelope (id, type, framing).
	toolCallOverhead = 10

	// listOverhead approximates the fixed framing cost of the message list
	// itself.
	listOverhead = 3
)

// Estimator counts tokens for text, single messages, and message sequences
// using one resolved encoder. Estimators are immutable and safe for
// concurrent use, and identical input always yields identical output.
type Estimator struct {
	enc encoder
}

// Name reports the underlying encoder, e.g. "cl100k_base" or "heuristic".
func (e *Estimator) Name() string { return e.enc.name() }

// CountText returns the token count of raw text.
func (e *Estimator) CountText(text string) int {
	if text == "" {
		return 0
	}
	return e.enc.count(text)
}

// CountMessage returns the token cost of one message: its content plus the
// structural overhead of the role, each tool call (name, raw JSON arguments,
// call envelope), and the tool-result linkage fields.
func (e *Estimator) CountMessage(msg message.Message) int {
	tokens := messageOverhead
	tokens += e.CountText(msg.Content)
	for _, call := range msg.ToolCalls {
		tokens += e.CountText(call.Name)
		tokens += e.CountText(call.Arguments)
		tokens += toolCallOverhead
	}
	if msg.Role == message.RoleTool {
		tokens += e.CountText(msg.ToolCallID)
		tokens += e.CountText(msg.Name)
	}
	return tokens
}

// CountMessages returns the token cost of a full sequence: the sum of the
// per-message costs plus the fixed list framing overhead. An empty sequence
// costs nothing.
func (e *Estimator) CountMessages(msgs []message.Message) int {
	if len(msgs) == 0 {
		return 0
	}
	total := listOverhead
	for _, msg := range msgs {
		total += e.CountMessage(msg)
	}
	return total
}
