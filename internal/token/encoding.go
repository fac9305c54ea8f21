package token

import (
	"log/slog"
	"strings"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const (
	// encodingCL100kBase is the cl100k_base encoding used by GPT-4 era
	// models and as an approximation for Anthropic and Google models.
	encodingCL100kBase = "cl100k_base"

	// encodingO200kBase is the o200k_base encoding used by GPT-4o and
	// later OpenAI families.
	encodingO200kBase = "o200k_base"

	// HeuristicName is reported by estimators that count with the
	// character heuristic instead of an exact encoding.
	HeuristicName = "heuristic"

	// charsPerToken is the conservative chat-text ratio used by the
	// heuristic: roughly one token per four characters.
	charsPerToken = 4
)

// encoder converts text into a token count.
type encoder interface {
	name() string
	count(text string) int
}

// tiktokenEncoder counts with an exact BPE encoding.
type tiktokenEncoder struct {
	encoding string
	tk       *tiktoken.Tiktoken
}

func (t *tiktokenEncoder) name() string { return t.encoding }

func (t *tiktokenEncoder) count(text string) int {
	return len(t.tk.Encode(text, nil, nil))
}

// heuristicEncoder estimates by rune count with ceiling division, so any
// non-empty text costs at least one token.
type heuristicEncoder struct{}

func (heuristicEncoder) name() string { return HeuristicName }

func (heuristicEncoder) count(text string) int {
	runes := len([]rune(text))
	return (runes + charsPerToken - 1) / charsPerToken
}

// encodingForModel maps a provider/model pair to a tiktoken encoding name.
// Anthropic and Google models resolve to cl100k_base as an approximation
// since their native tokenizers are not publicly available. Unknown pairs
// return "".
func encodingForModel(provider, model string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	m := strings.ToLower(strings.TrimSpace(model))

	switch p {
	case "anthropic":
		return encodingCL100kBase
	case "google", "gemini", "vertexai":
		return encodingCL100kBase
	}

	switch {
	case strings.HasPrefix(m, "claude"), strings.HasPrefix(m, "gemini"):
		return encodingCL100kBase
	case strings.HasPrefix(m, "gpt-4o"),
		strings.HasPrefix(m, "gpt-4.1"),
		strings.HasPrefix(m, "gpt-5"),
		strings.HasPrefix(m, "o1"),
		strings.HasPrefix(m, "o3"),
		strings.HasPrefix(m, "o4"),
		strings.HasPrefix(m, "chatgpt"):
		return encodingO200kBase
	case strings.HasPrefix(m, "gpt-4"), strings.HasPrefix(m, "gpt-3.5"):
		return encodingCL100kBase
	}
	return ""
}

// newEncoder resolves an encoder for a provider/model pair. Resolution
// never fails: unknown pairs and encoding load errors degrade to the
// heuristic. o200k_base load failures try cl100k_base before giving up,
// since the rank data may need a download the environment does not allow.
func newEncoder(provider, model string) encoder {
	encName := encodingForModel(provider, model)
	if encName == "" {
		slog.Debug("No exact tokenizer for model, using heuristic estimation",
			"provider", provider, "model", model)
		return heuristicEncoder{}
	}

	tk, err := tiktoken.GetEncoding(encName)
	if err != nil && encName == encodingO200kBase {
		slog.Warn("Failed to load o200k_base, falling back to cl100k_base", "err", err)
		encName = encodingCL100kBase
		tk, err = tiktoken.GetEncoding(encName)
	}
	if err != nil {
		slog.Warn("Tokenizer unavailable, using heuristic estimation",
			"provider", provider, "model", model, "encoding", encName, "err", err)
		return heuristicEncoder{}
	}
	return &tiktokenEncoder{encoding: encName, tk: tk}
}
