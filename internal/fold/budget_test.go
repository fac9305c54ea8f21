package fold

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tokenfold/tokenfold/internal/message"
	"github.com/tokenfold/tokenfold/internal/token"
)

func TestComputeMaxInputTokens(t *testing.T) {
	t.Parallel()

	require.Equal(t, 8000, ComputeMaxInputTokens(Config{
		MaxContextTokens:     10000,
		ReservedOutputTokens: 2000,
	}))

	// Zero values fall back to the defaults.
	require.Equal(t, DefaultMaxContextTokens-DefaultReservedOutputTokens, ComputeMaxInputTokens(Config{}))
	require.Equal(t, 123904, ComputeMaxInputTokens(DefaultConfig()))
}

func TestCheckBudget_WithinBudget(t *testing.T) {
	t.Parallel()

	cfg := Config{MaxContextTokens: 1100, ReservedOutputTokens: 100}
	msgs := []message.Message{message.User(strings.Repeat("a", 400))}

	report := checkBudget(msgs, cfg, token.Heuristic())

	require.Equal(t, 1000, report.MaxInputTokens)
	require.Equal(t, 107, report.CurrentTokens)
	require.Equal(t, 893, report.AvailableTokens)
	require.True(t, report.WithinBudget)
	require.Equal(t, 11, report.Utilization)
}

func TestCheckBudget_OverBudget(t *testing.T) {
	t.Parallel()

	cfg := Config{MaxContextTokens: 150, ReservedOutputTokens: 50}
	msgs := []message.Message{message.User(strings.Repeat("a", 800))}

	report := checkBudget(msgs, cfg, token.Heuristic())

	require.Equal(t, 100, report.MaxInputTokens)
	require.Equal(t, 207, report.CurrentTokens)
	require.Equal(t, -107, report.AvailableTokens)
	require.False(t, report.WithinBudget)
	require.Equal(t, 207, report.Utilization)
}

func TestCheckBudget_NonPositiveBudget(t *testing.T) {
	t.Parallel()

	// A reservation larger than the window leaves no input budget at all.
	cfg := Config{MaxContextTokens: 100, ReservedOutputTokens: 200}
	report := checkBudget(msgs(message.User("hi")), cfg, token.Heuristic())

	require.Equal(t, -100, report.MaxInputTokens)
	require.False(t, report.WithinBudget)
	require.Negative(t, report.AvailableTokens)
	require.Zero(t, report.Utilization)
}

func TestCheckBudget_UnknownModelUsesHeuristic(t *testing.T) {
	t.Parallel()

	report := CheckBudget(msgs(message.User("abcd")), DefaultConfig(), "", "")
	require.Equal(t, 8, report.CurrentTokens)
	require.True(t, report.WithinBudget)
}

// msgs is shorthand for building a message slice in tests.
func msgs(m ...message.Message) []message.Message { return m }
