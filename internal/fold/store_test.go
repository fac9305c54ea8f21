package fold

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tokenfold/tokenfold/internal/message"
)

func TestSummaryStore_FirstUpdate(t *testing.T) {
	t.Parallel()

	store := NewSummaryStore()

	_, ok := store.Summary()
	require.False(t, ok)
	_, ok = store.SummaryMessage()
	require.False(t, ok)

	dropped := msgs(
		message.ToolResult("c1", "execute_bash", "ok"),
		message.ToolResult("c2", "execute_bash", "ok"),
	)
	sum, err := store.UpdateSummary(context.Background(), dropped, RuleSummarizer{}, heuristicSummarizeOptions())
	require.NoError(t, err)

	require.Equal(t, 1, sum.Version)
	require.Equal(t, 2, sum.MessageCount)
	require.NotEmpty(t, sum.ID)
	require.False(t, sum.CreatedAt.IsZero())
	require.Contains(t, sum.Content, "Summarized 2 tool results:")
	require.Positive(t, sum.Tokens)

	stored, ok := store.Summary()
	require.True(t, ok)
	require.Equal(t, sum, stored)
}

func TestSummaryStore_UpdatesMergeUnderHeading(t *testing.T) {
	t.Parallel()

	store := NewSummaryStore()
	ctx := context.Background()

	first, err := store.UpdateSummary(ctx, msgs(message.User("alpha work")), RuleSummarizer{}, heuristicSummarizeOptions())
	require.NoError(t, err)

	second, err := store.UpdateSummary(ctx, msgs(message.User("beta work"), message.User("gamma work")), RuleSummarizer{}, heuristicSummarizeOptions())
	require.NoError(t, err)

	require.Equal(t, 2, second.Version)
	require.Equal(t, 3, second.MessageCount)
	require.Contains(t, second.Content, "[Update 2]")
	require.Contains(t, second.Content, "alpha work")
	require.Contains(t, second.Content, "beta work")

	// Identity and creation time are stable across updates.
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.False(t, second.UpdatedAt.Before(second.CreatedAt))
}

func TestSummaryStore_CondensesWhenMergedOutgrowsBudget(t *testing.T) {
	t.Parallel()

	store := NewSummaryStore()
	ctx := context.Background()
	opts := heuristicSummarizeOptions()
	opts.MaxSummaryTokens = 10

	_, err := store.UpdateSummary(ctx, msgs(message.User("alpha alpha alpha alpha")), RuleSummarizer{}, opts)
	require.NoError(t, err)

	sum, err := store.UpdateSummary(ctx, msgs(message.User("beta beta beta")), RuleSummarizer{}, opts)
	require.NoError(t, err)

	require.Equal(t, 2, sum.Version)
	require.True(t, strings.HasPrefix(sum.Content, "[Conversation History Summary]"))
	require.Contains(t, sum.Content, "beta")
	require.NotContains(t, sum.Content, "alpha")
	require.NotContains(t, sum.Content, "[Update")
}

func TestSummaryStore_SummaryMessage(t *testing.T) {
	t.Parallel()

	store := NewSummaryStore()
	_, err := store.UpdateSummary(context.Background(), msgs(message.User("earlier work")), RuleSummarizer{}, heuristicSummarizeOptions())
	require.NoError(t, err)

	sm, ok := store.SummaryMessage()
	require.True(t, ok)
	require.Equal(t, message.RoleSystem, sm.Role)
	require.True(t, strings.HasPrefix(sm.Content, "[Previous conversation summary]\n\n"))
	require.Contains(t, sm.Content, "earlier work")
}

func TestSummaryStore_ExpandVersionRoundTrips(t *testing.T) {
	t.Parallel()

	store := NewSummaryStore()
	dropped := msgs(
		message.Assistant("checking the build", message.ToolCall{ID: "c1", Name: "execute_bash", Arguments: `{"command":"go build"}`}),
		message.ToolResult("c1", "execute_bash", "ok"),
		message.User("now run the tests"),
	)

	_, err := store.UpdateSummary(context.Background(), dropped, RuleSummarizer{}, heuristicSummarizeOptions())
	require.NoError(t, err)

	expanded, err := store.ExpandVersion(1)
	require.NoError(t, err)
	require.Equal(t, dropped, expanded)

	_, err = store.ExpandVersion(2)
	require.ErrorIs(t, err, ErrVersionNotArchived)
}

func TestSummaryStore_ArchiveKeepsRecentVersionsOnly(t *testing.T) {
	t.Parallel()

	store := NewSummaryStore()
	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		_, err := store.UpdateSummary(ctx, msgs(message.User(fmt.Sprintf("batch %d", i))), RuleSummarizer{}, heuristicSummarizeOptions())
		require.NoError(t, err)
	}

	_, err := store.ExpandVersion(2)
	require.ErrorIs(t, err, ErrVersionNotArchived)

	expanded, err := store.ExpandVersion(3)
	require.NoError(t, err)
	require.Equal(t, "batch 3", expanded[0].Content)

	expanded, err = store.ExpandVersion(10)
	require.NoError(t, err)
	require.Equal(t, "batch 10", expanded[0].Content)
}

func TestSummaryStore_EmptyBatchBumpsVersionWithoutArchiving(t *testing.T) {
	t.Parallel()

	store := NewSummaryStore()
	sum, err := store.UpdateSummary(context.Background(), nil, RuleSummarizer{}, heuristicSummarizeOptions())
	require.NoError(t, err)

	require.Equal(t, 1, sum.Version)
	require.Zero(t, sum.MessageCount)

	_, err = store.ExpandVersion(1)
	require.ErrorIs(t, err, ErrVersionNotArchived)
}

func TestSummaryStore_RequiresSummarizer(t *testing.T) {
	t.Parallel()

	store := NewSummaryStore()
	_, err := store.UpdateSummary(context.Background(), msgs(message.User("q")), nil, heuristicSummarizeOptions())
	require.ErrorContains(t, err, "no summarizer")
}

func TestSummaryStore_Clear(t *testing.T) {
	t.Parallel()

	store := NewSummaryStore()
	_, err := store.UpdateSummary(context.Background(), msgs(message.User("q")), RuleSummarizer{}, heuristicSummarizeOptions())
	require.NoError(t, err)

	store.Clear()

	_, ok := store.Summary()
	require.False(t, ok)
	_, ok = store.SummaryMessage()
	require.False(t, ok)
	_, err = store.ExpandVersion(1)
	require.ErrorIs(t, err, ErrVersionNotArchived)

	// A cleared store starts its next summary from scratch.
	sum, err := store.UpdateSummary(context.Background(), msgs(message.User("fresh start")), RuleSummarizer{}, heuristicSummarizeOptions())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Version)
}
