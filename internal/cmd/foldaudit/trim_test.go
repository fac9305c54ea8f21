package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/tokenfold/tokenfold/internal/fold"
	"github.com/tokenfold/tokenfold/internal/message"
)

func newTrimFlagSet() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().Int("target", 0, "")
	cmd.Flags().String("strategy", "", "")
	cmd.Flags().String("provider", "", "")
	cmd.Flags().String("model", "", "")
	return cmd
}

func TestTrimOptionsFromFlags_ConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := fold.DefaultConfig()
	opts := trimOptionsFromFlags(newTrimFlagSet(), cfg)

	require.Equal(t, fold.StrategyPriority, opts.Strategy)
	require.True(t, opts.PreserveErrors)
	require.Equal(t, cfg.PreserveRecentTurns, opts.PreserveRecentTurns)
}

func TestTrimOptionsFromFlags_StrategyFlagWins(t *testing.T) {
	t.Parallel()

	cmd := newTrimFlagSet()
	require.NoError(t, cmd.Flags().Set("strategy", "age"))

	opts := trimOptionsFromFlags(cmd, fold.DefaultConfig())
	require.Equal(t, fold.StrategyAge, opts.Strategy)
}

func TestWriteConversation_RoundTripsThroughFile(t *testing.T) {
	t.Parallel()

	conv := []message.Message{
		message.System("sys"),
		message.Assistant("", message.ToolCall{ID: "c1", Name: "execute_bash", Arguments: `{"command":"ls"}`}),
		message.ToolResult("c1", "execute_bash", "ok"),
	}
	path := filepath.Join(t.TempDir(), "out.json")

	require.NoError(t, writeConversation(&cobra.Command{}, path, conv))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	got, err := loadConversation(path)
	require.NoError(t, err)
	require.Equal(t, conv, got)
	require.Equal(t, byte('\n'), data[len(data)-1])
}

func TestWriteConversation_Stdout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	require.NoError(t, writeConversation(cmd, "", []message.Message{message.User("hello")}))
	require.Contains(t, buf.String(), `"role": "user"`)
	require.Contains(t, buf.String(), `"hello"`)
}
