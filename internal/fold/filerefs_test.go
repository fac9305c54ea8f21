package fold

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tokenfold/tokenfold/internal/message"
)

func TestExtractFileReferences(t *testing.T) {
	t.Parallel()

	input := msgs(
		message.User("refactor the loader"),
		message.Assistant("", message.ToolCall{ID: "c1", Name: "read_file", Arguments: `{"path":"internal/config/load.go"}`}),
		message.ToolResult("c1", "read_file", "package config"),
		message.Assistant("", message.ToolCall{ID: "c2", Name: "write_file", Arguments: `{"file_path":"internal/config/load.go"}`}),
		message.ToolResult("c2", "write_file", "ok"),
		message.Assistant("", message.ToolCall{ID: "c3", Name: "execute_bash", Arguments: `{"command":"go test ./..."}`}),
		message.ToolResult("c3", "execute_bash", "PASS"),
		message.Assistant("all done"),
	)

	refs := extractFileReferences(input)

	require.Len(t, refs, 2)
	require.Equal(t, FileReference{Path: "internal/config/load.go", Tool: "read_file", Step: 1}, refs[0])
	require.Equal(t, FileReference{Path: "internal/config/load.go", Tool: "write_file", Step: 2, Modified: true}, refs[1])
}

func TestExtractFileReferences_SkipsCallsWithoutPaths(t *testing.T) {
	t.Parallel()

	input := msgs(
		message.Assistant("", message.ToolCall{ID: "c1", Name: "read_file", Arguments: `{"offset":10}`}),
		message.Assistant("", message.ToolCall{ID: "c2", Name: "read_file"}),
	)

	require.Empty(t, extractFileReferences(input))
}

func TestFilePathArg(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a.go", filePathArg(`{"path":"a.go"}`))
	require.Equal(t, "b.go", filePathArg(`{"file_path":"b.go"}`))
	require.Equal(t, "a.go", filePathArg(`{"path":"a.go","file_path":"b.go"}`))
	require.Empty(t, filePathArg(`{"command":"ls"}`))
	require.Empty(t, filePathArg(""))
	require.Empty(t, filePathArg("not json"))
}

func TestActiveFiles_NewestFirstWithCaps(t *testing.T) {
	t.Parallel()

	// preserveTurns=1 caps the set at 2 modified and 3 read paths.
	var refs []FileReference
	for i := 1; i <= 3; i++ {
		refs = append(refs, FileReference{Path: fmt.Sprintf("mod%d.go", i), Tool: "write_file", Step: i, Modified: true})
	}
	for i := 1; i <= 4; i++ {
		refs = append(refs, FileReference{Path: fmt.Sprintf("read%d.go", i), Tool: "read_file", Step: 3 + i})
	}

	active := activeFiles(refs, 1)

	require.Len(t, active, 5)
	require.Contains(t, active, "mod2.go")
	require.Contains(t, active, "mod3.go")
	require.Contains(t, active, "read2.go")
	require.Contains(t, active, "read3.go")
	require.Contains(t, active, "read4.go")
	require.NotContains(t, active, "mod1.go")
	require.NotContains(t, active, "read1.go")
}

func TestActiveFiles_DeduplicatesByPath(t *testing.T) {
	t.Parallel()

	refs := []FileReference{
		{Path: "main.go", Tool: "read_file", Step: 1},
		{Path: "main.go", Tool: "read_file", Step: 2},
		{Path: "main.go", Tool: "write_file", Step: 3, Modified: true},
	}

	active := activeFiles(refs, 1)
	require.Len(t, active, 1)
	require.Contains(t, active, "main.go")
}

func TestActiveFiles_Empty(t *testing.T) {
	t.Parallel()
	require.Nil(t, activeFiles(nil, 5))
}
