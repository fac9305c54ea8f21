package fold

import (
	"github.com/tidwall/gjson"

	"github.com/tokenfold/tokenfold/internal/message"
)

// FileReference records one tool call touching a file. References are
// derived fresh on every trim call and never cached.
type FileReference struct {
	Path string
	Tool string
	Step int

	// Modified is true for write_file and string_replace calls.
	Modified bool
}

// extractFileReferences walks assistant tool calls and records which files
// they read or modified, tagged with the conversation step of the call.
func extractFileReferences(msgs []message.Message) []FileReference {
	var refs []FileReference
	step := 0
	for _, m := range msgs {
		if m.Role != message.RoleAssistant || !m.HasToolCalls() {
			continue
		}
		step++
		for _, call := range m.ToolCalls {
			switch call.Name {
			case toolReadFile, toolWriteFile, toolStringReplace:
			default:
				continue
			}
			path := filePathArg(call.Arguments)
			if path == "" {
				continue
			}
			refs = append(refs, FileReference{
				Path:     path,
				Tool:     call.Name,
				Step:     step,
				Modified: call.Name == toolWriteFile || call.Name == toolStringReplace,
			})
		}
	}
	return refs
}

// filePathArg pulls the file path out of raw JSON tool arguments. Tools
// disagree on the key name.
func filePathArg(arguments string) string {
	if arguments == "" {
		return ""
	}
	if v := gjson.Get(arguments, "path"); v.Exists() {
		return v.String()
	}
	if v := gjson.Get(arguments, "file_path"); v.Exists() {
		return v.String()
	}
	return ""
}

// activeFiles selects the most recently touched paths, weighted toward
// modified ones: up to 2x preserveTurns modified plus 3x preserveTurns read
// paths, newest reference first.
func activeFiles(refs []FileReference, preserveTurns int) map[string]struct{} {
	if len(refs) == 0 {
		return nil
	}
	if preserveTurns < 1 {
		preserveTurns = 1
	}
	maxModified := 2 * preserveTurns
	maxRead := 3 * preserveTurns

	active := make(map[string]struct{})
	modified, read := 0, 0
	for i := len(refs) - 1; i >= 0; i-- {
		ref := refs[i]
		if _, ok := active[ref.Path]; ok {
			continue
		}
		if ref.Modified {
			if modified >= maxModified {
				continue
			}
			modified++
		} else {
			if read >= maxRead {
				continue
			}
			read++
		}
		active[ref.Path] = struct{}{}
	}
	return active
}
