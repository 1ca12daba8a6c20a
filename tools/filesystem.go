package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ferretworks/ferret/security"
)

const maxReadBytes = 100 * 1024

// resolvePath anchors a relative path at the session workspace.
func resolvePath(cwd, path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}
	return filepath.Clean(path)
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ReadFileTool reads a file from the workspace.
type ReadFileTool struct{}

func (ReadFileTool) Name() string { return "read_file" }
func (ReadFileTool) Description() string {
	return "Read a file. Supports optional offset (1-based line) and limit (line count)."
}
func (ReadFileTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"path":   map[string]any{"type": "string", "description": "File path, relative to the workspace or absolute."},
		"offset": map[string]any{"type": "integer", "description": "1-based line to start from."},
		"limit":  map[string]any{"type": "integer", "description": "Maximum number of lines."},
	}, "path")
}

func (ReadFileTool) Execute(_ context.Context, args map[string]any, tc *Context) Result {
	path, _ := StringArg(args, "path")
	if path == "" {
		return Fail("path required")
	}
	path = resolvePath(tc.CWD, path)
	if security.IsSensitiveFile(path) {
		return Fail("Access to sensitive file denied: " + filepath.Base(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		return Fail("File not found: " + path)
	}
	if info.IsDir() {
		return Fail(path + " is a directory")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Fail(err.Error())
	}

	content := string(data)
	offset, hasOffset := IntArg(args, "offset")
	limit, hasLimit := IntArg(args, "limit")
	if hasOffset || hasLimit {
		lines := strings.Split(content, "\n")
		start := 0
		if offset > 1 {
			start = offset - 1
		}
		if start > len(lines) {
			start = len(lines)
		}
		end := len(lines)
		if hasLimit && limit > 0 && start+limit < end {
			end = start + limit
		}
		content = strings.Join(lines[start:end], "\n")
	}
	if len(content) > maxReadBytes {
		content = content[:maxReadBytes] + "\n... (truncated)"
	}
	return Ok(content)
}

// WriteFileTool writes a file, creating parent directories.
type WriteFileTool struct{}

func (WriteFileTool) Name() string { return "write_file" }
func (WriteFileTool) Description() string {
	return "Write content to a file, creating parent directories if needed."
}
func (WriteFileTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"path":    map[string]any{"type": "string", "description": "File path to write."},
		"content": map[string]any{"type": "string", "description": "Full file content."},
	}, "path", "content")
}

func (WriteFileTool) Execute(_ context.Context, args map[string]any, tc *Context) Result {
	path, _ := StringArg(args, "path")
	if path == "" {
		return Fail("path required")
	}
	content, ok := StringArg(args, "content")
	if !ok {
		return Fail("content required")
	}
	path = resolvePath(tc.CWD, path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Fail(err.Error())
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Fail(err.Error())
	}
	return Ok(fmt.Sprintf("Wrote %d bytes to %s", len(content), path))
}

// EditFileTool replaces an exact text occurrence in a file.
type EditFileTool struct{}

func (EditFileTool) Name() string { return "edit_file" }
func (EditFileTool) Description() string {
	return "Replace an exact occurrence of old_text with new_text in a file."
}
func (EditFileTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"path":     map[string]any{"type": "string", "description": "File path to edit."},
		"old_text": map[string]any{"type": "string", "description": "Exact text to find."},
		"new_text": map[string]any{"type": "string", "description": "Replacement text."},
	}, "path", "old_text", "new_text")
}

func (EditFileTool) Execute(_ context.Context, args map[string]any, tc *Context) Result {
	path, _ := StringArg(args, "path")
	oldText, _ := StringArg(args, "old_text")
	newText, _ := StringArg(args, "new_text")
	if path == "" || oldText == "" {
		return Fail("path and old_text required")
	}
	path = resolvePath(tc.CWD, path)
	if security.IsSensitiveFile(path) {
		return Fail("Access to sensitive file denied: " + filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Fail("File not found: " + path)
	}
	content := string(data)
	count := strings.Count(content, oldText)
	if count == 0 {
		return Fail("old_text not found in " + path)
	}
	if count > 1 {
		return Fail(fmt.Sprintf("old_text found %d times in %s, provide more context", count, path))
	}
	content = strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Fail(err.Error())
	}
	return Ok("Edited " + path)
}

// DeleteFileTool removes a single file.
type DeleteFileTool struct{}

func (DeleteFileTool) Name() string        { return "delete_file" }
func (DeleteFileTool) Description() string { return "Delete a file from the workspace." }
func (DeleteFileTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"path": map[string]any{"type": "string", "description": "File path to delete."},
	}, "path")
}

func (DeleteFileTool) Execute(_ context.Context, args map[string]any, tc *Context) Result {
	path, _ := StringArg(args, "path")
	if path == "" {
		return Fail("path required")
	}
	path = resolvePath(tc.CWD, path)
	info, err := os.Stat(path)
	if err != nil {
		return Fail("File not found: " + path)
	}
	if info.IsDir() {
		return Fail("refusing to delete a directory: " + path)
	}
	if err := os.Remove(path); err != nil {
		return Fail(err.Error())
	}
	return Ok("Deleted " + path)
}

// ListDirTool lists directory entries.
type ListDirTool struct{}

func (ListDirTool) Name() string        { return "list_directory" }
func (ListDirTool) Description() string { return "List files in a directory." }
func (ListDirTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"path": map[string]any{"type": "string", "description": "Directory path. Defaults to the workspace."},
	})
}

func (ListDirTool) Execute(_ context.Context, args map[string]any, tc *Context) Result {
	path, _ := StringArg(args, "path")
	if path == "" {
		path = "."
	}
	path = resolvePath(tc.CWD, path)
	entries, err := os.ReadDir(path)
	if err != nil {
		return Fail(err.Error())
	}
	if len(entries) == 0 {
		return Ok("(empty directory)")
	}
	var lines []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		lines = append(lines, name)
	}
	sort.Strings(lines)
	return Ok(strings.Join(lines, "\n"))
}

// SearchFilesTool finds files by glob pattern.
type SearchFilesTool struct{}

func (SearchFilesTool) Name() string { return "search_files" }
func (SearchFilesTool) Description() string {
	return "Find files matching a glob pattern, searched recursively."
}
func (SearchFilesTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"pattern": map[string]any{"type": "string", "description": "Glob pattern, e.g. *.txt."},
		"path":    map[string]any{"type": "string", "description": "Directory to search. Defaults to the workspace."},
	}, "pattern")
}

func (SearchFilesTool) Execute(_ context.Context, args map[string]any, tc *Context) Result {
	pattern, _ := StringArg(args, "pattern")
	if pattern == "" {
		return Fail("pattern required")
	}
	root, _ := StringArg(args, "path")
	if root == "" {
		root = "."
	}
	root = resolvePath(tc.CWD, root)

	var matches []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ok, _ := filepath.Match(pattern, d.Name())
		if ok {
			matches = append(matches, path)
		}
		if len(matches) >= 200 {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return Fail(err.Error())
	}
	if len(matches) == 0 {
		return Ok("(no matches)")
	}
	return Ok(strings.Join(matches, "\n"))
}
