package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fsContext(t *testing.T) *Context {
	t.Helper()
	return &Context{CWD: t.TempDir()}
}

func TestReadWriteRoundTrip(t *testing.T) {
	tc := fsContext(t)
	ctx := context.Background()

	res := WriteFileTool{}.Execute(ctx, map[string]any{
		"path": "notes/hello.txt", "content": "line1\nline2\nline3",
	}, tc)
	if !res.Success {
		t.Fatalf("write: %+v", res)
	}

	res = ReadFileTool{}.Execute(ctx, map[string]any{"path": "notes/hello.txt"}, tc)
	if !res.Success || res.Output != "line1\nline2\nline3" {
		t.Fatalf("read: %+v", res)
	}
}

func TestReadFileOffsetLimit(t *testing.T) {
	tc := fsContext(t)
	ctx := context.Background()
	WriteFileTool{}.Execute(ctx, map[string]any{"path": "f.txt", "content": "a\nb\nc\nd\ne"}, tc)

	res := ReadFileTool{}.Execute(ctx, map[string]any{"path": "f.txt", "offset": 2, "limit": 2}, tc)
	if !res.Success || res.Output != "b\nc" {
		t.Errorf("result = %+v", res)
	}
}

func TestReadFileRefusesSensitive(t *testing.T) {
	tc := fsContext(t)
	ctx := context.Background()
	if err := os.WriteFile(filepath.Join(tc.CWD, ".env"), []byte("SECRET=x"), 0o600); err != nil {
		t.Fatal(err)
	}

	res := ReadFileTool{}.Execute(ctx, map[string]any{"path": ".env"}, tc)
	if res.Success {
		t.Fatal("sensitive file was read")
	}
	if !strings.Contains(res.Error, "sensitive") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestEditFile(t *testing.T) {
	tc := fsContext(t)
	ctx := context.Background()
	WriteFileTool{}.Execute(ctx, map[string]any{"path": "f.txt", "content": "hello world"}, tc)

	res := EditFileTool{}.Execute(ctx, map[string]any{
		"path": "f.txt", "old_text": "world", "new_text": "ferret",
	}, tc)
	if !res.Success {
		t.Fatalf("edit: %+v", res)
	}
	res = ReadFileTool{}.Execute(ctx, map[string]any{"path": "f.txt"}, tc)
	if res.Output != "hello ferret" {
		t.Errorf("content = %q", res.Output)
	}

	res = EditFileTool{}.Execute(ctx, map[string]any{
		"path": "f.txt", "old_text": "gone", "new_text": "x",
	}, tc)
	if res.Success || !strings.Contains(res.Error, "not found") {
		t.Errorf("missing old_text: %+v", res)
	}
}

func TestEditFileAmbiguousOldText(t *testing.T) {
	tc := fsContext(t)
	ctx := context.Background()
	WriteFileTool{}.Execute(ctx, map[string]any{"path": "f.txt", "content": "dup dup"}, tc)

	res := EditFileTool{}.Execute(ctx, map[string]any{
		"path": "f.txt", "old_text": "dup", "new_text": "x",
	}, tc)
	if res.Success || !strings.Contains(res.Error, "2 times") {
		t.Errorf("result = %+v", res)
	}
}

func TestDeleteFile(t *testing.T) {
	tc := fsContext(t)
	ctx := context.Background()
	WriteFileTool{}.Execute(ctx, map[string]any{"path": "f.txt", "content": "x"}, tc)

	res := DeleteFileTool{}.Execute(ctx, map[string]any{"path": "f.txt"}, tc)
	if !res.Success {
		t.Fatalf("delete: %+v", res)
	}
	if _, err := os.Stat(filepath.Join(tc.CWD, "f.txt")); !os.IsNotExist(err) {
		t.Error("file still exists")
	}

	res = DeleteFileTool{}.Execute(ctx, map[string]any{"path": "."}, tc)
	if res.Success {
		t.Error("deleted a directory")
	}
}

func TestListDirectory(t *testing.T) {
	tc := fsContext(t)
	ctx := context.Background()
	WriteFileTool{}.Execute(ctx, map[string]any{"path": "b.txt", "content": "x"}, tc)
	WriteFileTool{}.Execute(ctx, map[string]any{"path": "sub/a.txt", "content": "x"}, tc)

	res := ListDirTool{}.Execute(ctx, map[string]any{}, tc)
	if !res.Success {
		t.Fatalf("list: %+v", res)
	}
	if res.Output != "b.txt\nsub/" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestSearchFiles(t *testing.T) {
	tc := fsContext(t)
	ctx := context.Background()
	WriteFileTool{}.Execute(ctx, map[string]any{"path": "a.txt", "content": "x"}, tc)
	WriteFileTool{}.Execute(ctx, map[string]any{"path": "sub/b.txt", "content": "x"}, tc)
	WriteFileTool{}.Execute(ctx, map[string]any{"path": "c.log", "content": "x"}, tc)

	res := SearchFilesTool{}.Execute(ctx, map[string]any{"pattern": "*.txt"}, tc)
	if !res.Success {
		t.Fatalf("search: %+v", res)
	}
	if !strings.Contains(res.Output, "a.txt") || !strings.Contains(res.Output, "b.txt") {
		t.Errorf("output = %q", res.Output)
	}
	if strings.Contains(res.Output, "c.log") {
		t.Errorf("non-matching file listed: %q", res.Output)
	}

	res = SearchFilesTool{}.Execute(ctx, map[string]any{"pattern": "*.go"}, tc)
	if !res.Success || res.Output != "(no matches)" {
		t.Errorf("result = %+v", res)
	}
}
