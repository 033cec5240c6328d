package tools

import (
	"context"
	"strings"
	"testing"
)

func TestFilesRoundtrip(t *testing.T) {
	ft := NewFilesTool(t.TempDir())
	ctx := context.Background()

	res, err := ft.Execute(ctx, map[string]any{"action": "write", "path": "reports/out.md", "content": "hello"})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !res.Success() || res.Output != "Written: out.md" {
		t.Fatalf("write result = %+v", res)
	}

	res, _ = ft.Execute(ctx, map[string]any{"action": "append", "path": "reports/out.md", "content": " world"})
	if !res.Success() || res.Output != "Appended: out.md" {
		t.Fatalf("append result = %+v", res)
	}

	res, _ = ft.Execute(ctx, map[string]any{"action": "read", "path": "reports/out.md"})
	if res.Output != "hello world" {
		t.Fatalf("read = %q", res.Output)
	}

	res, _ = ft.Execute(ctx, map[string]any{"action": "list"})
	if res.Output != "reports/out.md" {
		t.Fatalf("list = %q", res.Output)
	}

	res, _ = ft.Execute(ctx, map[string]any{"action": "delete", "path": "reports/out.md"})
	if !res.Success() || res.Output != "Deleted: out.md" {
		t.Fatalf("delete result = %+v", res)
	}

	res, _ = ft.Execute(ctx, map[string]any{"action": "list"})
	if res.Output != "(empty workspace)" {
		t.Fatalf("list after delete = %q", res.Output)
	}
}

func TestFilesReadMissing(t *testing.T) {
	ft := NewFilesTool(t.TempDir())

	res, err := ft.Execute(context.Background(), map[string]any{"action": "read", "path": "nope.txt"})
	if err != nil {
		t.Fatalf("unexpected fault: %v", err)
	}
	if res.Success() || res.Error != "File not found: nope.txt" || res.ExitCode != 1 {
		t.Fatalf("missing read result = %+v", res)
	}
}

func TestFilesRejectsEscape(t *testing.T) {
	ft := NewFilesTool(t.TempDir())

	for _, path := range []string{"../secrets.txt", "a/../../etc/passwd"} {
		res, err := ft.Execute(context.Background(), map[string]any{"action": "read", "path": path})
		if err != nil {
			t.Fatalf("unexpected fault: %v", err)
		}
		if res.Success() || !strings.Contains(res.Error, "outside the workspace") {
			t.Fatalf("path %q slipped through: %+v", path, res)
		}
	}
}

func TestFilesUnknownAction(t *testing.T) {
	ft := NewFilesTool(t.TempDir())

	res, _ := ft.Execute(context.Background(), map[string]any{"action": "truncate", "path": "x"})
	if res.Success() || res.Error != "Unknown action: truncate" {
		t.Fatalf("unknown action result = %+v", res)
	}
}
