package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const NameFiles = "files"

// FilesTool manages files inside the task workspace. Paths are resolved
// against the workspace root and may never escape it.
type FilesTool struct {
	root string
}

func NewFilesTool(root string) *FilesTool {
	abs, _ := filepath.Abs(root)
	return &FilesTool{root: abs}
}

func (f *FilesTool) Name() string {
	return NameFiles
}

func (f *FilesTool) Description() string {
	return "Read, write, and list files in the workspace. Use for saving results, reading data files, creating reports."
}

func (f *FilesTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"read", "write", "append", "list", "delete"},
				"description": "Action to perform",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "File path relative to the workspace",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content to write (for write/append actions)",
			},
		},
		"required": []string{"action"},
	}
}

func (f *FilesTool) Execute(ctx context.Context, input map[string]any) (Result, error) {
	action, _ := input["action"].(string)

	if action == "list" {
		return f.list(), nil
	}

	rel, _ := input["path"].(string)
	path, err := f.safePath(rel)
	if err != nil {
		return Result{Error: err.Error(), ExitCode: 1}, nil
	}
	content, _ := input["content"].(string)

	switch action {
	case "read":
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return Result{Error: "File not found: " + filepath.Base(path), ExitCode: 1}, nil
			}
			return Result{Error: err.Error(), ExitCode: 1}, nil
		}
		return Result{Output: string(data)}, nil

	case "write":
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return Result{Error: err.Error(), ExitCode: 1}, nil
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return Result{Error: err.Error(), ExitCode: 1}, nil
		}
		return Result{Output: "Written: " + filepath.Base(path)}, nil

	case "append":
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return Result{Error: err.Error(), ExitCode: 1}, nil
		}
		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return Result{Error: err.Error(), ExitCode: 1}, nil
		}
		defer file.Close()
		if _, err := file.WriteString(content); err != nil {
			return Result{Error: err.Error(), ExitCode: 1}, nil
		}
		return Result{Output: "Appended: " + filepath.Base(path)}, nil

	case "delete":
		if _, err := os.Stat(path); err != nil {
			return Result{Error: "File not found: " + filepath.Base(path), ExitCode: 1}, nil
		}
		if err := os.Remove(path); err != nil {
			return Result{Error: err.Error(), ExitCode: 1}, nil
		}
		return Result{Output: "Deleted: " + filepath.Base(path)}, nil

	default:
		return Result{Error: fmt.Sprintf("Unknown action: %s", action), ExitCode: 1}, nil
	}
}

// list walks the whole workspace; a missing root reads as empty.
func (f *FilesTool) list() Result {
	var names []string
	filepath.WalkDir(f.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if rel, rerr := filepath.Rel(f.root, p); rerr == nil {
			names = append(names, rel)
		}
		return nil
	})
	if len(names) == 0 {
		return Result{Output: "(empty workspace)"}
	}
	sort.Strings(names)
	return Result{Output: strings.Join(names, "\n")}
}

func (f *FilesTool) safePath(rel string) (string, error) {
	full := filepath.Join(f.root, rel)
	back, err := filepath.Rel(f.root, full)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the workspace", rel)
	}
	return full, nil
}
