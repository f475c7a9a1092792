package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const maxReadBytes = 64 * 1024

// Tool is a callable capability exposed to the model during a run.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Handler     func(ctx context.Context, params map[string]interface{}) (string, error)
}

// Toolset is a registry of tools available to a run.
type Toolset struct {
	tools map[string]Tool
	order []string
}

// NewToolset creates an empty toolset.
func NewToolset() *Toolset {
	return &Toolset{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering a duplicate name is an error.
func (ts *Toolset) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if _, exists := ts.tools[tool.Name]; exists {
		return fmt.Errorf("tool already registered: %s", tool.Name)
	}
	ts.tools[tool.Name] = tool
	ts.order = append(ts.order, tool.Name)
	return nil
}

// Definitions returns the tool definitions to advertise to the model, in
// registration order.
func (ts *Toolset) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(ts.order))
	for _, name := range ts.order {
		tool := ts.tools[name]
		defs = append(defs, ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return defs
}

// Execute runs the named tool. Unknown tools and handler failures produce an
// error string for the model rather than aborting the run.
func (ts *Toolset) Execute(ctx context.Context, name string, params map[string]interface{}) (output string, ok bool) {
	tool, exists := ts.tools[name]
	if !exists {
		return fmt.Sprintf("Error: unknown tool %q", name), false
	}
	result, err := tool.Handler(ctx, params)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), false
	}
	return result, true
}

// DefaultToolset returns the built-in read-only tools. File access is
// confined to root; paths that escape it are rejected.
func DefaultToolset(root string) *Toolset {
	ts := NewToolset()

	// Register only fails on duplicate names; the built-in names are unique.
	_ = ts.Register(Tool{
		Name:        "read_file",
		Description: "Read the contents of a file in the workspace.",
		InputSchema: objectSchema(map[string]interface{}{
			"path": map[string]interface{}{"type": "string", "description": "Path relative to the workspace root"},
		}, []string{"path"}),
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			path, _ := params["path"].(string)
			resolved, err := resolveWorkspacePath(root, path)
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(resolved)
			if err != nil {
				return "", fmt.Errorf("failed to read %s: %w", path, err)
			}
			if len(data) > maxReadBytes {
				return string(data[:maxReadBytes]) + "\n[truncated]", nil
			}
			return string(data), nil
		},
	})

	_ = ts.Register(Tool{
		Name:        "list_dir",
		Description: "List the entries of a directory in the workspace.",
		InputSchema: objectSchema(map[string]interface{}{
			"path": map[string]interface{}{"type": "string", "description": "Path relative to the workspace root"},
		}, nil),
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			path, _ := params["path"].(string)
			if path == "" {
				path = "."
			}
			resolved, err := resolveWorkspacePath(root, path)
			if err != nil {
				return "", err
			}
			entries, err := os.ReadDir(resolved)
			if err != nil {
				return "", fmt.Errorf("failed to list %s: %w", path, err)
			}
			names := make([]string, 0, len(entries))
			for _, entry := range entries {
				name := entry.Name()
				if entry.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			sort.Strings(names)
			return strings.Join(names, "\n"), nil
		},
	})

	_ = ts.Register(Tool{
		Name:        "current_time",
		Description: "Return the current time in RFC 3339 format.",
		InputSchema: objectSchema(map[string]interface{}{}, nil),
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			return time.Now().UTC().Format(time.RFC3339), nil
		},
	})

	return ts
}

func objectSchema(properties map[string]interface{}, required []string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// resolveWorkspacePath joins path onto root and rejects traversal outside it.
func resolveWorkspacePath(root, path string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("workspace root is not configured")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid workspace root: %w", err)
	}
	resolved := filepath.Join(absRoot, path)
	if resolved != absRoot && !strings.HasPrefix(resolved, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return resolved, nil
}
