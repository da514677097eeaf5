package tools_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwhitaker/herald/internal/llm"
	"github.com/mwhitaker/herald/internal/tools"
)

func TestRegistryEmpty(t *testing.T) {
	r := tools.NewRegistry()
	defer r.Close()

	if r.HasTools() {
		t.Fatal("empty registry should not have tools")
	}
	if got := r.Defs(); len(got) != 0 {
		t.Fatalf("Defs() = %d, want 0", len(got))
	}

	_, err := r.Call(context.Background(), "nonexistent", nil)
	if err == nil {
		t.Fatal("Call on empty registry should return error")
	}
	if !errors.Is(err, tools.ErrUnknownTool) {
		t.Fatalf("Call error = %v, want ErrUnknownTool", err)
	}
}

func TestRegistryLocalTools(t *testing.T) {
	r := tools.NewRegistry()
	defer r.Close()

	r.RegisterLocal(llm.ToolDef{Name: "greet", Description: "say hello"},
		func(ctx context.Context, args map[string]any) (any, error) {
			name, _ := args["name"].(string)
			return "hello " + name, nil
		})

	if !r.Has("greet") {
		t.Fatal("Has(greet) = false after registration")
	}
	if !r.HasTools() {
		t.Fatal("HasTools() = false after registration")
	}

	result, err := r.Call(context.Background(), "greet", map[string]any{"name": "world"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result != "hello world" {
		t.Errorf("Call = %q, want %q", result, "hello world")
	}
}

func TestRegistryLocalOverwrite(t *testing.T) {
	r := tools.NewRegistry()
	defer r.Close()

	r.RegisterLocal(llm.ToolDef{Name: "t", Description: "first"},
		func(ctx context.Context, args map[string]any) (any, error) { return "one", nil })
	r.RegisterLocal(llm.ToolDef{Name: "t", Description: "second"},
		func(ctx context.Context, args map[string]any) (any, error) { return "two", nil })

	defs := r.Defs()
	if len(defs) != 1 {
		t.Fatalf("Defs() = %d entries, want 1 after overwrite", len(defs))
	}
	if defs[0].Description != "second" {
		t.Errorf("Defs()[0].Description = %q, want the replacement", defs[0].Description)
	}

	result, err := r.Call(context.Background(), "t", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result != "two" {
		t.Errorf("Call = %q, want %q", result, "two")
	}
}

func TestRegistryDefsOrder(t *testing.T) {
	r := tools.NewRegistry()
	defer r.Close()

	names := []string{"zeta", "alpha", "mid"}
	for _, n := range names {
		r.RegisterLocal(llm.ToolDef{Name: n},
			func(ctx context.Context, args map[string]any) (any, error) { return nil, nil })
	}

	defs := r.Defs()
	if len(defs) != len(names) {
		t.Fatalf("Defs() = %d, want %d", len(defs), len(names))
	}
	for i, n := range names {
		if defs[i].Name != n {
			t.Errorf("Defs()[%d] = %s, want registration order %s", i, defs[i].Name, n)
		}
	}
}

func TestRegistryResultSerialization(t *testing.T) {
	r := tools.NewRegistry()
	defer r.Close()

	tests := []struct {
		name   string
		result any
		want   string
	}{
		{"string verbatim", "plain text\nwith newline", "plain text\nwith newline"},
		{"nil is empty", nil, ""},
		{"map as json", map[string]any{"temp": 22}, `{"temp":22}`},
		{"number as json", 42, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.result
			r.RegisterLocal(llm.ToolDef{Name: "serialize"},
				func(ctx context.Context, args map[string]any) (any, error) { return out, nil })

			got, err := r.Call(context.Background(), "serialize", nil)
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if got != tt.want {
				t.Errorf("Call = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegistryLocalErrors(t *testing.T) {
	r := tools.NewRegistry()
	defer r.Close()

	r.RegisterLocal(llm.ToolDef{Name: "failing"},
		func(ctx context.Context, args map[string]any) (any, error) {
			return nil, fmt.Errorf("tool broke")
		})
	r.RegisterLocal(llm.ToolDef{Name: "panicky"},
		func(ctx context.Context, args map[string]any) (any, error) {
			panic("unexpected state")
		})

	_, err := r.Call(context.Background(), "failing", nil)
	if err == nil || !strings.Contains(err.Error(), "tool broke") {
		t.Errorf("Call(failing) error = %v, want the tool's error", err)
	}

	_, err = r.Call(context.Background(), "panicky", nil)
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Errorf("Call(panicky) error = %v, want a recovered panic", err)
	}
	if errors.Is(err, tools.ErrUnknownTool) {
		t.Error("a panic must not be reported as an unknown tool")
	}
}

func TestRegistrySkipsDisabled(t *testing.T) {
	r := tools.NewRegistry()
	defer r.Close()

	err := r.RegisterServer("disabled-server", tools.ToolServerConfig{
		Binary:  "/nonexistent/binary",
		Enabled: false,
	})
	if err != nil {
		t.Fatalf("RegisterServer for disabled server should not error: %v", err)
	}
	if r.HasTools() {
		t.Fatal("disabled server should not register tools")
	}
}

func TestRegistryBadBinary(t *testing.T) {
	r := tools.NewRegistry()
	defer r.Close()

	err := r.RegisterServer("bad", tools.ToolServerConfig{
		Binary:  "/nonexistent/binary",
		Enabled: true,
	})
	if err == nil {
		t.Fatal("RegisterServer with bad binary should return error")
	}
}

func TestBuiltins(t *testing.T) {
	r := tools.NewRegistry()
	defer r.Close()

	tools.RegisterBuiltins(r)

	for _, name := range []string{"shell_exec", "code_run", "current_time"} {
		if !r.Has(name) {
			t.Errorf("builtin %s not registered", name)
		}
	}

	result, err := r.Call(context.Background(), "shell_exec", map[string]any{
		"command": "echo builtin works",
	})
	if err != nil {
		t.Fatalf("shell_exec: %v", err)
	}
	if !strings.Contains(result, "builtin works") {
		t.Errorf("shell_exec result = %q", result)
	}

	result, err = r.Call(context.Background(), "shell_exec", map[string]any{
		"command": "pwd",
		"workdir": "/tmp",
	})
	if err != nil {
		t.Fatalf("shell_exec workdir: %v", err)
	}
	// macOS resolves /tmp → /private/tmp
	if !strings.Contains(result, "tmp") {
		t.Errorf("expected /tmp in output, got: %q", result)
	}

	if _, err := r.Call(context.Background(), "current_time", nil); err != nil {
		t.Fatalf("current_time: %v", err)
	}
}

// --- MCP integration tests (need the tool binaries built first) ---
// Run: make build-tools && go test ./internal/tools/ -v

func binPath(name string) string {
	wd, _ := os.Getwd()
	for d := wd; d != "/"; d = filepath.Dir(d) {
		candidate := filepath.Join(d, "bin", name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return filepath.Join("bin", name) // fallback
}

func skipIfNoBinary(t *testing.T, name string) string {
	t.Helper()
	path := binPath(name)
	if _, err := os.Stat(path); err != nil {
		t.Skipf("binary %s not found at %s (run make build-tools first)", name, path)
	}
	return path
}

func TestCodeRunnerMCP(t *testing.T) {
	bin := skipIfNoBinary(t, "herald-tool-code-runner")

	r := tools.NewRegistry()
	defer r.Close()

	if err := r.RegisterServer("code-runner", tools.ToolServerConfig{Binary: bin, Enabled: true}); err != nil {
		t.Fatalf("RegisterServer code-runner: %v", err)
	}

	found := false
	for _, td := range r.Defs() {
		if td.Name == "code_run" {
			found = true
			if td.Description == "" {
				t.Error("code_run should have a description")
			}
		}
	}
	if !found {
		t.Fatal("code_run not discovered on the MCP connection")
	}

	if testing.Short() {
		t.Skip("skipping Docker execution in short mode")
	}

	result, err := r.Call(context.Background(), "code_run", map[string]any{
		"language": "python",
		"code":     "print('hello from mcp')",
	})
	if err != nil {
		t.Fatalf("Call code_run: %v", err)
	}
	if !strings.Contains(result, "hello from mcp") {
		t.Errorf("unexpected result: %q", result)
	}
}
