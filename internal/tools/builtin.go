package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mwhitaker/herald/internal/llm"
	"github.com/mwhitaker/herald/internal/sandbox"
)

// Truncation bound for tool output fed back into the context window.
const maxToolOutput = 4000

// RegisterBuiltins adds the built-in local tools: shell execution,
// sandboxed code execution and the current time.
func RegisterBuiltins(r *Registry) {
	r.RegisterLocal(llm.ToolDef{
		Name:        "shell_exec",
		Description: "Execute a shell command and return the combined stdout and stderr output. Use this to run system commands, check files, install packages, etc.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "The shell command to execute",
				},
				"workdir": map[string]any{
					"type":        "string",
					"description": "Working directory for the command (optional)",
				},
			},
			"required": []string{"command"},
		},
	}, shellExec)

	r.RegisterLocal(llm.ToolDef{
		Name:        "code_run",
		Description: "Execute code in an isolated Docker sandbox. Supported languages: python, javascript, go, ruby.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"language": map[string]any{
					"type":        "string",
					"description": "Programming language (python, javascript, go, ruby)",
				},
				"code": map[string]any{
					"type":        "string",
					"description": "Source code to execute",
				},
				"stdin": map[string]any{
					"type":        "string",
					"description": "Standard input for the program (optional)",
				},
			},
			"required": []string{"language", "code"},
		},
	}, codeRun)

	r.RegisterLocal(llm.ToolDef{
		Name:        "current_time",
		Description: "Return the current date and time in RFC 3339 format.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return time.Now().Format(time.RFC3339), nil
	})
}

func shellExec(ctx context.Context, args map[string]any) (any, error) {
	command, ok := args["command"].(string)
	if !ok {
		return nil, fmt.Errorf("'command' argument must be a string")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if workdir, ok := args["workdir"].(string); ok && workdir != "" {
		cmd.Dir = workdir
	}

	output, err := cmd.CombinedOutput()
	result := string(output)
	if err != nil {
		result += "\nexit error: " + err.Error()
	}

	return truncateOutput(result), nil
}

var languageRunners = map[string]struct {
	image   string
	command []string
}{
	"python":     {"python:3.12-slim", []string{"python", "/workspace/code"}},
	"javascript": {"node:22-slim", []string{"node", "/workspace/code"}},
	"go":         {"golang:1.23-alpine", []string{"go", "run", "/workspace/code"}},
	"ruby":       {"ruby:3.3-slim", []string{"ruby", "/workspace/code"}},
}

func codeRun(ctx context.Context, args map[string]any) (any, error) {
	language, _ := args["language"].(string)
	code, _ := args["code"].(string)
	stdin, _ := args["stdin"].(string)

	if language == "" || code == "" {
		return nil, fmt.Errorf("'language' and 'code' are required")
	}

	runner, ok := languageRunners[language]
	if !ok {
		return nil, fmt.Errorf("unsupported language %q", language)
	}

	sb := sandbox.NewDockerSandbox(sandbox.DefaultPolicy())
	result, err := sb.Exec(ctx, sandbox.ExecOpts{
		Image:   runner.image,
		Command: runner.command,
		Code:    code,
		Stdin:   stdin,
	})
	if err != nil {
		return nil, err
	}

	var out strings.Builder
	if result.Stdout != "" {
		out.WriteString(result.Stdout)
	}
	if result.Stderr != "" {
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString("STDERR:\n" + result.Stderr)
	}
	if result.ExitCode != 0 {
		out.WriteString(fmt.Sprintf("\nexit code: %d", result.ExitCode))
	}

	return truncateOutput(out.String()), nil
}

func truncateOutput(s string) string {
	if len(s) > maxToolOutput {
		return s[:maxToolOutput] + "\n... (output truncated)"
	}
	return s
}
