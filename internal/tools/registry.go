package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mwhitaker/herald/internal/llm"
)

// ErrUnknownTool is returned by Call when no tool carries the requested
// name. Callers are expected to fold it back into the conversation as a
// tool-result error string rather than fail the turn.
var ErrUnknownTool = errors.New("unknown tool")

type localTool struct {
	def llm.ToolDef
	fn  Func
}

// Registry maps tool names to capabilities: local in-process callables
// and tools discovered on MCP server connections. Names are unique; a
// local registration under an existing name replaces the previous
// entry, and local tools shadow MCP tools of the same name.
type Registry struct {
	local       map[string]localTool
	localOrder  []string
	connections map[string]*MCPConnection // server name → connection
	toolIndex   map[string]string         // MCP tool name → server name
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		local:       make(map[string]localTool),
		connections: make(map[string]*MCPConnection),
		toolIndex:   make(map[string]string),
	}
}

// RegisterLocal adds or replaces a local tool. Duplicate names
// deliberately overwrite: the last registration wins.
func (r *Registry) RegisterLocal(def llm.ToolDef, fn Func) {
	if _, exists := r.local[def.Name]; !exists {
		r.localOrder = append(r.localOrder, def.Name)
	}
	r.local[def.Name] = localTool{def: def, fn: fn}
}

// RegisterServer launches an MCP tool server and indexes its tools.
func (r *Registry) RegisterServer(name string, cfg ToolServerConfig) error {
	if !cfg.Enabled {
		return nil
	}

	var env []string
	env = append(env, os.Environ()...)
	for k, v := range cfg.Env {
		// Expand environment variable references like ${VAR}
		if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
			v = os.Getenv(v[2 : len(v)-1])
		}
		env = append(env, k+"="+v)
	}

	conn, err := NewMCPConnection(name, cfg.Binary, env)
	if err != nil {
		return err
	}

	r.connections[name] = conn
	for _, toolName := range conn.ToolNames() {
		r.toolIndex[toolName] = name
	}

	return nil
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	if _, ok := r.local[name]; ok {
		return true
	}
	_, ok := r.toolIndex[name]
	return ok
}

// HasTools reports whether any tools are registered.
func (r *Registry) HasTools() bool {
	return len(r.local) > 0 || len(r.toolIndex) > 0
}

// Defs returns every tool definition: local tools in registration
// order, then tools per MCP server. Only name/description/schema are
// exposed; callables stay local.
func (r *Registry) Defs() []llm.ToolDef {
	var all []llm.ToolDef
	for _, name := range r.localOrder {
		all = append(all, r.local[name].def)
	}
	for _, conn := range r.connections {
		all = append(all, conn.ToolDefs()...)
	}
	return all
}

// Call invokes a tool by name and returns its serialized result.
// Unregistered names return ErrUnknownTool. A panicking local callable
// is recovered and reported as an ordinary error.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (result string, err error) {
	if lt, ok := r.local[name]; ok {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		out, callErr := lt.fn(ctx, args)
		if callErr != nil {
			return "", callErr
		}
		return serializeResult(out), nil
	}

	serverName, ok := r.toolIndex[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return r.connections[serverName].CallTool(ctx, name, args)
}

// Close shuts down all MCP server connections.
func (r *Registry) Close() {
	for _, conn := range r.connections {
		conn.Close()
	}
}

func serializeResult(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
