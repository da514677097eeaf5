package tools

import "context"

// Func is the signature of a local tool callable. The returned value is
// serialized to text before it re-enters the conversation: strings pass
// through verbatim, anything else is JSON-encoded.
type Func func(ctx context.Context, args map[string]any) (any, error)

// ToolServerConfig describes an MCP tool server binary.
type ToolServerConfig struct {
	Binary  string            `mapstructure:"binary"`
	Env     map[string]string `mapstructure:"env"`
	Enabled bool              `mapstructure:"enabled"`
}
