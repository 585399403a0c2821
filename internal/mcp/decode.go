package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// decode round-trips a tool call's argument map through JSON into the
// handler's input struct, so handlers never touch map[string]any directly.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var input T
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return input, fmt.Errorf("marshal arguments: %w", err)
	}
	if err := json.Unmarshal(raw, &input); err != nil {
		return input, fmt.Errorf("unmarshal arguments: %w", err)
	}
	return input, nil
}
