// Package protocol builds and decodes the line-delimited JSON-RPC messages
// exchanged with an MCP server over stdio.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// Version is the JSON-RPC protocol tag.
	Version = "2.0"

	// MethodToolsCall invokes a named server tool.
	MethodToolsCall = "tools/call"
)

// Request is a single JSON-RPC call. Fields serialize in declaration order.
type Request struct {
	JSONRPC string              `json:"jsonrpc"`
	Method  string              `json:"method"`
	Params  *mcp.CallToolParams `json:"params"`
	ID      int64               `json:"id"`
}

// NewToolCall builds a tools/call request for the named tool.
func NewToolCall(name string, args map[string]any, id int64) (*Request, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("tool name cannot be empty")
	}

	if args == nil {
		args = map[string]any{}
	}

	return &Request{
		JSONRPC: Version,
		Method:  MethodToolsCall,
		Params: &mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
		ID: id,
	}, nil
}

// ToolName returns the tool the request calls.
func (r *Request) ToolName() string {
	if r.Params == nil {
		return ""
	}

	return r.Params.Name
}

// Encode serializes the request as one line of JSON without a terminator.
func (r *Request) Encode() ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
