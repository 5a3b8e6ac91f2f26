package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrDecode reports output that holds no valid response for the request.
var ErrDecode = errors.New("decode failed")

// Response is a decoded JSON-RPC response line.
type Response struct {
	// ID is the correlation identifier echoed by the server.
	ID int64

	// Result is the raw result object, nil when the server returned an error.
	Result json.RawMessage

	// Error is the server's error message, empty on success.
	Error string

	// Line is the raw line the response was decoded from.
	Line []byte
}

// DecodeResponse scans output line by line and returns the first JSON-RPC
// response whose id equals wantID. Lines that are not JSON, or are requests
// and notifications (such as a terminal echo of the request), are skipped.
func DecodeResponse(output []byte, wantID int64) (*Response, error) {
	if !utf8.Valid(output) {
		return nil, fmt.Errorf("%w: output is not valid UTF-8", ErrDecode)
	}

	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var mismatched []string

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}

		msg, err := jsonrpc.DecodeMessage(line)
		if err != nil {
			continue
		}

		resp, ok := msg.(*jsonrpc.Response)
		if !ok {
			continue
		}

		id, ok := resp.ID.Raw().(int64)
		if !ok || id != wantID {
			mismatched = append(mismatched, fmt.Sprint(resp.ID.Raw()))
			continue
		}

		decoded := &Response{
			ID:     id,
			Result: resp.Result,
			Line:   bytes.Clone(line),
		}

		if resp.Error != nil {
			decoded.Error = resp.Error.Error()
		}

		return decoded, nil
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if len(mismatched) > 0 {
		return nil, fmt.Errorf("%w: no response with id %d (saw ids %v)", ErrDecode, wantID, mismatched)
	}

	return nil, fmt.Errorf("%w: no JSON-RPC response line in output", ErrDecode)
}

// OK reports whether the server returned a result rather than an error.
func (r *Response) OK() bool {
	return r.Error == ""
}

// ToolResult decodes the result as an MCP tools/call result.
func (r *Response) ToolResult() (*mcp.CallToolResult, error) {
	if !r.OK() {
		return nil, fmt.Errorf("server error: %s", r.Error)
	}

	var result mcp.CallToolResult
	if err := json.Unmarshal(r.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: tool result: %v", ErrDecode, err)
	}

	return &result, nil
}

// Text joins the text content blocks of a tool result.
func Text(result *mcp.CallToolResult) string {
	var buf bytes.Buffer

	for _, content := range result.Content {
		text, ok := content.(*mcp.TextContent)
		if !ok {
			continue
		}

		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}

		buf.WriteString(text.Text)
	}

	return buf.String()
}
