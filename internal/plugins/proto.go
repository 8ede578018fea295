package plugins

import "encoding/json"

// Core plugins speak line-delimited JSON-RPC 2.0 over stdin/stdout: one
// request per line out, one response per line back. Responses may arrive
// out of order; the id correlates them. Lines without an id are
// notifications and are never answered.

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"` // set on notifications
}

// JSON-RPC 2.0 error codes the host cares about.
const (
	codeMethodNotFound = -32601
)
