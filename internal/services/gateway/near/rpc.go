package near

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/louisbranch/tileduel/internal/platform/otel"
)

const tracerName = "github.com/louisbranch/tileduel/internal/services/gateway/near"

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client is a JSON-RPC client for a NEAR node.
type Client struct {
	endpoint string
	http     Doer
}

// NewClient returns a client for the node at endpoint. A nil doer uses a
// plain http.Client without a timeout: call lifetimes follow the caller's
// context.
func NewClient(endpoint string, doer Doer) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("node url is required")
	}
	if doer == nil {
		doer = &http.Client{}
	}
	return &Client{endpoint: endpoint, http: doer}, nil
}

// Endpoint returns the node URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Name    string          `json:"name"`
	Data    json.RawMessage `json:"data,omitempty"`
	Cause   *struct {
		Name string          `json:"name"`
		Info json.RawMessage `json:"info,omitempty"`
	} `json:"cause,omitempty"`
}

// Error implements error.
func (e *RPCError) Error() string {
	parts := []string{"near rpc"}
	if e.Name != "" {
		parts = append(parts, e.Name)
	}
	if e.Cause != nil && e.Cause.Name != "" {
		parts = append(parts, e.Cause.Name)
	}
	msg := strings.Join(parts, " ") + ": " + e.Message
	if detail := e.detail(); detail != "" && detail != e.Message {
		msg += ": " + detail
	}
	return msg
}

func (e *RPCError) detail() string {
	if len(e.Data) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(e.Data, &text); err == nil {
		return text
	}
	return string(e.Data)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// call issues one JSON-RPC request and decodes its result into out.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	ctx, span := otel.StartRPCSpan(ctx, tracerName, method)
	err := c.do(ctx, method, params, out)
	otel.EndSpan(span, err)
	return err
}

func (c *Client) do(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: uuid.NewString(), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("%s: node returned HTTP %d: %s", method, resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s: node returned HTTP %d", method, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}
