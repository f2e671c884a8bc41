package near

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"

	sdkmath "cosmossdk.io/math"
	"github.com/mr-tron/base58"
)

const finalityFinal = "final"

// NodeStatus is the subset of the node status the gateway inspects.
type NodeStatus struct {
	ChainID  string `json:"chain_id"`
	SyncInfo struct {
		LatestBlockHeight uint64 `json:"latest_block_height"`
		LatestBlockHash   string `json:"latest_block_hash"`
	} `json:"sync_info"`
}

// Status returns the node status.
func (c *Client) Status(ctx context.Context) (NodeStatus, error) {
	var out NodeStatus
	if err := c.call(ctx, "status", []any{}, &out); err != nil {
		return NodeStatus{}, err
	}
	return out, nil
}

// queryError is how older nodes report failed queries inside the result.
type queryError struct {
	Error string `json:"error"`
}

func (c *Client) query(ctx context.Context, params map[string]any, out any) error {
	params["finality"] = finalityFinal
	var raw json.RawMessage
	if err := c.call(ctx, "query", params, &raw); err != nil {
		return err
	}
	var qe queryError
	if err := json.Unmarshal(raw, &qe); err == nil && qe.Error != "" {
		return &RPCError{Name: "QUERY_ERROR", Message: qe.Error}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode query result: %w", err)
	}
	return nil
}

// ViewFunction calls a read-only contract method and returns its raw result
// bytes (normally JSON).
func (c *Client) ViewFunction(ctx context.Context, contractID, method string, args []byte) ([]byte, error) {
	if args == nil {
		args = []byte("{}")
	}
	var out struct {
		Result []int    `json:"result"`
		Logs   []string `json:"logs"`
	}
	err := c.query(ctx, map[string]any{
		"request_type": "call_function",
		"account_id":   contractID,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(args),
	}, &out)
	if err != nil {
		return nil, err
	}
	result := make([]byte, len(out.Result))
	for i, b := range out.Result {
		result[i] = byte(b)
	}
	return result, nil
}

// AccountView is the on-chain state of an account.
type AccountView struct {
	Amount       sdkmath.Int
	Locked       sdkmath.Int
	StorageUsage uint64
}

// ViewAccount returns the account's balance and storage state.
func (c *Client) ViewAccount(ctx context.Context, accountID string) (AccountView, error) {
	var out struct {
		Amount       string `json:"amount"`
		Locked       string `json:"locked"`
		StorageUsage uint64 `json:"storage_usage"`
	}
	if err := c.query(ctx, map[string]any{
		"request_type": "view_account",
		"account_id":   accountID,
	}, &out); err != nil {
		return AccountView{}, err
	}
	amount, err := parseYocto("amount", out.Amount)
	if err != nil {
		return AccountView{}, err
	}
	locked, err := parseYocto("locked", out.Locked)
	if err != nil {
		return AccountView{}, err
	}
	return AccountView{Amount: amount, Locked: locked, StorageUsage: out.StorageUsage}, nil
}

// AccessKeyView is the nonce and permission of an access key.
type AccessKeyView struct {
	Nonce      uint64              `json:"nonce"`
	Permission AccessKeyPermission `json:"permission"`
}

// FunctionCallPermission limits a key to zero-deposit calls on one receiver,
// optionally to a set of methods.
type FunctionCallPermission struct {
	Allowance   string   `json:"allowance"`
	ReceiverID  string   `json:"receiver_id"`
	MethodNames []string `json:"method_names"`
}

// AccessKeyPermission is full access when FunctionCall is nil.
type AccessKeyPermission struct {
	FunctionCall *FunctionCallPermission
}

// FullAccess reports whether the key may sign any transaction.
func (p AccessKeyPermission) FullAccess() bool {
	return p.FunctionCall == nil
}

// Permits reports whether a key with this permission may sign call against
// receiverID.
func (p AccessKeyPermission) Permits(receiverID string, call FunctionCall) bool {
	grant := p.FunctionCall
	if grant == nil {
		return true
	}
	if !call.Deposit.IsNil() && call.Deposit.IsPositive() {
		return false
	}
	if grant.ReceiverID != receiverID {
		return false
	}
	return len(grant.MethodNames) == 0 || slices.Contains(grant.MethodNames, call.MethodName)
}

// UnmarshalJSON reads the node's "FullAccess" or {"FunctionCall": {...}}.
func (p *AccessKeyPermission) UnmarshalJSON(raw []byte) error {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		if name != "FullAccess" {
			return fmt.Errorf("unknown access key permission %q", name)
		}
		*p = AccessKeyPermission{}
		return nil
	}
	var grant struct {
		FunctionCall *FunctionCallPermission `json:"FunctionCall"`
	}
	if err := json.Unmarshal(raw, &grant); err != nil {
		return fmt.Errorf("decode access key permission: %w", err)
	}
	if grant.FunctionCall == nil {
		return fmt.Errorf("unknown access key permission %s", raw)
	}
	*p = AccessKeyPermission{FunctionCall: grant.FunctionCall}
	return nil
}

// ViewAccessKey returns the access key registered for accountID and key.
func (c *Client) ViewAccessKey(ctx context.Context, accountID string, key PublicKey) (AccessKeyView, error) {
	var out AccessKeyView
	if err := c.query(ctx, map[string]any{
		"request_type": "view_access_key",
		"account_id":   accountID,
		"public_key":   key.String(),
	}, &out); err != nil {
		return AccessKeyView{}, err
	}
	return out, nil
}

// LatestBlockHash returns the hash of the latest final block.
func (c *Client) LatestBlockHash(ctx context.Context) ([32]byte, error) {
	var out struct {
		Header struct {
			Hash string `json:"hash"`
		} `json:"header"`
	}
	if err := c.call(ctx, "block", map[string]any{"finality": finalityFinal}, &out); err != nil {
		return [32]byte{}, err
	}
	raw, err := base58.Decode(out.Header.Hash)
	if err != nil || len(raw) != 32 {
		return [32]byte{}, fmt.Errorf("decode block hash %q", out.Header.Hash)
	}
	var hash [32]byte
	copy(hash[:], raw)
	return hash, nil
}

// StorageAmountPerByte returns the yoctoNEAR cost of one byte of storage.
func (c *Client) StorageAmountPerByte(ctx context.Context) (sdkmath.Int, error) {
	var out struct {
		RuntimeConfig struct {
			StorageAmountPerByte string `json:"storage_amount_per_byte"`
		} `json:"runtime_config"`
	}
	if err := c.call(ctx, "EXPERIMENTAL_protocol_config", map[string]any{"finality": finalityFinal}, &out); err != nil {
		return sdkmath.Int{}, err
	}
	return parseYocto("storage_amount_per_byte", out.RuntimeConfig.StorageAmountPerByte)
}

// ExecutionError reports a transaction that was included but failed.
type ExecutionError struct {
	TxHash  string
	Failure json.RawMessage
}

// Error implements error, surfacing the contract's panic message when present.
func (e *ExecutionError) Error() string {
	if msg := findExecutionMessage(e.Failure); msg != "" {
		return fmt.Sprintf("transaction %s failed: %s", e.TxHash, msg)
	}
	return fmt.Sprintf("transaction %s failed: %s", e.TxHash, string(e.Failure))
}

// Outcome is the result of a committed transaction.
type Outcome struct {
	TxHash       string
	SuccessValue []byte
}

// BroadcastTxCommit submits a signed transaction and waits for its outcome.
func (c *Client) BroadcastTxCommit(ctx context.Context, signed SignedTransaction) (Outcome, error) {
	wire, err := signed.Encode()
	if err != nil {
		return Outcome{}, err
	}
	var out struct {
		Status      map[string]json.RawMessage `json:"status"`
		Transaction struct {
			Hash string `json:"hash"`
		} `json:"transaction"`
	}
	if err := c.call(ctx, "broadcast_tx_commit", []string{base64.StdEncoding.EncodeToString(wire)}, &out); err != nil {
		return Outcome{}, err
	}
	hash := out.Transaction.Hash
	if hash == "" {
		hash = signed.HashString()
	}
	if failure, ok := out.Status["Failure"]; ok {
		return Outcome{}, &ExecutionError{TxHash: hash, Failure: failure}
	}
	outcome := Outcome{TxHash: hash}
	if value, ok := out.Status["SuccessValue"]; ok {
		var encoded string
		if err := json.Unmarshal(value, &encoded); err != nil {
			return Outcome{}, fmt.Errorf("decode success value: %w", err)
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return Outcome{}, fmt.Errorf("decode success value: %w", err)
		}
		outcome.SuccessValue = decoded
	}
	return outcome, nil
}

func parseYocto(field, value string) (sdkmath.Int, error) {
	if value == "" {
		return sdkmath.ZeroInt(), nil
	}
	parsed, ok := sdkmath.NewIntFromString(value)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("decode %s %q", field, value)
	}
	return parsed, nil
}

// findExecutionMessage walks a failure object looking for the contract's
// ExecutionError string.
func findExecutionMessage(raw json.RawMessage) string {
	var node any
	if err := json.Unmarshal(raw, &node); err != nil {
		return ""
	}
	return walkExecutionMessage(node)
}

func walkExecutionMessage(node any) string {
	switch v := node.(type) {
	case map[string]any:
		if msg, ok := v["ExecutionError"].(string); ok {
			return msg
		}
		for _, child := range v {
			if msg := walkExecutionMessage(child); msg != "" {
				return msg
			}
		}
	case []any:
		for _, child := range v {
			if msg := walkExecutionMessage(child); msg != "" {
				return msg
			}
		}
	}
	return ""
}
