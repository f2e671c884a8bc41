// Package neartest runs an in-process NEAR JSON-RPC node for tests.
//
// The node keeps account balances and access-key nonces, verifies the
// signature and nonce of every broadcast transaction, and dispatches
// function calls to contracts registered with Deploy.
package neartest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/mr-tron/base58"

	"github.com/louisbranch/tileduel/internal/services/gateway/near"
)

// Contract is the behavior deployed at a contract account.
type Contract interface {
	View(method string, args []byte) ([]byte, error)
	Call(signer, method string, args []byte, deposit sdkmath.Int) ([]byte, error)
}

// Account is the state the node tracks per account.
type Account struct {
	Amount       sdkmath.Int
	Locked       sdkmath.Int
	StorageUsage uint64
}

type accessKey struct {
	nonce uint64
	grant *near.FunctionCallPermission
}

// Node is a fake NEAR node served over httptest.
type Node struct {
	server *httptest.Server

	mu           sync.Mutex
	accounts     map[string]Account
	keys         map[string]*accessKey
	contracts    map[string]Contract
	methods      []string
	transactions []near.SignedTransaction
	blockHash    [32]byte
	costPerByte  sdkmath.Int
	down         bool
}

// DefaultCostPerByte is the mainnet storage price, 10^19 yocto per byte.
var DefaultCostPerByte = sdkmath.NewIntWithDecimal(1, 19)

// NewNode starts a node that is closed when the test ends.
func NewNode(t testing.TB) *Node {
	t.Helper()
	n := &Node{
		accounts:    map[string]Account{},
		keys:        map[string]*accessKey{},
		contracts:   map[string]Contract{},
		blockHash:   [32]byte{7, 7, 7, 7},
		costPerByte: DefaultCostPerByte,
	}
	n.server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.server.Close)
	return n
}

// URL returns the node's JSON-RPC endpoint.
func (n *Node) URL() string {
	return n.server.URL
}

// SetAccount creates or replaces an account.
func (n *Node) SetAccount(id string, account Account) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if account.Amount.IsNil() {
		account.Amount = sdkmath.ZeroInt()
	}
	if account.Locked.IsNil() {
		account.Locked = sdkmath.ZeroInt()
	}
	n.accounts[id] = account
}

// AddKey registers a full-access key for an account.
func (n *Node) AddKey(accountID string, key near.PublicKey) {
	n.addKey(accountID, key, nil)
}

// AddFunctionCallKey registers a key limited to zero-deposit calls on
// receiverID, as a wallet adds it at sign-in. No methods means any method.
func (n *Node) AddFunctionCallKey(accountID string, key near.PublicKey, receiverID string, methods ...string) {
	n.addKey(accountID, key, &near.FunctionCallPermission{ReceiverID: receiverID, MethodNames: methods})
}

func (n *Node) addKey(accountID string, key near.PublicKey, grant *near.FunctionCallPermission) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.accounts[accountID]; !ok {
		n.accounts[accountID] = Account{Amount: sdkmath.ZeroInt(), Locked: sdkmath.ZeroInt()}
	}
	n.keys[keyID(accountID, key)] = &accessKey{grant: grant}
}

// Credit adds amount to an account's balance, as a contract transfer would.
func (n *Node) Credit(accountID string, amount sdkmath.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	account, ok := n.accounts[accountID]
	if !ok {
		account = Account{Amount: sdkmath.ZeroInt(), Locked: sdkmath.ZeroInt()}
	}
	account.Amount = account.Amount.Add(amount)
	n.accounts[accountID] = account
}

// Balance returns an account's liquid amount.
func (n *Node) Balance(accountID string) sdkmath.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	account, ok := n.accounts[accountID]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return account.Amount
}

// Deploy installs a contract at accountID.
func (n *Node) Deploy(accountID string, contract Contract) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.contracts[accountID] = contract
}

// SetDown makes the node answer every request with HTTP 503.
func (n *Node) SetDown(down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down = down
}

// Methods returns the JSON-RPC methods received so far.
func (n *Node) Methods() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.methods...)
}

// Transactions returns every transaction accepted so far.
func (n *Node) Transactions() []near.SignedTransaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]near.SignedTransaction(nil), n.transactions...)
}

// ResetLog forgets recorded methods and transactions.
func (n *Node) ResetLog() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.methods = nil
	n.transactions = nil
}

type request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Name    string `json:"name,omitempty"`
	Data    string `json:"data,omitempty"`
	Cause   *rpcCause `json:"cause,omitempty"`
}

type rpcCause struct {
	Name string `json:"name"`
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.methods = append(n.methods, req.Method)
	down := n.down
	n.mu.Unlock()
	if down {
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return
	}

	result, rpcErr := n.dispatch(req)
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *Node) dispatch(req request) (any, *rpcError) {
	switch req.Method {
	case "status":
		return map[string]any{
			"chain_id": "localnet",
			"sync_info": map[string]any{
				"latest_block_height": 1,
				"latest_block_hash":   base58.Encode(n.blockHash[:]),
			},
		}, nil
	case "block":
		return map[string]any{"header": map[string]any{"hash": base58.Encode(n.blockHash[:]), "height": 1}}, nil
	case "EXPERIMENTAL_protocol_config":
		n.mu.Lock()
		cost := n.costPerByte.String()
		n.mu.Unlock()
		return map[string]any{"runtime_config": map[string]any{"storage_amount_per_byte": cost}}, nil
	case "query":
		return n.query(req.Params)
	case "broadcast_tx_commit":
		return n.broadcast(req.Params)
	default:
		return nil, &rpcError{Code: -32601, Message: "Method not found", Name: "REQUEST_VALIDATION_ERROR"}
	}
}

type queryParams struct {
	RequestType string `json:"request_type"`
	AccountID   string `json:"account_id"`
	PublicKey   string `json:"public_key"`
	MethodName  string `json:"method_name"`
	ArgsBase64  string `json:"args_base64"`
}

func (n *Node) query(raw json.RawMessage) (any, *rpcError) {
	var params queryParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams(err.Error())
	}
	n.mu.Lock()
	account, known := n.accounts[params.AccountID]
	contract := n.contracts[params.AccountID]
	n.mu.Unlock()

	switch params.RequestType {
	case "view_account":
		if !known {
			return nil, unknownAccount(params.AccountID)
		}
		return map[string]any{
			"amount":        account.Amount.String(),
			"locked":        account.Locked.String(),
			"storage_usage": account.StorageUsage,
		}, nil
	case "view_access_key":
		key, err := near.ParsePublicKey(params.PublicKey)
		if err != nil {
			return nil, invalidParams(err.Error())
		}
		n.mu.Lock()
		registered, ok := n.keys[keyID(params.AccountID, key)]
		var view map[string]any
		if ok {
			view = map[string]any{"nonce": registered.nonce, "permission": permissionJSON(registered.grant)}
		}
		n.mu.Unlock()
		if !ok {
			return nil, &rpcError{Code: -32000, Message: "Server error", Name: "HANDLER_ERROR", Data: "access key does not exist", Cause: &rpcCause{Name: "UNKNOWN_ACCESS_KEY"}}
		}
		return view, nil
	case "call_function":
		if contract == nil {
			return nil, &rpcError{Code: -32000, Message: "Server error", Name: "HANDLER_ERROR", Data: "contract is not deployed", Cause: &rpcCause{Name: "NO_CONTRACT_CODE"}}
		}
		args, err := base64.StdEncoding.DecodeString(params.ArgsBase64)
		if err != nil {
			return nil, invalidParams(err.Error())
		}
		out, err := contract.View(params.MethodName, args)
		if err != nil {
			return map[string]any{"error": fmt.Sprintf("wasm execution failed with error: %v", err), "logs": []string{}}, nil
		}
		bytesOut := make([]int, len(out))
		for i, b := range out {
			bytesOut[i] = int(b)
		}
		return map[string]any{"result": bytesOut, "logs": []string{}}, nil
	default:
		return nil, invalidParams("unsupported request_type " + params.RequestType)
	}
}

func (n *Node) broadcast(raw json.RawMessage) (any, *rpcError) {
	var params []string
	if err := json.Unmarshal(raw, &params); err != nil || len(params) != 1 {
		return nil, invalidParams("expected one base64 transaction")
	}
	wire, err := base64.StdEncoding.DecodeString(params[0])
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	signed, err := near.DecodeSignedTransaction(wire)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	tx := signed.Transaction
	if !signed.Verify() {
		return nil, invalidTx("InvalidSignature")
	}

	n.mu.Lock()
	registered, ok := n.keys[keyID(tx.SignerID, tx.PublicKey)]
	if !ok {
		n.mu.Unlock()
		return nil, invalidTx("InvalidAccessKeyError")
	}
	if tx.Nonce <= registered.nonce {
		n.mu.Unlock()
		return nil, invalidTx("InvalidNonce")
	}
	if !permits(registered.grant, tx) {
		n.mu.Unlock()
		return nil, invalidTx("InvalidAccessKeyError")
	}
	registered.nonce = tx.Nonce
	contract := n.contracts[tx.ReceiverID]
	n.transactions = append(n.transactions, signed)
	n.mu.Unlock()

	hash := signed.HashString()
	outcome := map[string]any{"transaction": map[string]any{"hash": hash, "signer_id": tx.SignerID}}
	var value []byte
	for _, action := range tx.Actions {
		if contract == nil {
			outcome["status"] = failure("CodeDoesNotExist")
			return outcome, nil
		}
		if !n.debit(tx.SignerID, action.Deposit) {
			outcome["status"] = map[string]any{"Failure": map[string]any{"InvalidTxError": map[string]any{
				"NotEnoughBalance": map[string]any{"signer_id": tx.SignerID, "cost": action.Deposit.String()},
			}}}
			return outcome, nil
		}
		value, err = contract.Call(tx.SignerID, action.MethodName, action.Args, action.Deposit)
		if err != nil {
			n.Credit(tx.SignerID, action.Deposit)
			outcome["status"] = failure("Smart contract panicked: " + err.Error())
			return outcome, nil
		}
	}
	outcome["status"] = map[string]any{"SuccessValue": base64.StdEncoding.EncodeToString(value)}
	return outcome, nil
}

// debit removes amount from the account when it can cover it.
func (n *Node) debit(accountID string, amount sdkmath.Int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	account := n.accounts[accountID]
	if account.Amount.IsNil() || account.Amount.LT(amount) {
		return false
	}
	account.Amount = account.Amount.Sub(amount)
	n.accounts[accountID] = account
	return true
}

// permits applies the runtime's function-call key rules: one action, no
// deposit, the granted receiver and method.
func permits(grant *near.FunctionCallPermission, tx near.Transaction) bool {
	if grant == nil {
		return true
	}
	if len(tx.Actions) != 1 {
		return false
	}
	return near.AccessKeyPermission{FunctionCall: grant}.Permits(tx.ReceiverID, tx.Actions[0])
}

func permissionJSON(grant *near.FunctionCallPermission) any {
	if grant == nil {
		return "FullAccess"
	}
	methods := grant.MethodNames
	if methods == nil {
		methods = []string{}
	}
	return map[string]any{"FunctionCall": map[string]any{
		"allowance":    nil,
		"receiver_id":  grant.ReceiverID,
		"method_names": methods,
	}}
}

func failure(message string) map[string]any {
	return map[string]any{"Failure": map[string]any{"ActionError": map[string]any{
		"index": 0,
		"kind":  map[string]any{"FunctionCallError": map[string]any{"ExecutionError": message}},
	}}}
}

func invalidParams(message string) *rpcError {
	return &rpcError{Code: -32602, Message: "Invalid params", Name: "REQUEST_VALIDATION_ERROR", Data: message}
}

func invalidTx(kind string) *rpcError {
	return &rpcError{Code: -32000, Message: "Server error", Name: "HANDLER_ERROR", Data: kind, Cause: &rpcCause{Name: "INVALID_TRANSACTION"}}
}

func unknownAccount(id string) *rpcError {
	return &rpcError{Code: -32000, Message: "Server error", Name: "HANDLER_ERROR", Data: "account " + id + " does not exist", Cause: &rpcCause{Name: "UNKNOWN_ACCOUNT"}}
}

func keyID(accountID string, key near.PublicKey) string {
	return accountID + "/" + key.String()
}
