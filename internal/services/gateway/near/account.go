package near

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	sdkmath "cosmossdk.io/math"
)

// DefaultGas is the gas attached to change calls when none is configured.
const DefaultGas uint64 = 30_000_000_000_000

// ErrNotFullAccess is returned by TransactionFor for a function-call key.
var ErrNotFullAccess = errors.New("access key is not a full-access key")

// ApprovalRequiredError reports a call the stored access key may not sign,
// such as one attaching a deposit. The wallet has to sign it instead.
type ApprovalRequiredError struct {
	SignerID   string
	ReceiverID string
	Actions    []FunctionCall
}

func (e *ApprovalRequiredError) Error() string {
	methods := make([]string, 0, len(e.Actions))
	for _, action := range e.Actions {
		methods = append(methods, action.MethodName)
	}
	return fmt.Sprintf("access key of %s may not sign %s on %s: wallet approval required",
		e.SignerID, strings.Join(methods, ", "), e.ReceiverID)
}

// KeySource resolves the signing key for an account on a network.
type KeySource interface {
	GetKey(ctx context.Context, networkID, accountID string) (KeyPair, error)
}

// Connection binds a node client to a network and a key source.
type Connection struct {
	NetworkID string
	Client    *Client
	Keys      KeySource

	mu      sync.Mutex
	signers map[string]*sync.Mutex
}

// NewConnection builds a connection. Keys may be nil for read-only use.
func NewConnection(networkID string, client *Client, keys KeySource) (*Connection, error) {
	if client == nil {
		return nil, fmt.Errorf("near client is required")
	}
	return &Connection{NetworkID: networkID, Client: client, Keys: keys, signers: map[string]*sync.Mutex{}}, nil
}

// Account returns a handle that signs as accountID.
func (c *Connection) Account(accountID string) *Account {
	return &Account{conn: c, id: accountID}
}

func (c *Connection) signerLock(accountID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.signers[accountID]
	if !ok {
		lock = &sync.Mutex{}
		c.signers[accountID] = lock
	}
	return lock
}

// Account signs and submits transactions for one account.
type Account struct {
	conn *Connection
	id   string
}

// ID returns the account id.
func (a *Account) ID() string {
	return a.id
}

// FunctionCall signs and commits a single function-call transaction against
// contractID. Calls for the same signer run one at a time so nonces never
// collide. A call the stored key's permission does not cover fails with
// *ApprovalRequiredError before anything is broadcast.
func (a *Account) FunctionCall(ctx context.Context, contractID string, call FunctionCall) (Outcome, error) {
	if a.conn.Keys == nil {
		return Outcome{}, fmt.Errorf("no key source configured for %s", a.id)
	}
	if call.Gas == 0 {
		call.Gas = DefaultGas
	}
	if call.Deposit.IsNil() {
		call.Deposit = sdkmath.ZeroInt()
	}
	if call.Args == nil {
		call.Args = []byte("{}")
	}

	lock := a.conn.signerLock(a.id)
	lock.Lock()
	defer lock.Unlock()

	key, err := a.conn.Keys.GetKey(ctx, a.conn.NetworkID, a.id)
	if err != nil {
		return Outcome{}, fmt.Errorf("load signing key for %s: %w", a.id, err)
	}
	if key.IsZero() {
		return Outcome{}, fmt.Errorf("no signing key stored for %s", a.id)
	}
	client := a.conn.Client
	accessKey, err := client.ViewAccessKey(ctx, a.id, key.PublicKey())
	if err != nil {
		return Outcome{}, err
	}
	if !accessKey.Permission.Permits(contractID, call) {
		return Outcome{}, &ApprovalRequiredError{SignerID: a.id, ReceiverID: contractID, Actions: []FunctionCall{call}}
	}
	blockHash, err := client.LatestBlockHash(ctx)
	if err != nil {
		return Outcome{}, err
	}
	signed, err := Sign(Transaction{
		SignerID:   a.id,
		PublicKey:  key.PublicKey(),
		Nonce:      accessKey.Nonce + 1,
		ReceiverID: contractID,
		BlockHash:  blockHash,
		Actions:    []FunctionCall{call},
	}, key)
	if err != nil {
		return Outcome{}, err
	}
	return client.BroadcastTxCommit(ctx, signed)
}

// TransactionFor builds an unsigned transaction for a wallet to sign with
// key, which must be one of the account's full-access keys.
func (a *Account) TransactionFor(ctx context.Context, key PublicKey, receiverID string, actions []FunctionCall) (Transaction, error) {
	client := a.conn.Client
	accessKey, err := client.ViewAccessKey(ctx, a.id, key)
	if err != nil {
		return Transaction{}, err
	}
	if !accessKey.Permission.FullAccess() {
		return Transaction{}, ErrNotFullAccess
	}
	blockHash, err := client.LatestBlockHash(ctx)
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		SignerID:   a.id,
		PublicKey:  key,
		Nonce:      accessKey.Nonce + 1,
		ReceiverID: receiverID,
		BlockHash:  blockHash,
		Actions:    actions,
	}, nil
}

// AccountBalance splits an account's holdings the way wallets report them.
type AccountBalance struct {
	Total       sdkmath.Int
	StateStaked sdkmath.Int
	Staked      sdkmath.Int
	Available   sdkmath.Int
}

// Balance returns the account balance. Available is total minus the larger
// of the locked amount and the storage reservation.
func (a *Account) Balance(ctx context.Context) (AccountBalance, error) {
	costPerByte, err := a.conn.Client.StorageAmountPerByte(ctx)
	if err != nil {
		return AccountBalance{}, err
	}
	view, err := a.conn.Client.ViewAccount(ctx, a.id)
	if err != nil {
		return AccountBalance{}, err
	}
	stateStaked := sdkmath.NewIntFromUint64(view.StorageUsage).Mul(costPerByte)
	staked := view.Locked
	total := view.Amount.Add(staked)
	return AccountBalance{
		Total:       total,
		StateStaked: stateStaked,
		Staked:      staked,
		Available:   total.Sub(sdkmath.MaxInt(staked, stateStaked)),
	}, nil
}
