package near

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/mr-tron/base58"
)

// actionFunctionCall is the Borsh enum index of Action::FunctionCall.
const actionFunctionCall uint8 = 2

// FunctionCall invokes a contract method, optionally attaching a deposit.
type FunctionCall struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    sdkmath.Int
}

// Transaction is an unsigned NEAR transaction carrying function calls.
type Transaction struct {
	SignerID   string
	PublicKey  PublicKey
	Nonce      uint64
	ReceiverID string
	BlockHash  [32]byte
	Actions    []FunctionCall
}

// Encode serializes the transaction in Borsh layout.
func (tx Transaction) Encode() ([]byte, error) {
	w := &borshWriter{}
	tx.encodeTo(w)
	return w.result()
}

func (tx Transaction) encodeTo(w *borshWriter) {
	w.string(tx.SignerID)
	w.u8(uint8(tx.PublicKey.Type))
	w.fixed(tx.PublicKey.Data[:])
	w.u64(tx.Nonce)
	w.string(tx.ReceiverID)
	w.fixed(tx.BlockHash[:])
	w.u32(uint32(len(tx.Actions)))
	for _, action := range tx.Actions {
		w.u8(actionFunctionCall)
		w.string(action.MethodName)
		w.bytes(action.Args)
		w.u64(action.Gas)
		if action.Deposit.IsNil() {
			w.u128(nil)
		} else {
			w.u128(action.Deposit.BigInt())
		}
	}
}

// SignedTransaction pairs a transaction with its ed25519 signature.
type SignedTransaction struct {
	Transaction Transaction
	Signature   [ed25519.SignatureSize]byte
	Hash        [32]byte
}

// Sign hashes the encoded transaction with SHA-256 and signs the digest.
func Sign(tx Transaction, key KeyPair) (SignedTransaction, error) {
	if key.IsZero() {
		return SignedTransaction{}, fmt.Errorf("sign transaction: key pair is empty")
	}
	if key.PublicKey() != tx.PublicKey {
		return SignedTransaction{}, fmt.Errorf("sign transaction: key does not match transaction public key")
	}
	encoded, err := tx.Encode()
	if err != nil {
		return SignedTransaction{}, fmt.Errorf("sign transaction: %w", err)
	}
	hash := sha256.Sum256(encoded)
	return SignedTransaction{
		Transaction: tx,
		Signature:   key.Sign(hash[:]),
		Hash:        hash,
	}, nil
}

// Encode serializes the signed transaction in Borsh layout.
func (s SignedTransaction) Encode() ([]byte, error) {
	w := &borshWriter{}
	s.Transaction.encodeTo(w)
	w.u8(uint8(KeyTypeED25519))
	w.fixed(s.Signature[:])
	return w.result()
}

// DecodeSignedTransaction parses a Borsh-encoded signed transaction made of
// function calls and recomputes its hash.
func DecodeSignedTransaction(raw []byte) (SignedTransaction, error) {
	r := &borshReader{buf: raw}
	var tx Transaction
	tx.SignerID = r.string()
	tx.PublicKey.Type = KeyType(r.u8())
	r.fixed(tx.PublicKey.Data[:])
	tx.Nonce = r.u64()
	tx.ReceiverID = r.string()
	r.fixed(tx.BlockHash[:])
	count := r.u32()
	for i := uint32(0); i < count && r.err == nil; i++ {
		if tag := r.u8(); tag != actionFunctionCall && r.err == nil {
			return SignedTransaction{}, fmt.Errorf("decode transaction: unsupported action %d", tag)
		}
		action := FunctionCall{MethodName: r.string(), Args: r.bytes(), Gas: r.u64()}
		action.Deposit = sdkmath.NewIntFromBigInt(r.u128())
		tx.Actions = append(tx.Actions, action)
	}
	var signed SignedTransaction
	if tag := r.u8(); tag != uint8(KeyTypeED25519) && r.err == nil {
		return SignedTransaction{}, fmt.Errorf("decode transaction: unsupported signature type %d", tag)
	}
	r.fixed(signed.Signature[:])
	if err := r.finish(); err != nil {
		return SignedTransaction{}, fmt.Errorf("decode transaction: %w", err)
	}
	encoded, err := tx.Encode()
	if err != nil {
		return SignedTransaction{}, fmt.Errorf("decode transaction: %w", err)
	}
	signed.Transaction = tx
	signed.Hash = sha256.Sum256(encoded)
	return signed, nil
}

// Verify reports whether the signature matches the transaction's key.
func (s SignedTransaction) Verify() bool {
	return Verify(s.Transaction.PublicKey, s.Hash[:], s.Signature[:])
}

// HashString renders the transaction hash the way explorers show it.
func (s SignedTransaction) HashString() string {
	return base58.Encode(s.Hash[:])
}
