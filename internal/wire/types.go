// Package wire implements the Solana short-vec/compact-u16 transaction wire
// format — decode and encode for both legacy and versioned (v0) shapes —
// exposing a typed Message/Instruction view uniformly over both.
//
// This is a from-scratch binary codec: it intentionally does not delegate
// decode/encode to solana-go's own transaction type, since bit-exact control
// over the wire bytes is the whole point of this package (spec invariant:
// encode(decode(T)) == T). solana-go's PublicKey/PrivateKey/Signature types
// are reused for address and signature values — they are plain fixed-size
// byte arrays with base58 String()/MarshalBinary, and reusing them keeps
// every other package in this module speaking the same address type the
// chain-RPC layer and the signer pool use.
package wire

import (
	"github.com/gagliardetto/solana-go"
)

// PublicKey is a 32-byte chain address, canonical base58 form via String().
type PublicKey = solana.PublicKey

// Signature is a 64-byte ed25519 signature.
type Signature = solana.Signature

// TxVersion distinguishes the legacy and v0 message shapes.
type TxVersion int

const (
	VersionLegacy TxVersion = iota
	VersionV0
)

// MessageHeader is the first three bytes of a Solana message: required
// signature count and readonly account counts for the signed/unsigned
// account-key ranges.
type MessageHeader struct {
	NumRequiredSignatures      uint8
	NumReadonlySignedAccounts  uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction is an instruction as it appears on the wire: indices
// into the transaction's resolved account-key list, not raw addresses.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// AddressTableLookup names a published lookup-table account and the
// writable/read-only index sets a v0 transaction draws from it.
type AddressTableLookup struct {
	AccountKey      PublicKey
	WritableIndexes []uint8
	ReadonlyIndexes []uint8
}

// Message is the typed, version-uniform view of a transaction's message.
type Message struct {
	Version          TxVersion
	Header           MessageHeader
	AccountKeys      []PublicKey // static keys only; lookup-resolved keys live on ResolvedTransaction
	RecentBlockhash  [32]byte
	Instructions     []CompiledInstruction
	AddressTableLookups []AddressTableLookup // empty for legacy
}

// RequiredSignatures returns the first byte of the message header.
func (m *Message) RequiredSignatures() int {
	return int(m.Header.NumRequiredSignatures)
}

// IsWritableStatic reports whether the static account key at index idx is
// writable, per the header split (ignores lookup-resolved keys — see
// ResolvedTransaction.IsWritable for the full-key-space answer).
func (m *Message) IsWritableStatic(idx int) bool {
	n := len(m.AccountKeys)
	if idx < 0 || idx >= n {
		return false
	}
	numSigned := int(m.Header.NumRequiredSignatures)
	if idx < numSigned {
		return idx < numSigned-int(m.Header.NumReadonlySignedAccounts)
	}
	numUnsigned := n - numSigned
	unsignedIdx := idx - numSigned
	return unsignedIdx < numUnsigned-int(m.Header.NumReadonlyUnsignedAccounts)
}

// IsSignerStatic reports whether the static account key at index idx is
// required to sign.
func (m *Message) IsSignerStatic(idx int) bool {
	return idx >= 0 && idx < int(m.Header.NumRequiredSignatures)
}

// Transaction is an immutable decoded transaction: signatures (a
// fixed-length prefix, zero-filled for missing slots) plus its Message.
type Transaction struct {
	Signatures []Signature
	Message    Message
}

const (
	// maxTransactionSize is the chain's effective wire-size ceiling.
	maxTransactionSize = 1232
	signatureSize      = 64
	pubkeySize         = 32
)
