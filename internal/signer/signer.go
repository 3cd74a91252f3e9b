// Package signer implements the pool of signing backends a request may be
// routed to: an in-memory ed25519 key, two HSM-remote variants, and a
// cloud-secret-store backend that fetches once and signs locally
// thereafter. Every backend satisfies the same Entry contract so the rest
// of the module never branches on backend kind.
package signer

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/korasign/internal/wire"
)

// Entry is the unified signing contract every backend variant implements.
// Implementations are immutable handles: all mutable state (connection
// pools, cached secrets) lives behind internal synchronization.
type Entry interface {
	// Name is the stable identifier used for signer_key selection.
	Name() string

	// PublicAddress is the backend's signing key, fixed for process
	// lifetime.
	PublicAddress() solana.PublicKey

	// PaymentAddress is where this signer's collected token payments
	// should land; may equal PublicAddress's associated token account
	// owner.
	PaymentAddress() solana.PublicKey

	// Sign produces a 64-byte ed25519 signature over messageBytes. May
	// call out to a remote service; callers should apply their own
	// timeout via ctx.
	Sign(ctx context.Context, messageBytes []byte) (wire.Signature, error)

	// SignSolanaMessage signs tx's message and returns a copy of tx with
	// the fee-payer signature slot populated. Backends that can sign
	// the wire format directly may short-circuit through Sign.
	SignSolanaMessage(ctx context.Context, tx *wire.Transaction) (*wire.Transaction, error)
}

// signMessageInto is the shared SignSolanaMessage helper every backend
// delegates to: serialize the message, call the backend's Sign, and place
// the signature in the fee payer's slot (always index 0).
func signMessageInto(ctx context.Context, e Entry, tx *wire.Transaction) (*wire.Transaction, error) {
	msgBytes, err := wire.EncodeMessage(&tx.Message)
	if err != nil {
		return nil, err
	}

	sig, err := e.Sign(ctx, msgBytes)
	if err != nil {
		return nil, err
	}

	out := *tx
	out.Signatures = append([]wire.Signature(nil), tx.Signatures...)
	if len(out.Signatures) == 0 {
		out.Signatures = make([]wire.Signature, tx.Message.RequiredSignatures())
	}
	out.Signatures[0] = sig
	return &out, nil
}
