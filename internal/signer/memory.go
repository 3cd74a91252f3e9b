package signer

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/yourusername/korasign/internal/perr"
	"github.com/yourusername/korasign/internal/wire"
)

// Memory is the in-memory backend: an ed25519 key pair held in process
// memory, loaded once at startup from one of three auto-detected secret
// formats. Signing never leaves the process.
type Memory struct {
	name           string
	key            solana.PrivateKey
	paymentAddress solana.PublicKey
}

// NewMemory loads a signer from raw secret material, auto-detecting its
// format: base58-encoded 64-byte key, a JSON array of 64 integers, or a
// filesystem path to such a JSON-array file.
func NewMemory(name, secret string, paymentAddress solana.PublicKey) (*Memory, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return nil, err
	}
	pa := paymentAddress
	if pa.IsZero() {
		pa = key.PublicKey()
	}
	return &Memory{name: name, key: key, paymentAddress: pa}, nil
}

func decodeSecret(secret string) (solana.PrivateKey, error) {
	trimmed := strings.TrimSpace(secret)

	if ints, ok := tryJSONArray(trimmed); ok {
		return keyFromInts(ints)
	}

	if raw, err := base58.Decode(trimmed); err == nil && len(raw) == 64 {
		return solana.PrivateKey(raw), nil
	}

	if data, err := os.ReadFile(trimmed); err == nil {
		if ints, ok := tryJSONArray(strings.TrimSpace(string(data))); ok {
			return keyFromInts(ints)
		}
		return nil, perr.New(perr.SignerBackendError, perr.NonRetryable, "secret file is not a JSON key array: "+trimmed, nil)
	}

	return nil, perr.New(perr.SignerBackendError, perr.NonRetryable, "secret is neither base58, JSON array, nor a readable file path", nil)
}

func tryJSONArray(s string) ([]int, bool) {
	if !strings.HasPrefix(s, "[") {
		return nil, false
	}
	var ints []int
	if err := json.Unmarshal([]byte(s), &ints); err != nil {
		return nil, false
	}
	return ints, true
}

func keyFromInts(ints []int) (solana.PrivateKey, error) {
	if len(ints) != 64 {
		return nil, perr.New(perr.SignerBackendError, perr.NonRetryable, "key array must hold exactly 64 bytes", nil)
	}
	raw := make([]byte, 64)
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, perr.New(perr.SignerBackendError, perr.NonRetryable, "key array byte out of range", nil)
		}
		raw[i] = byte(v)
	}
	return solana.PrivateKey(raw), nil
}

func (m *Memory) Name() string                    { return m.name }
func (m *Memory) PublicAddress() solana.PublicKey  { return m.key.PublicKey() }
func (m *Memory) PaymentAddress() solana.PublicKey { return m.paymentAddress }

func (m *Memory) Sign(ctx context.Context, messageBytes []byte) (wire.Signature, error) {
	sig, err := m.key.Sign(messageBytes)
	if err != nil {
		return wire.Signature{}, perr.New(perr.SignerBackendError, perr.NonRetryable, "in-memory sign failed", err)
	}
	return wire.Signature(sig), nil
}

func (m *Memory) SignSolanaMessage(ctx context.Context, tx *wire.Transaction) (*wire.Transaction, error) {
	return signMessageInto(ctx, m, tx)
}
