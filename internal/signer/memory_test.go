package signer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/korasign/internal/wire"
)

func TestNewMemoryDetectsBase58(t *testing.T) {
	wallet := solana.NewWallet()
	m, err := NewMemory("primary", wallet.PrivateKey.String(), solana.PublicKey{})
	require.NoError(t, err)
	require.Equal(t, wallet.PublicKey(), m.PublicAddress())
	require.Equal(t, wallet.PublicKey(), m.PaymentAddress())
}

func TestNewMemoryDetectsJSONArray(t *testing.T) {
	wallet := solana.NewWallet()
	ints := make([]int, 64)
	for i, b := range wallet.PrivateKey {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)

	m, err := NewMemory("primary", string(raw), solana.PublicKey{})
	require.NoError(t, err)
	require.Equal(t, wallet.PublicKey(), m.PublicAddress())
}

func TestNewMemoryRejectsGarbage(t *testing.T) {
	_, err := NewMemory("primary", "not-a-valid-secret", solana.PublicKey{})
	require.Error(t, err)
}

func TestMemorySignSolanaMessage(t *testing.T) {
	wallet := solana.NewWallet()
	m, err := NewMemory("primary", wallet.PrivateKey.String(), solana.PublicKey{})
	require.NoError(t, err)

	tx := &wire.Transaction{
		Signatures: []wire.Signature{{}},
		Message: wire.Message{
			Header:      wire.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: []wire.PublicKey{wallet.PublicKey()},
		},
	}

	signed, err := m.SignSolanaMessage(context.Background(), tx)
	require.NoError(t, err)
	require.NotEqual(t, wire.Signature{}, signed.Signatures[0])

	msgBytes, err := wire.EncodeMessage(&signed.Message)
	require.NoError(t, err)
	require.True(t, solana.Signature(signed.Signatures[0]).Verify(wallet.PublicKey(), msgBytes))
}

func TestPoolResolvesByNameAddressAndDefault(t *testing.T) {
	wallet := solana.NewWallet()
	m, err := NewMemory("primary", wallet.PrivateKey.String(), solana.PublicKey{})
	require.NoError(t, err)

	pool := NewPool()
	pool.Register(m, true)

	byDefault, err := pool.Get("")
	require.NoError(t, err)
	require.Equal(t, m, byDefault)

	byName, err := pool.Get("primary")
	require.NoError(t, err)
	require.Equal(t, m, byName)

	byAddr, err := pool.Get(wallet.PublicKey().String())
	require.NoError(t, err)
	require.Equal(t, m, byAddr)

	_, err = pool.Get("nonexistent")
	require.Error(t, err)
}
