// Package unit holds single-behavior boundary tests that cut across
// packages, mirroring the teacher's own top-level unit-test split.
package unit

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/korasign/internal/cache"
	"github.com/yourusername/korasign/internal/chainrpc"
	"github.com/yourusername/korasign/internal/policy"
	"github.com/yourusername/korasign/internal/resolver"
	"github.com/yourusername/korasign/internal/wire"
)

type nopOracle struct{}

func (nopOracle) GetLatestBlockhash(ctx context.Context) ([32]byte, uint64, error) {
	return [32]byte{}, 0, nil
}
func (nopOracle) GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	return nil, nil
}
func (nopOracle) SimulateTransaction(ctx context.Context, txBase64 string, sigVerify bool) (string, error) {
	return "", nil
}
func (nopOracle) SubmitTransaction(ctx context.Context, txBase64 string) (solana.Signature, error) {
	return solana.Signature{}, nil
}

var _ chainrpc.Oracle = nopOracle{}

var systemProgramID = solana.SystemProgramID

func systemTransferTx(feePayer, to solana.PublicKey, lamports uint64) *resolver.ResolvedTransaction {
	data := make([]byte, 12)
	data[0] = 2 // system transfer discriminator
	for i := 0; i < 8; i++ {
		data[4+i] = byte(lamports >> (8 * i))
	}
	keys := []wire.PublicKey{feePayer, to, systemProgramID}
	instr := wire.CompiledInstruction{
		ProgramIDIndex: 2,
		Accounts:       []uint8{0, 1},
		Data:           data,
	}
	tx := &wire.Transaction{
		Message: wire.Message{
			Header:       wire.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys:  keys,
			Instructions: []wire.CompiledInstruction{instr},
		},
	}
	return &resolver.ResolvedTransaction{Tx: tx, Keys: keys}
}

// TestLamportCapBoundary checks the exact boundary: a transfer equal to
// max_allowed_lamports is allowed, one lamport over is rejected.
func TestLamportCapBoundary(t *testing.T) {
	feePayer := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()

	p := &policy.Policy{
		MaxSignatures:   1,
		MaxLamports:     1_000_000,
		AllowedPrograms: map[solana.PublicKey]struct{}{systemProgramID: {}},
	}
	p.FeePayerPolicy.System.AllowTransfer = true
	engine := policy.New(p, cache.NewMemory(16), nopOracle{}, zap.NewNop())

	atCap := systemTransferTx(feePayer, to, 1_000_000)
	require.NoError(t, engine.Check(context.Background(), atCap, policy.CheckInput{}))

	overCap := systemTransferTx(feePayer, to, 1_000_001)
	err := engine.Check(context.Background(), overCap, policy.CheckInput{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "lamport_cap")
}

// TestLookupTableEmptyIndexSetResolvesToNoLookupKeys covers the edge case
// of a v0 transaction whose lookup reference carries empty writable and
// read-only index sets: resolution succeeds and contributes no extra keys.
func TestLookupTableEmptyIndexSetResolvesToNoLookupKeys(t *testing.T) {
	feePayer := solana.NewWallet().PublicKey()
	tableAccount := solana.NewWallet().PublicKey()

	tableData := make([]byte, 56) // header only, no packed addresses
	oc := &fixedAccountOracle{data: tableData}
	c := cache.NewMemory(4)
	res := resolver.New(c, oc, zap.NewNop())

	tx := &wire.Transaction{
		Message: wire.Message{
			Version:     wire.VersionV0,
			Header:      wire.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: []wire.PublicKey{feePayer},
			AddressTableLookups: []wire.AddressTableLookup{
				{AccountKey: tableAccount},
			},
		},
	}

	resolved, err := res.Resolve(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, []wire.PublicKey{feePayer}, resolved.Keys)
}

type fixedAccountOracle struct{ data []byte }

func (o *fixedAccountOracle) GetLatestBlockhash(ctx context.Context) ([32]byte, uint64, error) {
	return [32]byte{}, 0, nil
}
func (o *fixedAccountOracle) GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	return o.data, nil
}
func (o *fixedAccountOracle) SimulateTransaction(ctx context.Context, txBase64 string, sigVerify bool) (string, error) {
	return "", nil
}
func (o *fixedAccountOracle) SubmitTransaction(ctx context.Context, txBase64 string) (solana.Signature, error) {
	return solana.Signature{}, nil
}
