package policy

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/korasign/internal/cache"
	"github.com/yourusername/korasign/internal/resolver"
	"github.com/yourusername/korasign/internal/wire"
)

type nopOracle struct{}

func (nopOracle) GetLatestBlockhash(ctx context.Context) ([32]byte, uint64, error) { return [32]byte{}, 0, nil }
func (nopOracle) GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	return nil, nil
}
func (nopOracle) SimulateTransaction(ctx context.Context, txBase64 string, sigVerify bool) (string, error) {
	return "", nil
}
func (nopOracle) SubmitTransaction(ctx context.Context, txBase64 string) (solana.Signature, error) {
	return solana.Signature{}, nil
}

func closeAccountTx(feePayer, tokenAccount, destination solana.PublicKey) *resolver.ResolvedTransaction {
	keys := []wire.PublicKey{feePayer, tokenAccount, destination, splTokenProgramID}
	data := []byte{tokCloseAccount}
	instr := wire.CompiledInstruction{
		ProgramIDIndex: 3,
		Accounts:       []uint8{1, 2, 0}, // account, destination, owner(=feePayer)
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

func basePolicy() *Policy {
	return &Policy{
		MaxSignatures: 10,
		AllowedPrograms: map[solana.PublicKey]struct{}{
			splTokenProgramID: {},
		},
		StrictMode: true,
	}
}

func TestPolicyRejectsCloseAccountWhenDenied(t *testing.T) {
	feePayer := solana.NewWallet().PublicKey()
	tokenAccount := solana.NewWallet().PublicKey()
	dest := solana.NewWallet().PublicKey()

	p := basePolicy()
	engine := New(p, cache.NewMemory(16), nopOracle{}, zap.NewNop())

	rtx := closeAccountTx(feePayer, tokenAccount, dest)
	err := engine.Check(context.Background(), rtx, CheckInput{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "close_account")
}

func TestPolicyAllowsCloseAccountWhenAllowed(t *testing.T) {
	feePayer := solana.NewWallet().PublicKey()
	tokenAccount := solana.NewWallet().PublicKey()
	dest := solana.NewWallet().PublicKey()

	p := basePolicy()
	p.FeePayerPolicy.SPLToken.AllowCloseAccount = true
	engine := New(p, cache.NewMemory(16), nopOracle{}, zap.NewNop())

	rtx := closeAccountTx(feePayer, tokenAccount, dest)
	err := engine.Check(context.Background(), rtx, CheckInput{})
	require.NoError(t, err)
}

func TestPolicyRejectsDisallowedProgram(t *testing.T) {
	feePayer := solana.NewWallet().PublicKey()
	program := solana.NewWallet().PublicKey()
	keys := []wire.PublicKey{feePayer, program}
	tx := &wire.Transaction{
		Message: wire.Message{
			Header:       wire.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys:  keys,
			Instructions: []wire.CompiledInstruction{{ProgramIDIndex: 1}},
		},
	}
	rtx := &resolver.ResolvedTransaction{Tx: tx, Keys: keys}

	p := basePolicy()
	engine := New(p, cache.NewMemory(16), nopOracle{}, zap.NewNop())
	err := engine.Check(context.Background(), rtx, CheckInput{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "program_allow_list")
}

func TestPolicySignatureCapBoundary(t *testing.T) {
	feePayer := solana.NewWallet().PublicKey()
	keys := []wire.PublicKey{feePayer, splTokenProgramID}

	mk := func(required uint8) *resolver.ResolvedTransaction {
		tx := &wire.Transaction{
			Message: wire.Message{
				Header:      wire.MessageHeader{NumRequiredSignatures: required},
				AccountKeys: keys,
			},
		}
		return &resolver.ResolvedTransaction{Tx: tx, Keys: keys}
	}

	p := basePolicy()
	p.MaxSignatures = 2
	engine := New(p, cache.NewMemory(16), nopOracle{}, zap.NewNop())

	require.NoError(t, engine.Check(context.Background(), mk(2), CheckInput{}))
	require.Error(t, engine.Check(context.Background(), mk(3), CheckInput{}))
}
