package contract

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/korasign/internal/cache"
	"github.com/yourusername/korasign/internal/fee"
	"github.com/yourusername/korasign/internal/oracle"
	"github.com/yourusername/korasign/internal/resolver"
	"github.com/yourusername/korasign/internal/wire"
)

type staticOracle struct{}

func (staticOracle) GetLatestBlockhash(ctx context.Context) ([32]byte, uint64, error) {
	return [32]byte{}, 0, nil
}
func (staticOracle) GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	return nil, nil
}
func (staticOracle) SimulateTransaction(ctx context.Context, txBase64 string, sigVerify bool) (string, error) {
	return "", nil
}
func (staticOracle) SubmitTransaction(ctx context.Context, txBase64 string) (solana.Signature, error) {
	return solana.Signature{}, nil
}

// TestFeeCalculationIsIdempotent exercises an invariant from the testable
// properties list: computing the fee for the same resolved transaction
// twice, against the same quote and price model, yields identical results.
func TestFeeCalculationIsIdempotent(t *testing.T) {
	feePayer := solana.NewWallet().PublicKey()
	memoProgramID := solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
	mint := solana.NewWallet().PublicKey()

	keys := []wire.PublicKey{feePayer, memoProgramID}
	tx := &wire.Transaction{
		Message: wire.Message{
			Header:       wire.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys:  keys,
			Instructions: []wire.CompiledInstruction{{ProgramIDIndex: 1, Data: []byte("hi")}},
		},
	}
	rtx := &resolver.ResolvedTransaction{Tx: tx, Keys: keys}

	calc := fee.New(cache.NewMemory(4), staticOracle{})
	quote := oracle.Quote{LamportsPerToken: 100_000, Decimals: 6}
	model := fee.PriceModel{Kind: fee.PriceMargin, MarginFraction: 0.1}

	first, err := calc.Calculate(context.Background(), rtx, mint, quote, model)
	require.NoError(t, err)
	second, err := calc.Calculate(context.Background(), rtx, mint, quote, model)
	require.NoError(t, err)

	require.Equal(t, first.Lamports, second.Lamports)
	require.Equal(t, first.TokenUnits, second.TokenUnits)
}
