package contract

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/korasign/internal/cache"
	"github.com/yourusername/korasign/internal/fee"
	"github.com/yourusername/korasign/internal/oracle"
	"github.com/yourusername/korasign/internal/policy"
	"github.com/yourusername/korasign/internal/resolver"
	"github.com/yourusername/korasign/internal/rpcmethod"
	"github.com/yourusername/korasign/internal/signer"
	"github.com/yourusername/korasign/internal/wire"
)

var memoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

type submittingOracle struct{ submitted []string }

func (o *submittingOracle) GetLatestBlockhash(ctx context.Context) ([32]byte, uint64, error) {
	return [32]byte{}, 0, nil
}
func (o *submittingOracle) GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	return nil, nil
}
func (o *submittingOracle) SimulateTransaction(ctx context.Context, txBase64 string, sigVerify bool) (string, error) {
	return "", nil
}
func (o *submittingOracle) SubmitTransaction(ctx context.Context, txBase64 string) (solana.Signature, error) {
	o.submitted = append(o.submitted, txBase64)
	return solana.Signature{1}, nil
}

func memoTxBase64(t *testing.T, feePayer solana.PublicKey) string {
	t.Helper()
	tx := &wire.Transaction{
		Signatures: []wire.Signature{{}},
		Message: wire.Message{
			Header:       wire.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys:  []wire.PublicKey{feePayer, memoProgramID},
			Instructions: []wire.CompiledInstruction{{ProgramIDIndex: 1, Data: []byte("equivalence")}},
		},
	}
	out, err := wire.Encode(tx)
	require.NoError(t, err)
	return out
}

// TestSignThenSubmitEquivalentToSignAndSend exercises the invariant that
// signTransaction followed by an out-of-band submit produces the same
// signed payload signAndSendTransaction signs and submits in one call —
// the two entrypoints share the exact same signing pipeline.
func TestSignThenSubmitEquivalentToSignAndSend(t *testing.T) {
	wallet := solana.NewWallet()
	feePayer := wallet.PublicKey()

	entry, err := signer.NewMemory("primary", wallet.PrivateKey.String(), solana.PublicKey{})
	require.NoError(t, err)
	pool := signer.NewPool()
	pool.Register(entry, true)

	c := cache.NewMemory(16)
	oc := &submittingOracle{}
	res := resolver.New(c, oc, nil)
	pol := &policy.Policy{
		MaxSignatures:   1,
		AllowedPrograms: map[solana.PublicKey]struct{}{memoProgramID: {}},
		StrictMode:      false,
	}
	eng := policy.New(pol, c, oc, nil)
	fees := fee.New(c, oc)

	svc := &rpcmethod.Service{
		Policy:      pol,
		Engine:      eng,
		Resolver:    res,
		Fees:        fees,
		Oracle:      oc,
		PriceOracle: oracle.NewMock(nil),
		Signers:     pool,
		PriceModel:  fee.PriceModel{Kind: fee.PriceMargin},
		Enabled: map[string]bool{
			"signTransaction":        true,
			"signAndSendTransaction": true,
		},
	}

	txBase64 := memoTxBase64(t, entry.PublicAddress())

	signed, err := svc.SignTransaction(context.Background(), "req-a", txBase64, "", false)
	require.NoError(t, err)

	signedAndSent, err := svc.SignAndSendTransaction(context.Background(), "req-b", txBase64, "", false)
	require.NoError(t, err)

	require.Equal(t, signed.SignedTransaction, signedAndSent.SignedTransaction)
	require.NotEmpty(t, signedAndSent.Signature)
	require.Len(t, oc.submitted, 1)
	require.Equal(t, signedAndSent.SignedTransaction, oc.submitted[0])
}
