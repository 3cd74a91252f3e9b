package rpcmethod

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/korasign/internal/cache"
	"github.com/yourusername/korasign/internal/chainrpc"
	"github.com/yourusername/korasign/internal/fee"
	"github.com/yourusername/korasign/internal/oracle"
	"github.com/yourusername/korasign/internal/policy"
	"github.com/yourusername/korasign/internal/resolver"
	"github.com/yourusername/korasign/internal/signer"
	"github.com/yourusername/korasign/internal/wire"
)

var memoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

type fakeOracle struct{}

func (fakeOracle) GetLatestBlockhash(ctx context.Context) ([32]byte, uint64, error) {
	return [32]byte{1, 2, 3}, 42, nil
}
func (fakeOracle) GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	return nil, nil
}
func (fakeOracle) SimulateTransaction(ctx context.Context, txBase64 string, sigVerify bool) (string, error) {
	return "", nil
}
func (fakeOracle) SubmitTransaction(ctx context.Context, txBase64 string) (solana.Signature, error) {
	return solana.Signature{9}, nil
}

var _ chainrpc.Oracle = fakeOracle{}

func memoOnlyTxBase64(t *testing.T, feePayer solana.PublicKey) string {
	t.Helper()
	tx := &wire.Transaction{
		Signatures: []wire.Signature{{}},
		Message: wire.Message{
			Header:      wire.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: []wire.PublicKey{feePayer, memoProgramID},
			Instructions: []wire.CompiledInstruction{
				{ProgramIDIndex: 1, Data: []byte("hello")},
			},
		},
	}
	out, err := wire.Encode(tx)
	require.NoError(t, err)
	return out
}

func newTestService(t *testing.T, feePayer solana.PublicKey) (*Service, signer.Entry) {
	t.Helper()
	wallet := solana.NewWallet()
	entry, err := signer.NewMemory("primary", wallet.PrivateKey.String(), solana.PublicKey{})
	require.NoError(t, err)

	pool := signer.NewPool()
	pool.Register(entry, true)

	c := cache.NewMemory(64)
	oc := fakeOracle{}
	res := resolver.New(c, oc, nil)

	pol := &policy.Policy{
		MaxSignatures:   1,
		AllowedPrograms: map[solana.PublicKey]struct{}{memoProgramID: {}},
		StrictMode:      false,
	}
	eng := policy.New(pol, c, oc, nil)
	fees := fee.New(c, oc)

	svc := &Service{
		Policy:      pol,
		Engine:      eng,
		Resolver:    res,
		Fees:        fees,
		Oracle:      oc,
		PriceOracle: oracle.NewMock(nil),
		Signers:     pool,
		PriceModel:  fee.PriceModel{Kind: fee.PriceMargin, MarginFraction: 0},
		Enabled: map[string]bool{
			"signTransaction":        true,
			"signAndSendTransaction": true,
			"getPayerSigner":         true,
		},
	}
	return svc, entry
}

func TestSignTransactionMemoOnlyScenario(t *testing.T) {
	wallet := solana.NewWallet()
	svc, entry := newTestService(t, wallet.PublicKey())

	txBase64 := memoOnlyTxBase64(t, entry.PublicAddress())

	res, err := svc.SignTransaction(context.Background(), "req-1", txBase64, "", false)
	require.NoError(t, err)
	require.Equal(t, entry.PublicAddress(), res.SignerPublicKey)

	decoded, err := wire.Decode(res.SignedTransaction)
	require.NoError(t, err)
	msgBytes, err := wire.EncodeMessage(&decoded.Message)
	require.NoError(t, err)
	require.True(t, solana.Signature(decoded.Signatures[0]).Verify(entry.PublicAddress(), msgBytes))
}

func TestSignTransactionRejectsDisallowedProgram(t *testing.T) {
	wallet := solana.NewWallet()
	svc, entry := newTestService(t, wallet.PublicKey())
	svc.Policy.AllowedPrograms = map[solana.PublicKey]struct{}{} // nothing allowed

	txBase64 := memoOnlyTxBase64(t, entry.PublicAddress())
	_, err := svc.SignTransaction(context.Background(), "req-2", txBase64, "", false)
	require.Error(t, err)
}

func TestMethodDisabledIsRejected(t *testing.T) {
	wallet := solana.NewWallet()
	svc, _ := newTestService(t, wallet.PublicKey())
	svc.Enabled = map[string]bool{} // nothing enabled

	_, err := svc.GetPayerSigner(context.Background(), "")
	require.Error(t, err)
}

func TestSignAndSendTransactionSubmits(t *testing.T) {
	wallet := solana.NewWallet()
	svc, entry := newTestService(t, wallet.PublicKey())
	txBase64 := memoOnlyTxBase64(t, entry.PublicAddress())

	res, err := svc.SignAndSendTransaction(context.Background(), "req-3", txBase64, "", false)
	require.NoError(t, err)
	require.NotEmpty(t, res.Signature)
}

// transferCheckedTxBase64 builds a tx pairing a memo instruction (so it
// passes the allowed-programs check) with a TransferChecked payment to
// entry's payment address, the exact shape payment.BuildPaymentInstruction
// produces.
func transferCheckedTxBase64(t *testing.T, feePayer, mint, sourceWallet, paymentDestination solana.PublicKey, amount uint64) string {
	t.Helper()
	sourceATA, _, err := solana.FindAssociatedTokenAddress(sourceWallet, mint)
	require.NoError(t, err)
	destATA, _, err := solana.FindAssociatedTokenAddress(paymentDestination, mint)
	require.NoError(t, err)

	data := append([]byte{12}, make([]byte, 9)...) // TransferChecked disc, amount(8), decimals(1)
	for i := 0; i < 8; i++ {
		data[1+i] = byte(amount >> (8 * i))
	}

	keys := []wire.PublicKey{feePayer, memoProgramID, sourceATA, mint, destATA, sourceWallet, splTokenProgramID}
	tx := &wire.Transaction{
		Signatures: []wire.Signature{{}},
		Message: wire.Message{
			Header:      wire.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: keys,
			Instructions: []wire.CompiledInstruction{
				{ProgramIDIndex: 1, Data: []byte("hello")},
				{ProgramIDIndex: 6, Accounts: []uint8{2, 3, 4, 5}, Data: data},
			},
		},
	}
	out, err := wire.Encode(tx)
	require.NoError(t, err)
	return out
}

var splTokenProgramID = solana.TokenProgramID

func newPaidTokenTestService(t *testing.T, feePayer, mint solana.PublicKey) (*Service, signer.Entry) {
	t.Helper()
	svc, entry := newTestService(t, feePayer)
	svc.Policy.AllowedSPLPaidTokens = map[solana.PublicKey]struct{}{mint: {}}
	svc.Policy.AllowedPrograms = map[solana.PublicKey]struct{}{memoProgramID: {}, splTokenProgramID: {}}
	svc.PriceOracle = oracle.NewMock(map[solana.PublicKey]oracle.Quote{
		mint: {LamportsPerToken: 1, Decimals: 6},
	})
	svc.PriceModel = fee.PriceModel{Kind: fee.PriceMargin, MarginFraction: 0}
	return svc, entry
}

// TestSignTransactionRequiresSufficientPayment exercises scenario S2 end to
// end: with a paid-token policy configured, signTransaction only signs a
// transaction carrying a TransferChecked payment worth at least the
// computed fee to the signer's payment address.
func TestSignTransactionRequiresSufficientPayment(t *testing.T) {
	feePayer := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	sourceWallet := solana.NewWallet().PublicKey()
	svc, entry := newPaidTokenTestService(t, feePayer, mint)

	txBase64 := transferCheckedTxBase64(t, entry.PublicAddress(), mint, sourceWallet, entry.PaymentAddress(), 10_000_000_000)

	res, err := svc.SignTransaction(context.Background(), "req-4", txBase64, "", false)
	require.NoError(t, err)
	require.Equal(t, entry.PublicAddress(), res.SignerPublicKey)
}

// TestSignTransactionRejectsInsufficientPayment exercises scenario S4: a
// paid-token policy configured but the attached payment is too small must
// fail signing with PaymentInsufficient rather than silently co-signing.
func TestSignTransactionRejectsInsufficientPayment(t *testing.T) {
	feePayer := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	sourceWallet := solana.NewWallet().PublicKey()
	svc, entry := newPaidTokenTestService(t, feePayer, mint)

	txBase64 := transferCheckedTxBase64(t, entry.PublicAddress(), mint, sourceWallet, entry.PaymentAddress(), 1)

	_, err := svc.SignTransaction(context.Background(), "req-5", txBase64, "", false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "PaymentInsufficient")
}

// TestSignTransactionRejectsMissingPayment exercises scenario S3: a
// paid-token policy configured but no payment instruction at all must fail
// with PaymentMissing, not be silently signed (and, for
// signAndSendTransaction, broadcast).
func TestSignTransactionRejectsMissingPayment(t *testing.T) {
	feePayer := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	svc, entry := newPaidTokenTestService(t, feePayer, mint)

	txBase64 := memoOnlyTxBase64(t, entry.PublicAddress())

	_, err := svc.SignTransaction(context.Background(), "req-6", txBase64, "", false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "PaymentMissing")
}
