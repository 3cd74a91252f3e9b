package contract

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/korasign/internal/payment"
	"github.com/yourusername/korasign/internal/resolver"
	"github.com/yourusername/korasign/internal/wire"
)

const splTransferDiscriminator = 3

var splTokenProgramID = solana.TokenProgramID

func encodeU64LE(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func splTransferTx(mint, sourceWallet, paymentDestination solana.PublicKey, amount uint64) *resolver.ResolvedTransaction {
	destinationATA, _, err := solana.FindAssociatedTokenAddress(paymentDestination, mint)
	if err != nil {
		panic(err)
	}
	sourceATA, _, err := solana.FindAssociatedTokenAddress(sourceWallet, mint)
	if err != nil {
		panic(err)
	}

	keys := []wire.PublicKey{sourceWallet, sourceATA, destinationATA, splTokenProgramID}
	data := append([]byte{splTransferDiscriminator}, encodeU64LE(amount)...)
	instr := wire.CompiledInstruction{
		ProgramIDIndex: 3,
		Accounts:       []uint8{1, 2, 0}, // source, destination, authority
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

// TestPaymentVerifyAllowsSufficientTokenPayment exercises scenario S2: a
// transaction carrying an SPL transfer for at least the required token
// amount to the operator's payment destination is accepted.
func TestPaymentVerifyAllowsSufficientTokenPayment(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	sourceWallet := solana.NewWallet().PublicKey()
	paymentDestination := solana.NewWallet().PublicKey()

	rtx := splTransferTx(mint, sourceWallet, paymentDestination, 1_000_000)
	err := payment.Verify(rtx, paymentDestination, mint, sourceWallet, 1_000_000)
	require.NoError(t, err)
}

// TestPaymentVerifyRejectsInsufficientTokenPayment exercises scenario S4: a
// transfer one unit below the required amount must fail with
// PaymentInsufficient, not be silently accepted or misclassified as
// PaymentMissing.
func TestPaymentVerifyRejectsInsufficientTokenPayment(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	sourceWallet := solana.NewWallet().PublicKey()
	paymentDestination := solana.NewWallet().PublicKey()

	const required = 1_000_000
	rtx := splTransferTx(mint, sourceWallet, paymentDestination, required-1)
	err := payment.Verify(rtx, paymentDestination, mint, sourceWallet, required)
	require.Error(t, err)
	require.Contains(t, err.Error(), "PaymentInsufficient")
}

func TestPaymentVerifyRejectsMissingPayment(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	sourceWallet := solana.NewWallet().PublicKey()
	paymentDestination := solana.NewWallet().PublicKey()

	tx := &wire.Transaction{
		Message: wire.Message{
			Header:      wire.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: []wire.PublicKey{sourceWallet},
		},
	}
	rtx := &resolver.ResolvedTransaction{Tx: tx, Keys: tx.Message.AccountKeys}

	err := payment.Verify(rtx, paymentDestination, mint, sourceWallet, 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "PaymentMissing")
}
