// Package payment verifies that a transaction pays the operator for a
// sponsored signature, and separately offers a pure client-facing builder
// for the payment instruction a caller should attach — the server itself
// never injects a payment into a client's transaction.
package payment

import (
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/yourusername/korasign/internal/perr"
	"github.com/yourusername/korasign/internal/resolver"
)

const (
	splTransfer        = 3
	splTransferChecked = 12
)

var splTokenProgramID = solana.TokenProgramID
var token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

// Verify confirms rtx contains an SPL/Token-2022 transfer to the
// destination ATA of paymentDestination for at least requiredTokenUnits,
// authorized by sourceWallet.
//
// Fails with PaymentMissing if no matching transfer instruction exists,
// PaymentInsufficient if one exists but for less than required.
func Verify(rtx *resolver.ResolvedTransaction, paymentDestination, mint, sourceWallet solana.PublicKey, requiredTokenUnits uint64) error {
	_, err := find(rtx, paymentDestination, mint, &sourceWallet, requiredTokenUnits)
	return err
}

// VerifyAny behaves like Verify but accepts a transfer authorized by any
// wallet, for callers that don't know in advance which account is paying
// (the operator's fee payer and the paying wallet are different accounts,
// and nothing upstream names the latter). Returns the authority that
// satisfied the check.
func VerifyAny(rtx *resolver.ResolvedTransaction, paymentDestination, mint solana.PublicKey, requiredTokenUnits uint64) (solana.PublicKey, error) {
	return find(rtx, paymentDestination, mint, nil, requiredTokenUnits)
}

// find scans rtx for an SPL/Token-2022 transfer to paymentDestination's ATA
// for mint, worth at least requiredTokenUnits. When requireAuthority is
// non-nil, only a transfer authorized by that exact wallet counts;
// otherwise any authority matches and is returned.
func find(rtx *resolver.ResolvedTransaction, paymentDestination, mint solana.PublicKey, requireAuthority *solana.PublicKey, requiredTokenUnits uint64) (solana.PublicKey, error) {
	destinationATA, _, err := solana.FindAssociatedTokenAddress(paymentDestination, mint)
	if err != nil {
		return solana.PublicKey{}, perr.New(perr.PaymentMissing, perr.NonRetryable, "unable to derive payment destination ATA", err)
	}

	var bestInsufficient uint64
	sawCandidate := false

	for _, instr := range rtx.Tx.Message.Instructions {
		program := rtx.Keys[instr.ProgramIDIndex]
		if program != splTokenProgramID && program != token2022ProgramID {
			continue
		}
		if len(instr.Data) < 1 {
			continue
		}

		var destIdx, authorityIdx, amountOffset int
		switch instr.Data[0] {
		case splTransfer:
			if len(instr.Accounts) < 3 {
				continue
			}
			destIdx, authorityIdx, amountOffset = 1, 2, 1
		case splTransferChecked:
			if len(instr.Accounts) < 4 {
				continue
			}
			// TransferChecked accounts: source(0), mint(1), destination(2), authority(3).
			destIdx, authorityIdx, amountOffset = 2, 3, 1
		default:
			continue
		}

		dest := rtx.Keys[instr.Accounts[destIdx]]
		authority := rtx.Keys[instr.Accounts[authorityIdx]]
		if dest != destinationATA || (requireAuthority != nil && authority != *requireAuthority) {
			continue
		}

		amount, ok := decodeU64(instr.Data, amountOffset)
		if !ok {
			continue
		}
		sawCandidate = true
		if amount >= requiredTokenUnits {
			return authority, nil
		}
		if amount > bestInsufficient {
			bestInsufficient = amount
		}
	}

	if sawCandidate {
		return solana.PublicKey{}, perr.New(perr.PaymentInsufficient, perr.NonRetryable, "payment amount below required token units", nil)
	}
	return solana.PublicKey{}, perr.New(perr.PaymentMissing, perr.NonRetryable, "no matching payment transfer instruction found", nil)
}

// InstructionMints returns the distinct mints named by TransferChecked
// instructions in rtx, in instruction order. Unlike plain Transfer, the
// mint is part of TransferChecked's own accounts (index 1), so callers that
// don't already know the paid mint — because the policy allows any token
// rather than naming a fixed set — can discover candidates straight from
// the transaction instead of guessing.
func InstructionMints(rtx *resolver.ResolvedTransaction) []solana.PublicKey {
	var mints []solana.PublicKey
	seen := make(map[solana.PublicKey]struct{})

	for _, instr := range rtx.Tx.Message.Instructions {
		program := rtx.Keys[instr.ProgramIDIndex]
		if program != splTokenProgramID && program != token2022ProgramID {
			continue
		}
		if len(instr.Data) < 1 || instr.Data[0] != splTransferChecked || len(instr.Accounts) < 2 {
			continue
		}
		mint := rtx.Keys[instr.Accounts[1]]
		if _, ok := seen[mint]; ok {
			continue
		}
		seen[mint] = struct{}{}
		mints = append(mints, mint)
	}
	return mints
}

// BuildPaymentInstruction constructs the SPL-token transfer instruction a
// client should append to pay the operator, without touching the
// transaction server-side. This is the getPaymentInstruction helper.
func BuildPaymentInstruction(mint, sourceWallet, paymentDestination solana.PublicKey, amount uint64, decimals uint8) (solana.Instruction, error) {
	sourceATA, _, err := solana.FindAssociatedTokenAddress(sourceWallet, mint)
	if err != nil {
		return nil, perr.New(perr.PaymentMissing, perr.NonRetryable, "unable to derive source ATA", err)
	}
	destinationATA, _, err := solana.FindAssociatedTokenAddress(paymentDestination, mint)
	if err != nil {
		return nil, perr.New(perr.PaymentMissing, perr.NonRetryable, "unable to derive destination ATA", err)
	}

	return token.NewTransferCheckedInstruction(
		amount,
		decimals,
		sourceATA,
		mint,
		destinationATA,
		sourceWallet,
		nil,
	).Build(), nil
}

// EnsureDestinationATA returns the instruction to create the operator's
// payment-destination associated token account, for callers bootstrapping
// a brand-new payment token.
func EnsureDestinationATA(payer, owner, mint solana.PublicKey) solana.Instruction {
	return associatedtokenaccount.NewCreateInstruction(payer, owner, mint).Build()
}

func decodeU64(data []byte, offset int) (uint64, bool) {
	if offset+8 > len(data) {
		return 0, false
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(data[offset+i]) << (8 * i)
	}
	return v, true
}
