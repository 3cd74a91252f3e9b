package policy

import "github.com/gagliardetto/solana-go"

var (
	systemProgramID    = solana.SystemProgramID
	splTokenProgramID  = solana.TokenProgramID
	token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	computeBudgetID    = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")
)

// systemDiscriminator decodes the little-endian u32 instruction
// discriminator the system program uses.
func systemDiscriminator(data []byte) (uint32, bool) {
	if len(data) < 4 {
		return 0, false
	}
	return uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24, true
}

// splDiscriminator decodes the single-byte discriminator both the SPL
// Token and Token-2022 programs use for their shared base instruction set.
func splDiscriminator(data []byte) (uint8, bool) {
	if len(data) < 1 {
		return 0, false
	}
	return data[0], true
}

const (
	sysCreateAccount         = 0
	sysAssign                = 1
	sysTransfer              = 2
	sysAdvanceNonceAccount   = 4
	sysWithdrawNonceAccount  = 5
	sysInitializeNonceAcct   = 6
	sysAuthorizeNonceAccount = 7
	sysAllocate              = 8
)

const (
	tokInitializeMint      = 0
	tokInitializeAccount   = 1
	tokInitializeMultisig  = 2
	tokTransfer            = 3
	tokApprove             = 4
	tokRevoke              = 5
	tokSetAuthority        = 6
	tokMintTo              = 7
	tokBurn                = 8
	tokCloseAccount        = 9
	tokFreezeAccount       = 10
	tokThawAccount         = 11
	tokTransferChecked     = 12
)
