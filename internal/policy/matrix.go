package policy

import (
	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/korasign/internal/perr"
	"github.com/yourusername/korasign/internal/resolver"
	"github.com/yourusername/korasign/internal/wire"
)

// checkSystemInstruction gates the 4 system + 4 nonce flags. The fee payer
// is in a sensitive role when it is the funder/source account of a
// mutating system instruction, or the designated authority of a nonce
// operation.
func (e *Engine) checkSystemInstruction(rtx *resolver.ResolvedTransaction, idx int, instr wire.CompiledInstruction, feePayer solana.PublicKey) error {
	disc, ok := systemDiscriminator(instr.Data)
	if !ok {
		return e.strictModeReject(idx, "system instruction missing discriminator")
	}

	account := func(i int) (solana.PublicKey, bool) {
		if i < 0 || i >= len(instr.Accounts) {
			return solana.PublicKey{}, false
		}
		return rtx.Keys[instr.Accounts[i]], true
	}

	switch disc {
	case sysCreateAccount:
		if funder, ok := account(0); ok && funder == feePayer && !e.policy.FeePayerPolicy.System.AllowCreateAccount {
			return perr.NewPolicyRejected("system.create_account", idx, "fee payer as funder requires system.allow_create_account")
		}
	case sysAssign:
		if acct, ok := account(0); ok && acct == feePayer && !e.policy.FeePayerPolicy.System.AllowAssign {
			return perr.NewPolicyRejected("system.assign", idx, "fee payer as assigned account requires system.allow_assign")
		}
	case sysTransfer:
		if from, ok := account(0); ok && from == feePayer && !e.policy.FeePayerPolicy.System.AllowTransfer {
			return perr.NewPolicyRejected("system.transfer", idx, "fee payer as transfer source requires system.allow_transfer")
		}
	case sysAllocate:
		if acct, ok := account(0); ok && acct == feePayer && !e.policy.FeePayerPolicy.System.AllowAllocate {
			return perr.NewPolicyRejected("system.allocate", idx, "fee payer as allocated account requires system.allow_allocate")
		}
	case sysInitializeNonceAcct:
		if nonceAcct, ok := account(0); ok && nonceAcct == feePayer && !e.policy.FeePayerPolicy.Nonce.AllowInitializeNonceAccount {
			return perr.NewPolicyRejected("system.nonce.initialize", idx, "fee payer as nonce account requires nonce.allow_initialize_nonce_account")
		}
	case sysAuthorizeNonceAccount:
		if authority, ok := account(1); ok && authority == feePayer && !e.policy.FeePayerPolicy.Nonce.AllowAuthorizeNonceAccount {
			return perr.NewPolicyRejected("system.nonce.authorize", idx, "fee payer as nonce authority requires nonce.allow_authorize_nonce_account")
		}
	case sysWithdrawNonceAccount:
		if authority, ok := account(4); ok && authority == feePayer && !e.policy.FeePayerPolicy.Nonce.AllowWithdrawNonceAccount {
			return perr.NewPolicyRejected("system.nonce.withdraw", idx, "fee payer as nonce authority requires nonce.allow_withdraw_nonce_account")
		}
	case sysAdvanceNonceAccount:
		if authority, ok := account(2); ok && authority == feePayer && !e.policy.FeePayerPolicy.Nonce.AllowAdvanceNonceAccount {
			return perr.NewPolicyRejected("system.nonce.advance", idx, "fee payer as nonce authority requires nonce.allow_advance_nonce_account")
		}
	default:
		return e.strictModeReject(idx, "unrecognized system instruction discriminator")
	}
	return nil
}

// checkTokenInstruction gates the 12-flag matrix shared by SPL Token and
// Token-2022, parameterized by which flag set and rule-id prefix applies.
func (e *Engine) checkTokenInstruction(rtx *resolver.ResolvedTransaction, idx int, instr wire.CompiledInstruction, feePayer solana.PublicKey, flags SPLTokenFlags, rulePrefix string) error {
	disc, ok := splDiscriminator(instr.Data)
	if !ok {
		return e.strictModeReject(idx, rulePrefix+": instruction missing discriminator")
	}

	account := func(i int) (solana.PublicKey, bool) {
		if i < 0 || i >= len(instr.Accounts) {
			return solana.PublicKey{}, false
		}
		return rtx.Keys[instr.Accounts[i]], true
	}

	reject := func(rule, msg string) error {
		return perr.NewPolicyRejected(rulePrefix+"."+rule, idx, msg)
	}

	switch disc {
	case tokInitializeMint:
		if authority, ok := decodeMintAuthority(instr.Data); ok && authority == feePayer && !flags.AllowInitializeMint {
			return reject("initialize_mint", "fee payer as mint authority requires allow_initialize_mint")
		}
	case tokInitializeAccount:
		// owner is accounts[2]; fee payer funding an account it will own is sensitive.
		if owner, ok := account(2); ok && owner == feePayer && !flags.AllowInitializeAccount {
			return reject("initialize_account", "fee payer as account owner requires allow_initialize_account")
		}
	case tokInitializeMultisig:
		for i := 2; i < len(instr.Accounts); i++ {
			if signer, ok := account(i); ok && signer == feePayer && !flags.AllowInitializeMultisig {
				return reject("initialize_multisig", "fee payer as multisig signer requires allow_initialize_multisig")
			}
		}
	case tokTransfer:
		if authority, ok := account(2); ok && authority == feePayer && !flags.AllowTransfer {
			return reject("transfer", "fee payer as transfer authority requires allow_transfer")
		}
	case tokTransferChecked:
		// TransferChecked accounts: source(0), mint(1), destination(2), authority(3).
		if authority, ok := account(3); ok && authority == feePayer && !flags.AllowTransfer {
			return reject("transfer", "fee payer as transfer authority requires allow_transfer")
		}
	case tokApprove:
		if authority, ok := account(2); ok && authority == feePayer && !flags.AllowApprove {
			return reject("approve", "fee payer as approve authority requires allow_approve")
		}
	case tokRevoke:
		if authority, ok := account(1); ok && authority == feePayer && !flags.AllowRevoke {
			return reject("revoke", "fee payer as revoke authority requires allow_revoke")
		}
	case tokSetAuthority:
		if current, ok := account(1); ok && current == feePayer && !flags.AllowSetAuthority {
			return reject("set_authority", "fee payer as current authority requires allow_set_authority")
		}
	case tokMintTo:
		if mintAuthority, ok := account(2); ok && mintAuthority == feePayer && !flags.AllowMintTo {
			return reject("mint_to", "fee payer as mint authority requires allow_mint_to")
		}
	case tokBurn:
		if authority, ok := account(2); ok && authority == feePayer && !flags.AllowBurn {
			return reject("burn", "fee payer as burn authority requires allow_burn")
		}
	case tokCloseAccount:
		if authority, ok := account(2); ok && authority == feePayer && !flags.AllowCloseAccount {
			return reject("close_account", "fee payer as close authority requires allow_close_account")
		}
	case tokFreezeAccount:
		if authority, ok := account(2); ok && authority == feePayer && !flags.AllowFreezeAccount {
			return reject("freeze_account", "fee payer as freeze authority requires allow_freeze_account")
		}
	case tokThawAccount:
		if authority, ok := account(2); ok && authority == feePayer && !flags.AllowThawAccount {
			return reject("thaw_account", "fee payer as freeze authority requires allow_thaw_account")
		}
	default:
		return e.strictModeReject(idx, rulePrefix+": unrecognized instruction discriminator")
	}
	return nil
}

// decodeMintAuthority reads InitializeMint's embedded mint-authority
// pubkey: [disc(1), decimals(1), mintAuthority(32), ...].
func decodeMintAuthority(data []byte) (solana.PublicKey, bool) {
	if len(data) < 34 {
		return solana.PublicKey{}, false
	}
	var pk solana.PublicKey
	copy(pk[:], data[2:34])
	return pk, true
}

// strictModeReject implements the fail-secure default: an instruction this
// engine doesn't recognize in an otherwise allow-listed program is denied
// unless strict mode is explicitly disabled.
func (e *Engine) strictModeReject(idx int, msg string) error {
	if !e.policy.StrictMode {
		return nil
	}
	return perr.NewPolicyRejected("strict_mode", idx, msg)
}
