// Package policy implements the validator every resolved transaction must
// pass before the Fee Calculator and Signer Pool ever see it: signature and
// lamport caps, program/account allow/deny-lists, the 32-flag fee-payer
// role matrix, the Token-2022 extension filter, and fee/paid-token
// allow-lists. Every rejection carries the offending instruction index and
// a stable rule id.
package policy

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/yourusername/korasign/internal/cache"
	"github.com/yourusername/korasign/internal/chainrpc"
	"github.com/yourusername/korasign/internal/perr"
	"github.com/yourusername/korasign/internal/resolver"
	"github.com/yourusername/korasign/internal/wire"
)

// SPLTokenFlags is the 12-flag permission set shared by both the SPL Token
// and Token-2022 program matrices.
type SPLTokenFlags struct {
	AllowInitializeMint     bool
	AllowInitializeAccount  bool
	AllowInitializeMultisig bool
	AllowTransfer           bool
	AllowApprove            bool
	AllowRevoke             bool
	AllowSetAuthority       bool
	AllowMintTo             bool
	AllowBurn               bool
	AllowCloseAccount       bool
	AllowFreezeAccount      bool
	AllowThawAccount        bool
}

// SystemFlags is the 4-flag system-program permission set.
type SystemFlags struct {
	AllowCreateAccount bool
	AllowAssign        bool
	AllowTransfer      bool
	AllowAllocate      bool
}

// NonceFlags is the 4-flag durable-nonce permission set, also served by the
// system program but tracked separately per spec §6.
type NonceFlags struct {
	AllowInitializeNonceAccount bool
	AllowAuthorizeNonceAccount  bool
	AllowWithdrawNonceAccount   bool
	AllowAdvanceNonceAccount    bool
}

// FeePayerPolicy is the full 32-flag matrix (4 + 4 + 12 + 12), every flag
// defaulting to false (deny) at the zero value.
type FeePayerPolicy struct {
	System    SystemFlags
	Nonce     NonceFlags
	SPLToken  SPLTokenFlags
	Token2022 SPLTokenFlags
}

// Token2022Filter names mint/account extensions that, if present on an
// instruction's touched mint or token account, cause rejection regardless
// of the fee-payer role matrix.
type Token2022Filter struct {
	BlockedMintExtensions    map[string]struct{}
	BlockedAccountExtensions map[string]struct{}
}

// Policy is the fully-loaded, immutable-after-load validation configuration.
type Policy struct {
	MaxSignatures        int
	MaxLamports          uint64 // 0 disables the cap
	AllowedPrograms       map[solana.PublicKey]struct{}
	DisallowedAccounts    map[solana.PublicKey]struct{}
	FeePayerPolicy        FeePayerPolicy
	Token2022             Token2022Filter
	AllowedFeeTokens      map[solana.PublicKey]struct{}
	AllowedSPLPaidTokens  map[solana.PublicKey]struct{}
	AllowAnyPaidToken     bool
	StrictMode            bool // default true: reject unrecognized instructions in an allowed program
}

// Engine applies a Policy to resolved transactions, fetching mint/account
// extension data through the cache (falling back to chain RPC) as needed.
type Engine struct {
	policy *Policy
	cache  cache.Cache
	oracle chainrpc.Oracle
	logger *zap.Logger
}

func New(p *Policy, c cache.Cache, oracle chainrpc.Oracle, logger *zap.Logger) *Engine {
	return &Engine{policy: p, cache: c, oracle: oracle, logger: logger}
}

// CheckInput carries the request-scoped facts the engine needs beyond the
// resolved transaction itself.
type CheckInput struct {
	FeeToken  *solana.PublicKey // nil if the request did not name one
	PaidToken *solana.PublicKey // nil if no payment instruction is expected
}

// Check runs every rule in spec order, short-circuiting on the first
// rejection like the teacher's validator chains do.
func (e *Engine) Check(ctx context.Context, rtx *resolver.ResolvedTransaction, in CheckInput) error {
	if err := e.checkSignatureCap(rtx); err != nil {
		return err
	}
	if err := e.checkProgramAllowList(rtx); err != nil {
		return err
	}
	if err := e.checkAccountDenyList(rtx); err != nil {
		return err
	}
	if err := e.checkLamportCap(rtx); err != nil {
		return err
	}
	if err := e.checkFeePayerMatrix(rtx); err != nil {
		return err
	}
	if err := e.checkToken2022Extensions(ctx, rtx); err != nil {
		return err
	}
	if err := e.checkTokenAllowLists(in); err != nil {
		return err
	}
	return nil
}

func (e *Engine) checkSignatureCap(rtx *resolver.ResolvedTransaction) error {
	required := rtx.Tx.Message.RequiredSignatures()
	if e.policy.MaxSignatures > 0 && required > e.policy.MaxSignatures {
		return perr.NewPolicyRejected("signature_cap", -1, "required signature count exceeds max_signatures")
	}
	return nil
}

func (e *Engine) checkProgramAllowList(rtx *resolver.ResolvedTransaction) error {
	for i, instr := range rtx.Tx.Message.Instructions {
		program := programOf(rtx, instr)
		if _, ok := e.policy.AllowedPrograms[program]; !ok {
			return perr.NewPolicyRejected("program_allow_list", i, "instruction program not in allow-list: "+program.String())
		}
	}
	return nil
}

func (e *Engine) checkAccountDenyList(rtx *resolver.ResolvedTransaction) error {
	if len(e.policy.DisallowedAccounts) == 0 {
		return nil
	}
	for idx, key := range rtx.Keys {
		if _, denied := e.policy.DisallowedAccounts[key]; denied {
			return perr.NewPolicyRejected("account_deny_list", instructionTouching(rtx, idx), "account is in deny-list: "+key.String())
		}
	}
	return nil
}

func (e *Engine) checkLamportCap(rtx *resolver.ResolvedTransaction) error {
	if e.policy.MaxLamports == 0 {
		return nil
	}
	feePayer := rtx.FeePayer()
	for i, instr := range rtx.Tx.Message.Instructions {
		if programOf(rtx, instr) != systemProgramID {
			continue
		}
		disc, ok := systemDiscriminator(instr.Data)
		if !ok || disc != sysTransfer {
			continue
		}
		if len(instr.Accounts) < 2 {
			continue
		}
		from := rtx.Keys[instr.Accounts[0]]
		if from != feePayer {
			continue
		}
		lamports, ok := decodeU64At(instr.Data, 4)
		if ok && lamports > e.policy.MaxLamports {
			return perr.NewPolicyRejected("lamport_cap", i, "transfer amount exceeds max_allowed_lamports")
		}
	}
	return nil
}

// checkFeePayerMatrix implements spec §4.4 rule 5: for each instruction in
// system, SPL-token, or Token-2022, decode its discriminator and — if the
// fee payer occupies a sensitive role for that instruction kind — require
// the matching policy flag.
func (e *Engine) checkFeePayerMatrix(rtx *resolver.ResolvedTransaction) error {
	feePayer := rtx.FeePayer()
	for i, instr := range rtx.Tx.Message.Instructions {
		program := programOf(rtx, instr)
		switch program {
		case systemProgramID:
			if err := e.checkSystemInstruction(rtx, i, instr, feePayer); err != nil {
				return err
			}
		case splTokenProgramID:
			if err := e.checkTokenInstruction(rtx, i, instr, feePayer, e.policy.FeePayerPolicy.SPLToken, "spl_token"); err != nil {
				return err
			}
		case token2022ProgramID:
			if err := e.checkTokenInstruction(rtx, i, instr, feePayer, e.policy.FeePayerPolicy.Token2022, "token_2022"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) checkTokenAllowLists(in CheckInput) error {
	if in.FeeToken != nil {
		if _, ok := e.policy.AllowedFeeTokens[*in.FeeToken]; !ok {
			return perr.NewPolicyRejected("fee_token_allow_list", -1, "fee token not in allowed_tokens: "+in.FeeToken.String())
		}
	}
	if in.PaidToken != nil && !e.policy.AllowAnyPaidToken {
		if _, ok := e.policy.AllowedSPLPaidTokens[*in.PaidToken]; !ok {
			return perr.NewPolicyRejected("paid_token_allow_list", -1, "paid token not in allowed_spl_paid_tokens: "+in.PaidToken.String())
		}
	}
	return nil
}

func programOf(rtx *resolver.ResolvedTransaction, instr wire.CompiledInstruction) solana.PublicKey {
	return rtx.Keys[instr.ProgramIDIndex]
}

func instructionTouching(rtx *resolver.ResolvedTransaction, keyIdx int) int {
	for i, instr := range rtx.Tx.Message.Instructions {
		if int(instr.ProgramIDIndex) == keyIdx {
			return i
		}
		for _, a := range instr.Accounts {
			if int(a) == keyIdx {
				return i
			}
		}
	}
	return -1
}

func decodeU64At(data []byte, offset int) (uint64, bool) {
	if offset+8 > len(data) {
		return 0, false
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(data[offset+i]) << (8 * i)
	}
	return v, true
}
