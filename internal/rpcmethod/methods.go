package rpcmethod

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/korasign/internal/payment"
	"github.com/yourusername/korasign/internal/perr"
	"github.com/yourusername/korasign/internal/resolver"
	"github.com/yourusername/korasign/internal/signer"
	"github.com/yourusername/korasign/internal/wire"
)

// GetConfigResult answers getConfig: validation config and enabled-method
// flags, enough for a client to predict what the server will accept.
type GetConfigResult struct {
	FeePayers          []solana.PublicKey `json:"fee_payers"`
	MaxSignatures      int                `json:"max_signatures"`
	MaxAllowedLamports uint64             `json:"max_allowed_lamports"`
	AllowedPrograms    []solana.PublicKey `json:"allowed_programs"`
	AllowedFeeTokens   []solana.PublicKey `json:"allowed_fee_tokens"`
	EnabledMethods     map[string]bool    `json:"enabled_methods"`
}

func (s *Service) GetConfig(_ context.Context) (*GetConfigResult, error) {
	if err := s.checkEnabled("getConfig"); err != nil {
		return nil, err
	}
	res := &GetConfigResult{
		MaxSignatures:      s.Policy.MaxSignatures,
		MaxAllowedLamports: s.Policy.MaxLamports,
		EnabledMethods:     s.Enabled,
	}
	for _, e := range s.Signers.All() {
		res.FeePayers = append(res.FeePayers, e.PublicAddress())
	}
	for pk := range s.Policy.AllowedPrograms {
		res.AllowedPrograms = append(res.AllowedPrograms, pk)
	}
	for pk := range s.Policy.AllowedFeeTokens {
		res.AllowedFeeTokens = append(res.AllowedFeeTokens, pk)
	}
	return res, nil
}

// GetPayerSignerResult answers getPayerSigner.
type GetPayerSignerResult struct {
	SignerAddress  solana.PublicKey `json:"signer_address"`
	PaymentAddress solana.PublicKey `json:"payment_address"`
}

func (s *Service) GetPayerSigner(_ context.Context, signerKey string) (*GetPayerSignerResult, error) {
	if err := s.checkEnabled("getPayerSigner"); err != nil {
		return nil, err
	}
	entry, err := s.resolveSigner(signerKey)
	if err != nil {
		return nil, err
	}
	return &GetPayerSignerResult{
		SignerAddress:  entry.PublicAddress(),
		PaymentAddress: entry.PaymentAddress(),
	}, nil
}

// GetBlockhashResult answers getBlockhash.
type GetBlockhashResult struct {
	Blockhash [32]byte `json:"blockhash"`
}

func (s *Service) GetBlockhash(ctx context.Context) (*GetBlockhashResult, error) {
	if err := s.checkEnabled("getBlockhash"); err != nil {
		return nil, err
	}
	hash, _, err := s.Oracle.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	return &GetBlockhashResult{Blockhash: hash}, nil
}

// GetSupportedTokensResult answers getSupportedTokens.
type GetSupportedTokensResult struct {
	Tokens []solana.PublicKey `json:"tokens"`
}

func (s *Service) GetSupportedTokens(_ context.Context) (*GetSupportedTokensResult, error) {
	if err := s.checkEnabled("getSupportedTokens"); err != nil {
		return nil, err
	}
	return &GetSupportedTokensResult{Tokens: s.SupportedTokens}, nil
}

// EstimateTransactionFeeResult answers estimateTransactionFee.
type EstimateTransactionFeeResult struct {
	FeeInLamports   uint64           `json:"fee_in_lamports"`
	FeeInToken      uint64           `json:"fee_in_token"`
	SignerPublicKey solana.PublicKey `json:"signer_pubkey"`
	PaymentAddress  solana.PublicKey `json:"payment_address"`
}

func (s *Service) EstimateTransactionFee(ctx context.Context, txBase64 string, feeToken solana.PublicKey, signerKey string, sigVerify bool) (*EstimateTransactionFeeResult, error) {
	start := time.Now()
	var err error
	defer func() { s.observe("estimateTransactionFee", start, err) }()

	if err = s.checkEnabled("estimateTransactionFee"); err != nil {
		return nil, err
	}

	entry, sErr := s.resolveSigner(signerKey)
	if sErr != nil {
		err = sErr
		return nil, err
	}

	resolved, decErr := s.decodeAndResolve(ctx, txBase64)
	if decErr != nil {
		err = decErr
		return nil, err
	}

	if err = s.Engine.Check(ctx, resolved, policyCheckInput(&feeToken, nil)); err != nil {
		return nil, err
	}

	quote, qErr := s.PriceOracle.Quote(ctx, feeToken)
	if qErr != nil {
		err = qErr
		return nil, err
	}

	estimate, feeErr := s.Fees.Calculate(ctx, resolved, feeToken, quote, s.PriceModel)
	if feeErr != nil {
		err = feeErr
		return nil, err
	}

	if _, simErr := s.Oracle.SimulateTransaction(ctx, txBase64, sigVerify); simErr != nil {
		err = simErr
		return nil, err
	}

	return &EstimateTransactionFeeResult{
		FeeInLamports:   estimate.Lamports,
		FeeInToken:      estimate.TokenUnits,
		SignerPublicKey: entry.PublicAddress(),
		PaymentAddress:  entry.PaymentAddress(),
	}, nil
}

// SignTransactionResult answers signTransaction.
type SignTransactionResult struct {
	SignedTransaction string           `json:"signed_transaction"`
	SignerPublicKey   solana.PublicKey `json:"signer_pubkey"`
}

func (s *Service) SignTransaction(ctx context.Context, requestID, txBase64, signerKey string, sigVerify bool) (*SignTransactionResult, error) {
	start := time.Now()
	var err error
	defer func() { s.observe("signTransaction", start, err) }()

	if err = s.checkEnabled("signTransaction"); err != nil {
		return nil, err
	}

	signed, entry, signErr := s.signPipeline(ctx, txBase64, signerKey, sigVerify)
	if signErr != nil {
		err = signErr
		s.writeAudit(requestID, "signTransaction", signerKey, "rejected", err, 0, 0, "")
		return nil, err
	}

	out, encErr := wire.Encode(signed)
	if encErr != nil {
		err = encErr
		return nil, err
	}

	s.writeAudit(requestID, "signTransaction", signerKey, "signed", nil, 0, 0, signed.Signatures[0].String())
	return &SignTransactionResult{SignedTransaction: out, SignerPublicKey: entry.PublicAddress()}, nil
}

// SignAndSendTransactionResult answers signAndSendTransaction.
type SignAndSendTransactionResult struct {
	Signature         string           `json:"signature"`
	SignedTransaction string           `json:"signed_transaction"`
	SignerPublicKey   solana.PublicKey `json:"signer_pubkey"`
}

func (s *Service) SignAndSendTransaction(ctx context.Context, requestID, txBase64, signerKey string, sigVerify bool) (*SignAndSendTransactionResult, error) {
	start := time.Now()
	var err error
	defer func() { s.observe("signAndSendTransaction", start, err) }()

	if err = s.checkEnabled("signAndSendTransaction"); err != nil {
		return nil, err
	}

	signed, entry, signErr := s.signPipeline(ctx, txBase64, signerKey, sigVerify)
	if signErr != nil {
		err = signErr
		s.writeAudit(requestID, "signAndSendTransaction", signerKey, "rejected", err, 0, 0, "")
		return nil, err
	}

	out, encErr := wire.Encode(signed)
	if encErr != nil {
		err = encErr
		return nil, err
	}

	// Submit failures surface the chain's error, but the already-signed
	// payload is still returned to the caller as a sign-only fallback.
	sig, subErr := s.Oracle.SubmitTransaction(ctx, out)
	if subErr != nil {
		err = subErr
		s.writeAudit(requestID, "signAndSendTransaction", signerKey, "sign_only_fallback", err, 0, 0, signed.Signatures[0].String())
		return &SignAndSendTransactionResult{
			Signature:         "",
			SignedTransaction: out,
			SignerPublicKey:   entry.PublicAddress(),
		}, err
	}

	s.writeAudit(requestID, "signAndSendTransaction", signerKey, "submitted", nil, 0, 0, sig.String())
	return &SignAndSendTransactionResult{
		Signature:         sig.String(),
		SignedTransaction: out,
		SignerPublicKey:   entry.PublicAddress(),
	}, nil
}

// TransferTransactionResult answers transferTransaction: a built, unsigned
// client-facing transaction (the operator never holds end-user keys, so
// this method never signs on the source wallet's behalf).
type TransferTransactionResult struct {
	Transaction     string           `json:"transaction"`
	Message         string           `json:"message"`
	Blockhash       [32]byte         `json:"blockhash"`
	SignerPublicKey solana.PublicKey `json:"signer_pubkey"`
}

func (s *Service) TransferTransaction(ctx context.Context, amount uint64, mint, source, destination solana.PublicKey, signerKey string) (*TransferTransactionResult, error) {
	start := time.Now()
	var err error
	defer func() { s.observe("transferTransaction", start, err) }()

	if err = s.checkEnabled("transferTransaction"); err != nil {
		return nil, err
	}

	entry, sErr := s.resolveSigner(signerKey)
	if sErr != nil {
		err = sErr
		return nil, err
	}

	instr, bErr := payment.BuildPaymentInstruction(mint, source, destination, amount, 0)
	if bErr != nil {
		err = bErr
		return nil, err
	}

	hash, _, hErr := s.Oracle.GetLatestBlockhash(ctx)
	if hErr != nil {
		err = hErr
		return nil, err
	}

	built, buildErr := buildMessage(entry.PublicAddress(), hash, instr)
	if buildErr != nil {
		err = buildErr
		return nil, err
	}

	txOut, encErr := wire.Encode(&wire.Transaction{
		Signatures: make([]wire.Signature, built.RequiredSignatures()),
		Message:    built,
	})
	if encErr != nil {
		err = encErr
		return nil, err
	}
	msgBytes, msgErr := wire.EncodeMessage(&built)
	if msgErr != nil {
		err = msgErr
		return nil, err
	}

	return &TransferTransactionResult{
		Transaction:     txOut,
		Message:         string(msgBytes),
		Blockhash:       hash,
		SignerPublicKey: entry.PublicAddress(),
	}, nil
}

// signPipeline runs decode → resolve → policy → fee → payment-verify →
// (simulate) → sign, the shared core of signTransaction and
// signAndSendTransaction. The fee/payment-verify stages only run when the
// policy actually configures a paid-token allow-list or the any-token
// wildcard; otherwise they're a no-op, matching plain sponsored signing
// with no inbound payment requirement.
func (s *Service) signPipeline(ctx context.Context, txBase64, signerKey string, sigVerify bool) (*wire.Transaction, signer.Entry, error) {
	entry, err := s.resolveSigner(signerKey)
	if err != nil {
		return nil, nil, err
	}

	resolved, err := s.decodeAndResolve(ctx, txBase64)
	if err != nil {
		return nil, nil, err
	}

	paidTokenRequired := len(s.Policy.AllowedSPLPaidTokens) > 0 || s.Policy.AllowAnyPaidToken
	candidates := s.paidTokenCandidates(resolved)

	var checkPaidToken *solana.PublicKey
	if paidTokenRequired && len(candidates) > 0 {
		checkPaidToken = &candidates[0]
	}
	if err := s.Engine.Check(ctx, resolved, policyCheckInput(nil, checkPaidToken)); err != nil {
		return nil, nil, err
	}

	if paidTokenRequired {
		if err := s.verifyPayment(ctx, resolved, entry, candidates); err != nil {
			return nil, nil, err
		}
	}

	if _, simErr := s.Oracle.SimulateTransaction(ctx, txBase64, sigVerify); simErr != nil {
		return nil, nil, simErr
	}

	signed, signErr := entry.SignSolanaMessage(ctx, resolved.Tx)
	if signErr != nil {
		return nil, nil, signErr
	}

	return signed, entry, nil
}

// paidTokenCandidates lists the mints signPipeline should try as the paid
// token: the policy's configured allow-list when one is set, or — under
// the any-token wildcard, which names no fixed set — whatever mints the
// transaction's own TransferChecked instructions declare.
func (s *Service) paidTokenCandidates(resolved *resolver.ResolvedTransaction) []solana.PublicKey {
	if len(s.Policy.AllowedSPLPaidTokens) > 0 {
		mints := make([]solana.PublicKey, 0, len(s.Policy.AllowedSPLPaidTokens))
		for mint := range s.Policy.AllowedSPLPaidTokens {
			mints = append(mints, mint)
		}
		return mints
	}
	return payment.InstructionMints(resolved)
}

// verifyPayment requires the resolved transaction to carry an
// SPL/Token-2022 transfer to entry's payment address worth at least the
// computed fee, in one of candidates. The paying wallet is never named by
// the caller — the operator's fee payer and the end user's wallet are
// different accounts — so this accepts a transfer from any authority.
// Tries each candidate mint in turn and succeeds on the first that prices
// and verifies; PaymentInsufficient is preferred over PaymentMissing in the
// returned error when both occur across candidates.
func (s *Service) verifyPayment(ctx context.Context, resolved *resolver.ResolvedTransaction, entry signer.Entry, candidates []solana.PublicKey) error {
	if len(candidates) == 0 {
		return perr.New(perr.PaymentMissing, perr.NonRetryable, "no payment transfer instruction found", nil)
	}

	var lastErr error
	for _, mint := range candidates {
		quote, qErr := s.PriceOracle.Quote(ctx, mint)
		if qErr != nil {
			lastErr = qErr
			continue
		}
		estimate, feeErr := s.Fees.Calculate(ctx, resolved, mint, quote, s.PriceModel)
		if feeErr != nil {
			lastErr = feeErr
			continue
		}
		_, verifyErr := payment.VerifyAny(resolved, entry.PaymentAddress(), mint, estimate.TokenUnits)
		if verifyErr == nil {
			return nil
		}
		if lastErr == nil || perr.Is(verifyErr, perr.PaymentInsufficient) {
			lastErr = verifyErr
		}
	}
	return lastErr
}

func buildMessage(feePayer solana.PublicKey, blockhash [32]byte, instr solana.Instruction) (wire.Message, error) {
	accounts := instr.Accounts()
	keys := []wire.PublicKey{feePayer}
	for _, a := range accounts {
		addKey(&keys, a.PublicKey)
	}
	progIdx := addKey(&keys, instr.ProgramID())

	data, err := instr.Data()
	if err != nil {
		return wire.Message{}, err
	}

	compiled := wire.CompiledInstruction{
		ProgramIDIndex: uint8(progIdx),
		Data:           data,
	}
	for _, a := range accounts {
		compiled.Accounts = append(compiled.Accounts, uint8(indexOf(keys, a.PublicKey)))
	}

	return wire.Message{
		Version:         wire.VersionLegacy,
		Header:          wire.MessageHeader{NumRequiredSignatures: 1},
		AccountKeys:     keys,
		RecentBlockhash: blockhash,
		Instructions:    []wire.CompiledInstruction{compiled},
	}, nil
}

func addKey(keys *[]wire.PublicKey, key wire.PublicKey) int {
	if idx := indexOf(*keys, key); idx >= 0 {
		return idx
	}
	*keys = append(*keys, key)
	return len(*keys) - 1
}

func indexOf(keys []wire.PublicKey, key wire.PublicKey) int {
	for i, k := range keys {
		if k == key {
			return i
		}
	}
	return -1
}
