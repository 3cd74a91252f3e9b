// Package rpcmethod implements the eight JSON-RPC methods of the signing
// surface, orchestrating the decode → resolve → policy → fee →
// payment-verify → sign → (submit) pipeline. HTTP/JSON-RPC framing is the
// Handler in jsonrpc.go, which decodes each request and calls the Service;
// a Service exposes one Go method per RPC method, each taking and returning
// plain structs.
package rpcmethod

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/yourusername/korasign/internal/audit"
	"github.com/yourusername/korasign/internal/chainrpc"
	"github.com/yourusername/korasign/internal/fee"
	"github.com/yourusername/korasign/internal/metrics"
	"github.com/yourusername/korasign/internal/oracle"
	"github.com/yourusername/korasign/internal/payment"
	"github.com/yourusername/korasign/internal/perr"
	"github.com/yourusername/korasign/internal/policy"
	"github.com/yourusername/korasign/internal/resolver"
	"github.com/yourusername/korasign/internal/signer"
	"github.com/yourusername/korasign/internal/wire"
)

// Service is the immutable, shared handler for every RPC method. It is
// built once at startup from already-loaded config, policy, and signer
// pool values and never mutated afterward, matching the immutable-shared-
// state model of spec §5.
type Service struct {
	Policy     *policy.Policy
	Engine     *policy.Engine
	Resolver   *resolver.Resolver
	Fees       *fee.Calculator
	Oracle     chainrpc.Oracle
	PriceOracle oracle.Source
	Signers    *signer.Pool
	PriceModel fee.PriceModel
	Enabled    map[string]bool
	Metrics    *metrics.Metrics
	Audit      *audit.Logger
	Logger     *zap.Logger

	SupportedTokens []solana.PublicKey
}

// methodEnabled reports whether method is turned on in config. Missing
// entries default to disabled — an operator must opt a method in.
func (s *Service) methodEnabled(method string) bool {
	return s.Enabled[method]
}

func (s *Service) checkEnabled(method string) error {
	if !s.methodEnabled(method) {
		return perr.New(perr.MethodDisabled, perr.NonRetryable, "method disabled: "+method, nil)
	}
	return nil
}

// resolveSigner picks the Entry named by signerKey, or the pool default
// when signerKey is empty.
func (s *Service) resolveSigner(signerKey string) (signer.Entry, error) {
	return s.Signers.Get(signerKey)
}

// decodeAndResolve runs the shared decode+resolve prefix every
// transaction-carrying method needs.
func (s *Service) decodeAndResolve(ctx context.Context, txBase64 string) (*resolver.ResolvedTransaction, error) {
	tx, err := wire.Decode(txBase64)
	if err != nil {
		return nil, err
	}
	return s.Resolver.Resolve(ctx, tx)
}

func (s *Service) observe(method string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		if pe, ok := err.(*perr.Error); ok {
			outcome = string(pe.Code)
		} else {
			outcome = "error"
		}
	}
	if s.Metrics != nil {
		s.Metrics.IncRequest(method, outcome)
		s.Metrics.ObserveLatency(method, time.Since(start).Seconds())
	}
}

func (s *Service) writeAudit(requestID, method, signerKey, outcome string, err error, lamports, tokenUnits uint64, sig string) {
	if s.Audit == nil {
		return
	}
	rec := audit.Record{
		Timestamp:  time.Now(),
		RequestID:  requestID,
		Method:     method,
		SignerKey:  signerKey,
		Outcome:    outcome,
		Lamports:   lamports,
		TokenUnits: tokenUnits,
		Signature:  sig,
	}
	if pe, ok := err.(*perr.Error); ok {
		rec.ErrorCode = string(pe.Code)
	}
	_ = s.Audit.Write(rec)
}

// feeTokenOrDefault returns token unless it is the zero key, in which case
// it returns fallback.
func feeTokenOrDefault(token solana.PublicKey, fallback solana.PublicKey) solana.PublicKey {
	if token.IsZero() {
		return fallback
	}
	return token
}

// policyCheckInput builds the CheckInput facts the policy engine needs
// beyond the resolved transaction: the requested fee token, and — when the
// method expects an inbound payment — the paid token.
func policyCheckInput(feeToken *solana.PublicKey, paidToken *solana.PublicKey) policy.CheckInput {
	return policy.CheckInput{FeeToken: feeToken, PaidToken: paidToken}
}
