// Package oracle converts a native-unit (lamport) fee quote into
// token-unit terms via a pluggable price source. It is a thin boundary
// adapter — the price oracle itself is out of scope (spec §1) — but the
// interface and its two variants (Jupiter-backed, Mock) live here so the
// Fee Calculator has something concrete to call.
package oracle

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/korasign/internal/perr"
)

// Quote is a token's native-unit price and decimal precision at the moment
// it was read. It has no validity beyond the request that fetched it.
type Quote struct {
	LamportsPerToken uint64 // price of one whole token, in lamports
	Decimals         uint8
}

// Source is the pluggable price oracle contract: quote(mint) -> price.
type Source interface {
	Quote(ctx context.Context, mint solana.PublicKey) (Quote, error)
}

// Jupiter is a thin client for a Jupiter-shaped price API. The HTTP
// transport itself is out of scope for this module (spec §1 treats the
// price oracle as a pure function); this type exists so config's
// `validation.price_source: Jupiter` has a concrete implementation to
// select, with the actual network call left to the caller's injected
// fetch function.
type Jupiter struct {
	fetch func(ctx context.Context, mint solana.PublicKey) (Quote, error)
}

func NewJupiter(fetch func(ctx context.Context, mint solana.PublicKey) (Quote, error)) *Jupiter {
	return &Jupiter{fetch: fetch}
}

func (j *Jupiter) Quote(ctx context.Context, mint solana.PublicKey) (Quote, error) {
	if j.fetch == nil {
		return Quote{}, perr.New(perr.OracleUnavailable, perr.Retryable, "jupiter quote fetch function not configured", nil)
	}
	q, err := j.fetch(ctx, mint)
	if err != nil {
		return Quote{}, perr.New(perr.OracleUnavailable, perr.Retryable, "jupiter quote fetch failed", err)
	}
	return q, nil
}

// Mock is a fixed-table price source for tests and `price_source: Mock`
// deployments (devnet, CI).
type Mock struct {
	quotes map[solana.PublicKey]Quote
}

func NewMock(quotes map[solana.PublicKey]Quote) *Mock {
	return &Mock{quotes: quotes}
}

func (m *Mock) Quote(_ context.Context, mint solana.PublicKey) (Quote, error) {
	q, ok := m.quotes[mint]
	if !ok {
		return Quote{}, perr.New(perr.OracleUnavailable, perr.Retryable, "mock oracle has no quote for mint "+mint.String(), nil)
	}
	return q, nil
}
