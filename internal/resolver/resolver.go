// Package resolver resolves a versioned transaction's address-lookup-table
// references into a flat account-key list, with caching — spec §4.2.
package resolver

import (
	"context"

	"go.uber.org/zap"

	"github.com/yourusername/korasign/internal/cache"
	"github.com/yourusername/korasign/internal/chainrpc"
	"github.com/yourusername/korasign/internal/perr"
	"github.com/yourusername/korasign/internal/wire"
)

// ResolvedTransaction is a Transaction plus its fully-resolved
// writable/read-only address lists drawn from lookup tables. It is a value
// constructed once from a Transaction and a snapshot of the referenced
// tables; it is never mutated in place.
type ResolvedTransaction struct {
	Tx *wire.Transaction

	// Keys is static_keys ++ (writable keys from each lookup, in table
	// order) ++ (read-only keys from each lookup, in table order).
	Keys []wire.PublicKey

	numStatic    int
	numWritableLookup int
	numReadonlyLookup int
}

// FeePayer returns the first account key, always the fee payer.
func (r *ResolvedTransaction) FeePayer() wire.PublicKey {
	return r.Keys[0]
}

// IsWritable reports whether the resolved key at idx is writable, honoring
// both the message header split (for static keys) and the lookup split (for
// keys drawn from address-lookup tables).
func (r *ResolvedTransaction) IsWritable(idx int) bool {
	if idx < r.numStatic {
		return r.Tx.Message.IsWritableStatic(idx)
	}
	lookupIdx := idx - r.numStatic
	return lookupIdx < r.numWritableLookup
}

// IsSigner reports whether the resolved key at idx must sign. Only static
// keys can be signers; lookup-resolved keys never are.
func (r *ResolvedTransaction) IsSigner(idx int) bool {
	if idx >= r.numStatic {
		return false
	}
	return r.Tx.Message.IsSignerStatic(idx)
}

// Resolver resolves lookup-table references via a Cache, falling back to
// the chain-RPC oracle on a cache miss.
type Resolver struct {
	cache  cache.Cache
	oracle chainrpc.Oracle
	logger *zap.Logger
}

func New(c cache.Cache, oracle chainrpc.Oracle, logger *zap.Logger) *Resolver {
	return &Resolver{cache: c, oracle: oracle, logger: logger}
}

// Resolve resolves tx's lookup tables (if any) into a ResolvedTransaction.
// Legacy transactions pass through with an identity resolution: Keys ==
// static account keys, no I/O performed.
//
// Resolver I/O failures (cache backend unreachable, chain RPC fetch
// failure) are retried once against the chain RPC before surfacing as
// ResolutionIOFailure, per spec §4.9 failure semantics.
func (r *Resolver) Resolve(ctx context.Context, tx *wire.Transaction) (*ResolvedTransaction, error) {
	msg := &tx.Message
	keys := append([]wire.PublicKey(nil), msg.AccountKeys...)

	if msg.Version == wire.VersionLegacy || len(msg.AddressTableLookups) == 0 {
		return &ResolvedTransaction{Tx: tx, Keys: keys, numStatic: len(keys)}, nil
	}

	var writable, readonly []wire.PublicKey
	for _, lookup := range msg.AddressTableLookups {
		table, err := r.fetchTable(ctx, lookup.AccountKey)
		if err != nil {
			return nil, err
		}

		for _, idx := range lookup.WritableIndexes {
			key, err := indexInto(table, idx)
			if err != nil {
				return nil, err
			}
			writable = append(writable, key)
		}
		for _, idx := range lookup.ReadonlyIndexes {
			key, err := indexInto(table, idx)
			if err != nil {
				return nil, err
			}
			readonly = append(readonly, key)
		}
	}

	numStatic := len(keys)
	keys = append(keys, writable...)
	keys = append(keys, readonly...)

	return &ResolvedTransaction{
		Tx:                tx,
		Keys:              keys,
		numStatic:         numStatic,
		numWritableLookup: len(writable),
		numReadonlyLookup: len(readonly),
	}, nil
}

func indexInto(table []wire.PublicKey, idx uint8) (wire.PublicKey, error) {
	if int(idx) >= len(table) {
		return wire.PublicKey{}, perr.New(perr.LookupIndexOutOfRange, perr.NonRetryable, "lookup table index out of range", nil)
	}
	return table[idx], nil
}

// fetchTable fetches a lookup table's stored key list, via cache else
// chain RPC, retrying the RPC fetch once on I/O failure.
func (r *Resolver) fetchTable(ctx context.Context, table wire.PublicKey) ([]wire.PublicKey, error) {
	cacheKey := "lookup:" + table.String()
	if cached, ok := r.cache.Get(ctx, cacheKey); ok {
		keys, err := decodeLookupTable(cached)
		if err == nil {
			return keys, nil
		}
		// Corrupt cache entry: fall through to a fresh fetch.
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		data, err := r.oracle.GetAccountData(ctx, table)
		if err != nil {
			lastErr = err
			continue
		}
		if data == nil {
			return nil, perr.New(perr.LookupTableMissing, perr.NonRetryable, "lookup table account not found: "+table.String(), nil)
		}
		keys, err := decodeLookupTable(data)
		if err != nil {
			return nil, perr.New(perr.LookupTableMissing, perr.NonRetryable, "lookup table data malformed", err)
		}
		r.cache.Put(ctx, cacheKey, data, cache.DefaultTTL)
		return keys, nil
	}
	return nil, perr.New(perr.ResolutionIOFailure, perr.Retryable, "failed to fetch lookup table", lastErr)
}

// lookupTableHeaderSize is the fixed metadata prefix (discriminator,
// authority option, deactivation slot, etc.) preceding the packed address
// list in an AddressLookupTable account's data, per the chain's lookup
// table program layout.
const lookupTableHeaderSize = 56

func decodeLookupTable(data []byte) ([]wire.PublicKey, error) {
	if len(data) < lookupTableHeaderSize {
		return nil, perr.New(perr.MalformedWire, perr.NonRetryable, "lookup table account too short", nil)
	}
	body := data[lookupTableHeaderSize:]
	if len(body)%32 != 0 {
		return nil, perr.New(perr.MalformedWire, perr.NonRetryable, "lookup table address list misaligned", nil)
	}
	n := len(body) / 32
	keys := make([]wire.PublicKey, n)
	for i := 0; i < n; i++ {
		copy(keys[i][:], body[i*32:(i+1)*32])
	}
	return keys, nil
}
