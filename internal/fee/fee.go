// Package fee computes the lamport and token-unit cost of co-signing a
// resolved transaction: a flat base fee, a compute-budget priority fee, an
// optional Token-2022 transfer-fee extension surcharge, and a configurable
// conversion to the requested fee token.
package fee

import (
	"context"
	"math/big"

	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/korasign/internal/cache"
	"github.com/yourusername/korasign/internal/chainrpc"
	"github.com/yourusername/korasign/internal/oracle"
	"github.com/yourusername/korasign/internal/perr"
	"github.com/yourusername/korasign/internal/resolver"
)

// lamportsPerSignature is the chain's flat per-signature base fee.
const lamportsPerSignature = 5000

// defaultComputeUnitLimit is used when a transaction sets a compute-unit
// price but never declares an explicit limit.
const defaultComputeUnitLimit = 200_000

var computeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

const (
	computeBudgetSetComputeUnitLimit = 2
	computeBudgetSetComputeUnitPrice = 3
)

// PriceKind selects how lamports convert to token-units.
type PriceKind int

const (
	PriceMargin PriceKind = iota
	PriceFixed
	PriceFree
)

// PriceModel is the operator-configured conversion policy, immutable after
// load.
type PriceModel struct {
	Kind PriceKind

	// MarginFraction is f in margin(f): lamports are multiplied by (1+f)
	// before conversion.
	MarginFraction float64

	// FixedAmount/FixedToken apply when Kind == PriceFixed: the output is
	// overridden to FixedAmount whenever the requested token equals
	// FixedToken; otherwise the base conversion still applies.
	FixedAmount uint64
	FixedToken  solana.PublicKey
}

// Estimate is the computed cost of co-signing a transaction, valid only
// for the request that produced it.
type Estimate struct {
	Lamports         uint64
	TokenUnits       uint64
	PaymentAddress   solana.PublicKey
	SignerPublicKey  solana.PublicKey
}

// Calculator computes Estimates, fetching Token-2022 mint data through the
// cache (falling back to chain RPC) when a transfer-fee surcharge applies.
type Calculator struct {
	cache  cache.Cache
	oracle chainrpc.Oracle
}

func New(c cache.Cache, o chainrpc.Oracle) *Calculator {
	return &Calculator{cache: c, oracle: o}
}

var token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

const (
	token2022Transfer        = 3
	token2022TransferChecked = 12
	mintExtensionHeaderSize  = 82
	transferFeeConfigExt     = 1
)

// Calculate computes (lamports, token_units) for rtx, converting via
// priceModel and the given oracle quote for feeToken.
func (c *Calculator) Calculate(ctx context.Context, rtx *resolver.ResolvedTransaction, feeToken solana.PublicKey, quote oracle.Quote, model PriceModel) (*Estimate, error) {
	base := big.NewInt(lamportsPerSignature)
	base.Mul(base, big.NewInt(int64(rtx.Tx.Message.RequiredSignatures())))

	priority, err := c.priorityFee(rtx)
	if err != nil {
		return nil, err
	}

	transferFeeSurcharge, err := c.transferFeeSurcharge(ctx, rtx)
	if err != nil {
		return nil, err
	}

	lamports := new(big.Int).Add(base, priority)
	lamports.Add(lamports, transferFeeSurcharge)

	if !lamports.IsUint64() {
		return nil, perr.New(perr.FeeOverflow, perr.NonRetryable, "lamport fee overflow", nil)
	}

	tokenUnits, err := convert(lamports, quote, model, feeToken)
	if err != nil {
		return nil, err
	}

	return &Estimate{
		Lamports:   lamports.Uint64(),
		TokenUnits: tokenUnits,
	}, nil
}

func (c *Calculator) priorityFee(rtx *resolver.ResolvedTransaction) (*big.Int, error) {
	var limit uint64
	var price uint64
	var sawPrice bool

	for _, instr := range rtx.Tx.Message.Instructions {
		if int(instr.ProgramIDIndex) >= len(rtx.Keys) || rtx.Keys[instr.ProgramIDIndex] != computeBudgetProgramID {
			continue
		}
		if len(instr.Data) < 1 {
			continue
		}
		switch instr.Data[0] {
		case computeBudgetSetComputeUnitLimit:
			if v, ok := decodeU32(instr.Data, 1); ok {
				limit = uint64(v)
			}
		case computeBudgetSetComputeUnitPrice:
			if v, ok := decodeU64(instr.Data, 1); ok {
				price = v
				sawPrice = true
			}
		}
	}

	if !sawPrice {
		return big.NewInt(0), nil
	}
	if limit == 0 {
		limit = defaultComputeUnitLimit
	}

	// ceil(limit * price / 1_000_000), in 128-bit-safe big.Int arithmetic.
	num := new(big.Int).Mul(big.NewInt(int64(limit)), new(big.Int).SetUint64(price))
	million := big.NewInt(1_000_000)
	result, rem := new(big.Int).QuoRem(num, million, new(big.Int))
	if rem.Sign() != 0 {
		result.Add(result, big.NewInt(1))
	}
	if !result.IsUint64() {
		return nil, perr.New(perr.FeeOverflow, perr.NonRetryable, "priority fee overflow", nil)
	}
	return result, nil
}

func (c *Calculator) transferFeeSurcharge(ctx context.Context, rtx *resolver.ResolvedTransaction) (*big.Int, error) {
	total := big.NewInt(0)
	for _, instr := range rtx.Tx.Message.Instructions {
		if int(instr.ProgramIDIndex) >= len(rtx.Keys) || rtx.Keys[instr.ProgramIDIndex] != token2022ProgramID {
			continue
		}
		if len(instr.Data) < 1 {
			continue
		}
		disc := instr.Data[0]
		// Only TransferChecked names the mint (accounts: source, mint,
		// destination, authority); plain Transfer carries no mint account.
		if disc != token2022TransferChecked {
			continue
		}
		if len(instr.Accounts) < 2 {
			continue
		}
		mint := rtx.Keys[instr.Accounts[1]]
		bps, ok, err := c.mintTransferFeeBps(ctx, mint)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		amount, ok := decodeU64(instr.Data, 1)
		if !ok {
			continue
		}
		fee := new(big.Int).Mul(new(big.Int).SetUint64(amount), big.NewInt(int64(bps)))
		fee.Quo(fee, big.NewInt(10_000))
		total.Add(total, fee)
	}
	return total, nil
}

// mintTransferFeeBps reads a Token-2022 mint's transfer-fee extension basis
// points, if present.
func (c *Calculator) mintTransferFeeBps(ctx context.Context, mint solana.PublicKey) (uint16, bool, error) {
	cacheKey := "mint:" + mint.String()
	data, ok := c.cache.Get(ctx, cacheKey)
	if !ok {
		fetched, err := c.oracle.GetAccountData(ctx, mint)
		if err != nil {
			return 0, false, perr.New(perr.OracleUnavailable, perr.Retryable, "mint fetch failed", err)
		}
		if fetched == nil {
			return 0, false, nil
		}
		c.cache.Put(ctx, cacheKey, fetched, cache.DefaultTTL)
		data = fetched
	}

	if len(data) <= mintExtensionHeaderSize {
		return 0, false, nil
	}
	tlv := data[mintExtensionHeaderSize:]
	offset := 0
	for offset+4 <= len(tlv) {
		typ := uint16(tlv[offset]) | uint16(tlv[offset+1])<<8
		length := uint16(tlv[offset+2]) | uint16(tlv[offset+3])<<8
		offset += 4
		if offset+int(length) > len(tlv) {
			break
		}
		if typ == transferFeeConfigExt && length >= 4 {
			// TransferFeeConfig's current epoch basis-points field sits at
			// a fixed offset within the extension value.
			bps := uint16(tlv[offset]) | uint16(tlv[offset+1])<<8
			return bps, true, nil
		}
		offset += int(length)
	}
	return 0, false, nil
}

func convert(lamports *big.Int, quote oracle.Quote, model PriceModel, feeToken solana.PublicKey) (uint64, error) {
	if model.Kind == PriceFree {
		return 0, nil
	}

	adjusted := new(big.Int).Set(lamports)
	if model.Kind == PriceMargin && model.MarginFraction != 0 {
		// (1+f) applied via rational scaling, kept in integer arithmetic:
		// multiply by (1_000_000 + f*1_000_000) then divide by 1_000_000.
		scaled := int64((1 + model.MarginFraction) * 1_000_000)
		adjusted.Mul(adjusted, big.NewInt(scaled))
		adjusted.Quo(adjusted, big.NewInt(1_000_000))
	}

	if quote.LamportsPerToken == 0 {
		return 0, perr.New(perr.FeeOverflow, perr.NonRetryable, "oracle quote has zero price", nil)
	}

	decimalsScale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(quote.Decimals)), nil)
	tokenUnits := new(big.Int).Mul(adjusted, decimalsScale)
	tokenUnits.Quo(tokenUnits, new(big.Int).SetUint64(quote.LamportsPerToken))

	if model.Kind == PriceFixed && feeToken == model.FixedToken {
		tokenUnits = new(big.Int).SetUint64(model.FixedAmount)
	}

	if !tokenUnits.IsUint64() {
		return 0, perr.New(perr.FeeOverflow, perr.NonRetryable, "token-unit conversion overflow", nil)
	}
	return tokenUnits.Uint64(), nil
}

func decodeU32(data []byte, offset int) (uint32, bool) {
	if offset+4 > len(data) {
		return 0, false
	}
	return uint32(data[offset]) | uint32(data[offset+1])<<8 | uint32(data[offset+2])<<16 | uint32(data[offset+3])<<24, true
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
