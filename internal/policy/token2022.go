package policy

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/korasign/internal/cache"
	"github.com/yourusername/korasign/internal/perr"
	"github.com/yourusername/korasign/internal/resolver"
)

// mintExtensionHeaderSize is the fixed SPL base-mint-account size; a
// Token-2022 mint account larger than this carries a TLV extension region
// immediately after it.
const mintExtensionHeaderSize = 82

// tokenAccountExtensionHeaderSize is the fixed SPL base-token-account size.
const tokenAccountExtensionHeaderSize = 165

// checkToken2022Extensions implements spec §4.4 rule 6: for any
// Token-2022 instruction touching a mint or token account, reject if that
// account's extension TLV region contains a blocked extension type. Only
// top-level instructions are inspected — CPI-nested extension use is not,
// and no error field records that it was skipped.
func (e *Engine) checkToken2022Extensions(ctx context.Context, rtx *resolver.ResolvedTransaction) error {
	if len(e.policy.Token2022.BlockedMintExtensions) == 0 && len(e.policy.Token2022.BlockedAccountExtensions) == 0 {
		return nil
	}

	for i, instr := range rtx.Tx.Message.Instructions {
		if programOf(rtx, instr) != token2022ProgramID {
			continue
		}
		for _, accIdx := range instr.Accounts {
			key := rtx.Keys[accIdx]
			data, err := e.fetchAccountData(ctx, key)
			if err != nil {
				return err
			}
			if data == nil {
				continue
			}

			if len(data) > mintExtensionHeaderSize {
				exts := decodeExtensionTypes(data[mintExtensionHeaderSize:])
				if blocked, ext := firstBlocked(exts, e.policy.Token2022.BlockedMintExtensions); blocked {
					return perr.NewPolicyRejected("token_2022.blocked_mint_extension", i, "mint carries blocked extension: "+ext)
				}
			}
			if len(data) > tokenAccountExtensionHeaderSize {
				exts := decodeExtensionTypes(data[tokenAccountExtensionHeaderSize:])
				if blocked, ext := firstBlocked(exts, e.policy.Token2022.BlockedAccountExtensions); blocked {
					return perr.NewPolicyRejected("token_2022.blocked_account_extension", i, "token account carries blocked extension: "+ext)
				}
			}
		}
	}
	return nil
}

func (e *Engine) fetchAccountData(ctx context.Context, key solana.PublicKey) ([]byte, error) {
	cacheKey := "account:" + key.String()
	if cached, ok := e.cache.Get(ctx, cacheKey); ok {
		return cached, nil
	}
	data, err := e.oracle.GetAccountData(ctx, key)
	if err != nil {
		return nil, perr.New(perr.ResolutionIOFailure, perr.Retryable, "token-2022 extension fetch failed", err)
	}
	if data != nil {
		e.cache.Put(ctx, cacheKey, data, cache.DefaultTTL)
	}
	return data, nil
}

// extensionTypeNames maps the chain's Token-2022 ExtensionType enum values
// (as they appear in each TLV entry's 2-byte type field) to the
// configuration-facing names operators block by.
var extensionTypeNames = map[uint16]string{
	1:  "transfer_fee_config",
	2:  "transfer_fee_amount",
	3:  "mint_close_authority",
	4:  "confidential_transfer_mint",
	5:  "confidential_transfer_account",
	6:  "default_account_state",
	7:  "immutable_owner",
	8:  "memo_transfer",
	9:  "non_transferable",
	10: "interest_bearing_config",
	11: "cpi_guard",
	12: "permanent_delegate",
	13: "non_transferable_account",
	14: "transfer_hook",
	15: "transfer_hook_account",
	16: "metadata_pointer",
	17: "token_metadata",
}

// decodeExtensionTypes walks a Token-2022 TLV extension region: each entry
// is [type(u16 LE), length(u16 LE), value(length bytes)].
func decodeExtensionTypes(tlv []byte) []string {
	var names []string
	offset := 0
	for offset+4 <= len(tlv) {
		typ := uint16(tlv[offset]) | uint16(tlv[offset+1])<<8
		length := uint16(tlv[offset+2]) | uint16(tlv[offset+3])<<8
		offset += 4
		if offset+int(length) > len(tlv) {
			break
		}
		if name, ok := extensionTypeNames[typ]; ok {
			names = append(names, name)
		}
		offset += int(length)
	}
	return names
}

func firstBlocked(extensions []string, blocked map[string]struct{}) (bool, string) {
	for _, ext := range extensions {
		if _, ok := blocked[ext]; ok {
			return true, ext
		}
	}
	return false, ""
}
