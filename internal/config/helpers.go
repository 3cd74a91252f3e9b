package config

import "github.com/gagliardetto/solana-go"

// mustParsePubkey parses s as a base58 public key, returning the zero key
// for an empty string (used for optional fixed_token fields).
func mustParsePubkey(s string) solana.PublicKey {
	if s == "" {
		return solana.PublicKey{}
	}
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}
	}
	return pk
}

func pubkeySet(addrs []string) map[solana.PublicKey]struct{} {
	set := make(map[solana.PublicKey]struct{}, len(addrs))
	for _, a := range addrs {
		set[mustParsePubkey(a)] = struct{}{}
	}
	return set
}

func stringSet(vals []string) map[string]struct{} {
	set := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		set[v] = struct{}{}
	}
	return set
}
