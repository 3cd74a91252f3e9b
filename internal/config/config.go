// Package config loads and validates the service's declarative YAML
// configuration and its companion signers file, mirroring the teacher's
// split between application config and wallet metadata. Both documents are
// parsed once at startup into immutable values; nothing here is mutated
// after Load returns.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yourusername/korasign/internal/auth"
	"github.com/yourusername/korasign/internal/fee"
	"github.com/yourusername/korasign/internal/policy"
)

// Config is the root of the single declarative YAML document (spec §6).
type Config struct {
	Kora struct {
		RateLimit int `yaml:"rate_limit"`
	} `yaml:"kora"`

	Validation     ValidationConfig `yaml:"validation"`
	Metrics        MetricsConfig    `yaml:"metrics"`
	EnabledMethods map[string]bool  `yaml:"enabled_methods"`

	Auth AuthFileConfig `yaml:"auth"`
}

type ValidationConfig struct {
	MaxAllowedLamports   uint64               `yaml:"max_allowed_lamports"`
	MaxSignatures        int                  `yaml:"max_signatures"`
	PriceSource          string               `yaml:"price_source"` // "Jupiter" | "Mock"
	AllowedPrograms      []string             `yaml:"allowed_programs"`
	AllowedTokens        []string             `yaml:"allowed_tokens"`
	AllowedSPLPaidTokens []string             `yaml:"allowed_spl_paid_tokens"`
	AnyPaidToken         bool                 `yaml:"any_paid_token"`
	DisallowedAccounts   []string             `yaml:"disallowed_accounts"`
	FeePayerPolicy       FeePayerPolicyConfig `yaml:"fee_payer_policy"`
	Price                PriceConfig          `yaml:"price"`
	Token2022            Token2022Config      `yaml:"token2022"`
	StrictMode           *bool                `yaml:"strict_mode"` // nil -> default true
}

type SystemFlagsConfig struct {
	AllowCreateAccount bool `yaml:"allow_create_account"`
	AllowAssign        bool `yaml:"allow_assign"`
	AllowTransfer      bool `yaml:"allow_transfer"`
	AllowAllocate      bool `yaml:"allow_allocate"`
}

type NonceFlagsConfig struct {
	AllowInitializeNonceAccount bool `yaml:"allow_initialize_nonce_account"`
	AllowAuthorizeNonceAccount  bool `yaml:"allow_authorize_nonce_account"`
	AllowWithdrawNonceAccount   bool `yaml:"allow_withdraw_nonce_account"`
	AllowAdvanceNonceAccount    bool `yaml:"allow_advance_nonce_account"`
}

type SPLTokenFlagsConfig struct {
	AllowInitializeMint     bool `yaml:"allow_initialize_mint"`
	AllowInitializeAccount  bool `yaml:"allow_initialize_account"`
	AllowInitializeMultisig bool `yaml:"allow_initialize_multisig"`
	AllowTransfer           bool `yaml:"allow_transfer"`
	AllowApprove            bool `yaml:"allow_approve"`
	AllowRevoke             bool `yaml:"allow_revoke"`
	AllowSetAuthority       bool `yaml:"allow_set_authority"`
	AllowMintTo             bool `yaml:"allow_mint_to"`
	AllowBurn               bool `yaml:"allow_burn"`
	AllowCloseAccount       bool `yaml:"allow_close_account"`
	AllowFreezeAccount      bool `yaml:"allow_freeze_account"`
	AllowThawAccount        bool `yaml:"allow_thaw_account"`
}

type FeePayerPolicyConfig struct {
	System    SystemFlagsConfig   `yaml:"system"`
	Nonce     NonceFlagsConfig    `yaml:"nonce"`
	SPLToken  SPLTokenFlagsConfig `yaml:"spl_token"`
	Token2022 SPLTokenFlagsConfig `yaml:"token_2022"`
}

type PriceConfig struct {
	Type        string  `yaml:"type"` // "margin" | "fixed" | "free"
	Margin      float64 `yaml:"margin"`
	FixedAmount uint64  `yaml:"fixed_amount"`
	FixedToken  string  `yaml:"fixed_token"`
}

type Token2022Config struct {
	BlockedMintExtensions    []string `yaml:"blocked_mint_extensions"`
	BlockedAccountExtensions []string `yaml:"blocked_account_extensions"`
}

type MetricsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Endpoint       string `yaml:"endpoint"`
	Port           int    `yaml:"port"`
	ScrapeInterval int    `yaml:"scrape_interval"`
}

type AuthFileConfig struct {
	APIKey        string   `yaml:"api_key"`
	HMACSecret    string   `yaml:"hmac_secret"`
	ClockSkewSecs int      `yaml:"clock_skew_seconds"`
	BypassMethods []string `yaml:"bypass_methods"`
}

// Load parses and validates the declarative config document at path.
//
// Errors here are startup failures (spec §6 exit code 1), never surfaced
// through the JSON-RPC error taxonomy, so they're plain errors rather than
// *perr.Error values.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file unreadable: %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config file malformed: %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Validation.MaxSignatures < 0 {
		return fmt.Errorf("validation.max_signatures must be >= 0")
	}
	switch c.Validation.PriceSource {
	case "", "Jupiter", "Mock":
	default:
		return fmt.Errorf("validation.price_source must be Jupiter or Mock, got %q", c.Validation.PriceSource)
	}
	switch c.Validation.Price.Type {
	case "", "margin", "fixed", "free":
	default:
		return fmt.Errorf("validation.price.type must be margin, fixed, or free, got %q", c.Validation.Price.Type)
	}
	return nil
}

// StrictModeOrDefault returns the configured strict-mode flag, defaulting
// to true (fail-secure) when unset, per spec §7.
func (v *ValidationConfig) StrictModeOrDefault() bool {
	if v.StrictMode == nil {
		return true
	}
	return *v.StrictMode
}

// ToPriceModel converts the declarative price config into a fee.PriceModel.
func (v *ValidationConfig) ToPriceModel() fee.PriceModel {
	switch v.Price.Type {
	case "fixed":
		return fee.PriceModel{
			Kind:        fee.PriceFixed,
			FixedAmount: v.Price.FixedAmount,
			FixedToken:  mustParsePubkey(v.Price.FixedToken),
		}
	case "free":
		return fee.PriceModel{Kind: fee.PriceFree}
	default:
		return fee.PriceModel{Kind: fee.PriceMargin, MarginFraction: v.Price.Margin}
	}
}

// ToPolicy converts the declarative validation config into a policy.Policy.
func (v *ValidationConfig) ToPolicy() *policy.Policy {
	p := &policy.Policy{
		MaxSignatures:        v.MaxSignatures,
		MaxLamports:          v.MaxAllowedLamports,
		AllowedPrograms:      pubkeySet(v.AllowedPrograms),
		DisallowedAccounts:   pubkeySet(v.DisallowedAccounts),
		AllowedFeeTokens:     pubkeySet(v.AllowedTokens),
		AllowedSPLPaidTokens: pubkeySet(v.AllowedSPLPaidTokens),
		AllowAnyPaidToken:    v.AnyPaidToken,
		StrictMode:           v.StrictModeOrDefault(),
		Token2022: policy.Token2022Filter{
			BlockedMintExtensions:    stringSet(v.Token2022.BlockedMintExtensions),
			BlockedAccountExtensions: stringSet(v.Token2022.BlockedAccountExtensions),
		},
	}
	p.FeePayerPolicy.System = policy.SystemFlags(v.FeePayerPolicy.System)
	p.FeePayerPolicy.Nonce = policy.NonceFlags(v.FeePayerPolicy.Nonce)
	p.FeePayerPolicy.SPLToken = policy.SPLTokenFlags(v.FeePayerPolicy.SPLToken)
	p.FeePayerPolicy.Token2022 = policy.SPLTokenFlags(v.FeePayerPolicy.Token2022)
	return p
}

// ToAuthConfig converts the declarative auth config into an auth.Config.
// A zero ClockSkewSecs leaves auth's own default (300s) in effect.
func (a *AuthFileConfig) ToAuthConfig() auth.Config {
	return auth.Config{
		APIKey:        a.APIKey,
		HMACSecret:    a.HMACSecret,
		ClockSkew:     time.Duration(a.ClockSkewSecs) * time.Second,
		BypassMethods: stringSet(a.BypassMethods),
	}
}
