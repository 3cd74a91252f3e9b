package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleConfig = `
kora:
  rate_limit: 50
validation:
  max_allowed_lamports: 1000000
  max_signatures: 2
  price_source: Mock
  allowed_programs:
    - "11111111111111111111111111111111"
  fee_payer_policy:
    system:
      allow_transfer: true
    spl_token:
      allow_close_account: true
  price:
    type: margin
    margin: 0.1
  token2022:
    blocked_mint_extensions:
      - transfer_hook
enabled_methods:
  signTransaction: true
  signAndSendTransaction: false
auth:
  api_key: test-key
  clock_skew_seconds: 120
`

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadParsesAndDefaultsStrictMode(t *testing.T) {
	path := writeTemp(t, "kora.yaml", sampleConfig)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 50, cfg.Kora.RateLimit)
	require.Equal(t, uint64(1000000), cfg.Validation.MaxAllowedLamports)
	require.True(t, cfg.Validation.FeePayerPolicy.System.AllowTransfer)
	require.True(t, cfg.Validation.FeePayerPolicy.SPLToken.AllowCloseAccount)
	require.False(t, cfg.Validation.FeePayerPolicy.Nonce.AllowAdvanceNonceAccount)
	require.True(t, cfg.EnabledMethods["signTransaction"])
	require.False(t, cfg.EnabledMethods["signAndSendTransaction"])

	policy := cfg.Validation.ToPolicy()
	require.True(t, policy.StrictMode, "strict mode must default to true when unset")
}

func TestLoadRejectsUnknownPriceSource(t *testing.T) {
	path := writeTemp(t, "bad.yaml", "validation:\n  price_source: Bogus\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

const sampleSigners = `
signers:
  - name: primary
    kind: memory
    public_address: "11111111111111111111111111111111"
    default: true
    backend_config:
      secret: "not-a-real-key"
`

func TestLoadSignersRejectsBadSecretButParsesShape(t *testing.T) {
	// The in-memory backend validates the secret itself; here we only
	// assert the signers file is parsed and dispatched to the right
	// constructor, surfacing that backend's own validation error.
	path := writeTemp(t, "signers.yaml", sampleSigners)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "primary")

	_, err = LoadSigners(context.Background(), path, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "SignerBackendError")
}
