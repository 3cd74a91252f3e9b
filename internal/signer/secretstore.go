package signer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/korasign/internal/perr"
	"github.com/yourusername/korasign/internal/secretstore"
	"github.com/yourusername/korasign/internal/wire"
)

// SecretStore is the cloud-secret-store backend (Vault-shaped): a mount
// path, token, and role identify a secret key fetched once at startup,
// then held encrypted-at-rest in process memory and signed with locally
// for the remainder of the process's life — no further network call per
// signature.
type SecretStore struct {
	name           string
	paymentAddress solana.PublicKey

	sealer *secretstore.Sealer
	box    *secretstore.Box
	pubKey solana.PublicKey

	mu sync.Mutex // serializes unseal-and-sign in Sign
}

type SecretStoreConfig struct {
	Name           string
	Endpoint       string
	MountPath      string
	Token          string
	Role           string
	PaymentAddress solana.PublicKey
}

type vaultReadResponse struct {
	Data struct {
		Data struct {
			PrivateKeyB58 string `json:"private_key"`
		} `json:"data"`
	} `json:"data"`
}

// NewSecretStore fetches the signing key once from the secret store and
// seals it at rest. A subsequent process-lifetime of Sign calls never
// touches the network again.
func NewSecretStore(ctx context.Context, cfg SecretStoreConfig) (*SecretStore, error) {
	client := &http.Client{Timeout: 10 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Endpoint+"/v1/"+cfg.MountPath, nil)
	if err != nil {
		return nil, perr.New(perr.SignerBackendError, perr.NonRetryable, "build secret-store fetch request", err)
	}
	req.Header.Set("x-vault-token", cfg.Token)
	req.Header.Set("x-vault-role", cfg.Role)

	resp, err := client.Do(req)
	if err != nil {
		return nil, perr.New(perr.SignerBackendError, perr.Retryable, "secret-store fetch failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, perr.New(perr.SignerBackendError, perr.Retryable, fmt.Sprintf("secret-store fetch: status %d", resp.StatusCode), nil)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, perr.New(perr.SignerBackendError, perr.Retryable, "secret-store read body failed", err)
	}
	var out vaultReadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, perr.New(perr.SignerBackendError, perr.NonRetryable, "secret-store response malformed", err)
	}

	key, err := decodeSecret(out.Data.Data.PrivateKeyB58)
	if err != nil {
		return nil, err
	}

	sealer, err := secretstore.NewSealer()
	if err != nil {
		return nil, perr.New(perr.SignerBackendError, perr.NonRetryable, "secret-store sealer init failed", err)
	}
	box, err := sealer.Seal(key)
	secretstore.ClearBytes(key)
	if err != nil {
		return nil, perr.New(perr.SignerBackendError, perr.NonRetryable, "secret-store seal failed", err)
	}

	pa := cfg.PaymentAddress
	pubKey := key.PublicKey()
	if pa.IsZero() {
		pa = pubKey
	}

	return &SecretStore{
		name:           cfg.Name,
		paymentAddress: pa,
		sealer:         sealer,
		box:            box,
		pubKey:         pubKey,
	}, nil
}

func (s *SecretStore) Name() string                     { return s.name }
func (s *SecretStore) PublicAddress() solana.PublicKey  { return s.pubKey }
func (s *SecretStore) PaymentAddress() solana.PublicKey { return s.paymentAddress }

func (s *SecretStore) Sign(ctx context.Context, messageBytes []byte) (wire.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.sealer.Open(s.box)
	if err != nil {
		return wire.Signature{}, perr.New(perr.SignerBackendError, perr.NonRetryable, "secret-store key unseal failed", err)
	}
	defer secretstore.ClearBytes(raw)

	key := solana.PrivateKey(raw)
	sig, err := key.Sign(messageBytes)
	if err != nil {
		return wire.Signature{}, perr.New(perr.SignerBackendError, perr.NonRetryable, "secret-store sign failed", err)
	}
	return wire.Signature(sig), nil
}

func (s *SecretStore) SignSolanaMessage(ctx context.Context, tx *wire.Transaction) (*wire.Transaction, error) {
	return signMessageInto(ctx, s, tx)
}
