package config

import (
	"context"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/korasign/internal/signer"
)

// SignerFileEntry is one entry of the signers file: a named wallet backed
// by one of the four signing backends, identified by kind.
type SignerFileEntry struct {
	Name           string            `yaml:"name"`
	Kind           string            `yaml:"kind"` // memory | remote_a | remote_b | secret_store
	PublicAddress  string            `yaml:"public_address"`
	PaymentAddress string            `yaml:"payment_address"`
	Default        bool              `yaml:"default"`
	BackendConfig  map[string]string `yaml:"backend_config"`
}

type signersFile struct {
	Signers []SignerFileEntry `yaml:"signers"`
}

// LoadSigners parses the signers file at path and registers one Entry per
// record into a freshly built Pool, dispatching on each entry's kind.
func LoadSigners(ctx context.Context, path string, logger *zap.Logger) (*signer.Pool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signers file unreadable: %s: %w", path, err)
	}
	var doc signersFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("signers file malformed: %s: %w", path, err)
	}
	if len(doc.Signers) == 0 {
		return nil, fmt.Errorf("signers file declares no signers: %s", path)
	}

	pool := signer.NewPool()
	sawDefault := false
	for _, sf := range doc.Signers {
		entry, err := buildEntry(ctx, sf)
		if err != nil {
			return nil, err
		}
		pool.Register(entry, sf.Default)
		sawDefault = sawDefault || sf.Default
	}
	if !sawDefault {
		logger.Warn("signers file declares no default signer; signer_key will be required on every request")
	}
	return pool, nil
}

func buildEntry(ctx context.Context, sf SignerFileEntry) (signer.Entry, error) {
	pub, err := mustPubkeyErr(sf.PublicAddress)
	if err != nil {
		return nil, fmt.Errorf("signer %s has invalid public_address: %w", sf.Name, err)
	}
	var payment solana.PublicKey
	if sf.PaymentAddress != "" {
		payment, err = mustPubkeyErr(sf.PaymentAddress)
		if err != nil {
			return nil, fmt.Errorf("signer %s has invalid payment_address: %w", sf.Name, err)
		}
	} else {
		payment = pub
	}

	switch sf.Kind {
	case "memory":
		return signer.NewMemory(sf.Name, sf.BackendConfig["secret"], payment)
	case "remote_a":
		return signer.NewRemoteA(signer.RemoteAConfig{
			Name:           sf.Name,
			Endpoint:       sf.BackendConfig["endpoint"],
			AccountID:      sf.BackendConfig["account_id"],
			APIKey:         sf.BackendConfig["api_key"],
			APISecret:      sf.BackendConfig["api_secret"],
			PublicAddress:  pub,
			PaymentAddress: payment,
		}), nil
	case "remote_b":
		return signer.NewRemoteB(signer.RemoteBConfig{
			Name:           sf.Name,
			Endpoint:       sf.BackendConfig["endpoint"],
			WalletID:       sf.BackendConfig["wallet_id"],
			BearerToken:    sf.BackendConfig["bearer_token"],
			PublicAddress:  pub,
			PaymentAddress: payment,
		}), nil
	case "secret_store":
		return signer.NewSecretStore(ctx, signer.SecretStoreConfig{
			Name:           sf.Name,
			Endpoint:       sf.BackendConfig["endpoint"],
			MountPath:      sf.BackendConfig["mount_path"],
			Token:          sf.BackendConfig["token"],
			Role:           sf.BackendConfig["role"],
			PaymentAddress: payment,
		})
	default:
		return nil, fmt.Errorf("signer %s has unknown kind %q", sf.Name, sf.Kind)
	}
}

func mustPubkeyErr(s string) (solana.PublicKey, error) {
	return solana.PublicKeyFromBase58(s)
}
