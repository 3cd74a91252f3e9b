package signer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/korasign/internal/perr"
	"github.com/yourusername/korasign/internal/wire"
)

// RemoteB is the HSM-remote-B backend: a wallet-id + bearer-token pair
// against a job-submission API — sign requests are queued, then polled for
// completion, unlike remote-A's synchronous stamped call. This mirrors two
// real HSM providers' differing transport shapes while exposing the same
// Entry contract to the rest of the module.
type RemoteB struct {
	name           string
	walletID       string
	bearerToken    string
	endpoint       string
	publicAddress  solana.PublicKey
	paymentAddress solana.PublicKey
	httpClient     *http.Client
	pollInterval   time.Duration
}

type RemoteBConfig struct {
	Name           string
	Endpoint       string
	WalletID       string
	BearerToken    string
	PublicAddress  solana.PublicKey
	PaymentAddress solana.PublicKey
}

func NewRemoteB(cfg RemoteBConfig) *RemoteB {
	pa := cfg.PaymentAddress
	if pa.IsZero() {
		pa = cfg.PublicAddress
	}
	return &RemoteB{
		name:           cfg.Name,
		walletID:       cfg.WalletID,
		bearerToken:    cfg.BearerToken,
		endpoint:       cfg.Endpoint,
		publicAddress:  cfg.PublicAddress,
		paymentAddress: pa,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		pollInterval:   150 * time.Millisecond,
	}
}

func (r *RemoteB) Name() string                     { return r.name }
func (r *RemoteB) PublicAddress() solana.PublicKey  { return r.publicAddress }
func (r *RemoteB) PaymentAddress() solana.PublicKey { return r.paymentAddress }

type remoteBJobRequest struct {
	WalletID string `json:"wallet_id"`
	Message  string `json:"message_b64"`
}

type remoteBJobResponse struct {
	JobID string `json:"job_id"`
}

type remoteBJobStatus struct {
	Status    string `json:"status"` // "pending", "complete", "failed"
	Signature string `json:"signature_b64,omitempty"`
}

func (r *RemoteB) Sign(ctx context.Context, messageBytes []byte) (wire.Signature, error) {
	var sigBytes []byte
	err := withBackoff(ctx, 3, 200*time.Millisecond, func() error {
		b, submitErr := r.submitAndAwait(ctx, messageBytes)
		if submitErr != nil {
			return submitErr
		}
		sigBytes = b
		return nil
	})
	if err != nil {
		return wire.Signature{}, perr.New(perr.SignerBackendError, perr.Retryable, "remote-B sign job failed", err)
	}
	if len(sigBytes) != 64 {
		return wire.Signature{}, perr.New(perr.SignerBackendError, perr.NonRetryable, "remote-B returned malformed signature", nil)
	}
	var sig wire.Signature
	copy(sig[:], sigBytes)
	return sig, nil
}

func (r *RemoteB) submitAndAwait(ctx context.Context, messageBytes []byte) ([]byte, error) {
	jobID, err := r.submitJob(ctx, messageBytes)
	if err != nil {
		return nil, err
	}
	return r.pollJob(ctx, jobID)
}

func (r *RemoteB) submitJob(ctx context.Context, messageBytes []byte) (string, error) {
	body, err := json.Marshal(remoteBJobRequest{WalletID: r.walletID, Message: base64.StdEncoding.EncodeToString(messageBytes)})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/v2/sign-jobs", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("authorization", "Bearer "+r.bearerToken)
	req.Header.Set("content-type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("remote-B submit: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	var out remoteBJobResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

func (r *RemoteB) pollJob(ctx context.Context, jobID string) ([]byte, error) {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/v2/sign-jobs/"+jobID, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("authorization", "Bearer "+r.bearerToken)

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		var status remoteBJobStatus
		if err := json.Unmarshal(raw, &status); err != nil {
			return nil, err
		}
		switch status.Status {
		case "complete":
			return base64.StdEncoding.DecodeString(status.Signature)
		case "failed":
			return nil, fmt.Errorf("remote-B sign job %s failed", jobID)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}
}

func (r *RemoteB) SignSolanaMessage(ctx context.Context, tx *wire.Transaction) (*wire.Transaction, error) {
	return signMessageInto(ctx, r, tx)
}
