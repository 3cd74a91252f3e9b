package signer

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/korasign/internal/perr"
	"github.com/yourusername/korasign/internal/wire"
)

// RemoteA is the HSM-remote-A backend: an account-id + API-credential pair
// authenticating via a stamped HTTPS request (timestamp + HMAC over the
// request body, the same request-stamping idiom the operator's own
// x-hmac-signature auth uses). The remote service holds the key; this
// backend never sees private key material.
type RemoteA struct {
	name           string
	accountID      string
	apiKey         string
	apiSecret      string
	endpoint       string
	publicAddress  solana.PublicKey
	paymentAddress solana.PublicKey
	httpClient     *http.Client
}

type RemoteAConfig struct {
	Name           string
	Endpoint       string
	AccountID      string
	APIKey         string
	APISecret      string
	PublicAddress  solana.PublicKey
	PaymentAddress solana.PublicKey
}

func NewRemoteA(cfg RemoteAConfig) *RemoteA {
	pa := cfg.PaymentAddress
	if pa.IsZero() {
		pa = cfg.PublicAddress
	}
	return &RemoteA{
		name:           cfg.Name,
		accountID:      cfg.AccountID,
		apiKey:         cfg.APIKey,
		apiSecret:      cfg.APISecret,
		endpoint:       cfg.Endpoint,
		publicAddress:  cfg.PublicAddress,
		paymentAddress: pa,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *RemoteA) Name() string                     { return r.name }
func (r *RemoteA) PublicAddress() solana.PublicKey  { return r.publicAddress }
func (r *RemoteA) PaymentAddress() solana.PublicKey { return r.paymentAddress }

type remoteASignRequest struct {
	AccountID string `json:"account_id"`
	Message   string `json:"message"`
}

type remoteASignResponse struct {
	Signature string `json:"signature"`
}

func (r *RemoteA) Sign(ctx context.Context, messageBytes []byte) (wire.Signature, error) {
	body, err := json.Marshal(remoteASignRequest{
		AccountID: r.accountID,
		Message:   base64.StdEncoding.EncodeToString(messageBytes),
	})
	if err != nil {
		return wire.Signature{}, perr.New(perr.SignerBackendError, perr.NonRetryable, "marshal sign request", err)
	}

	var sigBytes []byte
	err = withBackoff(ctx, 3, 200*time.Millisecond, func() error {
		var stampErr error
		sigBytes, stampErr = r.doStampedRequest(ctx, body)
		return stampErr
	})
	if err != nil {
		return wire.Signature{}, perr.New(perr.SignerBackendError, perr.Retryable, "remote-A sign request failed", err)
	}
	if len(sigBytes) != 64 {
		return wire.Signature{}, perr.New(perr.SignerBackendError, perr.NonRetryable, "remote-A returned malformed signature", nil)
	}
	var sig wire.Signature
	copy(sig[:], sigBytes)
	return sig, nil
}

func (r *RemoteA) doStampedRequest(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/v1/sign", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("x-api-key", r.apiKey)
	req.Header.Set("x-timestamp", timestamp)
	req.Header.Set("x-request-signature", r.stampRequest(timestamp, body))
	req.Header.Set("content-type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote-A sign: status %d", resp.StatusCode)
	}
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out remoteASignResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(out.Signature)
}

func (r *RemoteA) stampRequest(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(r.apiSecret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (r *RemoteA) SignSolanaMessage(ctx context.Context, tx *wire.Transaction) (*wire.Transaction, error) {
	return signMessageInto(ctx, r, tx)
}
