package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestAuthenticateRequiresAPIKeyWhenConfigured(t *testing.T) {
	cfg := Config{APIKey: "secret-key"}

	require.NoError(t, Authenticate(cfg, Request{APIKeyHeader: "secret-key"}))
	require.Error(t, Authenticate(cfg, Request{APIKeyHeader: ""}))
	require.Error(t, Authenticate(cfg, Request{APIKeyHeader: "wrong"}))
}

func TestAuthenticateHMACValid(t *testing.T) {
	secret := "hmac-secret"
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"signTransaction"}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := sign(secret, ts, body)

	cfg := Config{HMACSecret: secret}
	req := Request{TimestampHeader: ts, SignatureHeader: sig, RawBody: body}
	require.NoError(t, Authenticate(cfg, req))
}

func TestAuthenticateHMACRejectsSingleByteMutations(t *testing.T) {
	secret := "hmac-secret"
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"signTransaction"}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := sign(secret, ts, body)
	cfg := Config{HMACSecret: secret}

	mutatedBody := append([]byte(nil), body...)
	mutatedBody[0] ^= 0x01
	require.Error(t, Authenticate(cfg, Request{TimestampHeader: ts, SignatureHeader: sig, RawBody: mutatedBody}))

	mutatedSig := []byte(sig)
	mutatedSig[0] ^= 1
	require.Error(t, Authenticate(cfg, Request{TimestampHeader: ts, SignatureHeader: string(mutatedSig), RawBody: body}))

	otherTS := strconv.FormatInt(time.Now().Unix()+1, 10)
	require.Error(t, Authenticate(cfg, Request{TimestampHeader: otherTS, SignatureHeader: sig, RawBody: body}))
}

func TestAuthenticateClockSkewBoundary(t *testing.T) {
	secret := "hmac-secret"
	body := []byte(`{}`)
	cfg := Config{HMACSecret: secret, ClockSkew: 300 * time.Second}

	atBoundary := strconv.FormatInt(time.Now().Add(-300*time.Second).Unix(), 10)
	sigAtBoundary := sign(secret, atBoundary, body)
	require.NoError(t, Authenticate(cfg, Request{TimestampHeader: atBoundary, SignatureHeader: sigAtBoundary, RawBody: body}))

	pastBoundary := strconv.FormatInt(time.Now().Add(-301*time.Second).Unix(), 10)
	sigPastBoundary := sign(secret, pastBoundary, body)
	require.Error(t, Authenticate(cfg, Request{TimestampHeader: pastBoundary, SignatureHeader: sigPastBoundary, RawBody: body}))
}

func TestAuthenticateBypassMethod(t *testing.T) {
	cfg := Config{APIKey: "secret", BypassMethods: map[string]struct{}{"liveness": {}}}
	require.NoError(t, Authenticate(cfg, Request{Method: "liveness"}))
}

func TestRateLimiterTokenBucket(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	require.NoError(t, rl.Allow("client-a"))
	require.NoError(t, rl.Allow("client-a"))
	require.Error(t, rl.Allow("client-a"))
}
