// Package auth implements the request-level authentication middleware: an
// exact-match API key and an HMAC-SHA256 request signature, both
// optionally configured and both required to pass when configured.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/yourusername/korasign/internal/perr"
)

const defaultClockSkew = 300 * time.Second

// Config is the immutable-after-load auth configuration. Either field may
// be empty to disable that check; BypassMethods names JSON-RPC methods
// (e.g. a liveness probe) that skip auth entirely.
type Config struct {
	APIKey         string
	HMACSecret     string
	ClockSkew      time.Duration
	BypassMethods  map[string]struct{}
}

// Request is the minimal slice of an incoming JSON-RPC call auth needs.
type Request struct {
	Method          string
	APIKeyHeader    string
	TimestampHeader string
	SignatureHeader string
	RawBody         []byte
}

// Authenticate validates req against cfg. A single AuthRejected error is
// returned for every failure mode — missing header, wrong key, bad HMAC,
// expired timestamp — so the response never distinguishes "missing" from
// "bad" beyond the error code, per spec §4.7.
func Authenticate(cfg Config, req Request) error {
	if _, bypass := cfg.BypassMethods[req.Method]; bypass {
		return nil
	}

	if cfg.APIKey != "" {
		if subtle.ConstantTimeCompare([]byte(req.APIKeyHeader), []byte(cfg.APIKey)) != 1 {
			return rejected()
		}
	}

	if cfg.HMACSecret != "" {
		if err := checkHMAC(cfg, req); err != nil {
			return err
		}
	}

	return nil
}

func checkHMAC(cfg Config, req Request) error {
	if req.TimestampHeader == "" || req.SignatureHeader == "" {
		return rejected()
	}

	ts, err := strconv.ParseInt(req.TimestampHeader, 10, 64)
	if err != nil {
		return rejected()
	}

	skew := cfg.ClockSkew
	if skew == 0 {
		skew = defaultClockSkew
	}
	delta := time.Now().Unix() - ts
	if delta < 0 {
		delta = -delta
	}
	if delta > int64(skew/time.Second) {
		return rejected()
	}

	mac := hmac.New(sha256.New, []byte(cfg.HMACSecret))
	mac.Write([]byte(req.TimestampHeader))
	mac.Write(req.RawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(req.SignatureHeader)) != 1 {
		return rejected()
	}
	return nil
}

func rejected() error {
	return perr.New(perr.AuthRejected, perr.NonRetryable, "authentication failed", nil)
}
