package wire

import (
	"encoding/base64"
	"testing"
)

func encodeRawBase64(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

func mustDecodeBase64(t *testing.T, s string) []byte {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	return raw
}
