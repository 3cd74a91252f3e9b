package wire

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func legacyFixture(t *testing.T) *Transaction {
	t.Helper()
	payer := solana.NewWallet().PublicKey()
	program := solana.NewWallet().PublicKey()

	msg := Message{
		Version: VersionLegacy,
		Header: MessageHeader{
			NumRequiredSignatures:       1,
			NumReadonlySignedAccounts:   0,
			NumReadonlyUnsignedAccounts: 1,
		},
		AccountKeys: []PublicKey{payer, program},
		Instructions: []CompiledInstruction{
			{ProgramIDIndex: 1, Accounts: []uint8{0}, Data: []byte("memo")},
		},
	}
	return &Transaction{Signatures: []Signature{{}}, Message: msg}
}

func v0Fixture(t *testing.T) *Transaction {
	t.Helper()
	tx := legacyFixture(t)
	tx.Message.Version = VersionV0
	tx.Message.AddressTableLookups = []AddressTableLookup{
		{
			AccountKey:      solana.NewWallet().PublicKey(),
			WritableIndexes: []uint8{0, 1},
			ReadonlyIndexes: []uint8{2},
		},
	}
	return tx
}

func TestRoundTripLegacy(t *testing.T) {
	tx := legacyFixture(t)
	encoded, err := Encode(tx)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)

	reencoded, err := Encode(decoded)
	require.NoError(t, err)
	require.Equal(t, encoded, reencoded)
}

func TestRoundTripV0(t *testing.T) {
	tx := v0Fixture(t)
	encoded, err := Encode(tx)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, VersionV0, decoded.Message.Version)
	require.Len(t, decoded.Message.AddressTableLookups, 1)

	reencoded, err := Encode(decoded)
	require.NoError(t, err)
	require.Equal(t, encoded, reencoded)
}

func TestDecodeRejectsOversize(t *testing.T) {
	huge := make([]byte, maxTransactionSize+1)
	_, err := Decode(encodeRawBase64(huge))
	require.Error(t, err)
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	tx := legacyFixture(t)
	tx.Message.Version = VersionV0
	encoded, err := Encode(tx)
	require.NoError(t, err)

	raw := mustDecodeBase64(t, encoded)
	// Corrupt the version byte to an unsupported version (v1).
	require.True(t, raw[shortVecLen(len(tx.Signatures))]&versionPrefixMask != 0)
	idx := shortVecLen(len(tx.Signatures))
	raw[idx] = versionPrefixMask | 1
	_, err = Decode(encodeRawBase64(raw))
	require.Error(t, err)
}

func shortVecLen(n int) int {
	return len(encodeShortVec(nil, n))
}
