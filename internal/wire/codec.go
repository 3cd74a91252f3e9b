package wire

import (
	"encoding/base64"

	"github.com/yourusername/korasign/internal/perr"
)

// versionPrefixMask marks the high bit of the first message byte when a
// version prefix is present (v0+). Legacy messages never set it because
// their first byte is the required-signature count, always < 128 in
// practice and masked out from ever colliding with 0x80 by the chain.
const versionPrefixMask = 0x80

// Decode parses base64-encoded wire bytes into a Transaction.
//
// Fails with MalformedWire for truncated or structurally invalid input,
// UnsupportedVersion for a version byte other than legacy/v0, and
// OversizeTransaction if the decoded wire size exceeds the chain's
// effective limit.
func Decode(b64 string) (*Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, perr.New(perr.MalformedWire, perr.NonRetryable, "invalid base64", err)
	}
	if len(raw) > maxTransactionSize {
		return nil, perr.New(perr.OversizeTransaction, perr.NonRetryable, "transaction exceeds wire size limit", nil)
	}
	return decodeBytes(raw)
}

func decodeBytes(raw []byte) (*Transaction, error) {
	offset := 0

	sigCount, n, err := decodeShortVec(raw[offset:])
	if err != nil {
		return nil, err
	}
	offset += n

	sigs := make([]Signature, sigCount)
	for i := 0; i < int(sigCount); i++ {
		if offset+signatureSize > len(raw) {
			return nil, perr.New(perr.MalformedWire, perr.NonRetryable, "truncated signature", nil)
		}
		copy(sigs[i][:], raw[offset:offset+signatureSize])
		offset += signatureSize
	}

	msg, consumed, err := decodeMessage(raw[offset:])
	if err != nil {
		return nil, err
	}
	offset += consumed

	if offset != len(raw) {
		return nil, perr.New(perr.MalformedWire, perr.NonRetryable, "trailing bytes after message", nil)
	}

	return &Transaction{Signatures: sigs, Message: *msg}, nil
}

func decodeMessage(buf []byte) (*Message, int, error) {
	if len(buf) == 0 {
		return nil, 0, perr.New(perr.MalformedWire, perr.NonRetryable, "empty message", nil)
	}

	offset := 0
	version := VersionLegacy
	if buf[0]&versionPrefixMask != 0 {
		v := buf[0] &^ versionPrefixMask
		if v != 0 {
			return nil, 0, perr.New(perr.UnsupportedVersion, perr.NonRetryable, "unsupported transaction version", nil)
		}
		version = VersionV0
		offset++
	}

	if offset+3 > len(buf) {
		return nil, 0, perr.New(perr.MalformedWire, perr.NonRetryable, "truncated message header", nil)
	}
	header := MessageHeader{
		NumRequiredSignatures:       buf[offset],
		NumReadonlySignedAccounts:   buf[offset+1],
		NumReadonlyUnsignedAccounts: buf[offset+2],
	}
	offset += 3

	keyCount, n, err := decodeShortVec(buf[offset:])
	if err != nil {
		return nil, 0, err
	}
	offset += n

	keys := make([]PublicKey, keyCount)
	for i := 0; i < int(keyCount); i++ {
		if offset+pubkeySize > len(buf) {
			return nil, 0, perr.New(perr.MalformedWire, perr.NonRetryable, "truncated account key", nil)
		}
		copy(keys[i][:], buf[offset:offset+pubkeySize])
		offset += pubkeySize
	}

	if offset+32 > len(buf) {
		return nil, 0, perr.New(perr.MalformedWire, perr.NonRetryable, "truncated recent blockhash", nil)
	}
	var blockhash [32]byte
	copy(blockhash[:], buf[offset:offset+32])
	offset += 32

	instrCount, n, err := decodeShortVec(buf[offset:])
	if err != nil {
		return nil, 0, err
	}
	offset += n

	instructions := make([]CompiledInstruction, instrCount)
	for i := 0; i < int(instrCount); i++ {
		if offset >= len(buf) {
			return nil, 0, perr.New(perr.MalformedWire, perr.NonRetryable, "truncated instruction", nil)
		}
		programIdx := buf[offset]
		offset++

		accCount, n, err := decodeShortVec(buf[offset:])
		if err != nil {
			return nil, 0, err
		}
		offset += n
		if offset+int(accCount) > len(buf) {
			return nil, 0, perr.New(perr.MalformedWire, perr.NonRetryable, "truncated instruction accounts", nil)
		}
		accounts := make([]uint8, accCount)
		copy(accounts, buf[offset:offset+int(accCount)])
		offset += int(accCount)

		dataLen, n, err := decodeShortVec(buf[offset:])
		if err != nil {
			return nil, 0, err
		}
		offset += n
		if offset+int(dataLen) > len(buf) {
			return nil, 0, perr.New(perr.MalformedWire, perr.NonRetryable, "truncated instruction data", nil)
		}
		data := make([]byte, dataLen)
		copy(data, buf[offset:offset+int(dataLen)])
		offset += int(dataLen)

		instructions[i] = CompiledInstruction{ProgramIDIndex: programIdx, Accounts: accounts, Data: data}
	}

	var lookups []AddressTableLookup
	if version == VersionV0 {
		lookupCount, n, err := decodeShortVec(buf[offset:])
		if err != nil {
			return nil, 0, err
		}
		offset += n

		lookups = make([]AddressTableLookup, lookupCount)
		for i := 0; i < int(lookupCount); i++ {
			if offset+pubkeySize > len(buf) {
				return nil, 0, perr.New(perr.MalformedWire, perr.NonRetryable, "truncated lookup table key", nil)
			}
			var key PublicKey
			copy(key[:], buf[offset:offset+pubkeySize])
			offset += pubkeySize

			wCount, n, err := decodeShortVec(buf[offset:])
			if err != nil {
				return nil, 0, err
			}
			offset += n
			if offset+int(wCount) > len(buf) {
				return nil, 0, perr.New(perr.MalformedWire, perr.NonRetryable, "truncated writable indexes", nil)
			}
			writable := make([]uint8, wCount)
			copy(writable, buf[offset:offset+int(wCount)])
			offset += int(wCount)

			rCount, n, err := decodeShortVec(buf[offset:])
			if err != nil {
				return nil, 0, err
			}
			offset += n
			if offset+int(rCount) > len(buf) {
				return nil, 0, perr.New(perr.MalformedWire, perr.NonRetryable, "truncated readonly indexes", nil)
			}
			readonly := make([]uint8, rCount)
			copy(readonly, buf[offset:offset+int(rCount)])
			offset += int(rCount)

			lookups[i] = AddressTableLookup{AccountKey: key, WritableIndexes: writable, ReadonlyIndexes: readonly}
		}
	}

	return &Message{
		Version:             version,
		Header:              header,
		AccountKeys:         keys,
		RecentBlockhash:      blockhash,
		Instructions:         instructions,
		AddressTableLookups: lookups,
	}, offset, nil
}

// Encode serializes a Transaction back to base64 wire bytes. For any
// transaction produced by Decode, Encode(Decode(b)) == b byte-for-byte.
func Encode(tx *Transaction) (string, error) {
	var buf []byte

	buf = encodeShortVec(buf, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		buf = append(buf, sig[:]...)
	}

	msgBytes, err := encodeMessage(&tx.Message)
	if err != nil {
		return "", err
	}
	buf = append(buf, msgBytes...)

	if len(buf) > maxTransactionSize {
		return "", perr.New(perr.OversizeTransaction, perr.NonRetryable, "encoded transaction exceeds wire size limit", nil)
	}

	return base64.StdEncoding.EncodeToString(buf), nil
}

// EncodeMessage serializes a message's wire bytes without its surrounding
// signature list — exactly the bytes a signer signs.
func EncodeMessage(m *Message) ([]byte, error) {
	return encodeMessage(m)
}

func encodeMessage(m *Message) ([]byte, error) {
	var buf []byte

	if m.Version == VersionV0 {
		buf = append(buf, versionPrefixMask)
	}

	buf = append(buf, m.Header.NumRequiredSignatures, m.Header.NumReadonlySignedAccounts, m.Header.NumReadonlyUnsignedAccounts)

	buf = encodeShortVec(buf, len(m.AccountKeys))
	for _, k := range m.AccountKeys {
		buf = append(buf, k[:]...)
	}

	buf = append(buf, m.RecentBlockhash[:]...)

	buf = encodeShortVec(buf, len(m.Instructions))
	for _, instr := range m.Instructions {
		buf = append(buf, instr.ProgramIDIndex)
		buf = encodeShortVec(buf, len(instr.Accounts))
		buf = append(buf, instr.Accounts...)
		buf = encodeShortVec(buf, len(instr.Data))
		buf = append(buf, instr.Data...)
	}

	if m.Version == VersionV0 {
		buf = encodeShortVec(buf, len(m.AddressTableLookups))
		for _, lookup := range m.AddressTableLookups {
			buf = append(buf, lookup.AccountKey[:]...)
			buf = encodeShortVec(buf, len(lookup.WritableIndexes))
			buf = append(buf, lookup.WritableIndexes...)
			buf = encodeShortVec(buf, len(lookup.ReadonlyIndexes))
			buf = append(buf, lookup.ReadonlyIndexes...)
		}
	}

	return buf, nil
}
