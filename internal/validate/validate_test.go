package validate

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rendaw/bizast/internal/record"
)

func signedRecord(t *testing.T, name, message string, version int64) *record.Record {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	rec := &record.Record{
		Name:    name,
		Message: message,
		Version: version,
		Key:     hex.EncodeToString(pub),
	}
	rec.Signature = record.Sign(priv, name, message, version)
	return rec
}

func TestValidateAcceptsWellFormedRecord(t *testing.T) {
	rec := signedRecord(t, "alice", "bz://example", 1)
	result, err := Validate(rec, nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.RecordKey)
	assert.NotEmpty(t, result.Fingerprint)
}

func TestValidateRejectsMissingFields(t *testing.T) {
	rec := signedRecord(t, "alice", "bz://example", 1)
	rec.Name = ""
	_, err := Validate(rec, nil, nil)
	assert.ErrorIs(t, err, ErrMissingName)
}

func TestValidateRejectsOversizeName(t *testing.T) {
	rec := signedRecord(t, strings.Repeat("a", record.MaxNameBytes+1), "bz://example", 1)
	_, err := Validate(rec, nil, nil)
	assert.ErrorIs(t, err, ErrNameTooLong)
}

func TestValidateRejectsOversizeMessage(t *testing.T) {
	rec := signedRecord(t, "alice", strings.Repeat("x", record.MaxMessageBytes+1), 1)
	_, err := Validate(rec, nil, nil)
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

func TestValidateAcceptsMatchingStorageKey(t *testing.T) {
	rec := signedRecord(t, "alice", "bz://example", 1)
	recKey, err := rec.RecordKey()
	require.NoError(t, err)
	storageKey := record.StorageKey(recKey)
	_, err = Validate(rec, &storageKey, nil)
	assert.NoError(t, err)
}

func TestValidateRejectsKeyMismatch(t *testing.T) {
	rec := signedRecord(t, "alice", "bz://example", 1)
	wrongKey := record.StorageKey("bob:" + strings.Repeat("0", 64))
	_, err := Validate(rec, &wrongKey, nil)
	assert.ErrorIs(t, err, ErrKeyMismatch)
}

func TestValidateRejectsBadSignature(t *testing.T) {
	rec := signedRecord(t, "alice", "bz://example", 1)
	rec.Message = "bz://tampered"
	_, err := Validate(rec, nil, nil)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestValidateRejectsStaleVersion(t *testing.T) {
	prev := signedRecord(t, "alice", "bz://old", 5)
	next := signedRecord(t, "alice", "bz://new", 5)
	_, err := Validate(next, nil, prev)
	assert.ErrorIs(t, err, ErrStaleVersion)
}

func TestValidateAcceptsNewerVersion(t *testing.T) {
	prev := signedRecord(t, "alice", "bz://old", 5)
	next := signedRecord(t, "alice", "bz://new", 6)
	_, err := Validate(next, nil, prev)
	assert.NoError(t, err)
}
