// Package record implements the signed resource record format: encoding,
// canonical plaintext, fingerprinting, and the record/storage key derivations
// that identify a record across the DHT.
package record

import (
	"crypto/ed25519"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Field limits enforced by the validator, kept here because both the codec
// and the validator need them to agree on what "too long" means.
const (
	MaxNameBytes    = 64
	MaxMessageBytes = 512
)

var (
	ErrMissingField   = errors.New("record: missing field")
	ErrFieldTooLong   = errors.New("record: field exceeds maximum length")
	ErrMalformedJSON  = errors.New("record: malformed JSON")
	ErrMalformedHex   = errors.New("record: malformed hex encoding")
	ErrBadKeySize     = errors.New("record: public key has wrong size")
	ErrBadSigSize     = errors.New("record: signature has wrong size")
	ErrMalformedKey   = errors.New("record: malformed record key")
)

// Record is the signed name -> message mapping disseminated through the DHT.
// Every field round-trips through JSON with these exact tag names; the wire
// format is the plain JSON encoding of this struct.
type Record struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	Version   int64  `json:"version"`
	Key       string `json:"key"`       // hex-encoded Ed25519 public key
	Signature string `json:"signature"` // hex-encoded Ed25519 signature over CanonicalPlaintext
}

// Decode parses a JSON-encoded record. It does not validate or verify the
// record; see the validate package for that.
func Decode(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return &rec, nil
}

// Encode serializes a record to its canonical wire JSON.
func Encode(rec *Record) ([]byte, error) {
	return json.Marshal(rec)
}

// CanonicalPlaintext returns the exact byte sequence that is signed and
// verified for a record: the name, message, and version fields, JSON-encoded
// with keys in a fixed lexicographic order. This must match byte-for-byte
// between every implementation of the protocol, so it is built by hand
// instead of relying on struct field order or a generic map marshal.
func CanonicalPlaintext(name, message string, version int64) []byte {
	var b strings.Builder
	b.WriteByte('{')
	b.WriteString(`"message":`)
	writeJSONString(&b, message)
	b.WriteByte(',')
	b.WriteString(`"name":`)
	writeJSONString(&b, name)
	b.WriteByte(',')
	b.WriteString(`"version":`)
	fmt.Fprintf(&b, "%d", version)
	b.WriteByte('}')
	return []byte(b.String())
}

func writeJSONString(b *strings.Builder, s string) {
	encoded, _ := json.Marshal(s)
	b.Write(encoded)
}

// Fingerprint returns the full SHA-256 hex digest of a raw Ed25519 public key.
// Unlike truncated key fingerprints used for display purposes elsewhere,
// bizast's fingerprint is a load-bearing identifier: it is half of the
// record key, so it must not collide across distinct keys.
func Fingerprint(pubKey []byte) string {
	sum := sha256.Sum256(pubKey)
	return hex.EncodeToString(sum[:])
}

// RecordKey returns the "<name>:<fingerprint>" string that names a record
// within a publisher's namespace.
func RecordKey(name, fingerprint string) string {
	return name + ":" + fingerprint
}

// fingerprintHexLen is the length of a hex-encoded SHA-256 fingerprint, and
// therefore the exact length the half of a record key after the last ':'
// must have.
const fingerprintHexLen = sha256.Size * 2

// ParseRecordKey splits a "<name>:<fingerprint>" string into its parts. The
// fingerprint half is split off the last ':' so a name is free to contain
// ':' itself; both halves must be non-empty and the fingerprint must be a
// well-formed 64-character hex string, since it is about to be hashed into
// a storage key and a malformed one would otherwise fail far from here.
func ParseRecordKey(key string) (name, fingerprint string, err error) {
	idx := strings.LastIndex(key, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("%w: missing ':' in %q", ErrMalformedKey, key)
	}
	name, fingerprint = key[:idx], key[idx+1:]
	if name == "" {
		return "", "", fmt.Errorf("%w: empty name in %q", ErrMalformedKey, key)
	}
	if len(fingerprint) != fingerprintHexLen {
		return "", "", fmt.Errorf("%w: fingerprint must be %d hex characters, got %d in %q", ErrMalformedKey, fingerprintHexLen, len(fingerprint), key)
	}
	if _, err := hex.DecodeString(fingerprint); err != nil {
		return "", "", fmt.Errorf("%w: fingerprint is not valid hex in %q", ErrMalformedKey, key)
	}
	return name, fingerprint, nil
}

// StorageKeySize is the length, in bytes, of a storage key (SHA-1 digest).
const StorageKeySize = sha1.Size

// StorageKey hashes a record key down to the fixed-size key used to address
// the DHT's storage engine and the underlying routing layer.
func StorageKey(recordKey string) [StorageKeySize]byte {
	return sha1.Sum([]byte(recordKey))
}

// PublicKeyBytes decodes the record's hex-encoded Key field.
func (r *Record) PublicKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(r.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: key: %v", ErrMalformedHex, err)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrBadKeySize, len(key), ed25519.PublicKeySize)
	}
	return key, nil
}

// SignatureBytes decodes the record's hex-encoded Signature field.
func (r *Record) SignatureBytes() ([]byte, error) {
	sig, err := hex.DecodeString(r.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrMalformedHex, err)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrBadSigSize, len(sig), ed25519.SignatureSize)
	}
	return sig, nil
}

// Fingerprint computes this record's publisher fingerprint from its Key field.
func (r *Record) Fingerprint() (string, error) {
	pub, err := r.PublicKeyBytes()
	if err != nil {
		return "", err
	}
	return Fingerprint(pub), nil
}

// RecordKey computes this record's "<name>:<fingerprint>" key.
func (r *Record) RecordKey() (string, error) {
	fp, err := r.Fingerprint()
	if err != nil {
		return "", err
	}
	return RecordKey(r.Name, fp), nil
}

// Sign produces the hex-encoded Ed25519 signature over the record's canonical
// plaintext using the supplied private key, without mutating the record.
func Sign(priv ed25519.PrivateKey, name, message string, version int64) string {
	sig := ed25519.Sign(priv, CanonicalPlaintext(name, message, version))
	return hex.EncodeToString(sig)
}

// VerifySignature checks the record's Signature field against its own
// Name/Message/Version/Key fields. It does not perform any of the other
// structural or freshness checks — see the validate package for the full
// pipeline.
func (r *Record) VerifySignature() error {
	pub, err := r.PublicKeyBytes()
	if err != nil {
		return err
	}
	sig, err := r.SignatureBytes()
	if err != nil {
		return err
	}
	plaintext := CanonicalPlaintext(r.Name, r.Message, r.Version)
	if !ed25519.Verify(pub, plaintext, sig) {
		return errors.New("record: signature verification failed")
	}
	return nil
}
