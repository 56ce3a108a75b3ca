// Package validate implements the ordered validation pipeline a record must
// pass before the storage engine admits it.
package validate

import (
	"errors"
	"fmt"

	"github.com/Rendaw/bizast/internal/record"
)

// Validation errors, checked in order by Validate.
var (
	ErrMissingName      = errors.New("validate: missing name")
	ErrMissingMessage   = errors.New("validate: missing message")
	ErrMissingKey       = errors.New("validate: missing key")
	ErrMissingSignature = errors.New("validate: missing signature")
	ErrNameTooLong      = fmt.Errorf("validate: %w: name exceeds %d bytes", record.ErrFieldTooLong, record.MaxNameBytes)
	ErrMessageTooLong   = fmt.Errorf("validate: %w: message exceeds %d bytes", record.ErrFieldTooLong, record.MaxMessageBytes)
	ErrKeyMismatch      = errors.New("validate: record key does not match expected storage location")
	ErrSignatureInvalid = errors.New("validate: signature verification failed")
	ErrStaleVersion     = errors.New("validate: version is not newer than the stored record")
)

// Result carries the derived identifiers of a successfully validated record,
// so callers don't need to recompute them.
type Result struct {
	RecordKey   string
	Fingerprint string
}

// Validate runs the full admission pipeline against a decoded record:
//
//  1. required fields are present
//  2. name and message respect their length limits
//  3. SHA1(record key derived from the record) matches expectedStorageKey,
//     when the caller knows what storage key it expects (pass nil to skip
//     this check)
//  4. the Ed25519 signature verifies against the record's own key
//  5. if previous is non-nil, the new record's version is strictly greater
//
// Step 3 is what stops a peer from storing a validly-signed record of its
// own under a storage key it doesn't hash to: without it, any node could
// plant its own record at an arbitrary key in another publisher's namespace.
//
// The first failing check wins; no partial results are returned.
func Validate(rec *record.Record, expectedStorageKey *[record.StorageKeySize]byte, previous *record.Record) (Result, error) {
	if rec.Name == "" {
		return Result{}, ErrMissingName
	}
	if rec.Message == "" {
		return Result{}, ErrMissingMessage
	}
	if rec.Key == "" {
		return Result{}, ErrMissingKey
	}
	if rec.Signature == "" {
		return Result{}, ErrMissingSignature
	}
	if len(rec.Name) > record.MaxNameBytes {
		return Result{}, ErrNameTooLong
	}
	if len(rec.Message) > record.MaxMessageBytes {
		return Result{}, ErrMessageTooLong
	}

	fingerprint, err := rec.Fingerprint()
	if err != nil {
		return Result{}, err
	}
	recKey := record.RecordKey(rec.Name, fingerprint)

	if expectedStorageKey != nil {
		derived := record.StorageKey(recKey)
		if derived != *expectedStorageKey {
			return Result{}, fmt.Errorf("%w: got %x, want %x", ErrKeyMismatch, derived, *expectedStorageKey)
		}
	}

	if err := rec.VerifySignature(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	if previous != nil && previous.Version >= rec.Version {
		return Result{}, fmt.Errorf("%w: existing %d, new %d", ErrStaleVersion, previous.Version, rec.Version)
	}

	return Result{RecordKey: recKey, Fingerprint: fingerprint}, nil
}
