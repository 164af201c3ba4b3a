package crypto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kenneth/base64-type/internal/b64"
)

var (
	// ErrUnknownKeyVersion is returned when an envelope names a wrapping key
	// version the manager does not hold.
	ErrUnknownKeyVersion = errors.New("unknown key version")

	// ErrKeyManagerClosed is returned by every operation after Close.
	ErrKeyManagerClosed = errors.New("key manager closed")
)

// KeyManager abstracts the services that wrap and unwrap per-object data
// encryption keys (DEKs).
//
// Implementations must never expose plaintext master keys.
//
// Current implementations:
//   - static: master keys supplied through configuration, AES-256-GCM wrapping
type KeyManager interface {
	// Provider returns a short identifier (e.g. "static") used for diagnostics and metadata.
	Provider() string

	// WrapKey encrypts the provided plaintext DEK and returns an envelope suitable for
	// persisting alongside the object it protects. metadata is bound to the
	// envelope and must be presented again to UnwrapKey.
	WrapKey(ctx context.Context, plaintext []byte, metadata map[string]string) (*KeyEnvelope, error)

	// UnwrapKey decrypts the ciphertext contained in the given envelope and returns the plaintext DEK.
	UnwrapKey(ctx context.Context, envelope *KeyEnvelope, metadata map[string]string) ([]byte, error)

	// ActiveKeyVersion returns the version identifier of the primary wrapping key.
	ActiveKeyVersion(ctx context.Context) (int, error)

	// HealthCheck verifies that the key manager is operational.
	HealthCheck(ctx context.Context) error

	// Close releases any underlying resources.
	Close(ctx context.Context) error
}

// KeyEnvelope captures the information required to unwrap a DEK. It is the
// JSON document stored next to encrypted objects; Ciphertext travels as a
// standard base64 string and is accepted with or without padding.
type KeyEnvelope struct {
	KeyID      string     `json:"key_id,omitempty"`
	KeyVersion int        `json:"key_version"`
	Provider   string     `json:"provider"`
	Ciphertext b64.Base64 `json:"ciphertext"`
}

// Validate checks that the envelope is complete enough to attempt an unwrap.
func (e *KeyEnvelope) Validate() error {
	if e == nil {
		return fmt.Errorf("envelope is nil")
	}
	if e.KeyVersion <= 0 {
		return fmt.Errorf("invalid key version %d", e.KeyVersion)
	}
	if e.Provider == "" {
		return fmt.Errorf("envelope provider is empty")
	}
	if len(e.Ciphertext) == 0 {
		return fmt.Errorf("envelope ciphertext is empty")
	}
	return nil
}

// associatedData serializes metadata deterministically so it can be
// authenticated with the wrapped key. encoding/json sorts map keys.
func associatedData(metadata map[string]string) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode key metadata: %w", err)
	}
	return data, nil
}
