package crypto

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/kenneth/base64-type/internal/b64"
)

// DataKeySize is the size of a generated data encryption key (AES-256).
const DataKeySize = 32

// DataKey is a freshly generated DEK together with its wrapped form.
type DataKey struct {
	Plaintext b64.Base64
	Envelope  *KeyEnvelope
}

// GenerateDataKey returns DataKeySize random bytes.
func GenerateDataKey() (b64.Base64, error) {
	key := make(b64.Base64, DataKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}
	return key, nil
}

// NewDataKey generates a DEK and wraps it with km.
func NewDataKey(ctx context.Context, km KeyManager, metadata map[string]string) (*DataKey, error) {
	plaintext, err := GenerateDataKey()
	if err != nil {
		return nil, err
	}
	env, err := km.WrapKey(ctx, plaintext, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap data key: %w", err)
	}
	return &DataKey{Plaintext: plaintext, Envelope: env}, nil
}

// OpenDataKey unwraps env and checks the result is a usable AES-256 key.
func OpenDataKey(ctx context.Context, km KeyManager, env *KeyEnvelope, metadata map[string]string) ([32]byte, error) {
	plaintext, err := km.UnwrapKey(ctx, env, metadata)
	if err != nil {
		return [32]byte{}, err
	}
	return b64.Base64(plaintext).Array32()
}
