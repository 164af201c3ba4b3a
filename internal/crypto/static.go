package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/kenneth/base64-type/internal/b64"
	"golang.org/x/crypto/hkdf"
)

const (
	// ProviderStatic identifies envelopes produced by StaticKeyManager.
	ProviderStatic = "static"

	// MasterKeySize is the required length of a static master key.
	MasterKeySize = 32

	wrapInfoPrefix = "keywrap/static/v"
)

// StaticKey is one versioned master key.
type StaticKey struct {
	Version int
	Key     b64.Base64
}

// StaticKeyOptions configures a StaticKeyManager.
type StaticKeyOptions struct {
	Keys          []StaticKey
	ActiveVersion int
	// Provider overrides ProviderStatic in envelopes.
	Provider string
}

// StaticKeyManager wraps DEKs with AES-256-GCM under wrapping keys derived by
// HKDF-SHA256 from versioned master keys. Older versions stay available for
// unwrapping after the active version is rotated.
//
// Wrapped key layout: nonce (12 bytes) || ciphertext || tag (16 bytes).
type StaticKeyManager struct {
	provider string
	active   int
	aeads    map[int]cipher.AEAD
	closed   atomic.Bool
}

var _ KeyManager = (*StaticKeyManager)(nil)

// NewStaticKeyManager validates the master keys and derives one wrapping key
// per version.
func NewStaticKeyManager(opts StaticKeyOptions) (*StaticKeyManager, error) {
	if len(opts.Keys) == 0 {
		return nil, fmt.Errorf("at least one master key is required")
	}

	provider := opts.Provider
	if provider == "" {
		provider = ProviderStatic
	}

	aeads := make(map[int]cipher.AEAD, len(opts.Keys))
	for _, k := range opts.Keys {
		if k.Version <= 0 {
			return nil, fmt.Errorf("master key version must be positive, got %d", k.Version)
		}
		if _, dup := aeads[k.Version]; dup {
			return nil, fmt.Errorf("duplicate master key version %d", k.Version)
		}
		master, err := k.Key.Array32()
		if err != nil {
			return nil, fmt.Errorf("master key version %d: %w", k.Version, err)
		}
		aead, err := deriveWrappingAEAD(master, k.Version)
		if err != nil {
			return nil, fmt.Errorf("master key version %d: %w", k.Version, err)
		}
		aeads[k.Version] = aead
	}

	if _, ok := aeads[opts.ActiveVersion]; !ok {
		return nil, fmt.Errorf("active version %d: %w", opts.ActiveVersion, ErrUnknownKeyVersion)
	}

	return &StaticKeyManager{
		provider: provider,
		active:   opts.ActiveVersion,
		aeads:    aeads,
	}, nil
}

func deriveWrappingAEAD(master [32]byte, version int) (cipher.AEAD, error) {
	info := []byte(fmt.Sprintf("%s%d", wrapInfoPrefix, version))
	kdf := hkdf.New(sha256.New, master[:], nil, info)

	wrappingKey := make([]byte, MasterKeySize)
	if _, err := io.ReadFull(kdf, wrappingKey); err != nil {
		return nil, fmt.Errorf("failed to derive wrapping key: %w", err)
	}

	block, err := aes.NewCipher(wrappingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

// Provider implements KeyManager.
func (m *StaticKeyManager) Provider() string {
	return m.provider
}

// KeyID returns the identifier recorded in envelopes wrapped under version.
func (m *StaticKeyManager) KeyID(version int) string {
	return fmt.Sprintf("%s-v%d", m.provider, version)
}

// WrapKey implements KeyManager.
func (m *StaticKeyManager) WrapKey(ctx context.Context, plaintext []byte, metadata map[string]string) (*KeyEnvelope, error) {
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("plaintext key is empty")
	}
	aad, err := associatedData(metadata)
	if err != nil {
		return nil, err
	}

	aead := m.aeads[m.active]
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return &KeyEnvelope{
		KeyID:      m.KeyID(m.active),
		KeyVersion: m.active,
		Provider:   m.provider,
		Ciphertext: aead.Seal(nonce, nonce, plaintext, aad),
	}, nil
}

// UnwrapKey implements KeyManager. The version recorded in the envelope
// selects the wrapping key; a non-empty KeyID must agree with it.
func (m *StaticKeyManager) UnwrapKey(ctx context.Context, envelope *KeyEnvelope, metadata map[string]string) ([]byte, error) {
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	if err := envelope.Validate(); err != nil {
		return nil, err
	}
	if envelope.Provider != m.provider {
		return nil, fmt.Errorf("envelope provider %q does not match %q", envelope.Provider, m.provider)
	}

	aead, ok := m.aeads[envelope.KeyVersion]
	if !ok {
		return nil, fmt.Errorf("key version %d: %w", envelope.KeyVersion, ErrUnknownKeyVersion)
	}
	if envelope.KeyID != "" && envelope.KeyID != m.KeyID(envelope.KeyVersion) {
		return nil, fmt.Errorf("key id %q does not match version %d", envelope.KeyID, envelope.KeyVersion)
	}

	aad, err := associatedData(metadata)
	if err != nil {
		return nil, err
	}

	wrapped := envelope.Ciphertext
	if len(wrapped) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("wrapped key too short: %d bytes", len(wrapped))
	}
	nonce, sealed := wrapped[:aead.NonceSize()], wrapped[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap key: %w", err)
	}
	return plaintext, nil
}

// ActiveKeyVersion implements KeyManager.
func (m *StaticKeyManager) ActiveKeyVersion(ctx context.Context) (int, error) {
	if err := m.check(ctx); err != nil {
		return 0, err
	}
	return m.active, nil
}

// HealthCheck wraps and unwraps a throwaway key with the active version.
func (m *StaticKeyManager) HealthCheck(ctx context.Context) error {
	probe := make([]byte, DataKeySize)
	env, err := m.WrapKey(ctx, probe, map[string]string{"purpose": "health"})
	if err != nil {
		return fmt.Errorf("health check wrap failed: %w", err)
	}
	if _, err := m.UnwrapKey(ctx, env, map[string]string{"purpose": "health"}); err != nil {
		return fmt.Errorf("health check unwrap failed: %w", err)
	}
	return nil
}

// Close implements KeyManager.
func (m *StaticKeyManager) Close(_ context.Context) error {
	m.closed.Store(true)
	return nil
}

func (m *StaticKeyManager) check(ctx context.Context) error {
	if m.closed.Load() {
		return ErrKeyManagerClosed
	}
	return ctx.Err()
}
