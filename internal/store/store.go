// Package store persists wrapped data keys by object id.
package store

import (
	"context"
	"errors"

	"github.com/kenneth/base64-type/internal/crypto"
)

var (
	// ErrNotFound is returned when no envelope is stored under an id.
	ErrNotFound = errors.New("envelope not found")

	// ErrInvalidID is returned for empty ids.
	ErrInvalidID = errors.New("envelope id is required")
)

// EnvelopeStore persists key envelopes by object id.
type EnvelopeStore interface {
	// Put stores env under id, replacing any previous envelope.
	Put(ctx context.Context, id string, env *crypto.KeyEnvelope) error

	// Get returns the envelope stored under id, or ErrNotFound.
	Get(ctx context.Context, id string) (*crypto.KeyEnvelope, error)

	// Delete removes the envelope stored under id. Deleting an unknown id is
	// not an error.
	Delete(ctx context.Context, id string) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

func checkPut(id string, env *crypto.KeyEnvelope) error {
	if id == "" {
		return ErrInvalidID
	}
	return env.Validate()
}

func cloneEnvelope(env *crypto.KeyEnvelope) *crypto.KeyEnvelope {
	c := *env
	c.Ciphertext = env.Ciphertext.Clone()
	return &c
}
