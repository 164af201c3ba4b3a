package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/kenneth/base64-type/internal/b64"
	"github.com/kenneth/base64-type/internal/crypto"
	"github.com/kenneth/base64-type/internal/store"
)

// Object metadata keys (sent as x-amz-meta-*).
const (
	MetaWrappedKey  = "encryption-wrapped-key"
	MetaKeyVersion  = "encryption-key-version"
	MetaKeyID       = "encryption-key-id"
	MetaKeyProvider = "encryption-key-provider"
)

// EnvelopeStore keeps each envelope as the user metadata of an empty object
// named prefix+id. The wrapped key travels URL-safe encoded so it is valid in
// an HTTP header.
type EnvelopeStore struct {
	api    ObjectAPI
	bucket string
	prefix string
}

var _ store.EnvelopeStore = (*EnvelopeStore)(nil)

func NewEnvelopeStore(api ObjectAPI, bucket, prefix string) (*EnvelopeStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &EnvelopeStore{api: api, bucket: bucket, prefix: prefix}, nil
}

func (s *EnvelopeStore) key(id string) string {
	return s.prefix + id
}

func (s *EnvelopeStore) Put(ctx context.Context, id string, env *crypto.KeyEnvelope) error {
	if id == "" {
		return store.ErrInvalidID
	}
	if err := env.Validate(); err != nil {
		return err
	}

	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(id)),
		Body:          strings.NewReader(""),
		ContentLength: aws.Int64(0),
		Metadata:      EnvelopeToMetadata(env),
	})
	if err != nil {
		return fmt.Errorf("failed to put envelope object %s/%s: %w", s.bucket, s.key(id), err)
	}
	return nil
}

func (s *EnvelopeStore) Get(ctx context.Context, id string) (*crypto.KeyEnvelope, error) {
	if id == "" {
		return nil, store.ErrInvalidID
	}

	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to head envelope object %s/%s: %w", s.bucket, s.key(id), err)
	}

	env, err := EnvelopeFromMetadata(out.Metadata)
	if err != nil {
		return nil, fmt.Errorf("envelope object %s/%s: %w", s.bucket, s.key(id), err)
	}
	return env, nil
}

func (s *EnvelopeStore) Delete(ctx context.Context, id string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to delete envelope object %s/%s: %w", s.bucket, s.key(id), err)
	}
	return nil
}

// Ping checks that the bucket exists and is reachable.
func (s *EnvelopeStore) Ping(ctx context.Context) error {
	if _, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("failed to head bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *EnvelopeStore) Close() error { return nil }

// EnvelopeToMetadata maps an envelope to S3 user metadata.
func EnvelopeToMetadata(env *crypto.KeyEnvelope) map[string]string {
	meta := map[string]string{
		MetaWrappedKey:  env.Ciphertext.URLSafe().Encode(),
		MetaKeyVersion:  strconv.Itoa(env.KeyVersion),
		MetaKeyProvider: env.Provider,
	}
	if env.KeyID != "" {
		meta[MetaKeyID] = env.KeyID
	}
	return meta
}

// EnvelopeFromMetadata rebuilds an envelope from S3 user metadata. Keys are
// matched case-insensitively and the wrapped key may be unpadded.
func EnvelopeFromMetadata(metadata map[string]string) (*crypto.KeyEnvelope, error) {
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[strings.ToLower(k)] = v
	}

	wrapped, ok := meta[MetaWrappedKey]
	if !ok {
		return nil, fmt.Errorf("missing %s metadata", MetaWrappedKey)
	}
	ciphertext, err := b64.DecodeURLBase64(wrapped)
	if err != nil {
		return nil, fmt.Errorf("invalid %s metadata: %w", MetaWrappedKey, err)
	}

	version, err := strconv.Atoi(meta[MetaKeyVersion])
	if err != nil {
		return nil, fmt.Errorf("invalid %s metadata: %w", MetaKeyVersion, err)
	}

	env := &crypto.KeyEnvelope{
		KeyID:      meta[MetaKeyID],
		KeyVersion: version,
		Provider:   meta[MetaKeyProvider],
		Ciphertext: ciphertext.Standard(),
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

// IsNotFound reports whether err is S3's answer for a missing object.
func IsNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
