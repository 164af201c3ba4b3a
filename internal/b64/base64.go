package b64

import (
	"bytes"
	"io"

	"gopkg.in/yaml.v3"
)

// Base64 is a byte slice that serializes as standard-alphabet base64 with
// padding, and decodes with StandardIndifferentPad.
type Base64 []byte

// DecodeBase64 decodes s with StandardIndifferentPad.
func DecodeBase64(s string) (Base64, error) {
	b, err := StandardIndifferentPad.Decode(s)
	if err != nil {
		return nil, err
	}
	return Base64(b), nil
}

// ParseBase64 is DecodeBase64; it is the inverse of Base64.String.
func ParseBase64(s string) (Base64, error) {
	return DecodeBase64(s)
}

// MustParseBase64 is like ParseBase64 but panics on error. It is meant for
// constants in tests and package-level variables.
func MustParseBase64(s string) Base64 {
	b, err := ParseBase64(s)
	if err != nil {
		panic(err)
	}
	return b
}

// FromBytes returns a Base64 holding a copy of p. Use a conversion,
// Base64(p), to take ownership of p without copying.
func FromBytes(p []byte) Base64 {
	return Base64(bytes.Clone(p))
}

// Encode returns the canonical padded standard-alphabet encoding.
func (b Base64) Encode() string {
	return StandardIndifferentPad.Encode(b)
}

// String returns b.Encode().
func (b Base64) String() string {
	return b.Encode()
}

// Bytes returns the underlying slice. Writes through it change b.
func (b Base64) Bytes() []byte {
	return b
}

// Len returns the number of raw bytes.
func (b Base64) Len() int {
	return len(b)
}

// Equal reports whether b and other hold the same bytes. A nil and an empty
// value are equal.
func (b Base64) Equal(other Base64) bool {
	return bytes.Equal(b, other)
}

// Clone returns a copy of b that shares no memory with it.
func (b Base64) Clone() Base64 {
	return bytes.Clone(b)
}

// WriteTo writes the raw bytes to w.
func (b Base64) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b)
	return int64(n), err
}

// FixedLength returns a copy of the bytes if there are exactly n of them.
func (b Base64) FixedLength(n int) ([]byte, error) {
	return fixedLength(b, n)
}

// Array32 returns the bytes as a 32-byte array, the size of an AES-256 or
// ChaCha20 key.
func (b Base64) Array32() ([32]byte, error) {
	return array32(b)
}

// URLSafe returns the same bytes as a URLBase64 without copying.
func (b Base64) URLSafe() URLBase64 {
	return URLBase64(b)
}

// MarshalJSON implements json.Marshaler.
func (b Base64) MarshalJSON() ([]byte, error) {
	return appendQuoted(StandardIndifferentPad, b), nil
}

// UnmarshalJSON implements json.Unmarshaler. Only JSON strings are accepted.
// Use *Base64 for fields that may be null.
func (b *Base64) UnmarshalJSON(data []byte) error {
	v, err := decodeJSON(StandardIndifferentPad, data)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (b Base64) MarshalText() ([]byte, error) {
	return StandardIndifferentPad.AppendEncode(nil, b), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Base64) UnmarshalText(text []byte) error {
	v, err := StandardIndifferentPad.Decode(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (b Base64) MarshalYAML() (interface{}, error) {
	return b.Encode(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler. Only string scalars are accepted.
func (b *Base64) UnmarshalYAML(node *yaml.Node) error {
	v, err := decodeYAML(StandardIndifferentPad, node)
	if err != nil {
		return err
	}
	*b = v
	return nil
}
