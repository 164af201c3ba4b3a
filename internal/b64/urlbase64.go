package b64

import (
	"bytes"
	"io"

	"gopkg.in/yaml.v3"
)

// URLBase64 is a byte slice that serializes as URL-safe base64 with padding,
// and decodes with URLSafeIndifferentPad. Azure Key Vault request and
// response bodies carry key material in this form, usually unpadded.
//
// The zero value is an empty payload and encodes to "".
type URLBase64 []byte

// DecodeURLBase64 decodes s with URLSafeIndifferentPad.
func DecodeURLBase64(s string) (URLBase64, error) {
	b, err := URLSafeIndifferentPad.Decode(s)
	if err != nil {
		return nil, err
	}
	return URLBase64(b), nil
}

// ParseURLBase64 is DecodeURLBase64; it is the inverse of URLBase64.String.
func ParseURLBase64(s string) (URLBase64, error) {
	return DecodeURLBase64(s)
}

// URLFromBytes returns a URLBase64 holding a copy of p.
func URLFromBytes(p []byte) URLBase64 {
	return URLBase64(bytes.Clone(p))
}

// Encode returns the canonical padded URL-safe encoding.
func (b URLBase64) Encode() string {
	return URLSafeIndifferentPad.Encode(b)
}

func (b URLBase64) String() string {
	return b.Encode()
}

// Bytes returns the underlying slice. Writes through it change b.
func (b URLBase64) Bytes() []byte {
	return b
}

func (b URLBase64) Len() int {
	return len(b)
}

// Equal reports whether b and other hold the same bytes.
func (b URLBase64) Equal(other URLBase64) bool {
	return bytes.Equal(b, other)
}

func (b URLBase64) Clone() URLBase64 {
	return bytes.Clone(b)
}

// WriteTo writes the raw bytes to w.
func (b URLBase64) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b)
	return int64(n), err
}

// FixedLength returns a copy of the bytes if there are exactly n of them.
func (b URLBase64) FixedLength(n int) ([]byte, error) {
	return fixedLength(b, n)
}

// Array32 returns the bytes as a 32-byte array.
func (b URLBase64) Array32() ([32]byte, error) {
	return array32(b)
}

// Standard returns the same bytes as a Base64 without copying.
func (b URLBase64) Standard() Base64 {
	return Base64(b)
}

func (b URLBase64) MarshalJSON() ([]byte, error) {
	return appendQuoted(URLSafeIndifferentPad, b), nil
}

func (b *URLBase64) UnmarshalJSON(data []byte) error {
	v, err := decodeJSON(URLSafeIndifferentPad, data)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func (b URLBase64) MarshalText() ([]byte, error) {
	return URLSafeIndifferentPad.AppendEncode(nil, b), nil
}

func (b *URLBase64) UnmarshalText(text []byte) error {
	v, err := URLSafeIndifferentPad.Decode(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func (b URLBase64) MarshalYAML() (interface{}, error) {
	return b.Encode(), nil
}

func (b *URLBase64) UnmarshalYAML(node *yaml.Node) error {
	v, err := decodeYAML(URLSafeIndifferentPad, node)
	if err != nil {
		return err
	}
	*b = v
	return nil
}
