package b64

import (
	"encoding/base64"
	"errors"
	"strings"
)

// Alphabet selects the 64-symbol table used by an Engine.
type Alphabet int

const (
	// Standard is the RFC 4648 alphabet ending in '+' and '/'.
	Standard Alphabet = iota
	// URLSafe is the RFC 4648 alphabet ending in '-' and '_'.
	URLSafe
)

func (a Alphabet) String() string {
	switch a {
	case Standard:
		return "standard"
	case URLSafe:
		return "url-safe"
	default:
		return "unknown"
	}
}

// Engine encodes with canonical padding and decodes with indifferent padding.
//
// Decode rules:
//   - '=' may only appear as a trailing run; anywhere else it is rejected.
//   - the trailing run may hold up to the canonical amount of padding
//     (none, one or two characters) and no more.
//   - the unpadded length must not leave a single dangling symbol
//     (length mod 4 == 1).
//   - CR and LF are illegal characters, not ignored whitespace.
//   - the unused bits of the final symbol must be zero.
//
// The empty string decodes to an empty, non-nil slice.
type Engine struct {
	alphabet Alphabet
	padded   *base64.Encoding
	raw      *base64.Encoding
	symbols  [256]bool
}

const (
	standardSymbols = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	urlSafeSymbols  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
)

var (
	// StandardIndifferentPad is the engine used by Base64.
	StandardIndifferentPad = newEngine(Standard, standardSymbols, base64.StdEncoding)

	// URLSafeIndifferentPad is the engine used by URLBase64.
	URLSafeIndifferentPad = newEngine(URLSafe, urlSafeSymbols, base64.URLEncoding)
)

func newEngine(a Alphabet, symbols string, enc *base64.Encoding) *Engine {
	e := &Engine{
		alphabet: a,
		padded:   enc,
		raw:      enc.WithPadding(base64.NoPadding).Strict(),
	}
	for i := 0; i < len(symbols); i++ {
		e.symbols[symbols[i]] = true
	}
	return e
}

// Alphabet returns the alphabet of the engine.
func (e *Engine) Alphabet() Alphabet {
	return e.alphabet
}

// Encode returns the canonical padded encoding of src.
func (e *Engine) Encode(src []byte) string {
	return e.padded.EncodeToString(src)
}

// AppendEncode appends the canonical padded encoding of src to dst.
func (e *Engine) AppendEncode(dst, src []byte) []byte {
	return e.padded.AppendEncode(dst, src)
}

// EncodedLen returns the length in bytes of the encoding of n source bytes.
func (e *Engine) EncodedLen(n int) int {
	return e.padded.EncodedLen(n)
}

// Decode returns the bytes represented by s.
func (e *Engine) Decode(s string) ([]byte, error) {
	body := strings.TrimRight(s, "=")
	pad := len(s) - len(body)

	for i := 0; i < len(body); i++ {
		switch c := body[i]; {
		case e.symbols[c]:
		case c == '=':
			return nil, e.errorAt(i, "padding before the end of input")
		case c == '\r' || c == '\n':
			return nil, e.errorAt(i, "illegal character")
		default:
			return nil, e.errorAt(i, "illegal symbol")
		}
	}

	rem := len(body) % 4
	if rem == 1 {
		return nil, e.errorAt(-1, "invalid length")
	}
	if limit := canonicalPadding(rem); pad > limit {
		return nil, e.errorAt(len(body)+limit, "excess padding")
	}

	dst := make([]byte, e.raw.DecodedLen(len(body)))
	n, err := e.raw.Decode(dst, []byte(body))
	if err != nil {
		var corrupt base64.CorruptInputError
		if errors.As(err, &corrupt) {
			return nil, e.errorAt(int(corrupt), "non-zero trailing bits")
		}
		return nil, e.errorAt(-1, err.Error())
	}
	return dst[:n], nil
}

func (e *Engine) errorAt(offset int, reason string) *DecodeError {
	return &DecodeError{Alphabet: e.alphabet, Offset: offset, Reason: reason}
}

// canonicalPadding returns how many '=' a canonical encoding appends to an
// unpadded body whose length mod 4 is rem.
func canonicalPadding(rem int) int {
	switch rem {
	case 2:
		return 2
	case 3:
		return 1
	default:
		return 0
	}
}
