package b64

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

// FuzzBase64RoundTrip checks that parse(to_string(b)) == b and that the JSON
// form round-trips for every byte sequence.
func FuzzBase64RoundTrip(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{2, 99})
	f.Add([]byte{0xfb, 0xff, 0xbf})
	f.Add(bytes.Repeat([]byte{0xff}, 33))

	f.Fuzz(func(t *testing.T, data []byte) {
		for _, e := range []*Engine{StandardIndifferentPad, URLSafeIndifferentPad} {
			encoded := e.Encode(data)
			decoded, err := e.Decode(encoded)
			if err != nil {
				t.Fatalf("%s: decode of canonical %q: %v", e.Alphabet(), encoded, err)
			}
			if !bytes.Equal(decoded, data) {
				t.Fatalf("%s: round trip mismatch: got %x, want %x", e.Alphabet(), decoded, data)
			}

			unpadded, err := e.Decode(strings.TrimRight(encoded, "="))
			if err != nil {
				t.Fatalf("%s: decode of unpadded %q: %v", e.Alphabet(), encoded, err)
			}
			if !bytes.Equal(unpadded, data) {
				t.Fatalf("%s: unpadded round trip mismatch", e.Alphabet())
			}
		}

		std := Base64(data)
		out, err := json.Marshal(std)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var back Base64
		if err := json.Unmarshal(out, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", out, err)
		}
		if !std.Equal(back) {
			t.Fatalf("json round trip mismatch for %x", data)
		}

		if !std.Equal(StandardFrom(URLSafeFrom(std))) {
			t.Fatalf("cross conversion changed bytes")
		}
	})
}

// FuzzDecode checks that any string the decoder accepts re-encodes to the
// same payload, and that decoding never panics.
func FuzzDecode(f *testing.F) {
	f.Add("AmM=")
	f.Add("AmM")
	f.Add("A=A=")
	f.Add("-_8")
	f.Add("")

	f.Fuzz(func(t *testing.T, s string) {
		for _, e := range []*Engine{StandardIndifferentPad, URLSafeIndifferentPad} {
			decoded, err := e.Decode(s)
			if err != nil {
				continue
			}
			if got := strings.TrimRight(e.Encode(decoded), "="); got != strings.TrimRight(s, "=") {
				t.Fatalf("%s: accepted %q but canonical form is %q", e.Alphabet(), s, e.Encode(decoded))
			}
		}
	})
}
