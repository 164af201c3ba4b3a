package codecs_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/kenneth/base64-type/internal/b64"
	"github.com/kenneth/base64-type/internal/codecs"
)

type keyDoc struct {
	Name string         `json:"name"`
	Key  b64.Base64     `json:"key"`
	URL  b64.URLBase64  `json:"url"`
	Opt  *b64.Base64    `json:"opt,omitempty"`
	Tags map[string]int `json:"tags,omitempty"`
}

func allCodecs() map[string]codecs.Codec {
	return map[string]codecs.Codec{
		"jsoniter": codecs.NewJSONIter(),
		"json":     codecs.NewStdJSON(),
	}
}

func TestCodecs_Roundtrip(t *testing.T) {
	for name, c := range allCodecs() {
		t.Run(name, func(t *testing.T) {
			original := keyDoc{Name: "k1", Key: b64.Base64{2, 99}, URL: b64.URLBase64{0xfb, 0xff}}
			data, err := c.Marshal(original)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}

			var got keyDoc
			if err := c.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Name != original.Name || !got.Key.Equal(original.Key) || !got.URL.Equal(original.URL) {
				t.Errorf("got %+v, want %+v", got, original)
			}
		})
	}
}

func TestCodecs_MarshalUsesCanonicalPadding(t *testing.T) {
	for name, c := range allCodecs() {
		t.Run(name, func(t *testing.T) {
			data, err := c.Marshal(keyDoc{Name: "k", Key: b64.Base64{2, 99}, URL: b64.URLBase64{0xfb, 0xff}})
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			want := `{"name":"k","key":"AmM=","url":"-_8="}`
			if string(data) != want {
				t.Errorf("got %s, want %s", data, want)
			}
		})
	}
}

func TestCodecs_UnmarshalIndifferentPadding(t *testing.T) {
	for name, c := range allCodecs() {
		t.Run(name, func(t *testing.T) {
			var got keyDoc
			if err := c.Unmarshal([]byte(`{"name":"k","key":"AmM","url":"-_8"}`), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !got.Key.Equal(b64.Base64{2, 99}) {
				t.Errorf("key = %v", got.Key.Bytes())
			}
			if !got.URL.Equal(b64.URLBase64{0xfb, 0xff}) {
				t.Errorf("url = %v", got.URL.Bytes())
			}
		})
	}
}

func TestCodecs_UnmarshalRejectsWrongAlphabet(t *testing.T) {
	for name, c := range allCodecs() {
		t.Run(name, func(t *testing.T) {
			var got keyDoc
			err := c.Unmarshal([]byte(`{"name":"k","key":"-_8=","url":""}`), &got)
			if err == nil {
				t.Fatal("expected error for url-safe input in standard field")
			}
			if !strings.Contains(err.Error(), "invalid standard input") {
				t.Errorf("error %q does not describe the decode failure", err)
			}
		})
	}
}

func TestCodecs_UnmarshalRejectsNonString(t *testing.T) {
	for name, c := range allCodecs() {
		t.Run(name, func(t *testing.T) {
			var got keyDoc
			if err := c.Unmarshal([]byte(`{"name":"k","key":42,"url":""}`), &got); err == nil {
				t.Fatal("expected error for numeric key")
			}
		})
	}
}

func TestCodecs_OptionalPointerField(t *testing.T) {
	for name, c := range allCodecs() {
		t.Run(name, func(t *testing.T) {
			var got keyDoc
			if err := c.Unmarshal([]byte(`{"name":"k","key":"","url":"","opt":null}`), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Opt != nil {
				t.Errorf("opt = %v, want nil", got.Opt)
			}
		})
	}
}

func TestStdJSON_ErrorWrapsInvalidData(t *testing.T) {
	var got keyDoc
	err := codecs.NewStdJSON().Unmarshal([]byte(`{"name":"k","key":"A===","url":""}`), &got)
	if !errors.Is(err, b64.ErrInvalidData) {
		t.Fatalf("error %v does not wrap ErrInvalidData", err)
	}
}

func TestJSONIter_ErrorKeepsDecodeMessage(t *testing.T) {
	// json-iterator flattens unmarshaler errors into its own error value, so
	// only the message identifies the failure.
	for _, doc := range []string{
		`{"name":"k","key":"A===","url":""}`,
		`{"name":"k","key":"","url":7}`,
	} {
		var got keyDoc
		err := codecs.NewJSONIter().Unmarshal([]byte(doc), &got)
		if err == nil {
			t.Fatalf("expected error for %s", doc)
		}
		if !strings.Contains(err.Error(), "base64: invalid") {
			t.Errorf("error %q does not carry the decode failure", err)
		}
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", codecs.NameJSONIter, codecs.NameStdJSON} {
		c, err := codecs.ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		if c == nil {
			t.Fatalf("ByName(%q) returned nil codec", name)
		}
	}

	if _, err := codecs.ByName("gob"); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}
