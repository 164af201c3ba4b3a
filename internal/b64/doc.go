// Package b64 provides byte slice types that serialize as base64 strings.
//
// Base64 uses the standard alphabet (RFC 4648 section 4) and URLBase64 uses the
// URL and filename safe alphabet (RFC 4648 section 5). Both always encode with
// canonical padding and both decode with indifferent padding: input is accepted
// with the canonical padding, with less padding than canonical, or with none at
// all. Payloads produced by third-party services (Azure and AWS request and
// response bodies in particular) are not consistent about trailing '=' and a
// strict decoder would reject recoverable data.
//
// Earlier releases decoded with the stdlib StdEncoding and URLEncoding, which
// reject any string whose padding is not exactly canonical. That behavior is
// gone; see Engine for the rules that replaced it.
//
// The types are defined as []byte, so indexing, slicing, range and append work
// on them directly. They implement json.Marshaler, json.Unmarshaler,
// encoding.TextMarshaler, encoding.TextUnmarshaler and the gopkg.in/yaml.v3
// Marshaler and Unmarshaler interfaces.
//
// http://www.rfc-editor.org/rfc/rfc4648#section-4
package b64
