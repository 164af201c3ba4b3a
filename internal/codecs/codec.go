package codecs

import "fmt"

// Codec marshals and unmarshals values to and from bytes.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Names accepted by ByName.
const (
	NameJSONIter = "jsoniter"
	NameStdJSON  = "json"
)

// ByName returns the codec registered under name. An empty name selects
// json-iterator.
func ByName(name string) (Codec, error) {
	switch name {
	case "", NameJSONIter:
		return NewJSONIter(), nil
	case NameStdJSON:
		return NewStdJSON(), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
