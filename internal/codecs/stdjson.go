package codecs

import stdjson "encoding/json"

type StdJSONCodec struct{}

func NewStdJSON() *StdJSONCodec {
	return &StdJSONCodec{}
}

func (c *StdJSONCodec) Marshal(v any) ([]byte, error) {
	return stdjson.Marshal(v)
}

func (c *StdJSONCodec) Unmarshal(data []byte, v any) error {
	return stdjson.Unmarshal(data, v)
}
