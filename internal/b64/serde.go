package b64

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// appendQuoted encodes src as a JSON string. Neither alphabet contains a
// character that needs escaping.
func appendQuoted(e *Engine, src []byte) []byte {
	buf := make([]byte, 0, e.EncodedLen(len(src))+2)
	buf = append(buf, '"')
	buf = e.AppendEncode(buf, src)
	return append(buf, '"')
}

// decodeJSON decodes a JSON string token. Every other token, null included,
// is rejected.
func decodeJSON(e *Engine, data []byte) ([]byte, error) {
	if len(data) == 0 || data[0] != '"' {
		return nil, fmt.Errorf("%w: expected %s base64 string, found %s", ErrInvalidData, e.alphabet, jsonKind(data))
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return e.Decode(s)
}

func jsonKind(data []byte) string {
	if len(data) == 0 {
		return "nothing"
	}
	switch data[0] {
	case 'n':
		return "null"
	case 't', 'f':
		return "boolean"
	case '[':
		return "array"
	case '{':
		return "object"
	default:
		return "number"
	}
}

// decodeYAML decodes a !!str scalar node.
func decodeYAML(e *Engine, node *yaml.Node) ([]byte, error) {
	if node.Kind != yaml.ScalarNode || node.ShortTag() != "!!str" {
		return nil, fmt.Errorf("%w: expected %s base64 string at line %d, found %s", ErrInvalidData, e.alphabet, node.Line, yamlKind(node))
	}
	return e.Decode(node.Value)
}

func yamlKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	default:
		return node.ShortTag()
	}
}
