package b64

import (
	"errors"
	"fmt"
)

// ErrInvalidData is matched by every decode failure, including failures raised
// while deserializing JSON, text or YAML.
var ErrInvalidData = errors.New("base64: invalid data")

// DecodeError reports input that is not valid base64 for an alphabet.
type DecodeError struct {
	Alphabet Alphabet
	// Offset of the offending byte in the input, or -1 when the input as a
	// whole is malformed.
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("base64: invalid %s input: %s", e.Alphabet, e.Reason)
	}
	return fmt.Sprintf("base64: invalid %s input at offset %d: %s", e.Alphabet, e.Offset, e.Reason)
}

// Is reports whether target is ErrInvalidData.
func (e *DecodeError) Is(target error) bool {
	return target == ErrInvalidData
}

// LengthError is returned by fixed-length conversions when the value does not
// hold exactly Expected bytes.
type LengthError struct {
	Expected int
	Actual   int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("base64 was not %d bytes of data: got %d", e.Expected, e.Actual)
}
