package b64

// StandardFrom reinterprets the bytes of v as a Base64. Nothing is re-encoded
// or copied.
func StandardFrom(v URLBase64) Base64 {
	return Base64(v)
}

// URLSafeFrom reinterprets the bytes of v as a URLBase64.
func URLSafeFrom(v Base64) URLBase64 {
	return URLBase64(v)
}

func fixedLength(b []byte, n int) ([]byte, error) {
	if len(b) != n {
		return nil, &LengthError{Expected: n, Actual: len(b)}
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func array32(b []byte) ([32]byte, error) {
	if len(b) != 32 {
		return [32]byte{}, &LengthError{Expected: 32, Actual: len(b)}
	}
	return [32]byte(b), nil
}
