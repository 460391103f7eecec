package cache

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrDecode marks a stored payload that could not be turned back into audio.
// Callers treat it as a miss.
var ErrDecode = errors.New("cache payload decode failed")

// Encode converts raw audio into a form safe for text columns.
func Encode(audio []byte) string {
	return base64.StdEncoding.EncodeToString(audio)
}

// Decode reverses Encode.
func Decode(payload string) ([]byte, error) {
	audio, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return audio, nil
}
