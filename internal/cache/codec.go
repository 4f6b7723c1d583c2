package cache

import (
	"encoding/json"
	"fmt"
)

// encodeValue serializes a value to JSON, enforcing the maximum size.
// maxBytes <= 0 disables the size check.
func encodeValue(v any, maxBytes int) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode cache value: %w", err)
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrValueTooLarge, len(data), maxBytes)
	}
	return data, nil
}

// decodeValue deserializes JSON into dest.
func decodeValue(data []byte, dest any) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode cache value: %w", err)
	}
	return nil
}
