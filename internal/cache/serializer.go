package cache

import (
	"encoding/json"
	"fmt"

	"github.com/LavishGent/tiercache/internal/types"
)

// JSONSerializer implements Serializer using JSON encoding. Byte slices pass
// through untouched so raw payloads are stored exactly as given.
type JSONSerializer struct{}

// NewJSONSerializer creates a new JSON serializer.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

// Marshal serializes a value to JSON bytes.
func (s *JSONSerializer) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return append([]byte(nil), b...), nil
	case json.RawMessage:
		return append([]byte(nil), b...), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSerializationFailed, err)
	}
	return data, nil
}

// Unmarshal deserializes JSON bytes into the destination. A *[]byte
// destination receives a copy of the raw bytes.
func (s *JSONSerializer) Unmarshal(data []byte, dest any) error {
	switch d := dest.(type) {
	case *[]byte:
		*d = append([]byte(nil), data...)
		return nil
	case *json.RawMessage:
		*d = append(json.RawMessage(nil), data...)
		return nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %w", types.ErrSerializationFailed, err)
	}
	return nil
}

var _ types.Serializer = (*JSONSerializer)(nil)
