package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Value is an opaque JSON payload. User messages and member data travel as
// Values; callers decode them into their own types.
type Value struct {
	raw json.RawMessage
}

// NewValue encodes v into a Value.
func NewValue(v any) (Value, error) {
	if val, ok := v.(Value); ok {
		return val, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Value{}, &EncodingError{Err: err}
	}
	return Value{raw: data}, nil
}

// RawValue wraps already encoded JSON without validating it.
func RawValue(data []byte) Value {
	if len(data) == 0 {
		return Value{}
	}
	return Value{raw: append(json.RawMessage(nil), data...)}
}

// Decode unmarshals the payload into dst.
func (v Value) Decode(dst any) error {
	if v.IsZero() {
		return fmt.Errorf("decode value: empty payload")
	}
	return json.Unmarshal(v.raw, dst)
}

// Bytes returns the raw JSON.
func (v Value) Bytes() []byte {
	return v.raw
}

// IsZero reports whether the payload is absent or JSON null.
func (v Value) IsZero() bool {
	return len(v.raw) == 0 || bytes.Equal(bytes.TrimSpace(v.raw), []byte("null"))
}

// String returns a decoded JSON string, or the raw JSON text for any other
// payload.
func (v Value) String() string {
	if v.IsZero() {
		return ""
	}
	var s string
	if err := json.Unmarshal(v.raw, &s); err == nil {
		return s
	}
	return string(v.raw)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if len(v.raw) == 0 {
		return []byte("null"), nil
	}
	return v.raw, nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	v.raw = append(v.raw[:0], data...)
	return nil
}
