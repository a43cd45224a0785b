package proto

import (
	"encoding/json"
	"errors"
)

// Envelope is the generic form of one inbound frame. Payload fields are kept
// opaque; their shape depends on Type and is interpreted by the dispatcher.
type Envelope struct {
	Type        string
	Callback    int64
	HasCallback bool
	Room        string
	ClientID    string
	Err         error
	Message     Value
	Data        Value

	// Fields holds every top-level field of the frame as raw JSON.
	Fields map[string]json.RawMessage
}

// Encode serializes an outbound command.
func Encode(cmd any) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, &EncodingError{Err: err}
	}
	return data, nil
}

// Decode parses an inbound frame. Fields with an unexpected JSON type are
// treated as absent.
func Decode(data []byte) (*Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &DecodingError{Err: err}
	}
	if fields == nil {
		return nil, &DecodingError{Err: errors.New("frame is not an object")}
	}

	env := &Envelope{Fields: fields}
	env.Type = stringField(fields, "type")
	env.Room = stringField(fields, "room")
	env.ClientID = stringField(fields, "client_id")

	if raw, ok := fields["callback"]; ok {
		var id *int64
		if err := json.Unmarshal(raw, &id); err == nil && id != nil {
			env.Callback = *id
			env.HasCallback = true
		}
	}

	if raw, ok := fields["error"]; ok {
		if msg, present := errorText(raw); present {
			env.Err = &ProtocolError{Message: msg}
		}
	}

	if raw, ok := fields["message"]; ok {
		env.Message = RawValue(raw)
	}
	if raw, ok := fields["data"]; ok {
		env.Data = RawValue(raw)
	}

	return env, nil
}

// Request is a client command as read by the service side.
type Request struct {
	Type       string `json:"type"`
	Channel    string `json:"channel,omitempty"`
	ClientData Value  `json:"client_data,omitzero"`
	Token      string `json:"token,omitempty"`
	Room       string `json:"room,omitempty"`
	Message    Value  `json:"message,omitzero"`
	Callback   int64  `json:"callback,omitempty"`
}

// DecodeRequest parses a client command frame.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &DecodingError{Err: err}
	}
	return &req, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil || s == nil {
		return ""
	}
	return *s
}

func errorText(raw json.RawMessage) (string, bool) {
	v := RawValue(raw)
	if v.IsZero() {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", false
		}
		return s, true
	}
	return string(raw), true
}
