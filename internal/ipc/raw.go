package ipc

import "github.com/vmihailenco/msgpack/v5"

// RawValue defers decoding of a message field's payload until the
// handler knows what type to decode into, the same role
// msgpack.RawMessage plays for encoding/json.RawMessage.
type RawValue = msgpack.RawMessage

// Encode marshals v into a RawValue suitable for a Message field.
func Encode(v interface{}) (RawValue, error) {
	if v == nil {
		return nil, nil
	}
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}
	return RawValue(b), nil
}

// Decode unmarshals a RawValue into out. A nil/empty raw value leaves out
// untouched and returns nil.
func Decode(raw RawValue, out interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return msgpack.Unmarshal(raw, out)
}
