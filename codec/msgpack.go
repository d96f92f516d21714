package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack is a Codec that serializes values using vmihailenco/msgpack/v5.
// The zero value is ready to use.
//
// Use `msgpack:"fieldName"` tags on nested structs if you need explicit control.
type Msgpack struct{}

func (Msgpack) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}
func (Msgpack) Decode(b []byte, v any) error {
	return msgpack.Unmarshal(b, v)
}
