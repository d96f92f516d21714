// Package codec encodes compound record fields (slices, maps, nested structs,
// protobuf messages) to bytes. Scalars never go through a codec; the record
// package formats them directly.
package codec

import "fmt"

// Codec encodes/decodes a field value to []byte for storage.
// Decode receives a non-nil pointer to the destination.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte, v any) error
}

var registry = map[string]Codec{
	"json":    JSON{},
	"msgpack": Msgpack{},
	"cbor":    MustCBOR(true),
	"proto":   Protobuf{},
}

// ByName returns the codec registered for a struct tag option
// (json, msgpack, cbor, proto).
func ByName(name string) (Codec, error) {
	c, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
	return c, nil
}
