package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Protobuf encodes proto.Message fields with deterministic marshaling so the
// same message always yields the same record value.
type Protobuf struct{}

func (Protobuf) Encode(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec: %T is not a proto.Message", v)
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(m)
}

func (Protobuf) Decode(b []byte, v any) error {
	m, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("codec: %T is not a proto.Message", v)
	}
	return proto.Unmarshal(b, m)
}
