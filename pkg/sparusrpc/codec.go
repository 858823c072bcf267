package sparusrpc

import (
	"fmt"
)

// Codec is a gRPC codec for Message types. It reports the "proto" content
// subtype so it interoperates with protoc-generated peers. It is passed
// explicitly with grpc.ForceCodec and grpc.ForceServerCodec rather than
// registered, leaving the global proto codec untouched.
type Codec struct{}

// Name returns the content subtype.
func (Codec) Name() string { return "proto" }

// Marshal encodes v, which must implement Message.
func (Codec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("sparusrpc: cannot marshal %T", v)
	}
	return m.Marshal()
}

// Unmarshal decodes data into v, which must implement Message.
func (Codec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("sparusrpc: cannot unmarshal into %T", v)
	}
	return m.Unmarshal(data)
}
