// Package rpc carries inter-node cluster control calls (join, add-voter,
// heartbeat push) over google.golang.org/grpc without a protoc-generated
// stub: messages are plain Go structs marshaled through a JSON
// encoding.Codec, and the service is registered by hand via grpc.ServiceDesc.
package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is registered with grpc's encoding registry and selected by
// setting grpc.CallContentSubtype/grpc.ForceServerCodec to this codec.
const CodecName = "json"

// jsonCodec implements encoding.Codec by marshaling every request/response
// message as JSON instead of protobuf wire bytes.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json codec marshal: %w", err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json codec unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
