package shardctlpb

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec replaces grpc-go's built-in "proto" codec. The messages in this
// package are plain structs, not generated proto.Message implementations, so
// the default codec (which type-asserts to proto.Message) can't carry them.
// Registering under the same name ("proto") makes grpc use this codec for
// every call on this service without callers having to opt in explicitly.
type jsonCodec struct{}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

func (jsonCodec) Name() string { return "proto" }

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
