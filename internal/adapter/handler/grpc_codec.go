package handler

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec lets the trade service run over gRPC with plain Go structs as
// messages. Clients select it with grpc.CallContentSubtype(jsonCodecName).
type jsonCodec struct{}

const jsonCodecName = "json"

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
