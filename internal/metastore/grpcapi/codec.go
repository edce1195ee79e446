package grpcapi

import "encoding/json"

// codecName is registered as a gRPC codec subtype so envelope/reply
// values can travel over a grpc.ClientConn without a protoc-generated
// message type.
const codecName = "duskline-json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return codecName }
