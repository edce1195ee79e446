package grpcapi

import "encoding/json"

// codecName mirrors internal/metastore/grpcapi's approach: register a
// JSON codec subtype so envelope/reply values travel over a
// grpc.ClientConn without protoc-generated message types.
const codecName = "duskline-indexerd-json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return codecName }
