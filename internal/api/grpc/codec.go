package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// Сообщения сервиса передаются в JSON (content-subtype "json")
type JsonCodec struct{}

func (JsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (JsonCodec) Name() string {
	return "json"
}

func init() {
	encoding.RegisterCodec(JsonCodec{})
}
