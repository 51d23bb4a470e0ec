package cache

import (
	"fmt"

	"github.com/bytedance/sonic"

	experrors "github.com/mirkobrombin/go-expirable/v1/errors"
)

// Codec converts between cached values and their byte representation.
// The cache uses it to decode the buffered output of an ingest into T.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec implements Codec using bytedance/sonic.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return sonic.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return sonic.Unmarshal(data, v) }

// ByteCodec implements Codec for raw bytes. It is the default codec: ingested
// streams are stored as []byte, string or any without further decoding.
type ByteCodec struct{}

func (ByteCodec) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	}
	return nil, fmt.Errorf("ByteCodec: marshal %T: %w", v, experrors.ErrUnsupportedTarget)
}

func (ByteCodec) Unmarshal(data []byte, v any) error {
	switch ptr := v.(type) {
	case *[]byte:
		*ptr = data
	case *string:
		*ptr = string(data)
	case *any:
		*ptr = data
	default:
		return fmt.Errorf("ByteCodec: unmarshal into %T: %w", v, experrors.ErrUnsupportedTarget)
	}
	return nil
}
