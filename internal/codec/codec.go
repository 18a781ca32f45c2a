// Package codec serializes cached values to bytes and back.
package codec

import "fmt"

const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
	NameCBOR    = "cbor"
)

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// New returns the codec registered under name. An empty name selects JSON.
func New[V any](name string) (Codec[V], error) {
	switch name {
	case "", NameJSON:
		return JSON[V]{}, nil
	case NameMsgpack:
		return Msgpack[V]{}, nil
	case NameCBOR:
		return NewCBOR[V]()
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
