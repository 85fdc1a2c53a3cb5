package storage

import (
	"bytes"
	"encoding/gob"
	"time"
)

// Record is the capability contract of stored values. ID must be assigned
// once when the value is built and never change afterwards, otherwise
// Delete cannot find the record again.
type Record interface {
	ID() string
	// TTL returns the retention window, ok is false for permanent records.
	TTL() (ttl time.Duration, ok bool)
}

// Codec turns one record into the payload of a frame and back.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(b []byte) (T, error)
}

// GobCodec is the default codec. Each payload is a self-contained gob
// stream so any record can be decoded independently of its neighbours.
type GobCodec[T any] struct{}

func (GobCodec[T]) Encode(v T) ([]byte, error) {
	var buf bytes.Buffer

	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, newError("encode", ErrSerialization, err)
	}

	return buf.Bytes(), nil
}

func (GobCodec[T]) Decode(b []byte) (T, error) {
	var v T

	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&v); err != nil {
		return v, newError("decode", ErrDeserialization, err)
	}

	return v, nil
}

type compressingCodec[T any] struct {
	codec      Codec[T]
	compressor Compressor
}

// NewCompressingCodec compresses payloads produced by codec. A nil
// compressor returns codec unchanged.
func NewCompressingCodec[T any](codec Codec[T], compressor Compressor) Codec[T] {
	if compressor == nil {
		return codec
	}

	return &compressingCodec[T]{codec: codec, compressor: compressor}
}

func (c *compressingCodec[T]) Encode(v T) ([]byte, error) {
	b, err := c.codec.Encode(v)

	if err != nil {
		return nil, err
	}

	compressed, err := c.compressor.Compress(b)

	if err != nil {
		return nil, newError(c.compressor.Name()+" compress", ErrCompression, err)
	}

	return compressed, nil
}

func (c *compressingCodec[T]) Decode(b []byte) (T, error) {
	raw, err := c.compressor.Decompress(b)

	if err != nil {
		var zero T
		return zero, newError(c.compressor.Name()+" decompress", ErrDeserialization, err)
	}

	return c.codec.Decode(raw)
}
