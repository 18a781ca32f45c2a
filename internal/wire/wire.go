// Package wire frames logically-expiring cache entries.
//
// Envelope: magic(4) | ver(1) | kind(1) | expireAt unix ms (i64 be) | vlen(u32 be) | payload(vlen)
//
// The payload is the codec output for the cached value and is opaque here.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version      byte = 1
	kindEnvelope byte = 1

	headerLen = 4 + 1 + 1 + 8 + 4
)

var (
	ErrCorrupt = errors.New("wire: corrupt envelope")
	magic4     = [...]byte{'S', 'K', 'C', 'E'}
)

// Envelope is a payload paired with the instant it goes logically stale.
type Envelope struct {
	ExpireAt time.Time
	Payload  []byte
}

// Expired reports whether the envelope is stale at now.
func (e Envelope) Expired(now time.Time) bool {
	return !e.ExpireAt.After(now)
}

func IsEnvelope(b []byte) bool {
	return len(b) >= headerLen && bytes.Equal(b[:4], magic4[:])
}

func EncodeEnvelope(expireAt time.Time, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(headerLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEnvelope)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], uint64(expireAt.UnixMilli()))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	if !IsEnvelope(b) || b[4] != version || b[5] != kindEnvelope {
		return Envelope{}, ErrCorrupt
	}

	off := 6
	ms := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return Envelope{}, ErrCorrupt
	}

	return Envelope{
		ExpireAt: time.UnixMilli(ms),
		Payload:  b[off : off+vlen],
	}, nil
}
