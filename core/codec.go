package core

// core/codec.go — the self-describing compact binary encoding named in
// spec §6: length-prefixed byte fields, little-endian fixed-width
// integers. serialize(value, kind) = header(kind) || encode(value);
// deserialize is its exact inverse, and is symmetric for every kind
// (spec §8: decode(encode(v, k)) == v).

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"lukechampine.com/blake3"
)

// blake3Sum is a small shared helper for the per-kind entry/op hashing
// done outside the record-level HashContent/DiscriminatedName address
// derivations in address.go.
func blake3Sum(b []byte) [32]byte { return blake3.Sum256(b) }

// encoder accumulates a record body in the wire format.
type encoder struct {
	buf bytes.Buffer
}

func newEncoder() *encoder { return &encoder{} }

func (e *encoder) writeBytes(b []byte) {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(b)))
	e.buf.Write(lenBuf[:])
	e.buf.Write(b)
}

func (e *encoder) writeUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) writeUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) writeBool(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

func (e *encoder) bytes() []byte { return e.buf.Bytes() }

// decoder consumes a record body previously produced by encoder.
type decoder struct {
	r *bytes.Reader
}

func newDecoder(body []byte) *decoder { return &decoder{r: bytes.NewReader(body)} }

func (d *decoder) readBytes() ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(d.r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: length prefix: %v", ErrDeserialize, err)
	}
	n := binary.LittleEndian.Uint64(lenBuf[:])
	const maxField = 64 << 20 // 64 MiB guards against a corrupt length prefix
	if n > maxField {
		return nil, fmt.Errorf("%w: field length %d exceeds sanity bound", ErrDeserialize, n)
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(d.r, out); err != nil {
		return nil, fmt.Errorf("%w: field body: %v", ErrDeserialize, err)
	}
	return out, nil
}

func (d *decoder) readUint64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, fmt.Errorf("%w: uint64: %v", ErrDeserialize, err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (d *decoder) readUint16() (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, fmt.Errorf("%w: uint16: %v", ErrDeserialize, err)
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func (d *decoder) readBool() (bool, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return false, fmt.Errorf("%w: bool: %v", ErrDeserialize, err)
	}
	return b != 0, nil
}

func (d *decoder) finished() bool { return d.r.Len() == 0 }

// RawRecord is a record exactly as it arrives on the wire: the key the
// peer claims, and header||body bytes.
type RawRecord struct {
	Key   RecordKey
	Value []byte
}

// SplitHeader separates the kind byte from the encoded body.
func SplitHeader(value []byte) (RecordKind, []byte, error) {
	if len(value) < 1 {
		return 0, nil, fmt.Errorf("%w: empty record value", ErrInvalidHeader)
	}
	kind, err := recordKindFromByte(value[0])
	if err != nil {
		return 0, nil, err
	}
	return kind, value[1:], nil
}

// JoinHeader prefixes an encoded body with its kind byte.
func JoinHeader(kind RecordKind, body []byte) []byte {
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(kind))
	out = append(out, body...)
	return out
}
