package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncoderDecoderRoundTrip(t *testing.T) {
	e := newEncoder()
	e.writeBytes([]byte("hello"))
	e.writeUint64(42)
	e.writeUint16(7)
	e.writeBool(true)
	e.writeBool(false)

	d := newDecoder(e.bytes())

	b, err := d.readBytes()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), b)

	n, err := d.readUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(42), n)

	n16, err := d.readUint16()
	require.NoError(t, err)
	require.Equal(t, uint16(7), n16)

	t1, err := d.readBool()
	require.NoError(t, err)
	require.True(t, t1)

	t2, err := d.readBool()
	require.NoError(t, err)
	require.False(t, t2)

	require.True(t, d.finished())
}

func TestDecoderRejectsTruncatedInput(t *testing.T) {
	e := newEncoder()
	e.writeBytes([]byte("hello"))
	truncated := e.bytes()[:4]
	d := newDecoder(truncated)
	_, err := d.readBytes()
	require.ErrorIs(t, err, ErrDeserialize)
}

func TestDecoderRejectsOversizedLengthPrefix(t *testing.T) {
	e := newEncoder()
	e.writeUint64(1 << 40) // far beyond maxField
	d := newDecoder(e.bytes())
	_, err := d.readBytes()
	require.ErrorIs(t, err, ErrDeserialize)
}

func TestSplitJoinHeaderRoundTrip(t *testing.T) {
	body := []byte("some body")
	value := JoinHeader(KindChunk, body)

	kind, got, err := SplitHeader(value)
	require.NoError(t, err)
	require.Equal(t, KindChunk, kind)
	require.Equal(t, body, got)
}

func TestSplitHeaderRejectsEmptyValue(t *testing.T) {
	_, _, err := SplitHeader(nil)
	require.ErrorIs(t, err, ErrInvalidHeader)
}

func TestSplitHeaderRejectsUnknownKind(t *testing.T) {
	_, _, err := SplitHeader([]byte{255, 1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidHeader)
}
