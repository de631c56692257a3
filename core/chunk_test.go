package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkEncodeDecodeRoundTrip(t *testing.T) {
	c := &Chunk{Value: []byte("chunk body bytes")}
	value := c.Encode()

	kind, body, err := SplitHeader(value)
	require.NoError(t, err)
	require.Equal(t, KindChunk, kind)

	decoded, err := DecodeChunk(body)
	require.NoError(t, err)
	require.Equal(t, c.Value, decoded.Value)
}

func TestChunkAddressIsContentHash(t *testing.T) {
	c := &Chunk{Value: []byte("content")}
	addr := c.Address()
	require.Equal(t, KindChunk, addr.Kind)
	require.Equal(t, HashContent(c.Value), addr.Name)
}

func TestChunkWithPaymentEncodeDecodeRoundTrip(t *testing.T) {
	proof := ProofOfPayment{
		TransferDigest: [32]byte{1, 2, 3},
		QuoteHashes:    [][32]byte{{4, 5, 6}, {7, 8, 9}},
	}
	c := &ChunkWithPayment{Chunk: Chunk{Value: []byte("paid body")}, Proof: proof}
	value := c.Encode()

	kind, body, err := SplitHeader(value)
	require.NoError(t, err)
	require.Equal(t, KindChunkWithPayment, kind)

	decoded, err := DecodeChunkWithPayment(body)
	require.NoError(t, err)
	require.Equal(t, c.Chunk.Value, decoded.Chunk.Value)
	require.Equal(t, proof.TransferDigest, decoded.Proof.TransferDigest)
	require.Equal(t, proof.QuoteHashes, decoded.Proof.QuoteHashes)
}

func TestDecodeChunkRejectsTrailingBytes(t *testing.T) {
	c := &Chunk{Value: []byte("x")}
	_, body, _ := SplitHeader(c.Encode())
	_, err := DecodeChunk(append(body, 0xFF))
	require.ErrorIs(t, err, ErrDeserialize)
}
