package core

// core/chunk.go — the immutable chunk record kind (spec C1). A chunk's
// address is always HashContent(body); client-side self-encryption is out
// of scope (see SPEC_FULL.md Encryptor note in chunker.go), so the body
// stored here is whatever ciphertext or plaintext bytes the client chose
// to address by content hash.

import "fmt"

// Chunk is the bare immutable body, keyed by content hash.
type Chunk struct {
	Value []byte
}

// Address derives the chunk's NetworkAddress from its content.
func (c *Chunk) Address() NetworkAddress {
	return NetworkAddress{Kind: KindChunk, Name: HashContent(c.Value)}
}

// Encode produces the header-tagged wire bytes for a bare chunk.
func (c *Chunk) Encode() []byte {
	e := newEncoder()
	e.writeBytes(c.Value)
	return JoinHeader(KindChunk, e.bytes())
}

// DecodeChunk parses a KindChunk body (post-SplitHeader).
func DecodeChunk(body []byte) (*Chunk, error) {
	d := newDecoder(body)
	value, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	if !d.finished() {
		return nil, fmt.Errorf("%w: trailing bytes after chunk value", ErrDeserialize)
	}
	return &Chunk{Value: value}, nil
}

// ChunkWithPayment bundles a chunk body with the proof that pays for it.
// It is the only form accepted on a client PUT; once validated the store
// persists just the bare Chunk form (spec: payment never travels with
// replicated copies).
type ChunkWithPayment struct {
	Chunk Chunk
	Proof ProofOfPayment
}

// Address derives the NetworkAddress the payment-bearing record claims.
func (c *ChunkWithPayment) Address() NetworkAddress {
	return NetworkAddress{Kind: KindChunkWithPayment, Name: HashContent(c.Chunk.Value)}
}

// Encode produces the header-tagged wire bytes, including the proof's
// full quotes (not just their hashes) so the receiving node can verify
// each quote's payee, cost, and signature on its own terms.
func (c *ChunkWithPayment) Encode() []byte {
	e := newEncoder()
	e.writeBytes(c.Chunk.Value)
	c.Proof.encodeInto(e)
	return JoinHeader(KindChunkWithPayment, e.bytes())
}

// DecodeChunkWithPayment parses a KindChunkWithPayment body.
func DecodeChunkWithPayment(body []byte) (*ChunkWithPayment, error) {
	d := newDecoder(body)
	value, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	proof, err := decodeProofOfPayment(d)
	if err != nil {
		return nil, err
	}
	if !d.finished() {
		return nil, fmt.Errorf("%w: trailing bytes after chunk-with-payment", ErrDeserialize)
	}
	return &ChunkWithPayment{Chunk: Chunk{Value: value}, Proof: proof}, nil
}
