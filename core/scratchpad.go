package core

// core/scratchpad.go — the mutable, owner-signed, single-slot record kind
// (spec C1/C5-adjacent). A scratchpad always replaces its previous value
// wholesale; a monotonic counter decides which of two copies is newer,
// mirroring the teacher's core/storage.go "last writer wins" comment on
// its KV overwrite path, generalized here to an explicit signed counter
// rather than wall-clock order.

import "fmt"

// Scratchpad is the mutable record body: an owner public key, an opaque
// content-type tag, the payload, and a counter the owner must strictly
// increase on every update.
type Scratchpad struct {
	Owner        []byte // BLS public key bytes
	DataEncoding uint64
	Data         []byte
	Counter      uint64
	Signature    []byte
}

// discriminator is the fixed tag combined with the owner key to derive a
// scratchpad's address, keeping it distinct from a register or linked
// list owned by the same key.
const scratchpadDiscriminator = "scratchpad"

// Address derives the scratchpad's NetworkAddress from its owner key.
func (s *Scratchpad) Address() NetworkAddress {
	return NetworkAddress{Kind: KindScratchpad, Name: DiscriminatedName(s.Owner, scratchpadDiscriminator)}
}

// SignedBytes returns the exact bytes the owner signs: everything except
// the signature itself.
func (s *Scratchpad) SignedBytes() []byte {
	e := newEncoder()
	e.writeBytes(s.Owner)
	e.writeUint64(s.DataEncoding)
	e.writeBytes(s.Data)
	e.writeUint64(s.Counter)
	return e.bytes()
}

// VerifySignature checks the owner's signature over SignedBytes.
func (s *Scratchpad) VerifySignature() error {
	pk, err := ParsePublicKey(s.Owner)
	if err != nil {
		return err
	}
	sig, err := ParseSignature(s.Signature)
	if err != nil {
		return err
	}
	if !Verify(pk, sig, s.SignedBytes()) {
		return ErrInvalidScratchpadSignature
	}
	return nil
}

// Sign fills in Signature using sk, which must correspond to Owner.
func (s *Scratchpad) Sign(sk *SecretKey) {
	s.Signature = sk.Sign(s.SignedBytes()).Bytes()
}

// IsNewerThan reports whether s should replace existing under the
// monotonic-counter rule.
func (s *Scratchpad) IsNewerThan(existing *Scratchpad) bool {
	return s.Counter > existing.Counter
}

// Encode produces the header-tagged wire bytes.
func (s *Scratchpad) Encode() []byte {
	e := newEncoder()
	e.writeBytes(s.Owner)
	e.writeUint64(s.DataEncoding)
	e.writeBytes(s.Data)
	e.writeUint64(s.Counter)
	e.writeBytes(s.Signature)
	return JoinHeader(KindScratchpad, e.bytes())
}

// DecodeScratchpad parses a KindScratchpad body.
func DecodeScratchpad(body []byte) (*Scratchpad, error) {
	d := newDecoder(body)
	owner, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	enc, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	data, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	counter, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	sig, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	if !d.finished() {
		return nil, fmt.Errorf("%w: trailing bytes after scratchpad", ErrDeserialize)
	}
	return &Scratchpad{Owner: owner, DataEncoding: enc, Data: data, Counter: counter, Signature: sig}, nil
}

// ScratchpadWithPayment bundles a scratchpad with its payment proof, the
// only form accepted on a client PUT.
type ScratchpadWithPayment struct {
	Scratchpad Scratchpad
	Proof      ProofOfPayment
}

// Address derives the NetworkAddress the payment-bearing record claims.
func (s *ScratchpadWithPayment) Address() NetworkAddress {
	return NetworkAddress{Kind: KindScratchpadWithPayment, Name: DiscriminatedName(s.Scratchpad.Owner, scratchpadDiscriminator)}
}

// Encode produces the header-tagged wire bytes, including the proof's
// full quotes so the receiving node can verify them directly.
func (s *ScratchpadWithPayment) Encode() []byte {
	e := newEncoder()
	e.writeBytes(s.Scratchpad.Owner)
	e.writeUint64(s.Scratchpad.DataEncoding)
	e.writeBytes(s.Scratchpad.Data)
	e.writeUint64(s.Scratchpad.Counter)
	e.writeBytes(s.Scratchpad.Signature)
	s.Proof.encodeInto(e)
	return JoinHeader(KindScratchpadWithPayment, e.bytes())
}

// DecodeScratchpadWithPayment parses a KindScratchpadWithPayment body.
func DecodeScratchpadWithPayment(body []byte) (*ScratchpadWithPayment, error) {
	d := newDecoder(body)
	owner, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	enc, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	data, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	counter, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	sig, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	proof, err := decodeProofOfPayment(d)
	if err != nil {
		return nil, err
	}
	if !d.finished() {
		return nil, fmt.Errorf("%w: trailing bytes after scratchpad-with-payment", ErrDeserialize)
	}
	return &ScratchpadWithPayment{
		Scratchpad: Scratchpad{Owner: owner, DataEncoding: enc, Data: data, Counter: counter, Signature: sig},
		Proof:      proof,
	}, nil
}
