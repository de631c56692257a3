package core

// core/crypto.go — BLS12-381 signing primitives shared by scratchpads,
// registers, and payment quotes. Adapted from the teacher's
// core/security.go BLS wrapper: same init-once-and-panic-on-failure
// startup posture, narrowed to the single algorithm this domain needs
// (the teacher also carries an Ed25519 path for wallet transactions,
// which this module's wallet no longer needs — see DESIGN.md).

import (
	"fmt"
	"sync"

	bls "github.com/herumi/bls-eth-go-binary/bls"
)

const (
	// PublicKeySize is the compressed BLS12-381 G1 public key size in bytes.
	PublicKeySize = 48
	// SignatureSize is the compressed BLS12-381 G2 signature size in bytes.
	SignatureSize = 96
)

var blsInitOnce sync.Once

func ensureBLSInit() {
	blsInitOnce.Do(func() {
		if err := bls.Init(bls.BLS12_381); err != nil {
			panic(fmt.Errorf("bls init: %w", err))
		}
		bls.SetETHmode(bls.EthModeDraft07)
	})
}

// SecretKey is a BLS12-381 secret scalar.
type SecretKey struct{ inner bls.SecretKey }

// PublicKey is a compressed BLS12-381 G1 public key.
type PublicKey struct{ inner bls.PublicKey }

// Signature is a compressed BLS12-381 G2 signature.
type Signature struct{ inner bls.Sign }

// NewSecretKeyFromSeed derives a deterministic secret key by hashing
// arbitrary-length seed material into a valid scalar (bls.SecretKey.SetHashOf
// always yields a value below the group order, unlike a raw byte load).
func NewSecretKeyFromSeed(seed []byte) *SecretKey {
	ensureBLSInit()
	sk := &SecretKey{}
	sk.inner.SetHashOf(seed)
	return sk
}

// Public returns the public key corresponding to sk.
func (sk *SecretKey) Public() *PublicKey {
	pk := sk.inner.GetPublicKey()
	return &PublicKey{inner: *pk}
}

// Sign signs msg, returning a 96-byte compressed signature.
func (sk *SecretKey) Sign(msg []byte) *Signature {
	sig := sk.inner.SignByte(msg)
	return &Signature{inner: *sig}
}

// Bytes serializes the public key to its 48-byte compressed form.
func (pk *PublicKey) Bytes() []byte { return pk.inner.Serialize() }

// ParsePublicKey deserializes a 48-byte compressed public key.
func ParsePublicKey(b []byte) (*PublicKey, error) {
	ensureBLSInit()
	pk := &PublicKey{}
	if err := pk.inner.Deserialize(b); err != nil {
		return nil, fmt.Errorf("%w: public key: %v", ErrInvalidSignature, err)
	}
	return pk, nil
}

// Bytes serializes the signature to its 96-byte compressed form.
func (s *Signature) Bytes() []byte { return s.inner.Serialize() }

// ParseSignature deserializes a 96-byte compressed signature.
func ParseSignature(b []byte) (*Signature, error) {
	ensureBLSInit()
	sig := &Signature{}
	if err := sig.inner.Deserialize(b); err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrInvalidSignature, err)
	}
	return sig, nil
}

// Verify checks sig against msg under pk.
func Verify(pk *PublicKey, sig *Signature, msg []byte) bool {
	ensureBLSInit()
	return sig.inner.VerifyByte(&pk.inner, msg)
}

// Equal reports whether two public keys are the same point.
func (pk *PublicKey) Equal(other *PublicKey) bool {
	return pk.inner.IsEqual(&other.inner)
}
