package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	sk := NewSecretKeyFromSeed([]byte("seed-material"))
	pk := sk.Public()
	msg := []byte("message to authenticate")

	sig := sk.Sign(msg)
	require.True(t, Verify(pk, sig, msg))
	require.False(t, Verify(pk, sig, []byte("tampered message")))
}

func TestNewSecretKeyFromSeedIsDeterministic(t *testing.T) {
	seed := []byte("deterministic-seed")
	sk1 := NewSecretKeyFromSeed(seed)
	sk2 := NewSecretKeyFromSeed(seed)
	require.True(t, sk1.Public().Equal(sk2.Public()))
}

func TestParsePublicKeyRoundTrip(t *testing.T) {
	sk := NewSecretKeyFromSeed([]byte("another-seed"))
	pk := sk.Public()

	parsed, err := ParsePublicKey(pk.Bytes())
	require.NoError(t, err)
	require.True(t, pk.Equal(parsed))
}

func TestParsePublicKeyRejectsGarbage(t *testing.T) {
	_, err := ParsePublicKey([]byte("not a valid compressed point"))
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestParseSignatureRoundTrip(t *testing.T) {
	sk := NewSecretKeyFromSeed([]byte("sig-seed"))
	sig := sk.Sign([]byte("msg"))

	parsed, err := ParseSignature(sig.Bytes())
	require.NoError(t, err)
	require.Equal(t, sig.Bytes(), parsed.Bytes())
}

func TestDifferentSeedsProduceDifferentKeys(t *testing.T) {
	sk1 := NewSecretKeyFromSeed([]byte("seed-a"))
	sk2 := NewSecretKeyFromSeed([]byte("seed-b"))
	require.False(t, sk1.Public().Equal(sk2.Public()))
}
