package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func signedEntry(t *testing.T, sk *SecretKey, target Name, parents ...[32]byte) LinkedListEntry {
	t.Helper()
	e := LinkedListEntry{Target: target, Parents: parents}
	e.Signature = sk.Sign(e.EntryBytes()).Bytes()
	return e
}

func TestLinkedListVerifyEntry(t *testing.T) {
	sk := NewSecretKeyFromSeed([]byte("ll-owner"))
	l := &LinkedList{Owner: sk.Public().Bytes()}
	e := signedEntry(t, sk, HashContent([]byte("a")))
	require.NoError(t, l.VerifyEntry(&e))
}

func TestLinkedListVerifyEntryRejectsForeignSignature(t *testing.T) {
	sk := NewSecretKeyFromSeed([]byte("ll-owner"))
	other := NewSecretKeyFromSeed([]byte("someone-else"))
	l := &LinkedList{Owner: sk.Public().Bytes()}
	e := signedEntry(t, other, HashContent([]byte("a")))
	require.ErrorIs(t, l.VerifyEntry(&e), ErrInvalidSignature)
}

func TestLinkedListMergeIsUnionAndDeterministic(t *testing.T) {
	sk := NewSecretKeyFromSeed([]byte("ll-owner"))
	e1 := signedEntry(t, sk, HashContent([]byte("a")))
	e2 := signedEntry(t, sk, HashContent([]byte("b")))
	e3 := signedEntry(t, sk, HashContent([]byte("c")))

	l1 := &LinkedList{Owner: sk.Public().Bytes(), Entries: []LinkedListEntry{e1, e2}}
	l2 := &LinkedList{Owner: sk.Public().Bytes(), Entries: []LinkedListEntry{e2, e3}}

	merged := l1.Merge(l2)
	require.Len(t, merged.Entries, 3)

	// Merging in the other order must produce the identical entry set.
	mergedOther := l2.Merge(l1)
	require.Equal(t, merged.Entries, mergedOther.Entries)
}

func TestLinkedListEncodeDecodeRoundTrip(t *testing.T) {
	sk := NewSecretKeyFromSeed([]byte("ll-owner"))
	e1 := signedEntry(t, sk, HashContent([]byte("a")))
	l := &LinkedList{Owner: sk.Public().Bytes(), Entries: []LinkedListEntry{e1}}

	value := l.Encode()
	kind, body, err := SplitHeader(value)
	require.NoError(t, err)
	require.Equal(t, KindLinkedList, kind)

	decoded, err := DecodeLinkedList(body)
	require.NoError(t, err)
	require.Equal(t, l.Owner, decoded.Owner)
	require.Len(t, decoded.Entries, 1)
	require.Equal(t, e1.Target, decoded.Entries[0].Target)
}

func TestLinkedListWithPaymentEncodeDecodeRoundTrip(t *testing.T) {
	sk := NewSecretKeyFromSeed([]byte("ll-owner"))
	e1 := signedEntry(t, sk, HashContent([]byte("a")))
	l := LinkedList{Owner: sk.Public().Bytes(), Entries: []LinkedListEntry{e1}}
	proof := ProofOfPayment{TransferDigest: [32]byte{3}, QuoteHashes: [][32]byte{{4}}}
	lwp := &LinkedListWithPayment{LinkedList: l, Proof: proof}

	value := lwp.Encode()
	kind, body, err := SplitHeader(value)
	require.NoError(t, err)
	require.Equal(t, KindLinkedListWithPayment, kind)

	decoded, err := DecodeLinkedListWithPayment(body)
	require.NoError(t, err)
	require.Len(t, decoded.LinkedList.Entries, 1)
	require.Equal(t, proof.TransferDigest, decoded.Proof.TransferDigest)
}
