package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, self PeerID, onChain OnChainVerifier) (*RecordStore, *InMemoryStore, *PaymentVerifier) {
	t.Helper()
	backend := NewInMemoryStore()
	verifier := newTestVerifier(t, self, onChain)
	return NewRecordStore(backend, verifier, nil), backend, verifier
}

func TestValidateAndStoreClientPutChunkSuccess(t *testing.T) {
	self := PeerID("node-1")
	onChain := &fakeOnChain{amounts: map[[32]byte]NanoTokens{}}
	store, backend, verifier := newTestStore(t, self, onChain)

	body := []byte("chunk content")
	addr := HashContent(body)
	quote := verifier.CreateQuote(addr, KindChunk, 10, QuotingMetrics{})
	onChain.amounts[quote.QuoteHash()] = verifier.RequiredPayment(quote)

	rec := &ChunkWithPayment{
		Chunk: Chunk{Value: body},
		Proof: ProofOfPayment{TransferDigest: [32]byte{1}, QuoteHashes: [][32]byte{quote.QuoteHash()}, Quotes: []*PaymentQuote{quote}},
	}
	key := ToRecordKey(NetworkAddress{Kind: KindChunk, Name: addr})

	err := store.ValidateAndStoreClientPut(context.Background(), key, rec.Encode(), []PeerID{self})
	require.NoError(t, err)
	require.True(t, backend.Has(key))
}

func TestValidateAndStoreClientPutRejectsKeyMismatch(t *testing.T) {
	self := PeerID("node-1")
	onChain := &fakeOnChain{amounts: map[[32]byte]NanoTokens{}}
	store, _, verifier := newTestStore(t, self, onChain)

	body := []byte("chunk content")
	addr := HashContent(body)
	quote := verifier.CreateQuote(addr, KindChunk, 10, QuotingMetrics{})
	rec := &ChunkWithPayment{Chunk: Chunk{Value: body}, Proof: ProofOfPayment{Quotes: []*PaymentQuote{quote}}}

	wrongKey := ToRecordKey(NetworkAddress{Kind: KindChunk, Name: HashContent([]byte("other"))})
	err := store.ValidateAndStoreClientPut(context.Background(), wrongKey, rec.Encode(), []PeerID{self})
	require.ErrorIs(t, err, ErrRecordKeyMismatch)
}

func TestValidateAndStoreClientPutRejectsExpiredQuote(t *testing.T) {
	self := PeerID("node-1")
	onChain := &fakeOnChain{amounts: map[[32]byte]NanoTokens{}}
	backend := NewInMemoryStore()
	sk := NewSecretKeyFromSeed([]byte("verifier-" + string(self)))
	verifier := NewPaymentVerifier(self, sk, 1000, -time.Second, onChain, nil) // already-expired lifetime
	store := NewRecordStore(backend, verifier, nil)

	body := []byte("chunk content")
	addr := HashContent(body)
	quote := verifier.CreateQuote(addr, KindChunk, 10, QuotingMetrics{})
	onChain.amounts[quote.QuoteHash()] = verifier.RequiredPayment(quote)

	rec := &ChunkWithPayment{
		Chunk: Chunk{Value: body},
		Proof: ProofOfPayment{QuoteHashes: [][32]byte{quote.QuoteHash()}, Quotes: []*PaymentQuote{quote}},
	}
	key := ToRecordKey(NetworkAddress{Kind: KindChunk, Name: addr})

	err := store.ValidateAndStoreClientPut(context.Background(), key, rec.Encode(), []PeerID{self})
	require.ErrorIs(t, err, ErrQuoteExpired)
}

func TestValidateAndStoreClientPutAcceptsDuplicatePaymentButSkipsWrite(t *testing.T) {
	self := PeerID("node-1")
	onChain := &fakeOnChain{amounts: map[[32]byte]NanoTokens{}}
	store, backend, verifier := newTestStore(t, self, onChain)

	body := []byte("chunk content")
	addr := HashContent(body)
	quote := verifier.CreateQuote(addr, KindChunk, 10, QuotingMetrics{})
	onChain.amounts[quote.QuoteHash()] = verifier.RequiredPayment(quote)
	rec := &ChunkWithPayment{
		Chunk: Chunk{Value: body},
		Proof: ProofOfPayment{QuoteHashes: [][32]byte{quote.QuoteHash()}, Quotes: []*PaymentQuote{quote}},
	}
	key := ToRecordKey(NetworkAddress{Kind: KindChunk, Name: addr})
	require.NoError(t, store.ValidateAndStoreClientPut(context.Background(), key, rec.Encode(), []PeerID{self}))
	require.True(t, backend.Has(key))

	// A chunk is immutable and content-addressed, so replaying the exact
	// same ChunkWithPayment still represents a second, separately-paid
	// request: the on-chain mock must still be able to cover it, and the
	// second put must still succeed by re-verifying payment — it is only
	// the backend write that is skipped.
	require.NoError(t, store.ValidateAndStoreClientPut(context.Background(), key, rec.Encode(), []PeerID{self}))
	require.Equal(t, uint64(1), store.dedupedPuts)

	// If the on-chain mock can no longer cover the quote, the duplicate
	// PUT must now fail instead of silently short-circuiting.
	onChain.amounts = map[[32]byte]NanoTokens{}
	err := store.ValidateAndStoreClientPut(context.Background(), key, rec.Encode(), []PeerID{self})
	require.Error(t, err)
}

func TestValidateAndStoreClientPutRegisterAcceptsWhenAlreadyPresentDespiteFailedPayment(t *testing.T) {
	self := PeerID("node-1")
	onChain := &fakeOnChain{amounts: map[[32]byte]NanoTokens{}}
	store, backend, verifier := newTestStore(t, self, onChain)
	sk := NewSecretKeyFromSeed([]byte("reg-owner"))

	e1 := signedRegEntry(t, sk, []byte("a"))
	reg := &Register{Owner: sk.Public().Bytes(), Entries: []RegisterEntry{e1}}
	quote := verifier.CreateQuote(reg.Address().Name, KindRegister, 10, QuotingMetrics{})
	onChain.amounts[quote.QuoteHash()] = verifier.RequiredPayment(quote)
	rec := &RegisterWithPayment{
		Register: *reg,
		Proof:    ProofOfPayment{QuoteHashes: [][32]byte{quote.QuoteHash()}, Quotes: []*PaymentQuote{quote}},
	}
	key := ToRecordKey(reg.Address())
	require.NoError(t, store.ValidateAndStoreClientPut(context.Background(), key, rec.Encode(), []PeerID{self}))
	require.True(t, backend.Has(key))

	// A second write for the same register arrives with an unpayable
	// proof. Because the register already exists locally, it must still
	// be accepted (and merged) rather than hard-rejected.
	e2 := signedRegEntry(t, sk, []byte("b"))
	reg2 := &Register{Owner: sk.Public().Bytes(), Entries: []RegisterEntry{e2}}
	badRec := &RegisterWithPayment{
		Register: *reg2,
		Proof:    ProofOfPayment{QuoteHashes: [][32]byte{{9, 9, 9}}},
	}
	onChain.amounts = map[[32]byte]NanoTokens{}
	require.NoError(t, store.ValidateAndStoreClientPut(context.Background(), key, badRec.Encode(), []PeerID{self}))

	stored, err := backend.Get(key)
	require.NoError(t, err)
	_, rawBody, err := SplitHeader(stored)
	require.NoError(t, err)
	merged, err := DecodeRegister(rawBody)
	require.NoError(t, err)
	require.Len(t, merged.Entries, 2)
}

func TestValidateAndStoreClientPutRegisterRejectsFailedPaymentWhenAbsent(t *testing.T) {
	self := PeerID("node-1")
	onChain := &fakeOnChain{amounts: map[[32]byte]NanoTokens{}}
	store, backend, _ := newTestStore(t, self, onChain)
	sk := NewSecretKeyFromSeed([]byte("reg-owner"))

	e1 := signedRegEntry(t, sk, []byte("a"))
	reg := &Register{Owner: sk.Public().Bytes(), Entries: []RegisterEntry{e1}}
	rec := &RegisterWithPayment{
		Register: *reg,
		Proof:    ProofOfPayment{QuoteHashes: [][32]byte{{9, 9, 9}}},
	}
	key := ToRecordKey(reg.Address())

	err := store.ValidateAndStoreClientPut(context.Background(), key, rec.Encode(), []PeerID{self})
	require.Error(t, err)
	require.False(t, backend.Has(key))
}

func TestStoreReplicatedRejectsPaymentBearingRecord(t *testing.T) {
	store, _, _ := newTestStore(t, "node-1", nil)
	c := &ChunkWithPayment{Chunk: Chunk{Value: []byte("x")}}
	key := ToRecordKey(c.Address())
	err := store.StoreReplicated(key, c.Encode())
	require.ErrorIs(t, err, ErrUnexpectedRecordPayment)
}

func TestStoreReplicatedChunkIdempotent(t *testing.T) {
	store, backend, _ := newTestStore(t, "node-1", nil)
	c := &Chunk{Value: []byte("replicated body")}
	key := ToRecordKey(c.Address())

	require.NoError(t, store.StoreReplicated(key, c.Encode()))
	require.NoError(t, store.StoreReplicated(key, c.Encode()))
	require.True(t, backend.Has(key))
}

func TestStoreReplicatedScratchpadRejectsOutdated(t *testing.T) {
	store, _, _ := newTestStore(t, "node-1", nil)
	sk := NewSecretKeyFromSeed([]byte("sp-owner"))

	newer := &Scratchpad{Owner: sk.Public().Bytes(), Data: []byte("v2"), Counter: 2}
	newer.Sign(sk)
	key := ToRecordKey(newer.Address())
	require.NoError(t, store.StoreReplicated(key, newer.Encode()))

	older := &Scratchpad{Owner: sk.Public().Bytes(), Data: []byte("v1"), Counter: 1}
	older.Sign(sk)
	err := store.StoreReplicated(key, older.Encode())
	require.ErrorIs(t, err, ErrIgnoringOutdatedScratchpad)
}

func TestStoreReplicatedRegisterMergesEntries(t *testing.T) {
	store, backend, _ := newTestStore(t, "node-1", nil)
	sk := NewSecretKeyFromSeed([]byte("reg-owner"))

	e1 := signedRegEntry(t, sk, []byte("a"))
	r1 := &Register{Owner: sk.Public().Bytes(), Entries: []RegisterEntry{e1}}
	key := ToRecordKey(r1.Address())
	require.NoError(t, store.StoreReplicated(key, r1.Encode()))

	e2 := signedRegEntry(t, sk, []byte("b"))
	r2 := &Register{Owner: sk.Public().Bytes(), Entries: []RegisterEntry{e2}}
	require.NoError(t, store.StoreReplicated(key, r2.Encode()))

	stored, err := backend.Get(key)
	require.NoError(t, err)
	_, body, err := SplitHeader(stored)
	require.NoError(t, err)
	merged, err := DecodeRegister(body)
	require.NoError(t, err)
	require.Len(t, merged.Entries, 2)
}
