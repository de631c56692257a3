package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu       sync.Mutex
	fetches  int
	bodies   map[RecordKey][]byte
	fetchHit chan struct{}
}

func (f *fakeTransport) FetchRecord(ctx context.Context, from PeerID, key RecordKey) ([]byte, error) {
	f.mu.Lock()
	f.fetches++
	body := f.bodies[key]
	f.mu.Unlock()
	if f.fetchHit != nil {
		f.fetchHit <- struct{}{}
	}
	return body, nil
}

func TestReplicatorFetchesMissingKeyAndStoresIt(t *testing.T) {
	backend := NewInMemoryStore()
	verifier := newTestVerifier(t, "node-1", nil)
	store := NewRecordStore(backend, verifier, nil)

	c := &Chunk{Value: []byte("replicated")}
	key := ToRecordKey(c.Address())

	transport := &fakeTransport{bodies: map[RecordKey][]byte{key: c.Encode()}, fetchHit: make(chan struct{}, 1)}
	rep := NewReplicator(store, transport, nil, nil, 4)

	rep.NotifyKeys(context.Background(), "peer-a", []RecordKey{key}, backend.Has)

	select {
	case <-transport.fetchHit:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fetch")
	}

	require.Eventually(t, func() bool { return backend.Has(key) }, time.Second, 10*time.Millisecond)
}

func TestReplicatorDedupsInFlightFetches(t *testing.T) {
	backend := NewInMemoryStore()
	verifier := newTestVerifier(t, "node-1", nil)
	store := NewRecordStore(backend, verifier, nil)

	c := &Chunk{Value: []byte("x")}
	key := ToRecordKey(c.Address())
	transport := &fakeTransport{bodies: map[RecordKey][]byte{key: c.Encode()}}
	rep := NewReplicator(store, transport, nil, nil, 1)

	rep.NotifyKeys(context.Background(), "peer-a", []RecordKey{key, key, key}, backend.Has)
	require.Eventually(t, func() bool { return backend.Has(key) }, time.Second, 10*time.Millisecond)

	transport.mu.Lock()
	fetches := transport.fetches
	transport.mu.Unlock()
	require.Equal(t, 1, fetches, "the same key requested three times must only be fetched once")
}

func TestReplicatorSkipsKeysAlreadyHeld(t *testing.T) {
	backend := NewInMemoryStore()
	verifier := newTestVerifier(t, "node-1", nil)
	store := NewRecordStore(backend, verifier, nil)

	c := &Chunk{Value: []byte("already here")}
	key := ToRecordKey(c.Address())
	require.NoError(t, backend.Put(key, c.Encode()))

	transport := &fakeTransport{bodies: map[RecordKey][]byte{}}
	rep := NewReplicator(store, transport, nil, nil, 1)
	rep.NotifyKeys(context.Background(), "peer-a", []RecordKey{key}, backend.Has)

	time.Sleep(50 * time.Millisecond)
	transport.mu.Lock()
	defer transport.mu.Unlock()
	require.Equal(t, 0, transport.fetches)
}

func TestReplicatorAnnounceStoredNoopWithoutTopic(t *testing.T) {
	backend := NewInMemoryStore()
	verifier := newTestVerifier(t, "node-1", nil)
	store := NewRecordStore(backend, verifier, nil)
	rep := NewReplicator(store, &fakeTransport{}, nil, nil, 1)

	key := ToRecordKey(NetworkAddress{Kind: KindChunk, Name: HashContent([]byte("a"))})
	require.NoError(t, rep.AnnounceStored(context.Background(), key))
}
