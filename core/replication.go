package core

// core/replication.go — the close-group replication fetcher (spec C8).
// Grounded on the teacher's core/kademlia.go peer-table abstraction and
// core/replication.go-style msgType dispatch, adapted to a pull model: a
// node learns which keys its close group holds, deduplicates against an
// in-flight set, and fetches each missing key at most once at a time
// through a small worker pool. Peer identity and transport are modeled
// on libp2p's host/peer/pubsub types so this package can be wired
// directly into a real libp2p node without another adaptation layer.

import (
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p-pubsub"
)

// ReplicationTransport fetches a single record from a specific peer.
// This module contains no network implementation of it; the tests use
// an in-memory fake.
type ReplicationTransport interface {
	FetchRecord(ctx context.Context, from PeerID, key RecordKey) ([]byte, error)
}

// PeerManager answers close-group membership questions the replicator
// needs without depending on a concrete DHT implementation.
type PeerManager interface {
	ClosestPeers(name Name, k int) []PeerID
}

// Replicator tracks which keys are currently being fetched and drives
// the fetch-then-store pipeline, bounded to maxConcurrentFetches
// in-flight fetches at a time.
type Replicator struct {
	store     *RecordStore
	transport ReplicationTransport
	peers     PeerManager
	topic     *pubsub.Topic // optional: announces locally-stored keys

	gate chan struct{} // bounds concurrent in-flight fetches

	mu             sync.Mutex
	pendingFetches map[RecordKey]struct{}
}

// NewReplicator builds a replicator over store using transport to reach
// peers and peers to resolve close-group membership. topic may be nil if
// no pubsub announcement channel is wired.
func NewReplicator(store *RecordStore, transport ReplicationTransport, peers PeerManager, topic *pubsub.Topic, maxConcurrentFetches int) *Replicator {
	if maxConcurrentFetches <= 0 {
		maxConcurrentFetches = 1
	}
	return &Replicator{
		store:          store,
		transport:      transport,
		peers:          peers,
		topic:          topic,
		gate:           make(chan struct{}, maxConcurrentFetches),
		pendingFetches: make(map[RecordKey]struct{}),
	}
}

// NotifyKeys is called when a peer's record listing reveals keys this
// node does not have locally; it schedules a bounded fetch for each key
// not already in flight and returns immediately.
func (r *Replicator) NotifyKeys(ctx context.Context, holder PeerID, keys []RecordKey, have func(RecordKey) bool) {
	for _, key := range keys {
		if have(key) {
			continue
		}
		r.mu.Lock()
		_, inFlight := r.pendingFetches[key]
		if !inFlight {
			r.pendingFetches[key] = struct{}{}
		}
		r.mu.Unlock()
		if inFlight {
			continue
		}
		go r.fetchAndStore(ctx, holder, key)
	}
}

func (r *Replicator) fetchAndStore(ctx context.Context, holder PeerID, key RecordKey) {
	defer func() {
		r.mu.Lock()
		delete(r.pendingFetches, key)
		r.mu.Unlock()
	}()

	select {
	case r.gate <- struct{}{}:
		defer func() { <-r.gate }()
	case <-ctx.Done():
		return
	}

	value, err := r.transport.FetchRecord(ctx, holder, key)
	if err != nil {
		return
	}
	_ = r.store.StoreReplicated(key, value)
}

// PendingFetchCount reports how many fetches are currently in flight or
// queued — used by tests and node metrics.
func (r *Replicator) PendingFetchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pendingFetches)
}

// NotifyFetchCompleted clears key from the in-flight set regardless of
// how it arrived — a client PUT landing on this node via RecordStore
// satisfies the same key a replication fetch may already be chasing, so
// the fetch is redundant the moment the direct write lands.
func (r *Replicator) NotifyFetchCompleted(key RecordKey) {
	r.mu.Lock()
	delete(r.pendingFetches, key)
	r.mu.Unlock()
}

// AnnounceStored publishes a key this node now holds to the replication
// topic, if one is wired, so nearby peers can fold it into their next
// NotifyKeys pass. A nil topic makes this a no-op — announcing is an
// optimization, not a correctness requirement, since replication is
// eventually driven by periodic record-listing exchange regardless.
func (r *Replicator) AnnounceStored(ctx context.Context, key RecordKey) error {
	if r.topic == nil {
		return nil
	}
	if err := r.topic.Publish(ctx, key[:]); err != nil {
		return fmt.Errorf("announce stored record: %w", err)
	}
	return nil
}
