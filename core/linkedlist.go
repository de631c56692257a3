package core

// core/linkedlist.go — the append-only, owner-signed DAG record kind
// (spec C1). Each entry points at zero or more parent entries by hash,
// forming a history graph (e.g. pointer chains, version trails); the
// record as a whole is the set-union of every entry ever accepted,
// mirroring the CRDT merge style used by core/register.go rather than
// the scratchpad's replace-wholesale rule.

import (
	"fmt"
	"sort"
)

const linkedListDiscriminator = "linked-list"

// LinkedListEntry is one signed node in the DAG: a content pointer and
// the hashes of the entries it extends.
type LinkedListEntry struct {
	Target    Name // the Name this entry points to
	Parents   [][32]byte
	Signature []byte // owner signature over EntryBytes()
}

// EntryBytes returns the bytes an owner signs for one entry.
func (e *LinkedListEntry) EntryBytes() []byte {
	enc := newEncoder()
	enc.writeBytes(e.Target[:])
	enc.writeUint64(uint64(len(e.Parents)))
	for _, p := range e.Parents {
		enc.writeBytes(p[:])
	}
	return enc.bytes()
}

// Hash identifies an entry for dedup and parent references.
func (e *LinkedListEntry) Hash() [32]byte {
	return blake3Sum(e.EntryBytes())
}

// LinkedList is the full record body: an owner key and the set of
// entries accepted so far.
type LinkedList struct {
	Owner   []byte
	Entries []LinkedListEntry
}

// Address derives the linked list's NetworkAddress from its owner key.
func (l *LinkedList) Address() NetworkAddress {
	return NetworkAddress{Kind: KindLinkedList, Name: DiscriminatedName(l.Owner, linkedListDiscriminator)}
}

// VerifyEntry checks one entry's signature against the list's owner key.
func (l *LinkedList) VerifyEntry(e *LinkedListEntry) error {
	pk, err := ParsePublicKey(l.Owner)
	if err != nil {
		return err
	}
	sig, err := ParseSignature(e.Signature)
	if err != nil {
		return err
	}
	if !Verify(pk, sig, e.EntryBytes()) {
		return ErrInvalidSignature
	}
	return nil
}

// Merge returns the set-union of l and other's entries, deduplicated by
// entry hash and sorted for a deterministic encoding.
func (l *LinkedList) Merge(other *LinkedList) *LinkedList {
	seen := make(map[[32]byte]LinkedListEntry, len(l.Entries)+len(other.Entries))
	for _, e := range l.Entries {
		seen[e.Hash()] = e
	}
	for _, e := range other.Entries {
		seen[e.Hash()] = e
	}
	merged := make([]LinkedListEntry, 0, len(seen))
	for _, e := range seen {
		merged = append(merged, e)
	}
	sort.Slice(merged, func(i, j int) bool {
		hi, hj := merged[i].Hash(), merged[j].Hash()
		return string(hi[:]) < string(hj[:])
	})
	return &LinkedList{Owner: l.Owner, Entries: merged}
}

// Encode produces the header-tagged wire bytes.
func (l *LinkedList) Encode() []byte {
	e := newEncoder()
	e.writeBytes(l.Owner)
	e.writeUint64(uint64(len(l.Entries)))
	for _, entry := range l.Entries {
		e.writeBytes(entry.Target[:])
		e.writeUint64(uint64(len(entry.Parents)))
		for _, p := range entry.Parents {
			e.writeBytes(p[:])
		}
		e.writeBytes(entry.Signature)
	}
	return JoinHeader(KindLinkedList, e.bytes())
}

// DecodeLinkedList parses a KindLinkedList body.
func DecodeLinkedList(body []byte) (*LinkedList, error) {
	d := newDecoder(body)
	owner, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	count, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	entries := make([]LinkedListEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		entry, err := decodeLinkedListEntry(d)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if !d.finished() {
		return nil, fmt.Errorf("%w: trailing bytes after linked list", ErrDeserialize)
	}
	return &LinkedList{Owner: owner, Entries: entries}, nil
}

func decodeLinkedListEntry(d *decoder) (LinkedListEntry, error) {
	target, err := d.readBytes()
	if err != nil {
		return LinkedListEntry{}, err
	}
	if len(target) != 32 {
		return LinkedListEntry{}, fmt.Errorf("%w: entry target must be 32 bytes", ErrDeserialize)
	}
	parentCount, err := d.readUint64()
	if err != nil {
		return LinkedListEntry{}, err
	}
	parents := make([][32]byte, 0, parentCount)
	for i := uint64(0); i < parentCount; i++ {
		p, err := d.readBytes()
		if err != nil {
			return LinkedListEntry{}, err
		}
		if len(p) != 32 {
			return LinkedListEntry{}, fmt.Errorf("%w: entry parent must be 32 bytes", ErrDeserialize)
		}
		var arr [32]byte
		copy(arr[:], p)
		parents = append(parents, arr)
	}
	sig, err := d.readBytes()
	if err != nil {
		return LinkedListEntry{}, err
	}
	var tgt Name
	copy(tgt[:], target)
	return LinkedListEntry{Target: tgt, Parents: parents, Signature: sig}, nil
}

// LinkedListWithPayment bundles a linked list with its payment proof,
// the only form accepted on a client PUT.
type LinkedListWithPayment struct {
	LinkedList LinkedList
	Proof      ProofOfPayment
}

// Address derives the NetworkAddress the payment-bearing record claims.
func (l *LinkedListWithPayment) Address() NetworkAddress {
	return NetworkAddress{Kind: KindLinkedListWithPayment, Name: DiscriminatedName(l.LinkedList.Owner, linkedListDiscriminator)}
}

// Encode produces the header-tagged wire bytes, including the proof's
// full quotes so the receiving node can verify them directly.
func (l *LinkedListWithPayment) Encode() []byte {
	inner := (&l.LinkedList).Encode()
	_, body, _ := SplitHeader(inner)
	e := newEncoder()
	e.writeBytes(body)
	l.Proof.encodeInto(e)
	return JoinHeader(KindLinkedListWithPayment, e.bytes())
}

// DecodeLinkedListWithPayment parses a KindLinkedListWithPayment body.
func DecodeLinkedListWithPayment(body []byte) (*LinkedListWithPayment, error) {
	d := newDecoder(body)
	inner, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	list, err := DecodeLinkedList(inner)
	if err != nil {
		return nil, err
	}
	proof, err := decodeProofOfPayment(d)
	if err != nil {
		return nil, err
	}
	if !d.finished() {
		return nil, fmt.Errorf("%w: trailing bytes after linked-list-with-payment", ErrDeserialize)
	}
	return &LinkedListWithPayment{LinkedList: *list, Proof: proof}, nil
}
