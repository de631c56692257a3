package core

// core/register.go — the owner-signed CRDT register record kind (spec
// C5). Entries form a Merkle-DAG keyed by content hash with explicit
// parent pointers; merge is pure set-union exactly like linkedlist.go,
// but register entries additionally enforce a maximum size and a maximum
// total entry count, and every entry must be signed by the register's
// owner (single-writer policy; spec leaves multi-writer policies as a
// later extension — see DESIGN.md Open Questions).

import (
	"fmt"
	"sort"
)

const registerDiscriminator = "register"

// MaxRegisterEntrySize bounds a single entry's value, ported from the
// original implementation's MAX_REG_ENTRY_SIZE.
const MaxRegisterEntrySize = 1024

// MaxRegisterNumEntries bounds the total live entry count a register may
// accumulate, ported from the original implementation's MAX_REG_NUM_ENTRIES.
const MaxRegisterNumEntries = 1024

// RegisterEntry is one signed, content-addressed node in the register's
// DAG.
type RegisterEntry struct {
	Value     []byte
	Parents   [][32]byte
	Signature []byte
}

// EntryBytes returns the bytes the owner signs for one entry.
func (e *RegisterEntry) EntryBytes() []byte {
	enc := newEncoder()
	enc.writeBytes(e.Value)
	enc.writeUint64(uint64(len(e.Parents)))
	for _, p := range e.Parents {
		enc.writeBytes(p[:])
	}
	return enc.bytes()
}

// Hash identifies an entry for dedup, parent references, and head
// detection.
func (e *RegisterEntry) Hash() [32]byte { return blake3Sum(e.EntryBytes()) }

// Register is the full record body: an owner key and the DAG of entries
// accepted so far.
type Register struct {
	Owner   []byte
	Entries []RegisterEntry
}

// Address derives the register's NetworkAddress from its owner key.
func (r *Register) Address() NetworkAddress {
	return NetworkAddress{Kind: KindRegister, Name: DiscriminatedName(r.Owner, registerDiscriminator)}
}

// VerifyEntry checks one entry's size, and its signature against the
// register's owner key. Count limits are enforced by the caller (the
// store's register merge, which knows the merged total and rejects it
// with ErrTooManyEntries) rather than here.
func (r *Register) VerifyEntry(e *RegisterEntry) error {
	if len(e.Value) > MaxRegisterEntrySize {
		return fmt.Errorf("%w: %d > %d", ErrEntryTooBig, len(e.Value), MaxRegisterEntrySize)
	}
	pk, err := ParsePublicKey(r.Owner)
	if err != nil {
		return err
	}
	sig, err := ParseSignature(e.Signature)
	if err != nil {
		return err
	}
	if !Verify(pk, sig, e.EntryBytes()) {
		return ErrAccessDenied
	}
	return nil
}

// Heads returns the entries no other entry lists as a parent — the
// register's current "tips". More than one head means the register has
// diverged and a caller expecting a single current value must merge or
// pick explicitly (ErrContentBranchDetected).
func (r *Register) Heads() []RegisterEntry {
	isParent := make(map[[32]byte]bool, len(r.Entries))
	for _, e := range r.Entries {
		for _, p := range e.Parents {
			isParent[p] = true
		}
	}
	var heads []RegisterEntry
	for _, e := range r.Entries {
		if !isParent[e.Hash()] {
			heads = append(heads, e)
		}
	}
	return heads
}

// Merge returns the set-union of r and other's entries, deduplicated by
// hash and capped at MaxRegisterNumEntries (entries are sorted by hash
// and those sorting after the first MaxRegisterNumEntries are dropped,
// deterministically, so every replica agrees on the same trimmed set).
func (r *Register) Merge(other *Register) *Register {
	seen := make(map[[32]byte]RegisterEntry, len(r.Entries)+len(other.Entries))
	for _, e := range r.Entries {
		seen[e.Hash()] = e
	}
	for _, e := range other.Entries {
		seen[e.Hash()] = e
	}
	merged := make([]RegisterEntry, 0, len(seen))
	for _, e := range seen {
		merged = append(merged, e)
	}
	sort.Slice(merged, func(i, j int) bool {
		hi, hj := merged[i].Hash(), merged[j].Hash()
		return string(hi[:]) < string(hj[:])
	})
	if len(merged) > MaxRegisterNumEntries {
		merged = merged[:MaxRegisterNumEntries]
	}
	return &Register{Owner: r.Owner, Entries: merged}
}

// Encode produces the header-tagged wire bytes.
func (r *Register) Encode() []byte {
	e := newEncoder()
	e.writeBytes(r.Owner)
	e.writeUint64(uint64(len(r.Entries)))
	for _, entry := range r.Entries {
		e.writeBytes(entry.Value)
		e.writeUint64(uint64(len(entry.Parents)))
		for _, p := range entry.Parents {
			e.writeBytes(p[:])
		}
		e.writeBytes(entry.Signature)
	}
	return JoinHeader(KindRegister, e.bytes())
}

// DecodeRegister parses a KindRegister body.
func DecodeRegister(body []byte) (*Register, error) {
	d := newDecoder(body)
	owner, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	count, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	if count > MaxRegisterNumEntries {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyEntries, count, MaxRegisterNumEntries)
	}
	entries := make([]RegisterEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		entry, err := decodeRegisterEntry(d)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if !d.finished() {
		return nil, fmt.Errorf("%w: trailing bytes after register", ErrDeserialize)
	}
	return &Register{Owner: owner, Entries: entries}, nil
}

func decodeRegisterEntry(d *decoder) (RegisterEntry, error) {
	value, err := d.readBytes()
	if err != nil {
		return RegisterEntry{}, err
	}
	if len(value) > MaxRegisterEntrySize {
		return RegisterEntry{}, fmt.Errorf("%w: %d > %d", ErrEntryTooBig, len(value), MaxRegisterEntrySize)
	}
	parentCount, err := d.readUint64()
	if err != nil {
		return RegisterEntry{}, err
	}
	parents := make([][32]byte, 0, parentCount)
	for i := uint64(0); i < parentCount; i++ {
		p, err := d.readBytes()
		if err != nil {
			return RegisterEntry{}, err
		}
		var arr [32]byte
		copy(arr[:], p)
		parents = append(parents, arr)
	}
	sig, err := d.readBytes()
	if err != nil {
		return RegisterEntry{}, err
	}
	return RegisterEntry{Value: value, Parents: parents, Signature: sig}, nil
}

// RegisterWithPayment bundles a register with its payment proof, the
// only form accepted on a client PUT.
type RegisterWithPayment struct {
	Register Register
	Proof    ProofOfPayment
}

// Address derives the NetworkAddress the payment-bearing record claims.
func (r *RegisterWithPayment) Address() NetworkAddress {
	return NetworkAddress{Kind: KindRegisterWithPayment, Name: DiscriminatedName(r.Register.Owner, registerDiscriminator)}
}

// Encode produces the header-tagged wire bytes, including the proof's
// full quotes so the receiving node can verify them directly.
func (r *RegisterWithPayment) Encode() []byte {
	inner := (&r.Register).Encode()
	_, body, _ := SplitHeader(inner)
	e := newEncoder()
	e.writeBytes(body)
	r.Proof.encodeInto(e)
	return JoinHeader(KindRegisterWithPayment, e.bytes())
}

// DecodeRegisterWithPayment parses a KindRegisterWithPayment body.
func DecodeRegisterWithPayment(body []byte) (*RegisterWithPayment, error) {
	d := newDecoder(body)
	inner, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	reg, err := DecodeRegister(inner)
	if err != nil {
		return nil, err
	}
	proof, err := decodeProofOfPayment(d)
	if err != nil {
		return nil, err
	}
	if !d.finished() {
		return nil, fmt.Errorf("%w: trailing bytes after register-with-payment", ErrDeserialize)
	}
	return &RegisterWithPayment{Register: *reg, Proof: proof}, nil
}
