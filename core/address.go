package core

// core/address.go — content-address / record-key bijection (spec C2).
//
// A Name is the 32-byte content address: hash(content) for chunks,
// hash(owner_pk || discriminator) for the mutable kinds. A NetworkAddress
// pairs a Name with the RecordKind it was derived for; ToRecordKey yields
// the deterministic on-wire key. The invariant every other component
// leans on: ToRecordKey of the address derived from the decoded
// record.Value (its Address(), with the bare kind for payment-bearing
// records) must equal record.Key, or the PUT is rejected with
// ErrRecordKeyMismatch.

import (
	"encoding/hex"
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"lukechampine.com/blake3"
)

// Name is the 32-byte content address shared by every record kind.
type Name [32]byte

func (n Name) String() string { return hex.EncodeToString(n[:]) }

// HashContent derives the content address of an immutable chunk body.
func HashContent(body []byte) Name {
	return Name(blake3.Sum256(body))
}

// DiscriminatedName derives the address of a mutable record: the owning
// public key combined with a per-kind discriminator tag, so a single owner
// key can back distinct scratchpads/registers/linked-lists at distinct
// addresses.
func DiscriminatedName(ownerPK []byte, discriminator string) Name {
	h := blake3.New(32, nil)
	h.Write(ownerPK)
	h.Write([]byte(discriminator))
	var out Name
	copy(out[:], h.Sum(nil))
	return out
}

// NetworkAddress is the kind-tagged address used throughout the PUT
// pipeline and replication fetcher.
type NetworkAddress struct {
	Kind RecordKind
	Name Name
}

// RecordKey is the deterministic on-wire encoding of a NetworkAddress:
// kind byte followed by the 32-byte name.
type RecordKey [33]byte

// ToRecordKey yields the canonical wire key for a NetworkAddress.
func ToRecordKey(na NetworkAddress) RecordKey {
	var key RecordKey
	key[0] = byte(na.Kind)
	copy(key[1:], na.Name[:])
	return key
}

// NetworkAddressOfKey parses a wire key back into a NetworkAddress.
func NetworkAddressOfKey(key RecordKey) (NetworkAddress, error) {
	kind, err := recordKindFromByte(key[0])
	if err != nil {
		return NetworkAddress{}, err
	}
	var name Name
	copy(name[:], key[1:])
	return NetworkAddress{Kind: kind, Name: name}, nil
}

// XornameOf strips the kind tag, returning the bare 32-byte name a key
// encodes. This is the value used for XOR-distance close-group math,
// which is kind-agnostic.
func XornameOf(key RecordKey) Name {
	var name Name
	copy(name[:], key[1:])
	return name
}

func (k RecordKey) String() string { return hex.EncodeToString(k[:]) }

// DebugCID renders a key as a CIDv1 string purely for log lines — it is
// never compared against the wire RecordKey and carries no protocol
// meaning; the multihash wraps the key's bare name so two different kinds
// sharing a name are still distinguishable once the kind byte is logged
// alongside it.
func DebugCID(key RecordKey) string {
	name := XornameOf(key)
	digest, err := mh.Encode(name[:], mh.IDENTITY)
	if err != nil {
		return fmt.Sprintf("<bad-cid:%x>", name[:])
	}
	return cid.NewCidV1(cid.Raw, digest).String()
}
