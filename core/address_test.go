package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashContentIsDeterministic(t *testing.T) {
	body := []byte("payload")
	require.Equal(t, HashContent(body), HashContent(body))
	require.NotEqual(t, HashContent(body), HashContent([]byte("other")))
}

func TestDiscriminatedNameSeparatesKinds(t *testing.T) {
	owner := []byte("owner-public-key")
	n1 := DiscriminatedName(owner, scratchpadDiscriminator)
	n2 := DiscriminatedName(owner, registerDiscriminator)
	require.NotEqual(t, n1, n2, "distinct discriminators must yield distinct addresses for the same owner")
}

func TestToRecordKeyRoundTrip(t *testing.T) {
	na := NetworkAddress{Kind: KindChunk, Name: HashContent([]byte("x"))}
	key := ToRecordKey(na)

	got, err := NetworkAddressOfKey(key)
	require.NoError(t, err)
	require.Equal(t, na, got)
}

func TestNetworkAddressOfKeyRejectsUnknownKind(t *testing.T) {
	var key RecordKey
	key[0] = 200
	_, err := NetworkAddressOfKey(key)
	require.ErrorIs(t, err, ErrInvalidHeader)
}

func TestXornameOfStripsKind(t *testing.T) {
	name := HashContent([]byte("data"))
	k1 := ToRecordKey(NetworkAddress{Kind: KindChunk, Name: name})
	k2 := ToRecordKey(NetworkAddress{Kind: KindScratchpad, Name: name})
	require.Equal(t, XornameOf(k1), XornameOf(k2))
	require.NotEqual(t, k1, k2)
}

func TestDebugCIDDoesNotPanicOnAnyKey(t *testing.T) {
	key := ToRecordKey(NetworkAddress{Kind: KindRegister, Name: HashContent([]byte("z"))})
	require.NotEmpty(t, DebugCID(key))
}
