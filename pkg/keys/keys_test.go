package keys

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/collabcore/pkg/types"
)

func TestEncodeOrderMatchesNumericOrder(t *testing.T) {
	// Keys for increasing clocks within the same (tenant, object, kind)
	// must sort in the same order lexicographically as they do numerically,
	// mirroring collab-persistence's key_range_test.
	var prev []byte
	for clock := types.Clock(0); clock < 5; clock++ {
		key := Encode(1, "doc-a", RecordKindUpdate, clock)
		if prev != nil {
			assert.Less(t, bytes.Compare(prev, key), 0)
		}
		prev = key
	}
}

func TestEncodeOrdersAcrossObjectsByTenantThenObject(t *testing.T) {
	a := Encode(0, "aaa", RecordKindUpdate, 0)
	b := Encode(0, "aab", RecordKindUpdate, 0)
	c := Encode(1, "aaa", RecordKindUpdate, 0)
	assert.Less(t, bytes.Compare(a, b), 0)
	assert.Less(t, bytes.Compare(b, c), 0)
}

func TestDecodeRoundTrip(t *testing.T) {
	key := Encode(42, "row-xyz", RecordKindSnapshot, 17)
	decoded, err := Decode(key)
	require.NoError(t, err)
	assert.Equal(t, types.Tenant(42), decoded.Tenant)
	assert.Equal(t, types.ObjectID("row-xyz"), decoded.Object)
	assert.Equal(t, RecordKindSnapshot, decoded.Kind)
	assert.Equal(t, types.Clock(17), decoded.Clock)
}

func TestDecodeRejectsTruncatedKey(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestMatchesObjectRejectsCrossObjectLeakage(t *testing.T) {
	decoded, err := Decode(Encode(1, "doc-a", RecordKindUpdate, 0))
	require.NoError(t, err)
	require.NoError(t, MatchesObject(decoded, 1, "doc-a"))
	require.Error(t, MatchesObject(decoded, 1, "doc-b"))
	require.Error(t, MatchesObject(decoded, 2, "doc-a"))
}

func TestRangeBoundsCoverEveryRealClock(t *testing.T) {
	lower, upper := RangeBounds(1, "doc-a", RecordKindUpdate)
	for clock := types.Clock(0); clock < 1000; clock++ {
		key := Encode(1, "doc-a", RecordKindUpdate, clock)
		assert.True(t, bytes.Compare(key, lower) >= 0)
		assert.True(t, bytes.Compare(key, upper) < 0)
	}
}
