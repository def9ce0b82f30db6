// Package keys defines the byte-key layout used to store CRDT update and
// snapshot records in the embedded key-value store, and the monotonic
// per-(tenant,object) clock built on top of it.
//
// A key is the concatenation of a fixed tag byte, a big-endian tenant id,
// a length-prefixed object id, a record-kind byte, and a big-endian clock.
// Every field is encoded big-endian so that lexicographic byte order over
// the key space equals numeric order over (tenant, object id, kind,
// clock): a forward range scan over one object's keys yields its updates
// in clock order, and a reverse seek for the largest key less than or
// equal to a probe with clock = max finds that object's last update.
package keys

import (
	"encoding/binary"
	"math"

	"github.com/cuemby/collabcore/pkg/cerrors"
	"github.com/cuemby/collabcore/pkg/types"
)

// recordTag marks a key as belonging to the update-log key space, leaving
// room for other key spaces to share the same KV bucket in the future.
const recordTag byte = 0x01

// RecordKind distinguishes an update record from a compacted snapshot
// record within the same (tenant, object) key range.
type RecordKind byte

const (
	RecordKindUpdate   RecordKind = 0x01
	RecordKindSnapshot RecordKind = 0x02
)

// MaxClock is the sentinel clock value used as the upper probe for
// reverse-seek and range-scan queries. It is never assigned to a real
// record.
const MaxClock types.Clock = math.MaxUint64

// headerLen is the length of the fixed-width portion of a key up to and
// including the object id length prefix: tag(1) + tenant(8) + idLen(2).
const headerLen = 1 + 8 + 2

// Encode builds the full key for one update or snapshot record.
func Encode(tenant types.Tenant, object types.ObjectID, kind RecordKind, clock types.Clock) []byte {
	objBytes := []byte(object)
	key := make([]byte, headerLen+len(objBytes)+1+8)
	off := 0
	key[off] = recordTag
	off++
	binary.BigEndian.PutUint64(key[off:], uint64(tenant))
	off += 8
	binary.BigEndian.PutUint16(key[off:], uint16(len(objBytes)))
	off += 2
	copy(key[off:], objBytes)
	off += len(objBytes)
	key[off] = byte(kind)
	off++
	binary.BigEndian.PutUint64(key[off:], uint64(clock))
	return key
}

// Prefix builds the key prefix shared by every record of one
// (tenant, object, kind) triple, with no clock suffix. Useful for
// existence checks and as the lower bound of a scan.
func Prefix(tenant types.Tenant, object types.ObjectID, kind RecordKind) []byte {
	objBytes := []byte(object)
	key := make([]byte, headerLen+len(objBytes)+1)
	off := 0
	key[off] = recordTag
	off++
	binary.BigEndian.PutUint64(key[off:], uint64(tenant))
	off += 8
	binary.BigEndian.PutUint16(key[off:], uint16(len(objBytes)))
	off += 2
	copy(key[off:], objBytes)
	off += len(objBytes)
	key[off] = byte(kind)
	return key
}

// RangeBounds returns the half-open [lower, upper) byte range covering
// every record of one (tenant, object, kind) triple, in clock order.
// Upper is the key at MaxClock, which is never assigned to a real record,
// so the range captures every clock a real append could produce.
func RangeBounds(tenant types.Tenant, object types.ObjectID, kind RecordKind) (lower, upper []byte) {
	lower = Prefix(tenant, object, kind)
	upper = Encode(tenant, object, kind, MaxClock)
	return lower, upper
}

// ProbeKey returns the key used to reverse-seek for the last record of a
// (tenant, object, kind) triple: the same triple's key at MaxClock.
func ProbeKey(tenant types.Tenant, object types.ObjectID, kind RecordKind) []byte {
	return Encode(tenant, object, kind, MaxClock)
}

// Decoded is a fully parsed key.
type Decoded struct {
	Tenant types.Tenant
	Object types.ObjectID
	Kind   RecordKind
	Clock  types.Clock
}

// Decode parses a key produced by Encode. It fails with cerrors.KindInvalidKey
// if the key is too short or malformed to be one of ours.
func Decode(key []byte) (Decoded, error) {
	if len(key) < headerLen+1+8 {
		return Decoded{}, cerrors.New(cerrors.KindInvalidKey, "key too short")
	}
	if key[0] != recordTag {
		return Decoded{}, cerrors.New(cerrors.KindInvalidKey, "unrecognized key tag")
	}
	tenant := types.Tenant(binary.BigEndian.Uint64(key[1:9]))
	idLen := int(binary.BigEndian.Uint16(key[9:11]))
	off := 11
	if len(key) < off+idLen+1+8 {
		return Decoded{}, cerrors.New(cerrors.KindInvalidKey, "key length does not match object id length prefix")
	}
	object := types.ObjectID(key[off : off+idLen])
	off += idLen
	kind := RecordKind(key[off])
	off++
	clock := types.Clock(binary.BigEndian.Uint64(key[off : off+8]))
	return Decoded{Tenant: tenant, Object: object, Kind: kind, Clock: clock}, nil
}

// MatchesObject fails with cerrors.KindInvalidKey if a decoded key's
// tenant/object prefix does not match the probe it was read for,
// defending against leakage across objects sharing a bucket.
func MatchesObject(d Decoded, tenant types.Tenant, object types.ObjectID) error {
	if d.Tenant != tenant || d.Object != object {
		return cerrors.Newf(cerrors.KindInvalidKey, "decoded key (%d,%s) does not match probe (%d,%s)", d.Tenant, d.Object, tenant, object)
	}
	return nil
}
