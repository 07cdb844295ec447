package cache

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/LavishGent/tiercache/internal/types"
)

// Envelope layout used by byte-oriented backends (bigcache, Redis):
//
//	[0]     magic 0xC7
//	[1]     version
//	[2]     priority
//	[3]     reserved
//	[4:12]  createdAt unix nanos
//	[12:20] expiresAt unix nanos, 0 for no expiry
//	[20:28] xxhash64 of payload
//	[28:]   payload
const (
	envelopeMagic   byte = 0xC7
	envelopeVersion byte = 1
	envelopeHeader       = 28
)

func encodeEntry(e *types.Entry) []byte {
	buf := make([]byte, envelopeHeader+len(e.Value))
	buf[0] = envelopeMagic
	buf[1] = envelopeVersion
	buf[2] = byte(e.Priority)

	binary.BigEndian.PutUint64(buf[4:12], uint64(e.CreatedAt.UnixNano()))
	var exp int64
	if !e.ExpiresAt.IsZero() {
		exp = e.ExpiresAt.UnixNano()
	}
	binary.BigEndian.PutUint64(buf[12:20], uint64(exp))
	binary.BigEndian.PutUint64(buf[20:28], e.Checksum)
	copy(buf[envelopeHeader:], e.Value)
	return buf
}

// decodeEntry parses an envelope. The payload is copied, so data may be
// reused by the caller. A bad header or checksum yields ErrIntegrityFailure.
func decodeEntry(key string, data []byte) (*types.Entry, error) {
	if len(data) < envelopeHeader || data[0] != envelopeMagic {
		return nil, fmt.Errorf("%w: malformed envelope", types.ErrIntegrityFailure)
	}
	if data[1] != envelopeVersion {
		return nil, fmt.Errorf("%w: envelope version %d", types.ErrIntegrityFailure, data[1])
	}

	payload := data[envelopeHeader:]
	sum := binary.BigEndian.Uint64(data[20:28])
	if xxhash.Sum64(payload) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", types.ErrIntegrityFailure)
	}

	e := &types.Entry{
		Key:       key,
		Value:     append([]byte(nil), payload...),
		SizeBytes: int64(len(payload)),
		Checksum:  sum,
		Priority:  types.CachePriority(data[2]),
		CreatedAt: time.Unix(0, int64(binary.BigEndian.Uint64(data[4:12]))),
	}
	if exp := int64(binary.BigEndian.Uint64(data[12:20])); exp != 0 {
		e.ExpiresAt = time.Unix(0, exp)
	}
	return e, nil
}

// newEntry builds the entry a tier stores for value written at now with ttl.
// A non-positive ttl means no expiry.
func newEntry(key string, value []byte, priority types.CachePriority, now time.Time, ttl time.Duration) *types.Entry {
	if priority == 0 {
		priority = types.PriorityNormal
	}
	e := &types.Entry{
		Key:       key,
		Value:     append([]byte(nil), value...),
		SizeBytes: int64(len(value)),
		Checksum:  xxhash.Sum64(value),
		Priority:  priority,
		CreatedAt: now,
	}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	return e
}

// resolveTTL picks the per-call TTL when set, else the tier default.
func resolveTTL(opts *types.CacheOptions, def time.Duration) time.Duration {
	if opts != nil && opts.TTL > 0 {
		return opts.TTL
	}
	return def
}

func priorityOf(opts *types.CacheOptions) types.CachePriority {
	if opts == nil || opts.Priority == 0 {
		return types.PriorityNormal
	}
	return opts.Priority
}
