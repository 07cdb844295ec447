package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/LavishGent/tiercache/internal/config"
	"github.com/LavishGent/tiercache/internal/types"
)

const (
	blobExt           = ".blob"
	indexVersion      = 1
	keyLockStripes    = 64
	orphanGracePeriod = time.Minute
	defaultIndexFile  = "index.json"
)

// IndexRecord is the sidecar index entry for one key.
type IndexRecord struct {
	File        string              `json:"file"`
	Compressed  bool                `json:"compressed"`
	SizeBytes   int64               `json:"sizeBytes"`
	StoredBytes int64               `json:"storedBytes"`
	Checksum    uint64              `json:"checksum"`
	Priority    types.CachePriority `json:"priority"`
	CreatedAt   time.Time           `json:"createdAt"`
	ExpiresAt   *time.Time          `json:"expiresAt,omitempty"`
}

func (r IndexRecord) expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

type indexFile struct {
	Version int                    `json:"version"`
	Entries map[string]IndexRecord `json:"entries"`
}

// DurableTier keeps one blob file per key plus a JSON index that is
// rewritten after every mutation. Blobs are always written before the index
// references them and the index forgets a key before its blob is removed.
type DurableTier struct {
	dir       string
	indexPath string
	cfg       config.DurableConfig
	logger    *slog.Logger
	now       func() time.Time

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	keyLocks [keyLockStripes]sync.Mutex

	mu          sync.RWMutex
	index       map[string]IndexRecord
	storedBytes int64

	hits              atomic.Int64
	misses            atomic.Int64
	sets              atomic.Int64
	deletes           atomic.Int64
	evictions         atomic.Int64
	expirations       atomic.Int64
	compressions      atomic.Int64
	integrityFailures atomic.Int64

	closed atomic.Bool
}

// NewDurableTier opens (or creates) the storage directory and loads the
// index. An unreadable index starts the tier empty.
func NewDurableTier(cfg config.DurableConfig, logger *slog.Logger) (*DurableTier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Directory == "" {
		return nil, errors.New("durable tier: directory is required")
	}
	if cfg.IndexFile == "" {
		cfg.IndexFile = defaultIndexFile
	}
	if cfg.CompressionThreshold <= 0 {
		cfg.CompressionThreshold = 1024
	}

	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, types.NewIOError("Initialize", "", types.TierDurable, err)
	}

	level := zstd.SpeedDefault
	if cfg.CompressionLevel != "" {
		ok, l := zstd.EncoderLevelFromString(cfg.CompressionLevel)
		if !ok {
			return nil, fmt.Errorf("durable tier: unknown compression level %q", cfg.CompressionLevel)
		}
		level = l
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, err
	}

	t := &DurableTier{
		dir:       cfg.Directory,
		indexPath: filepath.Join(cfg.Directory, cfg.IndexFile),
		cfg:       cfg,
		logger:    logger.With("component", "durable-tier"),
		now:       time.Now,
		encoder:   enc,
		decoder:   dec,
		index:     make(map[string]IndexRecord),
	}
	t.load()
	return t, nil
}

func (t *DurableTier) load() {
	data, err := os.ReadFile(t.indexPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			t.logger.Warn("Index unreadable, starting empty", "path", t.indexPath, "error", err)
		}
		return
	}

	var idx indexFile
	if err := json.Unmarshal(data, &idx); err != nil {
		t.logger.Warn("Index corrupt, starting empty", "path", t.indexPath, "error", err)
		return
	}

	dropped := 0
	for key, rec := range idx.Entries {
		if _, err := os.Stat(filepath.Join(t.dir, rec.File)); err != nil {
			dropped++
			continue
		}
		t.index[key] = rec
		t.storedBytes += rec.StoredBytes
	}

	t.logger.Info("Index loaded", "entries", len(t.index), "dropped", dropped)
	if dropped > 0 {
		t.mu.Lock()
		if err := t.persistLocked(); err != nil {
			t.logger.Warn("Failed to rewrite index", "error", err)
		}
		t.mu.Unlock()
	}
}

func blobName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + blobExt
}

// BlobPath returns the file that holds key's payload.
func (t *DurableTier) BlobPath(key string) string {
	return filepath.Join(t.dir, blobName(key))
}

// Record returns the index record for key.
func (t *DurableTier) Record(key string) (IndexRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.index[key]
	return rec, ok
}

func (t *DurableTier) keyLock(key string) *sync.Mutex {
	return &t.keyLocks[xxhash.Sum64String(key)%keyLockStripes]
}

func (t *DurableTier) Name() string {
	return types.TierDurable
}

func (t *DurableTier) IsAvailable() bool {
	return !t.closed.Load()
}

func (t *DurableTier) Get(ctx context.Context, key string) (*types.Entry, error) {
	if t.closed.Load() {
		return nil, types.ErrClosed
	}

	l := t.keyLock(key)
	l.Lock()
	defer l.Unlock()

	rec, ok := t.Record(key)
	if !ok {
		t.misses.Add(1)
		return nil, types.ErrCacheMiss
	}

	if rec.expired(t.now()) {
		if err := t.forgetKeyLocked(key); err != nil {
			return nil, err
		}
		t.expirations.Add(1)
		t.misses.Add(1)
		return nil, types.ErrCacheMiss
	}

	data, err := os.ReadFile(filepath.Join(t.dir, rec.File))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			t.logger.Warn("Blob missing, dropping index record", "key", key)
			_ = t.forgetKeyLocked(key)
			t.misses.Add(1)
			return nil, types.ErrCacheMiss
		}
		return nil, types.NewIOError("Get", key, types.TierDurable, err)
	}

	value := data
	if rec.Compressed {
		value, err = t.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, t.purgeCorrupt(key, fmt.Errorf("%w: %w", types.ErrIntegrityFailure, err))
		}
	}
	if xxhash.Sum64(value) != rec.Checksum {
		return nil, t.purgeCorrupt(key, fmt.Errorf("%w: checksum mismatch", types.ErrIntegrityFailure))
	}

	t.hits.Add(1)
	e := &types.Entry{
		Key:        key,
		Value:      value,
		Compressed: rec.Compressed,
		SizeBytes:  rec.SizeBytes,
		Checksum:   rec.Checksum,
		Priority:   rec.Priority,
		CreatedAt:  rec.CreatedAt,
	}
	if rec.ExpiresAt != nil {
		e.ExpiresAt = *rec.ExpiresAt
	}
	return e, nil
}

func (t *DurableTier) purgeCorrupt(key string, cause error) error {
	t.integrityFailures.Add(1)
	t.misses.Add(1)
	if err := t.forgetKeyLocked(key); err != nil {
		t.logger.Warn("Failed to purge corrupt entry", "key", key, "error", err)
	}
	t.logger.Warn("Purged corrupt entry", "key", key, "error", cause)
	return types.NewCacheError("Get", key, types.TierDurable, cause)
}

// forgetKeyLocked removes key from the index, persists it, then removes the
// blob. The caller holds key's lock.
func (t *DurableTier) forgetKeyLocked(key string) error {
	t.mu.Lock()
	rec, ok := t.index[key]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	delete(t.index, key)
	t.storedBytes -= rec.StoredBytes
	err := t.persistLocked()
	t.mu.Unlock()

	if err != nil {
		return types.NewIOError("Delete", key, types.TierDurable, err)
	}
	if err := os.Remove(filepath.Join(t.dir, rec.File)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.logger.Debug("Failed to remove blob", "key", key, "error", err)
	}
	return nil
}

func (t *DurableTier) Contains(ctx context.Context, key string) (bool, error) {
	if t.closed.Load() {
		return false, types.ErrClosed
	}
	rec, ok := t.Record(key)
	return ok && !rec.expired(t.now()), nil
}

func (t *DurableTier) shouldCompress(size int, opts *types.CacheOptions) bool {
	if opts != nil && opts.NoCompress {
		return false
	}
	enabled := t.cfg.CompressionEnabled || (opts != nil && opts.Compress)
	return enabled && size > t.cfg.CompressionThreshold
}

func (t *DurableTier) Set(ctx context.Context, key string, value []byte, opts *types.CacheOptions) error {
	if t.closed.Load() {
		return types.ErrClosed
	}

	victims, err := t.set(key, value, opts)
	if err != nil {
		return err
	}
	t.sets.Add(1)
	t.dropBlobs(victims)
	return nil
}

func (t *DurableTier) set(key string, value []byte, opts *types.CacheOptions) ([]string, error) {
	payload, compressed := value, false
	if t.shouldCompress(len(value), opts) {
		if out := t.encoder.EncodeAll(value, nil); len(out) < len(value) {
			payload, compressed = out, true
			t.compressions.Add(1)
		}
	}

	maxBytes := int64(t.cfg.MaxSizeMB) * 1024 * 1024
	if maxBytes > 0 && int64(len(payload)) > maxBytes {
		return nil, types.NewCacheError("Set", key, types.TierDurable, types.ErrCapacityExceeded)
	}

	l := t.keyLock(key)
	l.Lock()
	defer l.Unlock()

	file := blobName(key)
	if err := writeFileAtomic(t.dir, file, payload); err != nil {
		return nil, types.NewIOError("Set", key, types.TierDurable, err)
	}

	now := t.now()
	rec := IndexRecord{
		File:        file,
		Compressed:  compressed,
		SizeBytes:   int64(len(value)),
		StoredBytes: int64(len(payload)),
		Checksum:    xxhash.Sum64(value),
		Priority:    priorityOf(opts),
		CreatedAt:   now,
	}
	if ttl := resolveTTL(opts, t.cfg.DefaultTTL); ttl > 0 {
		exp := now.Add(ttl)
		rec.ExpiresAt = &exp
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.index[key]; ok {
		t.storedBytes -= old.StoredBytes
	}
	t.index[key] = rec
	t.storedBytes += rec.StoredBytes

	var victims []string
	if maxBytes > 0 {
		victims = t.evictLocked(key, maxBytes)
	}

	if err := t.persistLocked(); err != nil {
		return victims, types.NewIOError("Set", key, types.TierDurable, err)
	}
	return victims, nil
}

// evictLocked drops the oldest records other than keep until the stored
// size fits maxBytes and returns the evicted keys. Must hold mu.
func (t *DurableTier) evictLocked(keep string, maxBytes int64) []string {
	if t.storedBytes <= maxBytes {
		return nil
	}

	type aged struct {
		key     string
		created time.Time
	}
	all := make([]aged, 0, len(t.index))
	for k, r := range t.index {
		if k != keep {
			all = append(all, aged{k, r.CreatedAt})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].created.Before(all[j].created) })

	var victims []string
	for _, a := range all {
		if t.storedBytes <= maxBytes {
			break
		}
		t.storedBytes -= t.index[a.key].StoredBytes
		delete(t.index, a.key)
		victims = append(victims, a.key)
	}
	t.evictions.Add(int64(len(victims)))
	return victims
}

// dropBlobs removes the blobs of keys the index no longer references. Each
// key is rechecked under its lock in case it was written again meanwhile.
// The caller must not hold any key lock.
func (t *DurableTier) dropBlobs(keys []string) {
	for _, key := range keys {
		l := t.keyLock(key)
		l.Lock()
		if _, back := t.Record(key); !back {
			err := os.Remove(filepath.Join(t.dir, blobName(key)))
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				t.logger.Debug("Failed to remove blob", "key", key, "error", err)
			}
		}
		l.Unlock()
	}
}

func (t *DurableTier) Delete(ctx context.Context, key string) (bool, error) {
	if t.closed.Load() {
		return false, types.ErrClosed
	}

	l := t.keyLock(key)
	l.Lock()
	defer l.Unlock()

	if _, ok := t.Record(key); !ok {
		return false, nil
	}
	if err := t.forgetKeyLocked(key); err != nil {
		return false, err
	}
	t.deletes.Add(1)
	return true, nil
}

// Cleanup purges expired records and their blobs, then removes blob files
// no record references that are older than a grace period.
func (t *DurableTier) Cleanup(ctx context.Context) (int, error) {
	if t.closed.Load() {
		return 0, types.ErrClosed
	}
	now := t.now()

	removed, err := t.forgetWhere(func(_ string, r IndexRecord) bool { return r.expired(now) })
	t.expirations.Add(int64(len(removed)))
	if err != nil {
		return len(removed), err
	}

	if n := t.removeOrphans(ctx); n > 0 {
		t.logger.Debug("Removed orphan blobs", "count", n)
	}
	return len(removed), nil
}

func (t *DurableTier) removeOrphans(ctx context.Context) int {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return 0
	}

	t.mu.RLock()
	referenced := make(map[string]struct{}, len(t.index))
	for _, r := range t.index {
		referenced[r.File] = struct{}{}
	}
	t.mu.RUnlock()

	cutoff := time.Now().Add(-orphanGracePeriod)
	removed := 0
	for _, de := range entries {
		if ctx.Err() != nil {
			break
		}
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, blobExt) {
			continue
		}
		if _, ok := referenced[name]; ok {
			continue
		}
		info, err := de.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(t.dir, name)) == nil {
			removed++
		}
	}
	return removed
}

func (t *DurableTier) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	if t.closed.Load() {
		return 0, types.ErrClosed
	}
	removed, err := t.forgetWhere(func(k string, _ IndexRecord) bool { return MatchPattern(k, pattern) })
	t.deletes.Add(int64(len(removed)))
	return len(removed), err
}

func (t *DurableTier) Clear(ctx context.Context) error {
	if t.closed.Load() {
		return types.ErrClosed
	}
	_, err := t.forgetWhere(func(string, IndexRecord) bool { return true })
	return err
}

// forgetWhere removes every record matching fn in one index rewrite, then
// removes their blobs.
func (t *DurableTier) forgetWhere(fn func(key string, r IndexRecord) bool) ([]string, error) {
	t.mu.Lock()
	var keys []string
	for k, r := range t.index {
		if fn(k, r) {
			keys = append(keys, k)
			t.storedBytes -= r.StoredBytes
			delete(t.index, k)
		}
	}
	if len(keys) == 0 {
		t.mu.Unlock()
		return nil, nil
	}
	err := t.persistLocked()
	t.mu.Unlock()

	if err != nil {
		return keys, types.NewIOError("Delete", "", types.TierDurable, err)
	}
	t.dropBlobs(keys)
	return keys, nil
}

// Keys returns the live keys matching pattern in sorted order.
func (t *DurableTier) Keys(pattern string) []string {
	now := t.now()

	t.mu.RLock()
	keys := make([]string, 0, len(t.index))
	for k, r := range t.index {
		if !r.expired(now) && MatchPattern(k, pattern) {
			keys = append(keys, k)
		}
	}
	t.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// persistLocked rewrites the index file. Must hold mu.
func (t *DurableTier) persistLocked() error {
	data, err := json.MarshalIndent(indexFile{Version: indexVersion, Entries: t.index}, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(t.dir, filepath.Base(t.indexPath), data)
}

// writeFileAtomic writes data to a temp file in dir and renames it over name.
func writeFileAtomic(dir, name string, data []byte) error {
	f, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (t *DurableTier) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.decoder.Close()
	return t.encoder.Close()
}

func (t *DurableTier) Stats() types.TierStats {
	t.mu.RLock()
	entries, size := int64(len(t.index)), t.storedBytes
	t.mu.RUnlock()

	return types.TierStats{
		Hits:              t.hits.Load(),
		Misses:            t.misses.Load(),
		Sets:              t.sets.Load(),
		Deletes:           t.deletes.Load(),
		Evictions:         t.evictions.Load(),
		Expirations:       t.expirations.Load(),
		Compressions:      t.compressions.Load(),
		IntegrityFailures: t.integrityFailures.Load(),
		Entries:           entries,
		SizeBytes:         size,
		MaxSizeBytes:      int64(t.cfg.MaxSizeMB) * 1024 * 1024,
	}
}

var (
	_ types.Tier      = (*DurableTier)(nil)
	_ types.KeyLister = (*DurableTier)(nil)
)
