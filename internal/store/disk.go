// Package store persists converted chunks on disk so that chunks evicted
// from memory, or converted in an earlier session, can be reloaded instead
// of converted again.
package store

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

// ErrItemTooLarge is returned when a single entry exceeds the capacity.
var ErrItemTooLarge = errors.New("item exceeds store capacity")

const indexFile = "store.index"

// Stats describes the store.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Items     int64
	Size      int64
	Capacity  int64
}

// HitRate returns the fraction of lookups served from disk.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// DiskStore is a size-bounded, least recently used store of byte blobs.
// Entries larger than 1KiB are zstd-compressed when that saves space.
type DiskStore struct {
	basePath string
	capacity int64
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*entry
	mu    sync.Mutex
	stats Stats
}

type entry struct {
	Key          string
	FilePath     string
	Size         int64 // on disk
	OriginalSize int64
	Created      time.Time
	LastAccess   time.Time
	Hits         int64
	Compressed   bool
}

// NewDiskStore opens or creates a store in basePath. A compressionLevel of
// zero disables compression.
func NewDiskStore(basePath string, capacity int64, compressionLevel int) (*DiskStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	ds := &DiskStore{
		basePath: basePath,
		capacity: capacity,
		index:    make(map[string]*entry),
	}
	ds.stats.Capacity = capacity

	if compressionLevel > 0 {
		var err error
		ds.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		ds.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
	}

	if err := ds.loadIndex(); err != nil {
		log.Warn("Ignoring unreadable store index", "path", basePath, "err", err)
		ds.index = make(map[string]*entry)
	}
	ds.recalculate()

	log.Debug("Opened chunk store",
		"path", basePath,
		"items", len(ds.index),
		"size", ds.size,
		"capacity", capacity)
	return ds, nil
}

// Get returns the blob stored under key.
func (ds *DiskStore) Get(key string) ([]byte, bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	e, ok := ds.index[key]
	if !ok {
		ds.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(e.FilePath)
	if err != nil {
		ds.drop(key, e)
		ds.stats.Misses++
		return nil, false
	}

	if e.Compressed {
		if ds.decoder == nil {
			ds.drop(key, e)
			ds.stats.Misses++
			return nil, false
		}
		decompressed, err := ds.decoder.DecodeAll(data, nil)
		if err != nil {
			ds.drop(key, e)
			ds.stats.Misses++
			return nil, false
		}
		data = decompressed
	}

	e.LastAccess = time.Now()
	e.Hits++
	ds.stats.Hits++
	return data, true
}

// Put stores value under key, evicting the least recently used entries
// when the store is full.
func (ds *DiskStore) Put(key string, value []byte) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	data := value
	compressed := false
	if ds.encoder != nil && len(value) > 1024 {
		if c := ds.encoder.EncodeAll(value, nil); len(c) < len(value) {
			data = c
			compressed = true
		}
	}

	diskSize := int64(len(data))
	if diskSize > ds.capacity {
		return ErrItemTooLarge
	}
	if existing, ok := ds.index[key]; ok {
		ds.drop(key, existing)
	}
	for ds.size+diskSize > ds.capacity && len(ds.index) > 0 {
		ds.evictOldest()
	}

	path := ds.filePath(key)
	if err := writeFile(path, data); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}

	now := time.Now()
	ds.index[key] = &entry{
		Key:          key,
		FilePath:     path,
		Size:         diskSize,
		OriginalSize: int64(len(value)),
		Created:      now,
		LastAccess:   now,
		Compressed:   compressed,
	}
	ds.size += diskSize
	return nil
}

// Contains reports whether key is stored without touching its access time.
func (ds *DiskStore) Contains(key string) bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	_, ok := ds.index[key]
	return ok
}

// Clear removes every entry.
func (ds *DiskStore) Clear() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	for _, e := range ds.index {
		_ = os.Remove(e.FilePath)
	}
	ds.index = make(map[string]*entry)
	ds.size = 0
	return ds.saveIndex()
}

// Stats returns store statistics.
func (ds *DiskStore) Stats() Stats {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	s := ds.stats
	s.Items = int64(len(ds.index))
	s.Size = ds.size
	return s
}

// Close saves the index.
func (ds *DiskStore) Close() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.saveIndex()
}

func (ds *DiskStore) drop(key string, e *entry) {
	_ = os.Remove(e.FilePath)
	ds.size -= e.Size
	delete(ds.index, key)
}

func (ds *DiskStore) filePath(key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(ds.basePath, hex.EncodeToString(hash[:16])+".chunk")
}

func (ds *DiskStore) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, e := range ds.index {
		if oldestKey == "" || e.LastAccess.Before(oldest) {
			oldestKey = key
			oldest = e.LastAccess
		}
	}
	if oldestKey == "" {
		return
	}
	ds.drop(oldestKey, ds.index[oldestKey])
	ds.stats.Evictions++
}

func (ds *DiskStore) recalculate() {
	ds.size = 0
	for _, e := range ds.index {
		ds.size += e.Size
	}
}

func (ds *DiskStore) loadIndex() error {
	file, err := os.Open(filepath.Join(ds.basePath, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close() //nolint:errcheck

	return gob.NewDecoder(file).Decode(&ds.index)
}

func (ds *DiskStore) saveIndex() error {
	path := filepath.Join(ds.basePath, indexFile)
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(file).Encode(ds.index)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, path)
}

// writeFile writes to a temporary file and renames it into place.
func writeFile(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, path)
}
