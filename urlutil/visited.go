package urlutil

import (
	"errors"
	"fmt"
	"os"
	"sync"

	bloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/edsrzf/mmap-go"
)

// DefaultVisitedEstimate sizes the bloom filter of a VisitedSet.
const DefaultVisitedEstimate = 100000

// VisitedSet records normalized URLs seen during a single scan.
//
// A bloom filter answers the common "never seen" case; positives are confirmed
// against an exact set, so the set never reports a false positive. When created
// with NewVisitedSet the filter is mirrored to a memory-mapped temp file, keeping
// a snapshot of large crawls on disk. Close releases the file.
type VisitedSet struct {
	mu        sync.Mutex
	filter    *bloom.BloomFilter
	seen      map[string]struct{}
	file      *os.File
	mmap      mmap.MMap
	tmpPath   string
	count     uint64 // keys added since last sync
	syncEvery uint64 // sync to disk every N keys
	lastErr   error  // last error from sync operations
}

// NewMemoryVisitedSet creates a VisitedSet without a disk mirror.
func NewMemoryVisitedSet(estimate uint) *VisitedSet {
	if estimate == 0 {
		estimate = DefaultVisitedEstimate
	}
	return &VisitedSet{
		filter: bloom.NewWithEstimates(estimate, 0.001),
		seen:   make(map[string]struct{}),
	}
}

// NewVisitedSet creates a VisitedSet whose bloom filter is mirrored to a
// memory-mapped file in the OS temp directory.
func NewVisitedSet(estimate uint) (*VisitedSet, error) {
	set := NewMemoryVisitedSet(estimate)

	data, err := set.filter.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal bloom filter: %w", err)
	}

	tmpFile, err := os.CreateTemp("", "linkguardian-visited-*.bloom")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	cleanup := func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}

	if err := tmpFile.Truncate(int64(len(data))); err != nil {
		cleanup()
		return nil, fmt.Errorf("truncate temp file: %w", err)
	}

	mapped, err := mmap.MapRegion(tmpFile, len(data), mmap.RDWR, 0, 0)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("mmap temp file: %w", err)
	}
	copy(mapped, data)

	set.file = tmpFile
	set.mmap = mapped
	set.tmpPath = tmpPath
	set.syncEvery = 1000
	return set, nil
}

// Visit marks key as visited.
func (v *VisitedSet) Visit(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.addLocked(key)
}

// VisitIfNew atomically checks if key is visited and marks it if not.
// Returns true if the key was new.
func (v *VisitedSet) VisitIfNew(key string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.containsLocked(key) {
		return false
	}
	v.addLocked(key)
	return true
}

// Len returns the number of distinct keys visited.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}

func (v *VisitedSet) containsLocked(key string) bool {
	if !v.filter.TestString(key) {
		return false
	}
	_, ok := v.seen[key]
	return ok
}

func (v *VisitedSet) addLocked(key string) {
	v.filter.AddString(key)
	v.seen[key] = struct{}{}

	if v.mmap == nil {
		return
	}
	v.count++
	if v.count >= v.syncEvery {
		// Periodic sync is best-effort; the error surfaces via LastError and Close.
		if err := v.syncLocked(); err != nil {
			v.lastErr = err
		}
	}
}

// syncLocked persists the bloom filter to the mapped file. Must be called with mu held.
func (v *VisitedSet) syncLocked() error {
	data, err := v.filter.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal bloom filter: %w", err)
	}

	if len(data) <= len(v.mmap) {
		copy(v.mmap, data)
	}

	if err := v.mmap.Flush(); err != nil {
		return fmt.Errorf("flush mmap: %w", err)
	}
	v.count = 0
	return nil
}

// Close syncs any pending data and removes the backing file.
// It is safe to call Close more than once.
func (v *VisitedSet) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var errs []error
	if v.lastErr != nil {
		errs = append(errs, v.lastErr)
		v.lastErr = nil
	}

	if v.mmap != nil {
		if v.count > 0 {
			if err := v.syncLocked(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := v.mmap.Unmap(); err != nil {
			errs = append(errs, fmt.Errorf("unmap: %w", err))
		}
		v.mmap = nil
	}

	if v.file != nil {
		if err := v.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close file: %w", err))
		}
		v.file = nil
	}

	if v.tmpPath != "" {
		if err := os.Remove(v.tmpPath); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove temp file: %w", err))
		}
		v.tmpPath = ""
	}

	if len(errs) > 0 {
		return fmt.Errorf("close visited set: %w", errors.Join(errs...))
	}
	return nil
}

// LastError returns the last error encountered during periodic syncs.
func (v *VisitedSet) LastError() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastErr
}
