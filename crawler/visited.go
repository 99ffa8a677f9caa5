package crawler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	bloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/edsrzf/mmap-go"

	"github.com/lukemcguire/linkcrawl/config"
)

// falsePositiveRate is the target error rate of BloomVisited.
const falsePositiveRate = 0.001

// VisitedSet records the URLs a run has already queued. VisitIfNew must be
// an atomic check-and-insert.
type VisitedSet interface {
	// VisitIfNew marks key visited and reports whether it was new.
	VisitIfNew(key string) bool
	// Len returns the number of keys added by this run.
	Len() int
	Close() error
}

// NewVisitedSet creates the visited set selected by cfg.
func NewVisitedSet(cfg config.Config) (VisitedSet, error) {
	switch cfg.VisitedStore {
	case config.VisitedBloom:
		return NewBloomVisited(cfg.VisitedCapacity, cfg.VisitedFile)
	case config.VisitedMemory, "":
		return NewMemoryVisited(), nil
	default:
		return nil, fmt.Errorf("unknown visited store %q", cfg.VisitedStore)
	}
}

// MemoryVisited is an exact in-memory VisitedSet scoped to one run.
type MemoryVisited struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryVisited creates an empty MemoryVisited.
func NewMemoryVisited() *MemoryVisited {
	return &MemoryVisited{seen: make(map[string]struct{})}
}

// VisitIfNew implements VisitedSet.
func (m *MemoryVisited) VisitIfNew(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[key]; ok {
		return false
	}
	m.seen[key] = struct{}{}
	return true
}

// Len implements VisitedSet.
func (m *MemoryVisited) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

// Close implements VisitedSet.
func (m *MemoryVisited) Close() error { return nil }

// BloomVisited is a disk-backed bloom filter VisitedSet with a constant
// memory footprint. Bloom filters have false positives but no false
// negatives: a small share of new URLs may be treated as already visited.
//
// Given a path, the filter is loaded from and saved to that file, so URLs
// seen in earlier runs are skipped. Otherwise it lives in a temporary file
// removed on Close.
type BloomVisited struct {
	mu        sync.Mutex
	filter    *bloom.BloomFilter
	file      *os.File
	mmap      mmap.MMap
	tmpPath   string // Removed on Close; empty for persisted filters
	added     int
	unsynced  uint64
	syncEvery uint64
	lastErr   error
}

// NewBloomVisited creates a BloomVisited sized for capacity URLs. path may
// be empty.
func NewBloomVisited(capacity uint, path string) (*BloomVisited, error) {
	if capacity == 0 {
		capacity = 100000
	}

	var (
		file    *os.File
		tmpPath string
		err     error
	)
	if path != "" {
		file, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open visited file: %w", err)
		}
	} else {
		file, err = os.CreateTemp("", "linkcrawl-visited-*.bloom")
		if err != nil {
			return nil, fmt.Errorf("create temp file: %w", err)
		}
		tmpPath = file.Name()
	}

	cleanup := func() {
		_ = file.Close()
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}

	filter, err := loadFilter(file, capacity)
	if err != nil {
		cleanup()
		return nil, err
	}

	size, err := filter.WriteTo(io.Discard)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("size bloom filter: %w", err)
	}
	if err := file.Truncate(size); err != nil {
		cleanup()
		return nil, fmt.Errorf("truncate visited file: %w", err)
	}

	mapped, err := mmap.MapRegion(file, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("mmap visited file: %w", err)
	}

	b := &BloomVisited{
		filter:    filter,
		file:      file,
		mmap:      mapped,
		tmpPath:   tmpPath,
		syncEvery: 1000,
	}
	if err := b.syncLocked(); err != nil {
		_ = mapped.Unmap()
		cleanup()
		return nil, err
	}
	return b, nil
}

// loadFilter reads a filter saved by an earlier run, or creates a new one
// when the file is empty.
func loadFilter(file *os.File, capacity uint) (*bloom.BloomFilter, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat visited file: %w", err)
	}
	if info.Size() == 0 {
		return bloom.NewWithEstimates(capacity, falsePositiveRate), nil
	}

	filter := &bloom.BloomFilter{}
	if _, err := filter.ReadFrom(file); err != nil {
		return nil, fmt.Errorf("read visited file %s: %w", file.Name(), err)
	}
	return filter, nil
}

// VisitIfNew implements VisitedSet.
func (b *BloomVisited) VisitIfNew(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.filter.TestOrAddString(key) {
		return false
	}
	b.added++
	b.unsynced++

	if b.unsynced >= b.syncEvery {
		// Periodic sync is best-effort; the error surfaces on Close
		if err := b.syncLocked(); err != nil {
			b.lastErr = err
		}
	}
	return true
}

// Len implements VisitedSet.
func (b *BloomVisited) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.added
}

// syncLocked writes the filter through the mapping. Must be called with mu held.
func (b *BloomVisited) syncLocked() error {
	var buf bytes.Buffer
	buf.Grow(len(b.mmap))
	if _, err := b.filter.WriteTo(&buf); err != nil {
		return fmt.Errorf("serialize bloom filter: %w", err)
	}
	if buf.Len() > len(b.mmap) {
		return fmt.Errorf("bloom filter (%d bytes) exceeds mapping (%d bytes)", buf.Len(), len(b.mmap))
	}
	copy(b.mmap, buf.Bytes())

	if err := b.mmap.Flush(); err != nil {
		return fmt.Errorf("flush mmap: %w", err)
	}
	b.unsynced = 0
	return nil
}

// Close saves the filter and releases its file. Temporary files are removed.
func (b *BloomVisited) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	if b.lastErr != nil {
		errs = append(errs, b.lastErr)
	}

	if b.mmap != nil {
		if b.unsynced > 0 {
			if err := b.syncLocked(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := b.mmap.Unmap(); err != nil {
			errs = append(errs, fmt.Errorf("unmap: %w", err))
		}
		b.mmap = nil
	}

	if b.file != nil {
		if err := b.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close file: %w", err))
		}
		b.file = nil
	}

	if b.tmpPath != "" {
		if err := os.Remove(b.tmpPath); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove temp file: %w", err))
		}
		b.tmpPath = ""
	}

	if len(errs) > 0 {
		return fmt.Errorf("close visited set: %w", errors.Join(errs...))
	}
	return nil
}
