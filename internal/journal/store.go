// Package journal implements the size-and-age-triggered rollover JSON
// document store shared by the router's internal attempt log and the
// façade's external response history.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Options configures one Store. Invariants are checked once by New; an
// unmet invariant is a ConfigurationError-class failure that should stop
// the process from accepting traffic.
type Options struct {
	Enabled           bool
	FilePath          string
	MaxFileSizeBytes  int64
	MaxFileAge        time.Duration
	RolloverDirectory string

	// RolloverCounter, if set, is incremented once per completed rollover.
	// Callers bind it to a specific label (e.g. WithLabelValues("journal"))
	// before passing it in; nil disables the metric for this store.
	RolloverCounter prometheus.Counter
}

// DefaultMaxFileSizeBytes is used when a configured size expression is
// invalid or absent (documented fallback, see ParseSizeExpression).
const DefaultMaxFileSizeBytes = 10 * 1024 * 1024

// Store is a single on-disk JSON document of type T, guarded by one
// exclusive lock so every read and write is strictly linearizable. T is
// any JSON-serializable document shape; the rollover check looks only at
// the file's size and modification time (see Document for the concrete
// type this module uses).
type Store[T any] struct {
	opts Options
	mu   sync.Mutex
}

// New validates opts and, if enabled, ensures the document file and its
// rollover directory exist. Invalid options (empty path while enabled,
// non-positive size/age while enabled) are a startup failure.
func New[T any](opts Options) (*Store[T], error) {
	if opts.Enabled {
		if opts.FilePath == "" {
			return nil, fmt.Errorf("journal: FilePath must not be empty when enabled")
		}
		if opts.MaxFileSizeBytes <= 0 {
			return nil, fmt.Errorf("journal: MaxFileSizeBytes must be positive when enabled")
		}
		if opts.MaxFileAge <= 0 {
			return nil, fmt.Errorf("journal: MaxFileAge must be positive when enabled")
		}
		if opts.RolloverDirectory == "" {
			opts.RolloverDirectory = filepath.Join(filepath.Dir(opts.FilePath), "rollover")
		}
	}
	s := &Store[T]{opts: opts}
	if err := s.ensureFile(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store[T]) ensureFile() error {
	if !s.opts.Enabled {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.opts.FilePath), 0o755); err != nil {
		return fmt.Errorf("journal: create parent directory: %w", err)
	}
	if err := os.MkdirAll(s.opts.RolloverDirectory, 0o755); err != nil {
		return fmt.Errorf("journal: create rollover directory: %w", err)
	}
	if _, err := os.Stat(s.opts.FilePath); os.IsNotExist(err) {
		var zero T
		return s.writeLocked(zero)
	} else if err != nil {
		return fmt.Errorf("journal: stat document: %w", err)
	}
	return nil
}

// Load returns the current document, or the zero value and ok=false if the
// store is disabled or the document is absent/empty.
func (s *Store[T]) Load() (doc T, ok bool, err error) {
	if !s.opts.Enabled {
		return doc, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store[T]) loadLocked() (doc T, ok bool, err error) {
	data, err := os.ReadFile(s.opts.FilePath)
	if os.IsNotExist(err) {
		return doc, false, nil
	}
	if err != nil {
		return doc, false, fmt.Errorf("journal: read document: %w", err)
	}
	if len(data) == 0 {
		return doc, false, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, false, fmt.Errorf("journal: unmarshal document: %w", err)
	}
	return doc, true, nil
}

// Read is an alias of Load, matching the external operation name.
func (s *Store[T]) Read() (T, bool, error) { return s.Load() }

// Write replaces the document, running RolloverIfNeeded first (rollover
// completes before the write it triggered, per design). When disabled,
// Write silently drops the document.
func (s *Store[T]) Write(doc T) error {
	if !s.opts.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rolloverIfNeededLocked(); err != nil {
		return err
	}
	return s.writeLocked(doc)
}

func (s *Store[T]) writeLocked(doc T) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("journal: marshal document: %w", err)
	}
	tmp := s.opts.FilePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("journal: write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.opts.FilePath); err != nil {
		return fmt.Errorf("journal: rename temp file: %w", err)
	}
	return nil
}

// RolloverIfNeeded moves the document into the rollover directory if its
// size exceeds MaxFileSizeBytes or its age exceeds MaxFileAge, then
// recreates an empty document. No-op when disabled or when neither
// threshold is exceeded.
func (s *Store[T]) RolloverIfNeeded() error {
	if !s.opts.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rolloverIfNeededLocked()
}

func (s *Store[T]) rolloverIfNeededLocked() error {
	info, err := os.Stat(s.opts.FilePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("journal: stat document: %w", err)
	}

	tooBig := info.Size() > s.opts.MaxFileSizeBytes
	tooOld := time.Since(info.ModTime()) > s.opts.MaxFileAge
	if !tooBig && !tooOld {
		return nil
	}
	return s.rolloverLocked()
}

// ForceRollover moves the document into the rollover directory and
// recreates an empty one, unconditionally.
func (s *Store[T]) ForceRollover() error {
	if !s.opts.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rolloverLocked()
}

func (s *Store[T]) rolloverLocked() error {
	if _, err := os.Stat(s.opts.FilePath); os.IsNotExist(err) {
		var zero T
		return s.writeLocked(zero)
	}

	ext := filepath.Ext(s.opts.FilePath)
	stem := strings.TrimSuffix(filepath.Base(s.opts.FilePath), ext)
	// File-rollover suffixes use local time so operators browsing the
	// rollover directory see familiar timestamps (deliberate asymmetry
	// with the UTC bookkeeping everywhere else).
	suffix := time.Now().Format("20060102_150405")
	archiveName := fmt.Sprintf("%s_%s%s", stem, suffix, ext)
	archivePath := filepath.Join(s.opts.RolloverDirectory, archiveName)

	if err := os.Rename(s.opts.FilePath, archivePath); err != nil {
		return fmt.Errorf("journal: rollover move: %w", err)
	}
	if s.opts.RolloverCounter != nil {
		s.opts.RolloverCounter.Inc()
	}

	var zero T
	return s.writeLocked(zero)
}

// ParseSizeExpression parses a size string of the form "N", or
// "N * M * ...", integer literals separated by '*' only. Any parse error
// falls back to DefaultMaxFileSizeBytes.
func ParseSizeExpression(expr string) int64 {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return DefaultMaxFileSizeBytes
	}
	parts := strings.Split(expr, "*")
	var total int64 = 1
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || n <= 0 {
			return DefaultMaxFileSizeBytes
		}
		total *= n
	}
	return total
}

// ParseMaxAgeDays converts a number of days (as found in configuration)
// into a time.Duration. Invalid input falls back to 7 days.
func ParseMaxAgeDays(days string) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(days))
	if err != nil || n <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(n) * 24 * time.Hour
}
