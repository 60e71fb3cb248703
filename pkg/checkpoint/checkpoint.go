package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"notecrawler/pkg/logger"
)

// IncompleteSuffix replaces the checkpoint's extension to name the sidecar
// listing items whose detail fetch failed and that will be retried on the
// next run, e.g. processed_ids.json and processed_ids.incomplete.json
const IncompleteSuffix = ".incomplete.json"

// Store is the set of processed item ids for the whole crawl. It is shared
// by every account and every run and only ever grows.
type Store struct {
	path   string
	logger logger.Logger

	mu         sync.RWMutex
	processed  map[string]struct{}
	incomplete map[string]struct{}
	claimed    map[string]struct{}
	dirty      bool
}

// Info summarises a checkpoint on disk
type Info struct {
	Path       string
	Processed  int
	Incomplete int
	UpdatedAt  time.Time
}

// Open loads the checkpoint at path. A missing file yields an empty store;
// a corrupt one is an error so a bad file never silently restarts the crawl.
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	s := &Store{
		path:       path,
		logger:     log.WithField("component", "checkpoint"),
		processed:  make(map[string]struct{}),
		incomplete: make(map[string]struct{}),
		claimed:    make(map[string]struct{}),
	}

	ids, err := readIDs(path)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		s.processed[id] = struct{}{}
	}

	pending, err := readIDs(s.IncompletePath())
	if err != nil {
		return nil, err
	}
	for _, id := range pending {
		if _, done := s.processed[id]; !done {
			s.incomplete[id] = struct{}{}
		}
	}

	s.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"path":       path,
		"processed":  len(s.processed),
		"incomplete": len(s.incomplete),
	})
	return s, nil
}

func readIDs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", path, err)
	}
	return ids, nil
}

// Path returns the checkpoint file location
func (s *Store) Path() string {
	return s.path
}

// IncompletePath returns the sidecar location
func (s *Store) IncompletePath() string {
	return strings.TrimSuffix(s.path, filepath.Ext(s.path)) + IncompleteSuffix
}

// Contains reports whether id has been processed
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processed[id]
	return ok
}

// Claim reserves id for the caller until it is added or released. It fails
// when id is processed or already claimed, so concurrent account passes
// never fetch the same item.
func (s *Store) Claim(id string) bool {
	if id == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.processed[id]; done {
		return false
	}
	if _, taken := s.claimed[id]; taken {
		return false
	}
	s.claimed[id] = struct{}{}
	return true
}

// Release gives up claims on ids that were not written
func (s *Store) Release(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.claimed, id)
	}
}

// Add marks ids as processed. They leave the incomplete list and the
// claimed set if present.
func (s *Store) Add(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if id == "" {
			continue
		}
		delete(s.claimed, id)
		if _, ok := s.processed[id]; !ok {
			s.processed[id] = struct{}{}
			s.dirty = true
		}
		if _, ok := s.incomplete[id]; ok {
			delete(s.incomplete, id)
			s.dirty = true
		}
	}
}

// MarkIncomplete records that id could not be enriched. It stays out of the
// processed set so the next run fetches it again.
func (s *Store) MarkIncomplete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.processed[id]; done || id == "" {
		return
	}
	if _, ok := s.incomplete[id]; !ok {
		s.incomplete[id] = struct{}{}
		s.dirty = true
	}
}

// IsIncomplete reports whether id is waiting for a retry
func (s *Store) IsIncomplete(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.incomplete[id]
	return ok
}

// Len returns the number of processed ids
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processed)
}

// IncompleteIDs returns the pending ids in sorted order
func (s *Store) IncompleteIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.incomplete)
}

// Save persists the set, sorted, replacing the file atomically. The
// incomplete sidecar is written alongside it, or removed when empty.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	if err := writeJSONAtomic(s.path, sortedKeys(s.processed)); err != nil {
		return err
	}

	sidecar := s.IncompletePath()
	if len(s.incomplete) == 0 {
		if err := os.Remove(sidecar); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove incomplete list: %w", err)
		}
	} else if err := writeJSONAtomic(sidecar, sortedKeys(s.incomplete)); err != nil {
		return err
	}

	s.dirty = false
	s.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"processed":  len(s.processed),
		"incomplete": len(s.incomplete),
	})
	return nil
}

// Dirty reports whether there are changes not yet saved
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// writeJSONAtomic writes v through a temporary file and renames it over path
func writeJSONAtomic(path string, v interface{}) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}
	tempPath := tmp.Name()

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stat reads the checkpoint at path without keeping it open
func Stat(path string) (*Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat checkpoint: %w", err)
	}

	s, err := Open(path, logger.NewNopLogger())
	if err != nil {
		return nil, err
	}
	return &Info{
		Path:       path,
		Processed:  s.Len(),
		Incomplete: len(s.IncompleteIDs()),
		UpdatedAt:  st.ModTime(),
	}, nil
}
