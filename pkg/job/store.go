package job

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// purgeInterval is the minimum spacing between purge passes. Purging is not
// a background timer: every mutating call checks whether a pass is due and,
// if so, runs one synchronously before returning.
const purgeInterval = 60 * time.Second

// DefaultRetention is how long completed jobs stay retrievable.
const DefaultRetention = 60 * time.Minute

// StoreConfig configures a Store.
type StoreConfig struct {
	// CacheDir is the directory holding one JSON file per completed job,
	// named by job id. Created if missing.
	CacheDir string

	// Retention is how long completed jobs stay retrievable in memory and
	// on disk. Zero means DefaultRetention.
	Retention time.Duration
}

// Store owns the in-memory map of live jobs and the on-disk cache backing
// it across restarts.
//
// The Store is the sole owner of job records: all mutation goes through
// Transition, and lookups return copies. The map lock covers map operations
// only; disk writes and any backend calls happen outside it.
type Store struct {
	cacheDir  string
	retention time.Duration
	logger    *zap.Logger
	clock     func() time.Time

	mu        sync.Mutex
	jobs      map[string]*Record
	lastPurge time.Time
}

// NewStore creates a Store rooted at cfg.CacheDir and hydrates it from the
// cache: files past retention are deleted, the rest are loaded into memory,
// and corrupt files are deleted unconditionally.
func NewStore(cfg StoreConfig, logger *zap.Logger) (*Store, error) {
	dir := strings.TrimSpace(cfg.CacheDir)
	if dir == "" {
		return nil, fmt.Errorf("job cache dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job cache dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}

	s := &Store{
		cacheDir:  dir,
		retention: retention,
		logger:    logger,
		clock:     time.Now,
		jobs:      make(map[string]*Record),
	}
	s.hydrate()
	return s, nil
}

// CacheDir returns the directory backing the store.
func (s *Store) CacheDir() string {
	return s.cacheDir
}

// Len returns the number of jobs currently held in memory.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Submit assigns identity to the record, seeds state received, and inserts
// it into the map. It returns immediately; execution is dispatched by the
// caller. The returned record is a copy.
func (s *Store) Submit(rec *Record) (*Record, error) {
	if rec == nil {
		return nil, fmt.Errorf("record is nil")
	}
	rec.ID = uuid.NewString()
	rec.State = StateReceived
	rec.RequestedAt = s.clock().UTC()
	if err := rec.validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.jobs[rec.ID] = rec
	out := rec.clone()
	purgeDue := s.maybePurgeLocked()
	s.mu.Unlock()

	if purgeDue {
		s.purgeDisk()
	}
	return out, nil
}

// Get returns a copy of the job with the given id. On a memory miss it
// attempts disk hydration; a corrupt or unrecognizable cache file is deleted
// and reported as not found.
func (s *Store) Get(id string) (*Record, bool) {
	s.mu.Lock()
	if rec, ok := s.jobs[id]; ok {
		out := rec.clone()
		s.mu.Unlock()
		return out, true
	}
	s.mu.Unlock()

	path, ok := s.cachePath(id)
	if !ok {
		return nil, false
	}
	rec, err := readCacheFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("discarding unreadable job cache file",
				zap.String("path", path),
				zap.Error(err))
			_ = os.Remove(path)
		}
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another goroutine may have hydrated the same id in the meantime.
	if existing, ok := s.jobs[rec.ID]; ok {
		return existing.clone(), true
	}
	s.jobs[rec.ID] = rec
	return rec.clone(), true
}

// Update mutates a single field group of a record during a transition.
type Update func(*Record)

// WithRemote records the backend operation id and its last observed phase.
func WithRemote(id, phase string) Update {
	return func(r *Record) {
		r.Result.RemoteID = id
		r.Result.RemotePhase = phase
	}
}

// WithRemotePhase records the last observed backend phase.
func WithRemotePhase(phase string) Update {
	return func(r *Record) { r.Result.RemotePhase = phase }
}

// WithOutput records trailing diagnostic text from the backend.
func WithOutput(text string) Update {
	return func(r *Record) { r.Result.Output = text }
}

// WithError records failure detail.
func WithError(detail string) Update {
	return func(r *Record) { r.Result.Error = detail }
}

// WithDocChanges records the documentation notes emitted for the change.
func WithDocChanges(notes []string) Update {
	return func(r *Record) { r.Result.DocChanges = append([]string(nil), notes...) }
}

// WithChild appends a sub-job id.
func WithChild(id string) Update {
	return func(r *Record) { r.Children = append(r.Children, id) }
}

// WithSteps records the per-step outcomes of an orchestration job.
func WithSteps(steps []StepOutcome) Update {
	return func(r *Record) { r.Result.Steps = append([]StepOutcome(nil), steps...) }
}

// Transition is the only mutation entry point. It sets the state, overwrites
// the message when one is given, and applies the field updates. The first
// transition into a terminal state stamps CompletedAt and synchronously
// flushes the record to disk; any transition attempted on an already
// terminal job is an idempotent no-op.
func (s *Store) Transition(id string, state State, message string, updates ...Update) (*Record, bool) {
	s.mu.Lock()
	rec, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	if rec.State.Terminal() {
		out := rec.clone()
		s.mu.Unlock()
		return out, true
	}

	rec.State = state
	if message != "" {
		rec.Message = message
	}
	for _, u := range updates {
		u(rec)
	}

	var flush *Record
	if state.Terminal() {
		now := s.clock().UTC()
		rec.CompletedAt = &now
		flush = rec.clone()
	}
	out := rec.clone()
	purgeDue := s.maybePurgeLocked()
	s.mu.Unlock()

	if flush != nil {
		s.persist(flush)
	}
	if purgeDue {
		s.purgeDisk()
	}
	return out, true
}

// Purge evicts completed jobs older than the retention window from memory
// and deletes their cache files. Files for jobs that never completed are
// left alone; only completed jobs occupy disk.
func (s *Store) Purge() {
	s.mu.Lock()
	s.purgeMemoryLocked()
	s.lastPurge = s.clock()
	s.mu.Unlock()
	s.purgeDisk()
}

// maybePurgeLocked runs the in-memory purge pass if one is due and reports
// whether the caller should follow up with the disk pass after unlocking.
func (s *Store) maybePurgeLocked() bool {
	now := s.clock()
	if !s.lastPurge.IsZero() && now.Sub(s.lastPurge) < purgeInterval {
		return false
	}
	s.purgeMemoryLocked()
	s.lastPurge = now
	return true
}

func (s *Store) purgeMemoryLocked() {
	cutoff := s.clock().UTC().Add(-s.retention)
	for id, rec := range s.jobs {
		if rec.CompletedAt != nil && rec.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}

func (s *Store) purgeDisk() {
	cutoff := s.clock().UTC().Add(-s.retention)
	entries, err := os.ReadDir(s.cacheDir)
	if err != nil {
		s.logger.Warn("read job cache dir", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.cacheDir, entry.Name())
		rec, err := readCacheFile(path)
		if err != nil {
			s.logger.Warn("deleting corrupt job cache file",
				zap.String("path", path),
				zap.Error(err))
			_ = os.Remove(path)
			continue
		}
		if rec.CompletedAt != nil && rec.CompletedAt.Before(cutoff) {
			_ = os.Remove(path)
		}
	}
}

// hydrate loads the cache directory at startup.
func (s *Store) hydrate() {
	cutoff := s.clock().UTC().Add(-s.retention)
	entries, err := os.ReadDir(s.cacheDir)
	if err != nil {
		s.logger.Warn("read job cache dir", zap.Error(err))
		return
	}
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.cacheDir, entry.Name())
		rec, err := readCacheFile(path)
		if err != nil {
			s.logger.Warn("deleting corrupt job cache file",
				zap.String("path", path),
				zap.Error(err))
			_ = os.Remove(path)
			continue
		}
		if rec.CompletedAt != nil && rec.CompletedAt.Before(cutoff) {
			_ = os.Remove(path)
			continue
		}
		s.jobs[rec.ID] = rec
		loaded++
	}
	if loaded > 0 {
		s.logger.Info("hydrated job cache", zap.Int("jobs", loaded))
	}
}

// persist writes the record to its cache file with a write-temp-then-rename
// so a concurrent reader never observes a partial file. Persistence failures
// are logged, never propagated: an unpersisted completed job is a durability
// gap, not a job failure.
func (s *Store) persist(rec *Record) {
	path, ok := s.cachePath(rec.ID)
	if !ok {
		return
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		s.logger.Error("marshal job record", zap.String("job_id", rec.ID), zap.Error(err))
		return
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(s.cacheDir, rec.ID+".tmp.*")
	if err != nil {
		s.logger.Error("create temp cache file", zap.String("job_id", rec.ID), zap.Error(err))
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		s.logger.Error("write temp cache file", zap.String("job_id", rec.ID), zap.Error(err))
		return
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		s.logger.Error("close temp cache file", zap.String("job_id", rec.ID), zap.Error(err))
		return
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		s.logger.Error("rename cache file", zap.String("job_id", rec.ID), zap.Error(err))
	}
}

// cachePath returns the cache file for a job id. Ids containing path
// separators never address a file.
func (s *Store) cachePath(id string) (string, bool) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", false
	}
	return filepath.Join(s.cacheDir, id+".json"), true
}

func readCacheFile(path string) (*Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("cache file is empty")
	}
	var rec Record
	if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
		return nil, fmt.Errorf("parse cache file: %w", err)
	}
	if err := rec.validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}
