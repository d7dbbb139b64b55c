package settings

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Store is the in-memory view of the registry backed by a Persister.
//
// Queries never touch the persister. Every mutation is saved synchronously
// before it becomes visible to queries.
type Store struct {
	persister Persister
	logger    *zap.Logger

	mu      sync.RWMutex
	records []PluginRecord
	loaded  bool
}

// NewStore creates a Store. Nothing is read until Load or the first mutation.
func NewStore(persister Persister, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		persister: persister,
		logger:    logger.With(zap.String("component", "settings_store")),
	}
}

// Load reads the registry from the persister, replacing the in-memory copy.
func (s *Store) Load(ctx context.Context) ([]PluginRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx); err != nil {
		return nil, err
	}
	return cloneRecords(s.records), nil
}

func (s *Store) loadLocked(ctx context.Context) error {
	records, err := s.persister.Load(ctx)
	if err != nil {
		return err
	}
	if err := validateRecords(records); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.records = records
	s.loaded = true
	s.logger.Debug("registry loaded", zap.Int("plugins", len(records)))
	return nil
}

func (s *Store) ensureLoadedLocked(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	return s.loadLocked(ctx)
}

// Save persists records as the whole registry and makes them current.
func (s *Store) Save(ctx context.Context, records []PluginRecord) error {
	if err := validateRecords(records); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, cloneRecords(records))
}

func (s *Store) saveLocked(ctx context.Context, records []PluginRecord) error {
	if err := s.persister.Save(ctx, records); err != nil {
		return err
	}
	s.records = records
	s.loaded = true
	return nil
}

// SetEnabled flips the enabled flag of the named plugin. Setting the flag to
// its current value succeeds without writing.
func (s *Store) SetEnabled(ctx context.Context, name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}

	i := indexOf(s.records, name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	if s.records[i].Enabled == enabled {
		return nil
	}

	next := cloneRecords(s.records)
	next[i].Enabled = enabled
	if err := s.saveLocked(ctx, next); err != nil {
		return err
	}

	s.logger.Info("plugin state changed",
		zap.String("name", name),
		zap.Bool("enabled", enabled))
	return nil
}

// Add appends a new record to the registry.
func (s *Store) Add(ctx context.Context, record PluginRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	if indexOf(s.records, record.Name) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, record.Name)
	}

	next := append(cloneRecords(s.records), record)
	if err := validateRecords(next); err != nil {
		return err
	}
	return s.saveLocked(ctx, next)
}

// Reconcile merges the result of an on-disk scan into the registry.
//
// Newly discovered plugins are appended disabled. Known plugins get their
// entry points refreshed and keep their enabled flag. Records missing from
// discovered are stale: disabled ones are dropped, enabled ones are kept.
// The names of all stale records are returned.
func (s *Store) Reconcile(ctx context.Context, discovered []PluginRecord) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}

	onDisk := make(map[string]PluginRecord, len(discovered))
	for _, d := range discovered {
		onDisk[d.Name] = d
	}

	var (
		stale   []string
		changed bool
		next    = make([]PluginRecord, 0, len(s.records)+len(discovered))
	)
	for _, r := range s.records {
		d, ok := onDisk[r.Name]
		if !ok {
			stale = append(stale, r.Name)
			if !r.Enabled {
				s.logger.Info("dropping stale plugin", zap.String("name", r.Name))
				changed = true
				continue
			}
			s.logger.Warn("enabled plugin missing on disk", zap.String("name", r.Name))
			next = append(next, r)
			continue
		}
		if d.BackendEntry != r.BackendEntry || d.FrontendEntry != r.FrontendEntry {
			r.BackendEntry = d.BackendEntry
			r.FrontendEntry = d.FrontendEntry
			changed = true
		}
		next = append(next, r)
	}
	for _, d := range discovered {
		if indexOf(next, d.Name) >= 0 {
			continue
		}
		d.Enabled = false
		next = append(next, d)
		changed = true
		s.logger.Info("plugin discovered", zap.String("name", d.Name))
	}

	if !changed {
		return stale, nil
	}
	if err := validateRecords(next); err != nil {
		return stale, err
	}
	return stale, s.saveLocked(ctx, next)
}

// Get returns the record with the given name.
func (s *Store) Get(name string) (PluginRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.records, name)
	if i < 0 {
		return PluginRecord{}, false
	}
	return s.records[i], true
}

// ListAll returns every record in insertion order.
func (s *Store) ListAll() []PluginRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRecords(s.records)
}

// ListEnabled returns the enabled records in insertion order.
func (s *Store) ListEnabled() []PluginRecord {
	return s.filter(true)
}

// ListDisabled returns the disabled records in insertion order.
func (s *Store) ListDisabled() []PluginRecord {
	return s.filter(false)
}

func (s *Store) filter(enabled bool) []PluginRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PluginRecord, 0, len(s.records))
	for _, r := range s.records {
		if r.Enabled == enabled {
			out = append(out, r)
		}
	}
	return out
}

// Close releases the persister.
func (s *Store) Close() error {
	return s.persister.Close()
}
