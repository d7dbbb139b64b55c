package settings

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// --- in-memory persister ---

type memPersister struct {
	mu      sync.Mutex
	records []PluginRecord
	saves   int
	loadErr error
	saveErr error
}

func (m *memPersister) Load(ctx context.Context) ([]PluginRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return cloneRecords(m.records), nil
}

func (m *memPersister) Save(ctx context.Context, records []PluginRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records = cloneRecords(records)
	m.saves++
	return nil
}

func (m *memPersister) Close() error { return nil }

// --- helpers ---

func seed() []PluginRecord {
	return []PluginRecord{
		{Name: "alpha", Enabled: true, BackendEntry: "alpha/main.py", FrontendEntry: "alpha/index.js"},
		{Name: "bravo", Enabled: false, FrontendEntry: "bravo/index.js"},
		{Name: "charlie", Enabled: true},
	}
}

func newTestStore(t *testing.T, records []PluginRecord) (*Store, *memPersister) {
	t.Helper()
	p := &memPersister{records: cloneRecords(records)}
	s := NewStore(p, zaptest.NewLogger(t))
	_, err := s.Load(context.Background())
	require.NoError(t, err)
	return s, p
}

func names(records []PluginRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name
	}
	return out
}

// --- Load ---

func TestStore_LoadEmpty(t *testing.T) {
	s, _ := newTestStore(t, nil)
	assert.Empty(t, s.ListAll())
	assert.Empty(t, s.ListEnabled())
	assert.Empty(t, s.ListDisabled())
}

func TestStore_LoadError(t *testing.T) {
	p := &memPersister{loadErr: ErrPersistence}
	s := NewStore(p, nil)

	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestStore_LoadRejectsDuplicates(t *testing.T) {
	p := &memPersister{records: []PluginRecord{{Name: "a"}, {Name: "a"}}}
	s := NewStore(p, nil)

	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, ErrDuplicatePlugin)
}

// --- queries ---

func TestStore_Lists(t *testing.T) {
	s, _ := newTestStore(t, seed())

	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, names(s.ListAll()))
	assert.Equal(t, []string{"alpha", "charlie"}, names(s.ListEnabled()))
	assert.Equal(t, []string{"bravo"}, names(s.ListDisabled()))

	r, ok := s.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha/main.py", r.BackendEntry)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestStore_ListReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t, seed())

	all := s.ListAll()
	all[0].Enabled = false
	all[0].Name = "mutated"

	r, ok := s.Get("alpha")
	require.True(t, ok)
	assert.True(t, r.Enabled)
}

// --- SetEnabled ---

func TestStore_SetEnabled(t *testing.T) {
	tests := []struct {
		name      string
		plugin    string
		enabled   bool
		wantErr   error
		wantSaves int
	}{
		{name: "enable disabled", plugin: "bravo", enabled: true, wantSaves: 1},
		{name: "disable enabled", plugin: "alpha", enabled: false, wantSaves: 1},
		{name: "enable enabled is a no-op", plugin: "alpha", enabled: true, wantSaves: 0},
		{name: "disable disabled is a no-op", plugin: "bravo", enabled: false, wantSaves: 0},
		{name: "unknown plugin", plugin: "nonexistent", enabled: false, wantErr: ErrPluginNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, p := newTestStore(t, seed())
			before := s.ListAll()

			err := s.SetEnabled(context.Background(), tt.plugin, tt.enabled)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, s.ListAll())
				assert.Equal(t, 0, p.saves)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSaves, p.saves)

			r, _ := s.Get(tt.plugin)
			assert.Equal(t, tt.enabled, r.Enabled)
			assert.Equal(t, names(before), names(s.ListAll()))
			assert.Equal(t, s.ListAll(), p.records, "persisted state matches memory")
		})
	}
}

func TestStore_SetEnabledSaveFailureKeepsState(t *testing.T) {
	s, p := newTestStore(t, seed())
	p.saveErr = errors.Join(ErrPersistence, errors.New("disk full"))

	err := s.SetEnabled(context.Background(), "bravo", true)
	assert.ErrorIs(t, err, ErrPersistence)

	r, _ := s.Get("bravo")
	assert.False(t, r.Enabled)
}

func TestStore_SetEnabledLoadsLazily(t *testing.T) {
	p := &memPersister{records: seed()}
	s := NewStore(p, nil)

	require.NoError(t, s.SetEnabled(context.Background(), "bravo", true))
	assert.Len(t, s.ListEnabled(), 3)
}

func TestStore_ConcurrentSetEnabled(t *testing.T) {
	s, p := newTestStore(t, seed())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.SetEnabled(context.Background(), "bravo", i%2 == 0))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, names(s.ListAll()))
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, names(p.records))
}

// --- Save / Add ---

func TestStore_SaveValidates(t *testing.T) {
	s, p := newTestStore(t, nil)

	err := s.Save(context.Background(), []PluginRecord{{Name: "x"}, {Name: "x"}})
	assert.ErrorIs(t, err, ErrDuplicatePlugin)
	assert.Equal(t, 0, p.saves)

	err = s.Save(context.Background(), []PluginRecord{{Name: ""}})
	assert.Error(t, err)
}

func TestStore_Add(t *testing.T) {
	s, p := newTestStore(t, seed())

	require.NoError(t, s.Add(context.Background(), PluginRecord{Name: "delta"}))
	assert.Equal(t, []string{"alpha", "bravo", "charlie", "delta"}, names(p.records))

	err := s.Add(context.Background(), PluginRecord{Name: "alpha"})
	assert.ErrorIs(t, err, ErrDuplicatePlugin)
}

// --- Reconcile ---

func TestStore_Reconcile(t *testing.T) {
	s, p := newTestStore(t, seed())

	discovered := []PluginRecord{
		{Name: "alpha", BackendEntry: "new/main.py", FrontendEntry: "alpha/index.js"},
		{Name: "delta", Enabled: true, FrontendEntry: "delta/index.js"},
	}
	stale, err := s.Reconcile(context.Background(), discovered)
	require.NoError(t, err)

	// bravo (disabled) is dropped, charlie (enabled) kept; both reported.
	assert.Equal(t, []string{"bravo", "charlie"}, stale)
	assert.Equal(t, []string{"alpha", "charlie", "delta"}, names(s.ListAll()))

	alpha, _ := s.Get("alpha")
	assert.True(t, alpha.Enabled)
	assert.Equal(t, "new/main.py", alpha.BackendEntry)

	delta, _ := s.Get("delta")
	assert.False(t, delta.Enabled, "newly discovered plugins start disabled")
	assert.Equal(t, s.ListAll(), p.records)
}

func TestStore_ReconcileUnchangedDoesNotSave(t *testing.T) {
	s, p := newTestStore(t, seed())

	stale, err := s.Reconcile(context.Background(), seed())
	require.NoError(t, err)
	assert.Empty(t, stale)
	assert.Equal(t, 0, p.saves)
}
