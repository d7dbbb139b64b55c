package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func recordsGen() *rapid.Generator[[]PluginRecord] {
	return rapid.Custom(func(t *rapid.T) []PluginRecord {
		ns := rapid.SliceOfNDistinct(
			rapid.StringMatching(`[a-z][a-z0-9-]{0,11}`), 0, 8, rapid.ID[string],
		).Draw(t, "names")
		records := make([]PluginRecord, len(ns))
		for i, n := range ns {
			records[i] = PluginRecord{
				Name:          n,
				Enabled:       rapid.Bool().Draw(t, fmt.Sprintf("enabled_%d", i)),
				BackendEntry:  rapid.StringMatching(`[a-zA-Z0-9/._ -]{0,20}`).Draw(t, fmt.Sprintf("backend_%d", i)),
				FrontendEntry: rapid.StringMatching(`[a-zA-Z0-9/._ -]{0,20}`).Draw(t, fmt.Sprintf("frontend_%d", i)),
			}
		}
		return records
	})
}

func checkPartition(t require.TestingT, s *Store) {
	all := s.ListAll()
	enabled := s.ListEnabled()
	disabled := s.ListDisabled()

	require.Equal(t, len(all), len(enabled)+len(disabled))

	seen := make(map[string]bool, len(all))
	for _, r := range enabled {
		require.True(t, r.Enabled)
		seen[r.Name] = true
	}
	for _, r := range disabled {
		require.False(t, r.Enabled)
		require.False(t, seen[r.Name], "%s is both enabled and disabled", r.Name)
		seen[r.Name] = true
	}
	for _, r := range all {
		require.True(t, seen[r.Name], "%s missing from enabled and disabled", r.Name)
	}
}

// Enabled and disabled lists partition the registry after any sequence of
// enable/disable operations, including ones naming unknown plugins.
func TestProperty_Store_EnabledDisabledPartition(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		records := recordsGen().Draw(rt, "records")
		s := NewStore(&memPersister{records: records}, nil)
		_, err := s.Load(context.Background())
		require.NoError(rt, err)

		candidates := append(names(records), "nonexistent")
		ops := rapid.IntRange(0, 30).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			name := rapid.SampledFrom(candidates).Draw(rt, fmt.Sprintf("name_%d", i))
			enabled := rapid.Bool().Draw(rt, fmt.Sprintf("enable_%d", i))
			_ = s.SetEnabled(context.Background(), name, enabled)
			checkPartition(rt, s)
			require.Equal(rt, names(records), names(s.ListAll()), "order and membership are stable")
		}
	})
}

// Repeating an enable or disable leaves the observable state unchanged.
func TestProperty_Store_SetEnabledIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		records := recordsGen().Filter(func(r []PluginRecord) bool { return len(r) > 0 }).Draw(rt, "records")
		p := &memPersister{records: records}
		s := NewStore(p, nil)
		_, err := s.Load(context.Background())
		require.NoError(rt, err)

		name := rapid.SampledFrom(names(records)).Draw(rt, "name")
		enabled := rapid.Bool().Draw(rt, "enabled")

		require.NoError(rt, s.SetEnabled(context.Background(), name, enabled))
		once := s.ListAll()
		saves := p.saves

		require.NoError(rt, s.SetEnabled(context.Background(), name, enabled))
		require.Equal(rt, once, s.ListAll())
		require.Equal(rt, saves, p.saves)
	})
}

// Save followed by Load through the YAML file reproduces the exact sequence.
func TestProperty_FilePersister_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	var seq atomic.Int64

	rapid.Check(t, func(rt *rapid.T) {
		records := recordsGen().Draw(rt, "records")
		path := filepath.Join(dir, fmt.Sprintf("registry-%d.yaml", seq.Add(1)))

		s := NewStore(NewFilePersister(path), nil)
		require.NoError(rt, s.Save(context.Background(), records))

		loaded, err := NewStore(NewFilePersister(path), nil).Load(context.Background())
		require.NoError(rt, err)
		require.Equal(rt, records, loaded)
	})
}

// Disabling an unknown plugin fails with ErrPluginNotFound and changes nothing.
func TestProperty_Store_UnknownPluginUnchanged(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		records := recordsGen().Draw(rt, "records")
		p := &memPersister{records: records}
		s := NewStore(p, nil)
		_, err := s.Load(context.Background())
		require.NoError(rt, err)

		err = s.SetEnabled(context.Background(), "Nonexistent", false)
		require.ErrorIs(rt, err, ErrPluginNotFound)
		require.Equal(rt, records, s.ListAll())
		require.Equal(rt, 0, p.saves)
	})
}
