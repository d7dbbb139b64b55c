package manager

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/BaSui01/millennium/settings"
	"github.com/BaSui01/millennium/testutil/fixtures"
)

func newFileManager(t testing.TB, records []settings.PluginRecord) (*Manager, string) {
	t.Helper()
	dir, err := os.MkdirTemp("", "millennium-manager-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "plugins.yaml")
	if records != nil {
		fixtures.SeedFile(t, path, records)
	}

	cfg := settings.DefaultConfig()
	cfg.Path = path
	cfg.PluginsDir = filepath.Join(dir, "plugins")
	return New(cfg, nil), path
}

func names(records []settings.PluginRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name
	}
	return out
}

func TestManager_List(t *testing.T) {
	m, _ := newFileManager(t, fixtures.PluginRecords())
	ctx := context.Background()

	all, err := m.ListAllPlugins(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, names(all))

	enabled, err := m.ListEnabledPlugins(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "charlie"}, names(enabled))

	disabled, err := m.ListDisabledPlugins(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bravo"}, names(disabled))
}

func TestManager_ListMissingRegistry(t *testing.T) {
	m, _ := newFileManager(t, nil)

	all, err := m.ListAllPlugins(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestManager_EnableDisablePersist(t *testing.T) {
	m, path := newFileManager(t, fixtures.PluginRecords())
	ctx := context.Background()

	require.NoError(t, m.EnablePlugin(ctx, "bravo"))
	require.NoError(t, m.DisablePlugin(ctx, "alpha"))

	// 重新读取文件验证持久化
	records, err := settings.NewFilePersister(path).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, names(records))
	assert.False(t, records[0].Enabled)
	assert.True(t, records[1].Enabled)
	assert.True(t, records[2].Enabled)
}

func TestManager_Idempotent(t *testing.T) {
	m, _ := newFileManager(t, fixtures.PluginRecords())
	ctx := context.Background()

	require.NoError(t, m.EnablePlugin(ctx, "alpha"))
	require.NoError(t, m.EnablePlugin(ctx, "alpha"))

	enabled, err := m.ListEnabledPlugins(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "charlie"}, names(enabled))
}

func TestManager_UnknownPlugin(t *testing.T) {
	m, _ := newFileManager(t, fixtures.PluginRecords())

	err := m.EnablePlugin(context.Background(), "ghost")
	assert.ErrorIs(t, err, settings.ErrPluginNotFound)

	err = m.DisablePlugin(context.Background(), "ghost")
	assert.ErrorIs(t, err, settings.ErrPluginNotFound)
}

func TestManager_CorruptRegistry(t *testing.T) {
	m, path := newFileManager(t, nil)
	require.NoError(t, os.WriteFile(path, []byte("plugins: [: not yaml"), 0o644))

	_, err := m.ListAllPlugins(context.Background())
	assert.ErrorIs(t, err, settings.ErrPersistence)

	err = m.EnablePlugin(context.Background(), "alpha")
	assert.ErrorIs(t, err, settings.ErrPersistence)
}

func TestManager_UnknownDriver(t *testing.T) {
	m := New(settings.Config{Driver: "etcd"}, zaptest.NewLogger(t))

	_, err := m.ListAllPlugins(context.Background())
	assert.ErrorContains(t, err, "unknown settings driver")
}

func TestManager_Rescan(t *testing.T) {
	m, _ := newFileManager(t, []settings.PluginRecord{
		{Name: "old-enabled", Enabled: true},
		{Name: "old-disabled"},
	})
	ctx := context.Background()

	pluginDir := filepath.Join(m.cfg.PluginsDir, "fresh")
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, settings.ManifestFile),
		[]byte("name: fresh\nfrontend: index.js\n"), 0o644))

	stale, err := m.Rescan(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"old-enabled", "old-disabled"}, stale)

	all, err := m.ListAllPlugins(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, names(all))
	assert.False(t, all[0].Enabled)
	assert.Equal(t, filepath.Join(pluginDir, "index.js"), all[0].FrontendEntry)
}

func installPlugin(t *testing.T, pluginsDir, name string) {
	t.Helper()
	dir := filepath.Join(pluginsDir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, settings.ManifestFile),
		[]byte("frontend: index.js\n"), 0o644))
}

func TestManager_StaleListings(t *testing.T) {
	m, _ := newFileManager(t, []settings.PluginRecord{
		{Name: "alpha", Enabled: true},
		{Name: "bravo"},
		{Name: "charlie", Enabled: true},
		{Name: "delta"},
	})
	installPlugin(t, m.cfg.PluginsDir, "alpha")
	installPlugin(t, m.cfg.PluginsDir, "bravo")
	ctx := context.Background()

	// charlie 与 delta 不在磁盘上
	all, err := m.ListAllPlugins(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "bravo"}, names(all))
	for _, r := range all {
		assert.False(t, r.Stale, r.Name)
	}

	enabled, err := m.ListEnabledPlugins(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "charlie"}, names(enabled))
	assert.False(t, enabled[0].Stale)
	assert.True(t, enabled[1].Stale)

	disabled, err := m.ListDisabledPlugins(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"bravo", "delta"}, names(disabled))
	assert.True(t, disabled[1].Stale)

	// 标记只出现在返回的副本上
	require.NoError(t, m.DisablePlugin(ctx, "charlie"))
	disabled, err = m.ListDisabledPlugins(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bravo", "charlie", "delta"}, names(disabled))
}

func TestManager_StaleWithoutPluginsDir(t *testing.T) {
	m, _ := newFileManager(t, fixtures.PluginRecords())

	all, err := m.ListAllPlugins(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, len(fixtures.PluginRecords()))
	for _, r := range all {
		assert.False(t, r.Stale, r.Name)
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, fixtures.PluginRecords()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Regexp(t, `^NAME\s+STATUS\s+BACKEND\s+FRONTEND$`, lines[0])
	assert.Regexp(t, `^alpha\s+enabled\s+/plugins/alpha/backend\s+/plugins/alpha/frontend.js$`, lines[1])
	assert.Regexp(t, `^bravo\s+disabled\s+-\s+/plugins/bravo/frontend.js$`, lines[2])
}

func TestRender_Stale(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, []settings.PluginRecord{
		{Name: "ghost", Enabled: true, Stale: true},
	}))
	assert.Regexp(t, `(?m)^ghost\s+enabled \(missing\)\s+-\s+-$`, buf.String())
}

func TestRender_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, nil))
	assert.Equal(t, "no plugins\n", buf.String())
}

// Concurrent enable/disable calls through independent managers never leave
// the registry unreadable, and never lose or reorder a plugin.
func TestProperty_ConcurrentWritersKeepRegistryValid(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seedNames := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,8}`), 1, 6, rapid.ID[string]).Draw(rt, "names")
		seedRecs := make([]settings.PluginRecord, len(seedNames))
		for i, n := range seedNames {
			seedRecs[i] = settings.PluginRecord{Name: n}
		}

		type op struct {
			name   string
			enable bool
		}
		ops := rapid.SliceOfN(rapid.Custom(func(rt *rapid.T) op {
			return op{
				name:   rapid.SampledFrom(seedNames).Draw(rt, "name"),
				enable: rapid.Bool().Draw(rt, "enable"),
			}
		}), 1, 12).Draw(rt, "ops")

		m, path := newFileManager(t, seedRecs)

		errs := make(chan error, len(ops))
		var wg sync.WaitGroup
		for _, o := range ops {
			wg.Add(1)
			go func(o op) {
				defer wg.Done()
				mgr := New(m.cfg, nil)
				var err error
				if o.enable {
					err = mgr.EnablePlugin(context.Background(), o.name)
				} else {
					err = mgr.DisablePlugin(context.Background(), o.name)
				}
				if err != nil {
					errs <- fmt.Errorf("op %+v: %w", o, err)
				}
			}(o)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			rt.Fatal(err)
		}

		records, err := settings.NewFilePersister(path).Load(context.Background())
		if err != nil {
			rt.Fatalf("registry unreadable after concurrent writes: %v", err)
		}
		if got := names(records); strings.Join(got, ",") != strings.Join(seedNames, ",") {
			rt.Fatalf("registry names changed: got %v, want %v", got, seedNames)
		}
	})
}
