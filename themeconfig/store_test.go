package themeconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "theme.yaml"))
}

func TestFileStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.Get("accent")
	require.NoError(t, err)
	assert.False(t, ok)

	active, err := s.Active()
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestFileStore_SetGetPreservesKind(t *testing.T) {
	s := newTestStore(t)

	values := map[string]Value{
		"rounded":   BoolValue(true),
		"opacity":   FloatValue(1),
		"radius":    IntValue(8),
		"accent":    StringValue("#ff00ff"),
		"numeric":   StringValue("123"),
		"empty":     StringValue(""),
		"yes_maybe": StringValue("yes"),
	}
	for field, v := range values {
		require.NoError(t, s.Set(field, v))
	}

	for field, want := range values {
		got, ok, err := s.Get(field)
		require.NoError(t, err, field)
		require.True(t, ok, field)
		assert.Equal(t, want, got, field)
	}

	names, all, err := s.Fields()
	require.NoError(t, err)
	assert.Equal(t, []string{"accent", "empty", "numeric", "opacity", "radius", "rounded", "yes_maybe"}, names)
	assert.Equal(t, values, all)
}

func TestFileStore_Overwrite(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, Apply(s, "radius", "8"))
	require.NoError(t, Apply(s, "radius", "8.5"))

	got, ok, err := s.Get("radius")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, FloatValue(8.5), got)
}

func TestApply_InvalidLiteralLeavesStoreUntouched(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, Apply(s, "version", "2"))

	err := Apply(s, "version", "1.2.3")
	assert.ErrorIs(t, err, ErrInvalidLiteral)

	got, _, err := s.Get("version")
	require.NoError(t, err)
	assert.Equal(t, IntValue(2), got)
}

func TestFileStore_ActiveSurvivesFieldWrites(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetActive("midnight"))
	require.NoError(t, s.Set("accent", StringValue("blue")))

	active, err := s.Active()
	require.NoError(t, err)
	assert.Equal(t, "midnight", active)
}

func TestFileStore_Snapshot(t *testing.T) {
	s := newTestStore(t)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.Active)
	assert.Empty(t, snap.Fields)

	require.NoError(t, s.SetActive("midnight"))
	require.NoError(t, Apply(s, "radius", "8"))
	require.NoError(t, Apply(s, "opacity", "0.5"))
	require.NoError(t, Apply(s, "rounded", "true"))
	require.NoError(t, Apply(s, "accent", "#fff"))

	snap, err = s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "midnight", snap.Active)
	assert.Equal(t, map[string]any{
		"radius":  int64(8),
		"opacity": 0.5,
		"rounded": true,
		"accent":  "#fff",
	}, snap.Fields)
}

func TestFileStore_CorruptFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("fields: [unclosed"), 0o644))

	// 损坏的文件不能当作字段缺失
	_, ok, err := s.Get("accent")
	assert.ErrorIs(t, err, ErrStore)
	assert.False(t, ok)

	err = s.Set("accent", StringValue("blue"))
	assert.ErrorIs(t, err, ErrStore)

	_, err = s.Active()
	assert.ErrorIs(t, err, ErrStore)
}

func TestThemes_ListAndUse(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"midnight", "paper"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name, SkinFile), []byte("{}"), 0o644))
	}
	// 没有 skin.json 的目录不是主题
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scratch"), 0o755))

	s := newTestStore(t)
	require.NoError(t, UseTheme(s, dir, "paper"))

	active, err := s.Active()
	require.NoError(t, err)
	themes, err := ListThemes(dir, active)
	require.NoError(t, err)
	require.Len(t, themes, 2)
	assert.Equal(t, "midnight", themes[0].Name)
	assert.False(t, themes[0].Active)
	assert.Equal(t, "paper", themes[1].Name)
	assert.True(t, themes[1].Active)

	err = UseTheme(s, dir, "scratch")
	assert.ErrorIs(t, err, ErrThemeNotFound)
}

func TestThemes_MissingDir(t *testing.T) {
	themes, err := ListThemes(filepath.Join(t.TempDir(), "nope"), "")
	require.NoError(t, err)
	assert.Empty(t, themes)
}

func genValue() *rapid.Generator[Value] {
	return rapid.OneOf(
		rapid.Map(rapid.StringMatching(`[ -~]{0,20}`), StringValue),
		rapid.Map(rapid.Int64(), IntValue),
		rapid.Map(rapid.Float64Range(-1e12, 1e12), FloatValue),
		rapid.Map(rapid.Bool(), BoolValue),
	)
}

// Whatever is written reads back with the same kind and value.
func TestProperty_FileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rapid.Check(t, func(rt *rapid.T) {
		s := NewFileStore(filepath.Join(dir, "theme.yaml"))
		field := rapid.StringMatching(`[a-z_]{1,12}`).Draw(rt, "field")
		v := genValue().Draw(rt, "value")

		if err := s.Set(field, v); err != nil {
			rt.Fatalf("set: %v", err)
		}
		got, ok, err := s.Get(field)
		if err != nil {
			rt.Fatalf("get: %v", err)
		}
		if !ok {
			rt.Fatalf("field %s missing after set", field)
		}
		if got != v {
			rt.Fatalf("round trip: got %+v, want %+v", got, v)
		}
	})
}
