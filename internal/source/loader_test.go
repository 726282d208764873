package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSources(t *testing.T, files map[string]string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for name, body := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		paths = append(paths, p)
	}
	return dir, paths
}

func TestLoaderColdThenWarm(t *testing.T) {
	dir, paths := writeSources(t, map[string]string{
		"a.i": "int a(void) { return b(); }\n",
		"b.i": "int b(void) { return 0; }\n",
	})
	cache := NewCache(filepath.Join(dir, ".cache"))
	l := NewLoader(cache, zerolog.Nop())

	cold, stats, err := l.Load(context.Background(), paths)
	require.NoError(t, err)
	assert.Equal(t, LoadStats{Parsed: 2}, stats)
	require.Len(t, cold, 2)

	warm, stats, err := l.Load(context.Background(), paths)
	require.NoError(t, err)
	assert.Equal(t, LoadStats{Cached: 2}, stats)
	for i := range cold {
		assert.Equal(t, cold[i].Path, warm[i].Path)
		assert.Equal(t, cold[i].Nodes, warm[i].Nodes)
		assert.Equal(t, cold[i].Tokens, warm[i].Tokens)
	}
}

func TestLoaderRecoversFromCorruptEntry(t *testing.T) {
	dir, paths := writeSources(t, map[string]string{"a.i": "int a(void) { return 1; }\n"})
	cache := NewCache(filepath.Join(dir, ".cache"))
	l := NewLoader(cache, zerolog.Nop())

	cold, _, err := l.Load(context.Background(), paths)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(cache.EntryPath(paths[0]), []byte("corrupt"), 0o644))

	again, stats, err := l.Load(context.Background(), paths)
	require.NoError(t, err)
	assert.Equal(t, LoadStats{Parsed: 1}, stats)
	assert.Equal(t, cold[0].Nodes, again[0].Nodes)

	// The entry was rewritten by the fresh parse.
	_, err = cache.Get(paths[0], mustRead(t, paths[0]))
	assert.NoError(t, err)
}

func TestLoaderDeduplicatesPaths(t *testing.T) {
	_, paths := writeSources(t, map[string]string{"a.i": "void a(void) {}\n"})
	l := NewLoader(nil, zerolog.Nop())

	dup := []string{paths[0], filepath.Join(filepath.Dir(paths[0]), ".", "a.i")}
	units, stats, err := l.Load(context.Background(), dup)
	require.NoError(t, err)
	assert.Len(t, units, 1)
	assert.Equal(t, LoadStats{Parsed: 1}, stats)
}

func TestLoaderMissingFile(t *testing.T) {
	l := NewLoader(nil, zerolog.Nop())
	_, _, err := l.Load(context.Background(), []string{filepath.Join(t.TempDir(), "nope.i")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoaderUnwritableCacheIsNotFatal(t *testing.T) {
	dir, paths := writeSources(t, map[string]string{"a.i": "void a(void) {}\n"})
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	// The cache dir cannot be created beneath a regular file.
	l := NewLoader(NewCache(filepath.Join(blocker, "cache")), zerolog.Nop())
	units, stats, err := l.Load(context.Background(), paths)
	require.NoError(t, err)
	assert.Len(t, units, 1)
	assert.Equal(t, 1, stats.Parsed)
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}
