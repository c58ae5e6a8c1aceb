package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/metaquery/errors"
)

const memoryLayer = "storage:\n  backend: memory\n"

func TestLoader_RelativeLayers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "deploy"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "shared"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shared", "base.yaml"), []byte(memoryLayer), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deploy", "prod.yaml"), []byte("storage:\n  namespace: prod\n"), 0o600))
	t.Chdir(filepath.Join(dir, "deploy"))

	l := newTestLoader(nil)
	l.AddLayer("../shared/base.yaml")
	l.AddLayer("prod.yaml")
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, "prod", cfg.Storage.Namespace)
}

func TestLoader_AllowRoots(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	inside := filepath.Join(root, "metaquery.yaml")
	stray := filepath.Join(outside, "metaquery.yaml")
	require.NoError(t, os.WriteFile(inside, []byte(memoryLayer), 0o600))
	require.NoError(t, os.WriteFile(stray, []byte(memoryLayer), 0o600))

	t.Run("inside root", func(t *testing.T) {
		l := newTestLoader(nil)
		l.AllowRoots(root)
		cfg, err := l.LoadFile(inside)
		require.NoError(t, err)
		assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	})

	t.Run("outside root", func(t *testing.T) {
		l := newTestLoader(nil)
		l.AllowRoots(root)
		_, err := l.LoadFile(stray)
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
		assert.Contains(t, err.Error(), "outside allowed roots")
	})

	t.Run("escape through dot-dot", func(t *testing.T) {
		rel, err := filepath.Rel(root, stray)
		require.NoError(t, err)
		l := newTestLoader(nil)
		l.AllowRoots(root)
		_, err = l.LoadFile(filepath.Join(root, rel))
		require.Error(t, err)
	})

	t.Run("link resolving outside root", func(t *testing.T) {
		link := filepath.Join(root, "linked.yaml")
		require.NoError(t, os.Symlink(stray, link))
		l := newTestLoader(nil)
		l.AllowRoots(root)
		_, err := l.LoadFile(link)
		require.Error(t, err)
	})

	t.Run("link resolving inside another root", func(t *testing.T) {
		link := filepath.Join(root, "mounted.yaml")
		require.NoError(t, os.Symlink(stray, link))
		l := newTestLoader(nil)
		l.AllowRoots(root, outside)
		_, err := l.LoadFile(link)
		require.NoError(t, err)
	})

	t.Run("missing root", func(t *testing.T) {
		l := newTestLoader(nil)
		l.AllowRoots(filepath.Join(root, "absent"))
		_, err := l.LoadFile(inside)
		require.Error(t, err)
	})
}

func TestLoader_RejectsUnreadableLayers(t *testing.T) {
	dir := t.TempDir()

	asDir := filepath.Join(dir, "conf.yaml")
	require.NoError(t, os.Mkdir(asDir, 0o755))

	oversize := filepath.Join(dir, "huge.yaml")
	f, err := os.Create(oversize)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(maxLayerSize+1))
	require.NoError(t, f.Close())

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "empty", path: "", want: "empty config path"},
		{name: "nul byte", path: "conf\x00.yaml", want: "NUL"},
		{name: "too long", path: strings.Repeat("a", maxPathLen) + ".yaml", want: "too long"},
		{name: "no extension", path: filepath.Join(dir, "conf"), want: "unsupported config format"},
		{name: "directory", path: asDir, want: "not a regular file"},
		{name: "oversize", path: oversize, want: "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestLoader(nil).LoadFile(tt.path)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoader_NestingLimit(t *testing.T) {
	deep := strings.Repeat(`{"a":`, maxLayerDepth+1) + "1" + strings.Repeat("}", maxLayerDepth+1)
	path := writeFile(t, "deep.json", deep)

	_, err := newTestLoader(nil).loadRaw(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nesting too deep")

	shallow := writeFile(t, "shallow.json", `{"storage": {"backend": "memory"}}`)
	raw, err := newTestLoader(nil).loadRaw(shallow, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"storage": map[string]any{"backend": "memory"}}, raw)
}

func TestCheckEnvValue(t *testing.T) {
	require.NoError(t, checkEnvValue("METAQUERY_STORAGE_NAMESPACE", "prod"))
	assert.ErrorContains(t, checkEnvValue("K", "a\x00b"), "NUL")
	assert.ErrorContains(t, checkEnvValue("K", strings.Repeat("x", maxEnvValue+1)), "too long")
}

func TestConfig_SaveToFileRules(t *testing.T) {
	dir := t.TempDir()

	require.Error(t, Default().SaveToFile(filepath.Join(dir, "saved.toml")))

	path := filepath.Join(dir, "saved.yml")
	require.NoError(t, Default().SaveToFile(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
