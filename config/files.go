package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	maxLayerSize  = 10 << 20
	maxLayerDepth = 100
	maxEnvValue   = 10000
	maxPathLen    = 4096
)

var layerExtensions = []string{".json", ".yaml", ".yml"}

// checkLayerName rejects names that can never be a configuration layer.
// Absolute and relative names are both accepted; relative ones resolve
// against the working directory the process was started in.
func checkLayerName(path string) error {
	switch {
	case path == "":
		return fmt.Errorf("empty config path")
	case len(path) > maxPathLen:
		return fmt.Errorf("config path too long: %d > %d", len(path), maxPathLen)
	case strings.ContainsRune(path, 0):
		return fmt.Errorf("config path contains NUL byte")
	}
	if ext := strings.ToLower(filepath.Ext(path)); !slices.Contains(layerExtensions, ext) {
		return fmt.Errorf("unsupported config format %q: want one of %v", ext, layerExtensions)
	}
	return nil
}

// resolveLayer returns the symlink-free absolute path of a layer. When roots
// is non-empty the resolved file must sit inside one of them, so a mounted
// ConfigMap link may point anywhere under its volume but not outside it.
func resolveLayer(path string, roots []string) (string, error) {
	if err := checkLayerName(path); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if len(roots) == 0 {
		return resolved, nil
	}
	for _, root := range roots {
		if within(resolved, root) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("config %s resolves to %s, outside allowed roots %v", path, resolved, roots)
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// cleanRoots makes every root absolute and symlink-free so it compares
// against resolved layer paths.
func cleanRoots(dirs []string) ([]string, error) {
	roots := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("config root %s: %w", dir, err)
		}
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, fmt.Errorf("config root %s: %w", dir, err)
		}
		roots = append(roots, resolved)
	}
	return roots, nil
}

// readLayer reads a resolved layer after checking it is a regular file of
// bounded size.
func readLayer(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("config %s is not a regular file", path)
	}
	if info.Size() > maxLayerSize {
		return nil, fmt.Errorf("config %s too large: %d > %d bytes", path, info.Size(), maxLayerSize)
	}
	return os.ReadFile(path)
}

// writeLayer writes an encoded configuration owner-readable only, since
// saved files may carry credentials.
func writeLayer(path string, data []byte) error {
	if err := checkLayerName(path); err != nil {
		return err
	}
	if len(data) > maxLayerSize {
		return fmt.Errorf("encoded config too large: %d > %d bytes", len(data), maxLayerSize)
	}
	return os.WriteFile(path, data, 0o600)
}

func checkEnvValue(key, value string) error {
	if len(value) > maxEnvValue {
		return fmt.Errorf("%s too long: %d > %d", key, len(value), maxEnvValue)
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("%s contains NUL byte", key)
	}
	return nil
}
