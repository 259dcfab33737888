package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte(content), 0644))
}

func TestReadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `packs:
  - name: delivery
    version: "2.1.0"
    path: delivery
  - name: research-tools
    version: "1.4.2"
    path: research-tools
`)

	packs, err := ReadManifest(filepath.Join(dir, ManifestName))
	require.NoError(t, err)
	require.Len(t, packs, 2)
	assert.Equal(t, "delivery", packs[0].Name)
	assert.Equal(t, "2.1.0", packs[0].Version)
}

func TestReadManifest_MissingFileIsEmpty(t *testing.T) {
	packs, err := ReadManifest(filepath.Join(t.TempDir(), ManifestName))
	require.NoError(t, err)
	assert.Empty(t, packs)
}

func TestReadManifest_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "packs: [unclosed")

	_, err := ReadManifest(filepath.Join(dir, ManifestName))
	assert.Error(t, err)
}

func TestReadManifest_EmptyPackName(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "packs:\n  - version: \"1.0\"\n")

	_, err := ReadManifest(filepath.Join(dir, ManifestName))
	assert.ErrorContains(t, err, "empty name")
}

func TestDiscover(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	empty := t.TempDir()
	writeManifest(t, first, "packs:\n  - name: zeta\n    version: \"1.0\"\n")
	writeManifest(t, second, "packs:\n  - name: alpha\n    version: \"1.0\"\n  - name: zeta\n    version: \"2.0\"\n")

	packs, err := Discover([]string{first, second, empty})
	require.NoError(t, err)
	require.Len(t, packs, 3)

	// Sorted by name; duplicates keep both directories.
	assert.Equal(t, "alpha", packs[0].Name)
	assert.Equal(t, "zeta", packs[1].Name)
	assert.Equal(t, "zeta", packs[2].Name)
	assert.NotEqual(t, packs[1].Dir, packs[2].Dir)
}
