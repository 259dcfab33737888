// Package skills discovers the skill packs installed under a dialect's
// search paths.
//
// Each search path may carry a manifest.yaml cataloging the packs installed
// there. The manifest format is:
//
//	packs:
//	  - name: delivery
//	    version: "2.1.0"
//	    path: delivery
//	  - name: research-tools
//	    version: "1.4.2"
//	    path: research-tools
//
// Discovery is best-effort: a search path without a manifest contributes no
// packs, and a malformed manifest is reported rather than skipped so broken
// installs surface early.
package skills

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ManifestName is the catalog file looked up in each search path.
const ManifestName = "manifest.yaml"

// Pack describes one installed skill pack.
type Pack struct {
	// Name is the pack identifier.
	Name string `yaml:"name"`

	// Version is the pack version string.
	Version string `yaml:"version"`

	// Path is the pack's relative path within its search directory.
	Path string `yaml:"path"`

	// Dir is the search path the pack was discovered under. Filled by
	// [Discover], not read from the manifest.
	Dir string `yaml:"-"`
}

type manifestFile struct {
	Packs []Pack `yaml:"packs"`
}

// ReadManifest parses one manifest file. A missing file yields an empty
// list, not an error.
func ReadManifest(path string) ([]Pack, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read skills manifest: %w", err)
	}
	var mf manifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("malformed skills manifest %s: %w", path, err)
	}
	for _, p := range mf.Packs {
		if p.Name == "" {
			return nil, fmt.Errorf("skills manifest %s: pack with empty name", path)
		}
	}
	return mf.Packs, nil
}

// Discover reads the manifest in each search path and returns all installed
// packs sorted by name. Later search paths do not shadow earlier ones; a
// pack installed twice appears twice, once per directory.
func Discover(searchPaths []string) ([]Pack, error) {
	var packs []Pack
	for _, dir := range searchPaths {
		found, err := ReadManifest(filepath.Join(dir, ManifestName))
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			p.Dir = dir
			packs = append(packs, p)
		}
	}
	sort.Slice(packs, func(i, j int) bool {
		if packs[i].Name != packs[j].Name {
			return packs[i].Name < packs[j].Name
		}
		return packs[i].Dir < packs[j].Dir
	})
	return packs, nil
}
