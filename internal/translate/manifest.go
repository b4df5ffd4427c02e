package translate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/pretty"

	"github.com/naughtychas/gitmc-core/internal/gerrs"
)

const (
	// CommitInit marks an artifact present since the mirror's first
	// extract, before any real commit exists to attribute it to.
	CommitInit = "init"

	// CommitPending marks an artifact written by an extract that has not
	// yet been committed by the repository collaborator.
	CommitPending = "pending"

	manifestFileName = "manifest.json"
)

// ManifestEntry is one tracked artifact's provenance.
type ManifestEntry struct {
	Commit  string `json:"commit"`
	Deleted bool   `json:"deleted"`
}

// Manifest maps a forward-slash relative SNBT path (relative to the
// mirror root) to its provenance entry.
type Manifest map[string]ManifestEntry

// manifestPath returns the path of a save's manifest file under its
// mirror root.
func manifestPath(mirrorRoot string) string {
	return filepath.Join(mirrorRoot, manifestFileName)
}

// loadManifest reads the manifest at mirrorRoot, returning an empty one
// if it does not exist yet.
func loadManifest(mirrorRoot string) (Manifest, error) {
	data, err := os.ReadFile(manifestPath(mirrorRoot))
	if os.IsNotExist(err) {
		return Manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gerrs.ErrManifestCorrupt, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", gerrs.ErrManifestCorrupt, err)
	}
	return m, nil
}

// parseManifest decodes manifest JSON bytes read from an arbitrary
// source (e.g. a historical commit via gitrepo.Repository.ReadAt).
func parseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", gerrs.ErrManifestCorrupt, err)
	}
	return m, nil
}

// saveManifest writes the manifest atomically, pretty-printed so diffs
// in version control stay small and readable.
func saveManifest(mirrorRoot string, m Manifest) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: %v", gerrs.ErrManifestCorrupt, err)
	}
	formatted := pretty.Pretty(raw)
	return writeAtomic(manifestPath(mirrorRoot), formatted)
}

// finalizePending replaces every "pending" commit in the manifest with
// hash. It is the only place that writes a real commit hash into the
// manifest.
func finalizePending(m Manifest, hash string) (changed int) {
	for path, entry := range m {
		if entry.Commit == CommitPending {
			entry.Commit = hash
			m[path] = entry
			changed++
		}
	}
	return changed
}
