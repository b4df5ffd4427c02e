package translate

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/naughtychas/gitmc-core/internal/gerrs"
	"github.com/tidwall/gjson"
)

const stampFormatVersion = "1"

// Stamp records the provenance of one translated artifact: the original
// file it came from, a content hash and mtime authority check used to
// skip re-translation, and when/by-whom the translation happened.
type Stamp struct {
	OriginalPath         string  `json:"OriginalPath"`
	OriginalHash         string  `json:"OriginalHash"` // base64 sha256
	OriginalLastWriteUtc string  `json:"OriginalLastWriteUtc"`
	Translator           string  `json:"Translator"`
	FormatVersion        string  `json:"FormatVersion"`
	TranslatedAtUtc      string  `json:"TranslatedAtUtc"`
	Notes                *string `json:"Notes"`
}

func stampPath(mirrorArtifactPath string) string {
	return mirrorArtifactPath + ".stamp.json"
}

// loadStamp reads the stamp sitting next to a mirror artifact. The
// second return value is false if no stamp exists yet.
func loadStamp(mirrorArtifactPath string) (*Stamp, bool, error) {
	data, err := os.ReadFile(stampPath(mirrorArtifactPath))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", gerrs.ErrStampCorrupt, err)
	}

	// Peek FormatVersion before committing to a full unmarshal: a stamp
	// written by a newer translator is a forward-compat condition, not a
	// corruption, and is worth distinguishing in the error.
	if fv := gjson.GetBytes(data, "FormatVersion"); fv.Exists() && fv.String() != stampFormatVersion {
		return nil, false, fmt.Errorf("%w: stamp format version %q is newer than this translator's %q",
			gerrs.ErrStampCorrupt, fv.String(), stampFormatVersion)
	}

	var s Stamp
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, fmt.Errorf("%w: %v", gerrs.ErrStampCorrupt, err)
	}
	return &s, true, nil
}

// matchesSource reports whether an existing stamp already accounts for
// originalHash at originalModTime, making re-translation unnecessary.
func (s *Stamp) matchesSource(originalHash string, originalModTime time.Time) bool {
	if s == nil {
		return false
	}
	return s.OriginalHash == originalHash &&
		s.OriginalLastWriteUtc == originalModTime.UTC().Format(time.RFC3339Nano)
}

// newStamp builds a stamp for a freshly translated artifact.
func newStamp(originalPath string, originalHash []byte, originalModTime time.Time, translator string, now time.Time) *Stamp {
	return &Stamp{
		OriginalPath:         originalPath,
		OriginalHash:         base64.StdEncoding.EncodeToString(originalHash),
		OriginalLastWriteUtc: originalModTime.UTC().Format(time.RFC3339Nano),
		Translator:           translator,
		FormatVersion:        stampFormatVersion,
		TranslatedAtUtc:      now.UTC().Format(time.RFC3339Nano),
	}
}

// save writes the stamp atomically next to its mirror artifact.
func (s *Stamp) save(mirrorArtifactPath string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", gerrs.ErrStampCorrupt, err)
	}
	return writeAtomic(stampPath(mirrorArtifactPath), data)
}
