// Package translate implements the mirror translation engine: turning a
// Minecraft save into a tree of SNBT text under "<save>/GitMC/" and
// reconstructing a save from that mirror at a given commit.
package translate

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/naughtychas/gitmc-core/internal/cache"
	"github.com/naughtychas/gitmc-core/internal/compress"
	"github.com/naughtychas/gitmc-core/internal/coord"
	"github.com/naughtychas/gitmc-core/internal/gerrs"
	"github.com/naughtychas/gitmc-core/internal/gitrepo"
	"github.com/naughtychas/gitmc-core/internal/nbt"
	"github.com/naughtychas/gitmc-core/internal/region"
	"github.com/naughtychas/gitmc-core/internal/snbt"
)

const (
	categoryRegion   = "region"
	categoryEntities = "entities"
	categoryPOI      = "poi"
)

var regionCategories = []string{categoryRegion, categoryEntities, categoryPOI}

var chunkArtifactPattern = regexp.MustCompile(`^(region|entities|poi)/r\.(-?\d+)\.(-?\d+)/chunk_(-?\d+)_(-?\d+)\.snbt$`)

// chunkArtifact identifies one chunk's mirror artifact by its manifest
// key and decoded region/chunk coordinates.
type chunkArtifact struct {
	relKey      string
	category    string
	regionCoord coord.Point2
	chunkCoord  coord.Point2
}

// ProgressFunc receives step progress during a long-running translation.
// It must be safe to call from multiple goroutines.
type ProgressFunc func(current, total int, message string)

func noopProgress(int, int, string) {}

// Report summarizes one Extract or Rebuild run.
type Report struct {
	Written []string
	Skipped []string
	Deleted []string
}

// Engine translates between a Minecraft save and its SNBT mirror.
type Engine struct {
	Repo               gitrepo.Repository
	TranslatorID       string
	MirrorDirName      string
	Compression        compress.Kind
	SerializerOptions  snbt.Options
	AllowExternalSpill bool
	WorkerLimit        int

	// readCache memoizes Repository.ReadAt results for the mirror
	// artifacts Rebuild reads, keyed by commit and path, each entry for
	// five minutes. It lives as long as the Engine, so a later Rebuild of
	// the same commit within that window reuses it; Rebuild's manifest
	// read does not go through it.
	readCache *cache.TTLCache[string, []byte]

	mu   sync.Mutex
	busy map[string]bool
}

// NewEngine returns an Engine with sensible defaults: Zlib chunk
// compression, external spill enabled, minified SNBT, and a worker
// limit matching available hardware parallelism.
func NewEngine(repo gitrepo.Repository, translatorID string) *Engine {
	return &Engine{
		Repo:               repo,
		TranslatorID:       translatorID,
		MirrorDirName:      "GitMC",
		Compression:        compress.Zlib,
		SerializerOptions:  snbt.DefaultOptions(),
		AllowExternalSpill: true,
		WorkerLimit:        runtime.GOMAXPROCS(0),
		readCache:          cache.NewTTLCache[string, []byte](),
		busy:               make(map[string]bool),
	}
}

func (e *Engine) lockSave(saveRoot string) (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy[saveRoot] {
		return nil, fmt.Errorf("%w: %s", gerrs.ErrBusy, saveRoot)
	}
	e.busy[saveRoot] = true
	return func() {
		e.mu.Lock()
		delete(e.busy, saveRoot)
		e.mu.Unlock()
	}, nil
}

func (e *Engine) mirrorRoot(saveRoot string) string {
	return filepath.Join(saveRoot, e.MirrorDirName)
}

// repoRelPath maps a manifest key (relative to "<save>/GitMC/") to the
// path Repository.ReadAt expects. This assumes one save per repository
// root, the simplest layout and the one a single managed save backs
// onto; a multi-save repository would prefix this with the save's
// directory under the repository.
func (e *Engine) repoRelPath(key string) string {
	return filepath.ToSlash(filepath.Join(e.MirrorDirName, key))
}

// Extract translates every translatable file in saveRoot into its
// mirror under "<saveRoot>/GitMC/", skipping artifacts whose stamp
// already matches the source, and stages every touched mirror path
// with the repository collaborator.
func (e *Engine) Extract(ctx context.Context, saveRoot string, progress ProgressFunc) (*Report, error) {
	if progress == nil {
		progress = noopProgress
	}
	unlock, err := e.lockSave(saveRoot)
	if err != nil {
		return nil, err
	}
	defer unlock()

	mirrorRoot := e.mirrorRoot(saveRoot)
	manifest, err := loadManifest(mirrorRoot)
	if err != nil {
		return nil, err
	}

	docs, texts, err := discoverFlatFiles(saveRoot, e.MirrorDirName)
	if err != nil {
		return nil, err
	}
	regionFiles := make(map[string][]string)
	for _, category := range regionCategories {
		matches, _ := filepath.Glob(filepath.Join(saveRoot, category, "r.*.*.mca"))
		regionFiles[category] = matches
	}

	total := len(docs) + len(texts)
	for _, m := range regionFiles {
		total += len(m)
	}

	var (
		manifestMu sync.Mutex
		report     Report
		current    int
		progressMu sync.Mutex
	)
	tick := func(message string) {
		progressMu.Lock()
		current++
		progress(current, total, message)
		progressMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.WorkerLimit)

	for _, abs := range docs {
		abs := abs
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			defer tick("document " + filepath.Base(abs))
			return e.extractDocument(saveRoot, mirrorRoot, abs, &manifestMu, manifest, &report)
		})
	}
	for _, abs := range texts {
		abs := abs
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			defer tick("text file " + filepath.Base(abs))
			return e.extractText(saveRoot, mirrorRoot, abs, &manifestMu, manifest, &report)
		})
	}
	for _, category := range regionCategories {
		for _, mcaPath := range regionFiles[category] {
			category, mcaPath := category, mcaPath
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				defer tick("region " + filepath.Base(mcaPath))
				return e.extractRegionFile(category, mcaPath, mirrorRoot, &manifestMu, manifest, &report)
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := saveManifest(mirrorRoot, manifest); err != nil {
		return nil, err
	}

	var staged []string
	for _, p := range report.Written {
		staged = append(staged, p, p+".stamp.json")
	}
	for _, p := range report.Deleted {
		staged = append(staged, p, p+".stamp.json")
	}
	staged = append(staged, manifestFileName)
	if len(staged) > 0 {
		repoPaths := make([]string, len(staged))
		for i, p := range staged {
			repoPaths[i] = e.repoRelPath(p)
		}
		if err := e.Repo.Stage(ctx, repoPaths); err != nil {
			return nil, fmt.Errorf("staging extracted artifacts: %w", err)
		}
	}

	return &report, nil
}

// discoverFlatFiles walks saveRoot, excluding the mirror directory and
// the chunk-bearing region/entities/poi subtrees, returning absolute
// paths of NBT documents (*.dat, including level.dat) and pass-through
// text files (*.json, *.mcfunction, *.txt).
func discoverFlatFiles(saveRoot, mirrorDirName string) (docs, texts []string, err error) {
	skipDirs := map[string]bool{
		mirrorDirName:    true,
		categoryRegion:   true,
		categoryEntities: true,
		categoryPOI:      true,
	}

	err = filepath.WalkDir(saveRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			if path != saveRoot && skipDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(d.Name())) {
		case ".dat":
			docs = append(docs, path)
		case ".json", ".mcfunction", ".txt":
			texts = append(texts, path)
		}
		return nil
	})
	return docs, texts, err
}

func (e *Engine) extractDocument(saveRoot, mirrorRoot, abs string, manifestMu *sync.Mutex, manifest Manifest, report *Report) error {
	raw, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("reading %s: %w", abs, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(saveRoot, abs)
	if err != nil {
		return err
	}
	relKey := filepath.ToSlash(rel) + ".snbt"
	mirrorPath := filepath.Join(mirrorRoot, filepath.FromSlash(relKey))

	sum := sha256.Sum256(raw)
	existing, ok, err := loadStamp(mirrorPath)
	if err != nil {
		return err
	}
	if ok && existing.matchesSource(stampHashString(sum[:]), info.ModTime()) {
		manifestMu.Lock()
		report.Skipped = append(report.Skipped, relKey)
		manifestMu.Unlock()
		return nil
	}

	doc, err := nbt.ReadFile(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", abs, err)
	}
	tag := &nbt.Tag{Type: nbt.TagCompound, Name: doc.Name, Value: doc.Root}
	text := snbt.Serialize(tag, e.SerializerOptions)

	if err := writeAtomic(mirrorPath, []byte(text)); err != nil {
		return err
	}
	stamp := newStamp(abs, sum[:], info.ModTime(), e.TranslatorID, time.Now())
	if err := stamp.save(mirrorPath); err != nil {
		return err
	}

	manifestMu.Lock()
	manifest[relKey] = ManifestEntry{Commit: CommitPending}
	report.Written = append(report.Written, relKey)
	manifestMu.Unlock()
	return nil
}

func (e *Engine) extractText(saveRoot, mirrorRoot, abs string, manifestMu *sync.Mutex, manifest Manifest, report *Report) error {
	raw, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("reading %s: %w", abs, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(saveRoot, abs)
	if err != nil {
		return err
	}
	relKey := filepath.ToSlash(rel)
	mirrorPath := filepath.Join(mirrorRoot, filepath.FromSlash(relKey))

	sum := sha256.Sum256(raw)
	existing, ok, err := loadStamp(mirrorPath)
	if err != nil {
		return err
	}
	if ok && existing.matchesSource(stampHashString(sum[:]), info.ModTime()) {
		manifestMu.Lock()
		report.Skipped = append(report.Skipped, relKey)
		manifestMu.Unlock()
		return nil
	}

	if err := writeAtomic(mirrorPath, raw); err != nil {
		return err
	}
	stamp := newStamp(abs, sum[:], info.ModTime(), e.TranslatorID, time.Now())
	if err := stamp.save(mirrorPath); err != nil {
		return err
	}

	manifestMu.Lock()
	manifest[relKey] = ManifestEntry{Commit: CommitPending}
	report.Written = append(report.Written, relKey)
	manifestMu.Unlock()
	return nil
}

func (e *Engine) extractRegionFile(category, mcaPath, mirrorRoot string, manifestMu *sync.Mutex, manifest Manifest, report *Report) error {
	reg, err := region.Open(mcaPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", mcaPath, err)
	}
	defer reg.Close()

	info, err := os.Stat(mcaPath)
	if err != nil {
		return err
	}
	regionCoord := reg.Region()
	mirrorRegionDir := filepath.Join(mirrorRoot, category, fmt.Sprintf("r.%d.%d", regionCoord.X, regionCoord.Z))

	present := make(map[string]bool)
	for _, local := range reg.ListChunks() {
		rec, err := reg.GetChunk(local)
		if err != nil {
			return fmt.Errorf("reading chunk %+v from %s: %w", local, mcaPath, err)
		}
		if rec == nil {
			continue
		}
		base := fmt.Sprintf("chunk_%d_%d.snbt", local.X, local.Z)
		present[base] = true
		relKey := fmt.Sprintf("%s/r.%d.%d/%s", category, regionCoord.X, regionCoord.Z, base)
		mirrorChunkPath := filepath.Join(mirrorRegionDir, base)

		// Hash the serialized SNBT text, not a re-encoded NBT binary: the
		// text's compound keys are written in sorted order (writeCompound),
		// while re-encoding straight from the in-memory Compound ranges a
		// Go map in unspecified order, making the hash nondeterministic
		// across runs with identical chunk contents.
		tag := &nbt.Tag{Type: nbt.TagCompound, Value: rec.NBT}
		text := snbt.Serialize(tag, e.SerializerOptions)
		sum := sha256.Sum256([]byte(text))

		existing, ok, err := loadStamp(mirrorChunkPath)
		if err != nil {
			return err
		}
		if ok && existing.matchesSource(stampHashString(sum[:]), info.ModTime()) {
			manifestMu.Lock()
			report.Skipped = append(report.Skipped, relKey)
			manifestMu.Unlock()
			continue
		}

		if err := writeAtomic(mirrorChunkPath, []byte(text)); err != nil {
			return err
		}
		stamp := newStamp(mcaPath, sum[:], info.ModTime(), e.TranslatorID, time.Now())
		if err := stamp.save(mirrorChunkPath); err != nil {
			return err
		}

		manifestMu.Lock()
		manifest[relKey] = ManifestEntry{Commit: CommitPending}
		report.Written = append(report.Written, relKey)
		manifestMu.Unlock()
	}

	entries, err := os.ReadDir(mirrorRegionDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".snbt") || present[de.Name()] {
			continue
		}
		relKey := fmt.Sprintf("%s/r.%d.%d/%s", category, regionCoord.X, regionCoord.Z, de.Name())
		stalePath := filepath.Join(mirrorRegionDir, de.Name())
		os.Remove(stalePath)
		os.Remove(stampPath(stalePath))

		manifestMu.Lock()
		entry := manifest[relKey]
		entry.Deleted = true
		manifest[relKey] = entry
		report.Deleted = append(report.Deleted, relKey)
		manifestMu.Unlock()
	}

	return nil
}

// stampHashString renders an already-computed sha256 sum the same way
// newStamp does, so a stamp comparison never re-hashes the sum.
func stampHashString(sum []byte) string {
	return base64.StdEncoding.EncodeToString(sum)
}

// Rebuild reconstructs a save's region, entity, POI, and top-level NBT
// files from the mirror as it stood at targetCommit, and writes them to
// saveRoot.
func (e *Engine) Rebuild(ctx context.Context, saveRoot, targetCommit string, progress ProgressFunc) (*Report, error) {
	if progress == nil {
		progress = noopProgress
	}
	unlock, err := e.lockSave(saveRoot)
	if err != nil {
		return nil, err
	}
	defer unlock()

	manifestData, err := e.Repo.ReadAt(ctx, targetCommit, e.repoRelPath(manifestFileName))
	if err != nil {
		return nil, fmt.Errorf("reading manifest at %s: %w", targetCommit, err)
	}
	if manifestData == nil {
		return nil, fmt.Errorf("%w: no manifest at commit %s", gerrs.ErrManifestCorrupt, targetCommit)
	}
	manifest, err := parseManifest(manifestData)
	if err != nil {
		return nil, err
	}

	chunkGroups := make(map[string][]chunkArtifact)
	var topDocs []string
	var passthroughs []string

	for relKey, entry := range manifest {
		if entry.Deleted {
			continue
		}
		included, err := e.commitIncluded(ctx, entry.Commit, targetCommit)
		if err != nil {
			return nil, err
		}
		if !included {
			continue
		}

		if m := chunkArtifactPattern.FindStringSubmatch(relKey); m != nil {
			rx, _ := strconv.ParseInt(m[2], 10, 32)
			rz, _ := strconv.ParseInt(m[3], 10, 32)
			cx, _ := strconv.ParseInt(m[4], 10, 32)
			cz, _ := strconv.ParseInt(m[5], 10, 32)
			groupKey := fmt.Sprintf("%s/r.%d.%d", m[1], rx, rz)
			chunkGroups[groupKey] = append(chunkGroups[groupKey], chunkArtifact{
				relKey:      relKey,
				category:    m[1],
				regionCoord: coord.New(int32(rx), int32(rz)),
				chunkCoord:  coord.New(int32(cx), int32(cz)),
			})
			continue
		}
		if strings.HasSuffix(relKey, ".snbt") {
			topDocs = append(topDocs, relKey)
			continue
		}
		// A mirror path surviving the manifest with neither a chunk
		// artifact's naming scheme nor a ".snbt" suffix is a pass-through
		// text file (*.json, *.mcfunction, *.txt), copied verbatim rather
		// than translated.
		passthroughs = append(passthroughs, relKey)
	}

	total := len(topDocs) + len(chunkGroups) + len(passthroughs)
	var (
		current    int
		progressMu sync.Mutex
		report     Report
		reportMu   sync.Mutex
	)
	tick := func(message string) {
		progressMu.Lock()
		current++
		progress(current, total, message)
		progressMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.WorkerLimit)

	for groupKey, artifacts := range chunkGroups {
		groupKey, artifacts := groupKey, artifacts
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			defer tick("region group " + groupKey)
			outPath, err := e.rebuildRegionGroup(gctx, saveRoot, targetCommit, artifacts)
			if err != nil {
				return err
			}
			reportMu.Lock()
			report.Written = append(report.Written, outPath)
			reportMu.Unlock()
			return nil
		})
	}
	for _, relKey := range topDocs {
		relKey := relKey
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			defer tick("document " + relKey)
			outPath, err := e.rebuildDocument(ctx, targetCommit, relKey, saveRoot)
			if err != nil {
				return err
			}
			reportMu.Lock()
			report.Written = append(report.Written, outPath)
			reportMu.Unlock()
			return nil
		})
	}
	for _, relKey := range passthroughs {
		relKey := relKey
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			defer tick("file " + relKey)
			outPath, err := e.rebuildPassthrough(ctx, targetCommit, relKey, saveRoot)
			if err != nil {
				return err
			}
			reportMu.Lock()
			report.Written = append(report.Written, outPath)
			reportMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &report, nil
}

func (e *Engine) commitIncluded(ctx context.Context, entryCommit, targetCommit string) (bool, error) {
	switch entryCommit {
	case CommitInit:
		return true, nil
	case CommitPending:
		return false, nil
	default:
		return e.Repo.IsAncestor(ctx, entryCommit, targetCommit)
	}
}

func (e *Engine) readAtCached(ctx context.Context, commit, repoPath string) ([]byte, error) {
	key := commit + ":" + repoPath
	if cached, ok := e.readCache.Get(key); ok {
		return cached, nil
	}
	data, err := e.Repo.ReadAt(ctx, commit, repoPath)
	if err != nil {
		return nil, err
	}
	e.readCache.Set(key, data, 5*time.Minute)
	return data, nil
}

func (e *Engine) rebuildRegionGroup(ctx context.Context, saveRoot, targetCommit string, artifacts []chunkArtifact) (string, error) {
	if len(artifacts) == 0 {
		return "", nil
	}
	category := artifacts[0].category
	regionCoord := artifacts[0].regionCoord

	writer := region.NewWriter(regionCoord)
	writer.AllowExternalSpill = e.AllowExternalSpill

	now := uint32(time.Now().Unix())
	for _, art := range artifacts {
		data, err := e.readAtCached(ctx, targetCommit, e.repoRelPath(art.relKey))
		if err != nil {
			return "", fmt.Errorf("reading %s at %s: %w", art.relKey, targetCommit, err)
		}
		if data == nil {
			continue
		}
		tag, err := snbt.Parse(string(data))
		if err != nil {
			return "", fmt.Errorf("parsing %s: %w", art.relKey, err)
		}
		root, ok := tag.Value.(nbt.Compound)
		if !ok {
			return "", fmt.Errorf("%w: %s root is not a compound", gerrs.ErrMalformedSnbt, art.relKey)
		}
		global := coord.New(regionCoord.X*32+art.chunkCoord.X, regionCoord.Z*32+art.chunkCoord.Z)
		if err := writer.AddChunk(global, root, e.Compression, now); err != nil {
			return "", err
		}
	}

	outPath := filepath.Join(saveRoot, category, fmt.Sprintf("r.%d.%d.mca", regionCoord.X, regionCoord.Z))
	if err := writer.Write(outPath); err != nil {
		return "", fmt.Errorf("writing %s: %w", outPath, err)
	}
	return outPath, nil
}

// rebuildDocument rebuilds one top-level NBT document (e.g. level.dat)
// from its mirror artifact. The destination is derived from relKey
// relative to saveRoot, not from the stamp's "OriginalPath" — that
// field is an absolute-path provenance record from whichever machine
// ran Extract, and Rebuild must target saveRoot regardless of where
// the original extract happened.
func (e *Engine) rebuildDocument(ctx context.Context, targetCommit, relKey, saveRoot string) (string, error) {
	data, err := e.readAtCached(ctx, targetCommit, e.repoRelPath(relKey))
	if err != nil {
		return "", fmt.Errorf("reading %s at %s: %w", relKey, targetCommit, err)
	}
	if data == nil {
		return "", fmt.Errorf("%w: %s missing at commit %s", gerrs.ErrManifestCorrupt, relKey, targetCommit)
	}

	destRel := strings.TrimSuffix(relKey, ".snbt")
	destPath := filepath.Join(saveRoot, filepath.FromSlash(destRel))

	docName := filepath.Base(destRel)
	doc, err := snbt.ParseDocument(docName, string(data))
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", relKey, err)
	}

	kind := compress.Raw
	if strings.EqualFold(docName, "level.dat") {
		kind = compress.GZip
	}
	encoded, err := nbt.WriteFile(doc, kind)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", relKey, err)
	}

	if err := writeAtomic(destPath, encoded); err != nil {
		return "", err
	}
	return destPath, nil
}

// rebuildPassthrough restores a pass-through text artifact (a
// *.json/*.mcfunction/*.txt file extracted verbatim) to its original
// relative position under saveRoot.
func (e *Engine) rebuildPassthrough(ctx context.Context, targetCommit, relKey, saveRoot string) (string, error) {
	data, err := e.readAtCached(ctx, targetCommit, e.repoRelPath(relKey))
	if err != nil {
		return "", fmt.Errorf("reading %s at %s: %w", relKey, targetCommit, err)
	}
	if data == nil {
		return "", fmt.Errorf("%w: %s missing at commit %s", gerrs.ErrManifestCorrupt, relKey, targetCommit)
	}
	destPath := filepath.Join(saveRoot, filepath.FromSlash(relKey))
	if err := writeAtomic(destPath, data); err != nil {
		return "", err
	}
	return destPath, nil
}

// FinalizeCommit replaces every "pending" manifest entry with hash. It
// is called after the repository collaborator reports a successful
// commit, and is the only writer of a real commit hash into the
// manifest.
func (e *Engine) FinalizeCommit(ctx context.Context, saveRoot, hash string) error {
	mirrorRoot := e.mirrorRoot(saveRoot)
	manifest, err := loadManifest(mirrorRoot)
	if err != nil {
		return err
	}
	if changed := finalizePending(manifest, hash); changed == 0 {
		return nil
	}
	if err := saveManifest(mirrorRoot, manifest); err != nil {
		return err
	}
	return e.Repo.Stage(ctx, []string{e.repoRelPath(manifestFileName)})
}
