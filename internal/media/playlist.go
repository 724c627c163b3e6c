package media

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
)

// EmptyPlaylistError reports that no playable file survived resolution.
type EmptyPlaylistError struct {
	Category string
}

func (e *EmptyPlaylistError) Error() string {
	if e.Category == "" {
		return "playlist is empty: no playable files"
	}
	return fmt.Sprintf("playlist is empty: no playable files in category %q", e.Category)
}

// Manifest is a materialized concatenation manifest: the ordered entries and
// the on-disk file encoding them in the encoder's concat syntax. Generation
// numbers are monotonically increasing per tracker; cleanup of generation N
// is permitted only once a later generation is confirmed active.
type Manifest struct {
	Generation uint64
	Path       string
	Entries    []string
}

// ManifestTracker manages manifest lifecycle: registering new generations,
// retiring superseded ones, and sweeping retired files once it is safe.
type ManifestTracker struct {
	mu        sync.Mutex
	logger    *slog.Logger
	nextGen   uint64
	active    *Manifest
	confirmed uint64
	retired   []*Manifest
}

// NewManifestTracker constructs an empty tracker.
func NewManifestTracker(logger *slog.Logger) *ManifestTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ManifestTracker{logger: logger, nextGen: 1}
}

func (t *ManifestTracker) nextGeneration() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	gen := t.nextGen
	t.nextGen++
	return gen
}

// Register installs m as the active manifest. The previously active manifest
// is queued for deferred deletion; its file stays on disk because the running
// process may still be reading it.
func (t *ManifestTracker) Register(m *Manifest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active != nil {
		t.retired = append(t.retired, t.active)
	}
	t.active = m
}

// ConfirmActive records that the process consuming the given generation is
// running, unlocking the sweep of every older generation.
func (t *ManifestTracker) ConfirmActive(generation uint64) {
	t.mu.Lock()
	if generation > t.confirmed {
		t.confirmed = generation
	}
	t.mu.Unlock()
}

// Sweep deletes retired manifests whose generation precedes the newest
// confirmed one. File deletion happens outside the tracker lock.
func (t *ManifestTracker) Sweep() {
	t.mu.Lock()
	var keep, remove []*Manifest
	for _, m := range t.retired {
		if m.Generation < t.confirmed {
			remove = append(remove, m)
		} else {
			keep = append(keep, m)
		}
	}
	t.retired = keep
	t.mu.Unlock()

	t.deleteAll(remove)
}

// Reset retires the active manifest and deletes everything the tracker
// knows about, regardless of confirmation. Used when the stream state is
// reset and at daemon shutdown, when no process can still hold a manifest.
func (t *ManifestTracker) Reset() {
	t.mu.Lock()
	remove := t.retired
	t.retired = nil
	if t.active != nil {
		remove = append(remove, t.active)
		t.active = nil
	}
	t.confirmed = 0
	t.mu.Unlock()

	t.deleteAll(remove)
}

func (t *ManifestTracker) deleteAll(manifests []*Manifest) {
	for _, m := range manifests {
		if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
			t.logger.Warn("remove superseded manifest", "path", m.Path, "error", err)
			continue
		}
		t.logger.Debug("removed superseded manifest", "path", m.Path, "generation", m.Generation)
	}
}

// PlaylistBuilder materializes ordered playback sequences as concat manifest
// files on scratch storage.
type PlaylistBuilder struct {
	scratchDir string
	logger     *slog.Logger
	tracker    *ManifestTracker
	shuffle    func(n int, swap func(i, j int))
}

// NewPlaylistBuilder prepares the scratch directory and wires the tracker.
func NewPlaylistBuilder(scratchDir string, tracker *ManifestTracker, logger *slog.Logger) (*PlaylistBuilder, error) {
	if strings.TrimSpace(scratchDir) == "" {
		return nil, fmt.Errorf("scratch directory is required")
	}
	absDir, err := filepath.Abs(scratchDir)
	if err != nil {
		return nil, fmt.Errorf("resolve scratch directory: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare scratch directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if tracker == nil {
		tracker = NewManifestTracker(logger)
	}
	return &PlaylistBuilder{
		scratchDir: absDir,
		logger:     logger,
		tracker:    tracker,
		shuffle:    rand.Shuffle,
	}, nil
}

// Tracker exposes the manifest tracker for lifecycle hooks.
func (b *PlaylistBuilder) Tracker() *ManifestTracker {
	return b.tracker
}

// Build produces a manifest from the resolved absolute file list. When
// shuffling, a single uniform permutation is drawn and then concatenated with
// itself repeat times; the permutation is not redrawn per repetition, so one
// shuffle yields a long sequence with no repeats inside a single pass.
// Entries that fail a readability check at write time are skipped with a
// warning; if nothing survives, Build fails with EmptyPlaylistError.
func (b *PlaylistBuilder) Build(files []string, shuffle bool, repeat int) (*Manifest, error) {
	if repeat < 1 {
		repeat = 1
	}
	ordered := make([]string, len(files))
	copy(ordered, files)
	if shuffle {
		b.shuffle(len(ordered), func(i, j int) {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		})
	}

	var entries []string
	for i := 0; i < repeat; i++ {
		for _, path := range ordered {
			if _, err := os.Stat(path); err != nil {
				if i == 0 {
					b.logger.Warn("skipping unreadable playlist entry", "path", path, "error", err)
				}
				continue
			}
			entries = append(entries, path)
		}
	}
	if len(entries) == 0 {
		return nil, &EmptyPlaylistError{}
	}

	generation := b.tracker.nextGeneration()
	manifestPath := filepath.Join(b.scratchDir, fmt.Sprintf("playlist-%d.txt", generation))

	var sb strings.Builder
	for _, entry := range entries {
		sb.WriteString("file '")
		sb.WriteString(escapeConcatPath(entry))
		sb.WriteString("'\n")
	}
	if err := renameio.WriteFile(manifestPath, []byte(sb.String()), 0o644); err != nil {
		return nil, fmt.Errorf("write playlist manifest: %w", err)
	}

	manifest := &Manifest{Generation: generation, Path: manifestPath, Entries: entries}
	b.tracker.Register(manifest)
	b.logger.Info("playlist manifest written",
		"path", manifestPath,
		"entries", len(entries),
		"generation", generation,
		"shuffle", shuffle,
		"repeat", repeat,
	)
	return manifest, nil
}

// escapeConcatPath escapes single quotes per the concat demuxer's quoting
// rules: ' closes the string, \' emits the quote, ' reopens it.
func escapeConcatPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}
