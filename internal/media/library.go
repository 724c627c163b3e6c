package media

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Library indexes the playable files beneath a configured root directory.
// The index is derived state: it is rebuilt on demand from the file system
// and never authoritative. Categories are the first-level directories under
// the root; files directly under the root belong to the default category.
type Library struct {
	root   string
	logger *slog.Logger

	mu    sync.RWMutex
	index map[string][]string
}

// DefaultCategory holds files that sit directly under the media root.
const DefaultCategory = "default"

// NewLibrary resolves the root to an absolute path, creates it when missing,
// and performs an initial scan.
func NewLibrary(root string, logger *slog.Logger) (*Library, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("media root is required")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve media root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("prepare media root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	lib := &Library{root: absRoot, logger: logger, index: make(map[string][]string)}
	if err := lib.Rescan(); err != nil {
		return nil, err
	}
	return lib, nil
}

// Root returns the absolute media root.
func (l *Library) Root() string {
	return l.root
}

// ResolveUnder joins rel beneath root and requires the normalized absolute
// result to stay confined to root. The empty-prefix check is done against
// root plus separator so that a sibling like /media-evil cannot pass.
func ResolveUnder(root, rel string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	joined := filepath.Join(absRoot, filepath.FromSlash(rel))
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if abs != absRoot && !strings.HasPrefix(abs, absRoot+string(filepath.Separator)) {
		return "", &PathTraversalError{Path: rel}
	}
	return abs, nil
}

// Resolve confines rel to the library root.
func (l *Library) Resolve(rel string) (string, error) {
	return ResolveUnder(l.root, rel)
}

// Rescan walks the root recursively and rebuilds the category index. Paths
// are stored relative to the root, sorted lexicographically; that order is
// the canonical unshuffled playback order.
func (l *Library) Rescan() error {
	index := make(map[string][]string)
	err := filepath.WalkDir(l.root, func(current string, d fs.DirEntry, err error) error {
		if err != nil {
			// Keep scanning past unreadable subtrees.
			l.logger.Warn("skipping unreadable path", "path", current, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !PlayableExtension(current) {
			return nil
		}
		rel, err := filepath.Rel(l.root, current)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		category := DefaultCategory
		if idx := strings.IndexByte(rel, '/'); idx > 0 {
			category = rel[:idx]
		}
		index[category] = append(index[category], rel)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan media root: %w", err)
	}
	for _, files := range index {
		sort.Strings(files)
	}

	l.mu.Lock()
	l.index = index
	l.mu.Unlock()
	return nil
}

// Enumerate returns the sorted relative paths of the named category. The
// returned slice is a copy.
func (l *Library) Enumerate(category string) ([]string, error) {
	if strings.TrimSpace(category) == "" {
		category = DefaultCategory
	}
	l.mu.RLock()
	files, ok := l.index[category]
	l.mu.RUnlock()
	if !ok {
		return nil, &ValidationError{Field: "category", Reason: fmt.Sprintf("%q does not exist", category)}
	}
	out := make([]string, len(files))
	copy(out, files)
	return out, nil
}

// Categories returns the category name to playable-file count mapping.
func (l *Library) Categories() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]int, len(l.index))
	for category, files := range l.index {
		out[category] = len(files)
	}
	return out
}
