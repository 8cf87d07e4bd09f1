package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"polyglot/internal/logging"
	"polyglot/internal/manifest"
	"polyglot/internal/project"
)

// Locator walks a source tree and matches files against the catalog.
type Locator struct {
	catalog *project.Catalog
	ignore  []string
}

// NewLocator creates a Locator. Ignore patterns are doublestar globs matched
// against slash-separated directory paths relative to the walk root.
func NewLocator(catalog *project.Catalog, ignore []string) (*Locator, error) {
	for _, p := range ignore {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid ignore pattern %q", p)
		}
	}
	return &Locator{catalog: catalog, ignore: ignore}, nil
}

// Locate returns the sources under root grouped by project identifier.
// Every catalog identifier has an entry, possibly empty. Within a bucket
// sources appear in lexical directory order.
func (l *Locator) Locate(root string) (map[string][]*Source, error) {
	timer := logging.StartTimer(logging.CategoryLocator, "Locate")
	defer timer.Stop()

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	ids := l.catalog.IDs()
	found := make(map[string][]*Source, len(ids))
	for _, id := range ids {
		found[id] = nil
	}

	count := 0
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != abs {
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if l.ignored(abs, path) {
				logging.LocatorDebug("Ignoring %s", path)
				return filepath.SkipDir
			}
		}

		sources, err := l.scanDir(path, ids)
		if err != nil {
			return err
		}
		for id, src := range sources {
			found[id] = append(found[id], src)
			count++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Locator("Found %d sources under %s", count, abs)
	return found, nil
}

// scanDir returns at most one source per identifier for dir.
func (l *Locator) scanDir(dir string, ids []string) (map[string]*Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make(map[string]bool, len(entries))
	for _, e := range entries {
		if isFile(dir, e) {
			files[e.Name()] = true
		}
	}
	if !files[manifest.FileName] {
		return nil, nil
	}

	m, err := manifest.Load(dir)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*Source)
	for _, id := range ids {
		stem, err := l.catalog.FilenameFor(id, m.Folder.Naming)
		if err != nil {
			return nil, err
		}
		filename := stem + m.Folder.Extension
		if !files[filename] {
			continue
		}
		src, err := New(filename, dir, id, m)
		if err != nil {
			return nil, err
		}
		logging.LocatorDebug("%s -> %s", id, src.FullPath())
		out[id] = src
	}
	return out, nil
}

// isFile reports whether e is a regular file, following symlinks. Dangling
// links are skipped.
func isFile(dir string, e fs.DirEntry) bool {
	if e.Type().IsRegular() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, e.Name()))
	if err != nil {
		logging.LocatorDebug("Skipping unreadable link %s: %v", filepath.Join(dir, e.Name()), err)
		return false
	}
	return info.Mode().IsRegular()
}

func (l *Locator) ignored(root, dir string) bool {
	if len(l.ignore) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range l.ignore {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Flatten returns every source in buckets ordered by identifier, then by
// position within the bucket.
func Flatten(buckets map[string][]*Source) []*Source {
	ids := make([]string, 0, len(buckets))
	for id := range buckets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []*Source
	for _, id := range ids {
		out = append(out, buckets[id]...)
	}
	return out
}
