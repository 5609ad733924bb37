package migration

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// LoadFromDir reads every regular file directly inside dir. Subdirectories
// are not scanned. The result is unsorted.
func LoadFromDir(fs afero.Fs, dir string) ([]Migration, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory %s: %w", dir, err)
	}

	migrations := make([]Migration, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		content, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, fmt.Errorf("reading migration file %s: %w", path, err)
		}

		migrations = append(migrations, Migration{
			Filename: entry.Name(),
			Path:     path,
			Content:  content,
			Checksum: ComputeChecksum(content),
		})
	}

	return migrations, nil
}

// LoadFromDirs loads every directory and merges the results into a single
// set keyed by filename. A filename present in more than one directory is
// rejected with ErrDuplicateFilename before anything is returned.
func LoadFromDirs(fs afero.Fs, dirs ...string) ([]Migration, error) {
	var all []Migration

	for _, dir := range dirs {
		ms, err := LoadFromDir(fs, dir)
		if err != nil {
			return nil, err
		}

		all = append(all, ms...)
	}

	return Merge(all)
}

// Merge returns ms unchanged if every filename is unique, or
// ErrDuplicateFilename naming both conflicting paths.
func Merge(ms []Migration) ([]Migration, error) {
	seen := make(map[string]string, len(ms))

	for _, m := range ms {
		if prev, ok := seen[m.Filename]; ok {
			return nil, fmt.Errorf("%w: %s found in both %s and %s", ErrDuplicateFilename, m.Filename, prev, m.Path)
		}

		seen[m.Filename] = m.Path
	}

	return ms, nil
}

// Find returns the migration with the given filename, if present.
func Find(ms []Migration, filename string) (*Migration, bool) {
	for i := range ms {
		if ms[i].Filename == filename {
			return &ms[i], true
		}
	}

	return nil, false
}
