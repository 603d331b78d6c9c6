package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// generationPattern matches generation file names: an unsigned 64-bit
// decimal integer followed by the ".sil" extension. Anything else in the
// store directory is ignored.
var generationPattern = regexp.MustCompile(`^(\d+)\.sil$`)

// ListGenerations scans dir and returns the sorted list of generation
// numbers present as "<gen>.sil" files. Non-matching files are ignored.
func ListGenerations(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: listing generations in %s: %w", dir, err)
	}

	var gens []uint64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := generationPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		gen, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		gens = append(gens, gen)
	}

	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
	return gens, nil
}

// GenerationPath returns the path of the generation file gen within dir.
func GenerationPath(dir string, gen uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.sil", gen))
}

// OpenGenerationReader opens an existing generation file read-only.
func OpenGenerationReader(dir string, gen uint64) (*os.File, error) {
	f, err := os.OpenFile(GenerationPath(dir, gen), os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: opening generation %d for read: %w", gen, err)
	}
	return f, nil
}

// CreateGenerationWriter creates (or reopens) a generation file for
// append-only writing, and a separate handle for reading it back.
func CreateGenerationWriter(dir string, gen uint64) (writer, reader *os.File, err error) {
	path := GenerationPath(dir, gen)

	writer, err = os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: creating generation %d: %w", gen, err)
	}

	reader, err = os.OpenFile(path, os.O_RDONLY, 0o644)
	if err != nil {
		_ = writer.Close()
		return nil, nil, fmt.Errorf("storage: opening generation %d for read: %w", gen, err)
	}

	return writer, reader, nil
}

// DeleteGeneration removes the generation file gen from dir.
func DeleteGeneration(dir string, gen uint64) error {
	if err := os.Remove(GenerationPath(dir, gen)); err != nil {
		return fmt.Errorf("storage: deleting generation %d: %w", gen, err)
	}
	return nil
}
