package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hperssn/haptics/internal/domain"
)

var (
	ErrInvalidName = errors.New("invalid pattern name")
	ErrNotFound    = errors.New("not found")
)

const patternExt = ".json"

// FileStore keeps one pattern per file in a flat directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create pattern dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Dir() string {
	return s.dir
}

// List returns the names of the files at the top level of the directory.
// Subdirectories are neither listed nor descended into.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	names := []string{}
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Save writes p under name, adding the .json extension when missing, and
// returns the file name used.
func (s *FileStore) Save(name string, p *domain.Pattern) (string, error) {
	file, err := fileName(name)
	if err != nil {
		return "", err
	}
	data, err := p.MarshalJSON()
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".pattern-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, file)); err != nil {
		return "", err
	}
	return file, nil
}

// Load replaces p with the pattern stored under name. p is untouched on
// error.
func (s *FileStore) Load(name string, p *domain.Pattern) error {
	file, err := fileName(name)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, file))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, file)
	}
	if err != nil {
		return err
	}
	if err := p.LoadJSON(string(data)); err != nil {
		return fmt.Errorf("load %s: %w", file, err)
	}
	return nil
}

// RemoveAll deletes every file at the top level of the directory.
func (s *FileStore) RemoveAll() (int, error) {
	names, err := s.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, name := range names {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return removed, fmt.Errorf("remove %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}

func fileName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") ||
		strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !strings.EqualFold(filepath.Ext(name), patternExt) {
		name += patternExt
	}
	return name, nil
}
