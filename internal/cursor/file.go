package cursor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/abdulachik/spamsweep/internal/toot"
)

// File stores the cursor as plain text in a single file.
type File struct {
	path string
}

// NewFile creates a file-backed cursor store.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Load reads the cursor. A missing or empty file yields "".
func (f *File) Load() (string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", f.path, err)
	}

	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", nil
	}
	if !toot.ValidID(id) {
		return "", fmt.Errorf("read %s: malformed cursor %q", f.path, id)
	}
	return id, nil
}

// Save overwrites the file with id. The write goes through a temporary
// file so a crash never leaves a truncated cursor behind.
func (f *File) Save(id string) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cursor directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(id); err != nil {
		tmp.Close()
		return fmt.Errorf("write cursor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cursor: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace cursor: %w", err)
	}
	return nil
}
