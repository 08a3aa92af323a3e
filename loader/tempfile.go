package loader

import (
	"fmt"
	"io"
	"os"
)

// SaveTemp copies r into a new temporary file whose name ends in suffix and
// returns its path. File-based parsers can then open it by name.
func SaveTemp(r io.Reader, suffix string) (string, error) {
	tmp, err := os.CreateTemp("", "upload-*"+suffix)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	return tmp.Name(), nil
}

// TempFiles tracks the files saved for one submission.
type TempFiles struct {
	paths []string
}

func (t *TempFiles) Save(r io.Reader, suffix string) (string, error) {
	path, err := SaveTemp(r, suffix)
	if err != nil {
		return "", err
	}
	t.paths = append(t.paths, path)
	return path, nil
}

func (t *TempFiles) Paths() []string {
	return t.paths
}

// Cleanup removes every tracked file. Files already gone are ignored.
func (t *TempFiles) Cleanup() error {
	var first error
	for _, p := range t.paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && first == nil {
			first = err
		}
	}
	t.paths = nil
	return first
}
