package fs

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// writeFileAtomic writes the contents of r to filename through a temp file
// and a rename, so readers see either the old or the new file, never a mix.
func writeFileAtomic(filename string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create directories for %s: %w", filename, err)
	}
	if err := atomic.WriteFile(filename, r); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	if err := os.Chmod(filename, perm); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", filename, err)
	}
	return nil
}

func writeBytesAtomic(filename string, data []byte, perm os.FileMode) error {
	return writeFileAtomic(filename, bytes.NewReader(data), perm)
}
