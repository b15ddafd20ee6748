// Package atomicfile replaces artifacts with write-to-temp then rename, so a
// failed write never clobbers the last good file.
package atomicfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/couchcryptid/park-waits-etl/internal/domain"
)

// WriteFile streams fn's output into a temp file next to path, syncs it and
// renames it over path. Any failure removes the temp file and returns an error
// wrapping domain.ErrWriteFailure.
func WriteFile(path string, fn func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w: %w", dir, domain.ErrWriteFailure, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w: %w", path, domain.ErrWriteFailure, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = fn(bw); err != nil {
		return fmt.Errorf("write %s: %w: %w", path, domain.ErrWriteFailure, err)
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w: %w", path, domain.ErrWriteFailure, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w: %w", path, domain.ErrWriteFailure, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w: %w", path, domain.ErrWriteFailure, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w: %w", path, domain.ErrWriteFailure, err)
	}
	return nil
}
