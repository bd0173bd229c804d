// Package csvout writes an extraction table as a header-bearing CSV file.
package csvout

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/rtm0/tempo/internal/tempo"
)

// Write writes the table header followed by one line per record. Columns a
// record does not carry are left empty. A table without columns writes
// nothing.
func Write(w io.Writer, t *tempo.Table) error {
	if len(t.Columns()) == 0 {
		return nil
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return errors.Wrap(err, "write header")
	}
	err := t.Records(func(r *tempo.Record) error {
		return cw.Write(t.Row(r))
	})
	if err != nil {
		return errors.Wrap(err, "write record")
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush")
}

// WriteFile writes the table to path, creating parent directories.
func WriteFile(path string, t *tempo.Table) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "close %s", path)
		}
	}()
	return Write(f, t)
}
