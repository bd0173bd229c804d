package tempo

import (
	"log/slog"
	"path/filepath"

	"github.com/pkg/errors"
)

// Result is the outcome of a batch run.
type Result struct {
	Table *Table
	Skips []Skip
	Files int
}

// Run processes files one at a time in the given order. A granule that fails
// is recorded as a Skip and the batch continues. Run fails only when files
// is empty or when no granule could be processed.
func Run(logger *slog.Logger, cfg Config, files []string, open OpenFunc) (*Result, error) {
	if len(files) == 0 {
		return nil, ErrNoInputFiles
	}
	if logger == nil {
		logger = discardLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := ProfileFor(cfg.Product)
	if err != nil {
		return nil, err
	}
	tr, err := NewTimeResolver(cfg.TimeStrategy, p)
	if err != nil {
		return nil, err
	}

	res := &Result{Table: &Table{}, Files: len(files)}
	for _, path := range files {
		logger.Info("processing", "file", filepath.Base(path))
		recs, cols, err := extractGranule(logger, cfg, p, tr, path, open)
		if err != nil {
			logger.Warn("skipped", "file", filepath.Base(path), "err", err)
			res.Skips = append(res.Skips, Skip{File: filepath.Base(path), Err: err})
			continue
		}
		if len(recs) == 0 {
			logger.Warn("no cells left after filtering and cropping", "file", filepath.Base(path))
		}
		res.Table.AddColumns(cols)
		res.Table.Append(recs)
	}

	if res.Table.Granules() == 0 {
		return res, errors.Wrapf(ErrNoGranules, "%d files skipped", len(res.Skips))
	}
	logger.Info("done", "rows", res.Table.Len(), "ok", res.Table.Granules(), "total", res.Files)
	return res, nil
}

// extractGranule owns the granule's group handles for the duration of the
// call; they are released on every return path.
func extractGranule(logger *slog.Logger, cfg Config, p Profile, tr TimeResolver, path string, open OpenFunc) (recs []Record, cols []string, err error) {
	// Malformed files can panic deep inside the decoder.
	defer func() {
		if r := recover(); r != nil {
			recs, cols, err = nil, nil, errors.Wrapf(ErrIO, "decoder panic: %v", r)
		}
	}()
	s, err := NewScanner(logger, path, cfg.ProductGroup, open)
	if err != nil {
		return nil, nil, err
	}
	defer s.Close()
	recs, err = s.Extract(p, tr, cfg.BBox, cfg.RemoveNonPositive)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("granule summary", s.Summary()...)
	return recs, s.Columns(), nil
}
