package tempo

import (
	"io"
	"log/slog"
	"path/filepath"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// OpenFunc opens a granule and returns its root group.
type OpenFunc func(path string) (api.Group, error)

// DefaultOpen reads netCDF-4/HDF5 and classic CDF files.
var DefaultOpen OpenFunc = netcdf.Open

var (
	latNames = []string{"latitude", "lat", "y"}
	lonNames = []string{"longitude", "lon", "x"}
)

// Scanner extracts the records of a single granule. The root and product
// group handles live from NewScanner until Close.
type Scanner struct {
	logger  *slog.Logger
	name    string
	root    api.Group
	prod    api.Group
	ownProd bool
	lat     Axis
	lon     Axis

	main   string
	aux    []string
	cols   []string
	recCnt int
}

// NewScanner opens the granule at path together with its product group. A
// file without the product group is read from its root group instead.
func NewScanner(logger *slog.Logger, path, productGroup string, open OpenFunc) (*Scanner, error) {
	if open == nil {
		open = DefaultOpen
	}
	if logger == nil {
		logger = discardLogger()
	}
	root, err := open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrIO, "open: %v", err)
	}
	s := &Scanner{logger: logger, name: filepath.Base(path), root: root, prod: root}
	// The decoder may panic on corrupt files; release the handles before
	// the panic leaves NewScanner.
	defer func() {
		if r := recover(); r != nil {
			s.Close()
			panic(r)
		}
	}()
	if productGroup != "" {
		if g, err := root.GetGroup(productGroup); err == nil {
			s.prod, s.ownProd = g, true
		} else {
			logger.Debug("product group not found, using root", "file", s.name, "group", productGroup)
		}
	}
	if s.lat, err = s.findAxis(latNames); err != nil {
		s.Close()
		return nil, err
	}
	if s.lon, err = s.findAxis(lonNames); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// findAxis looks the aliases up in the root group first, then in the
// product group.
func (s *Scanner) findAxis(aliases []string) (Axis, error) {
	groups := []api.Group{s.root}
	if s.ownProd {
		groups = append(groups, s.prod)
	}
	for _, name := range aliases {
		for _, g := range groups {
			if hasVariable(g, name) {
				return readAxis(g, name)
			}
		}
	}
	return Axis{}, errors.Wrapf(ErrMissingCoordinate, "none of %v", aliases)
}

func hasVariable(g api.Group, name string) bool {
	for _, v := range g.ListVariables() {
		if v == name {
			return true
		}
	}
	return false
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Close releases both group handles.
func (s *Scanner) Close() {
	if s.ownProd {
		s.prod.Close()
	}
	s.root.Close()
}

// Summary returns the summary information about the granule suitable for
// logging.
func (s *Scanner) Summary() []any {
	sum := []any{
		"file", s.name,
		"main", s.main,
		"aux", s.aux,
		"laCnt", len(s.lat.Values),
		"loCnt", len(s.lon.Values),
		"recCnt", s.recCnt,
	}
	if len(s.lat.Values) > 0 && len(s.lon.Values) > 0 {
		sum = append(sum,
			"laRange", []float64{floats.Min(s.lat.Values), floats.Max(s.lat.Values)},
			"loRange", []float64{floats.Min(s.lon.Values), floats.Max(s.lon.Values)},
		)
	}
	return sum
}

// Extract runs the granule through resolution, alignment, filtering,
// cropping and timestamping, and returns one record per retained cell.
func (s *Scanner) Extract(p Profile, tr TimeResolver, bbox *BBox, positive bool) ([]Record, error) {
	if AmbiguousAxes(s.lat, s.lon) {
		s.logger.Warn("latitude and longitude have equal length, assuming (..., lat, lon) dimension order",
			"file", s.name, "len", len(s.lat.Values))
	}
	names := s.prod.ListVariables()
	mainName, ok := Resolve(names, p.Main)
	if !ok {
		return nil, errors.Wrapf(ErrUnresolvedVariable, "no %s among %v", p.Main.Column, names)
	}
	s.main = mainName

	stamp, err := tr.Resolve(s.name, s.root)
	if err != nil {
		return nil, err
	}

	mf, err := s.prepare(mainName, bbox, positive)
	if err != nil {
		return nil, err
	}

	var aux []Named
	for _, role := range p.Aux {
		name, ok := Resolve(names, role)
		if !ok {
			continue
		}
		f, err := s.prepare(name, bbox, false)
		if err != nil {
			s.logger.Warn("dropping auxiliary field", "file", s.name, "column", role.Column, "var", name, "err", err)
			continue
		}
		s.aux = append(s.aux, name)
		aux = append(aux, Named{Column: role.Column, Field: f})
	}

	org := Origin{SourceFile: s.name}
	if p.EmitKind {
		org.Kind = p.Kind
	}
	mainNamed := Named{Column: p.Main.Column, Field: mf}
	s.cols = Schema(mainNamed, aux, stamp, org)
	recs := BuildRows(mainNamed, aux, stamp, org)
	s.recCnt = len(recs)
	return recs, nil
}

// Columns returns the output columns of the last Extract, also when it
// produced no records.
func (s *Scanner) Columns() []string {
	return s.cols
}

func (s *Scanner) prepare(name string, bbox *BBox, positive bool) (*Field, error) {
	f, err := readField(s.prod, name)
	if err != nil {
		return nil, err
	}
	f, err = Align(f, s.lat, s.lon)
	if err != nil {
		return nil, err
	}
	return Crop(Filter(f, positive), bbox)
}
