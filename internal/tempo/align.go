package tempo

import "github.com/pkg/errors"

// Canonical axis names used in aligned fields and output rows.
const (
	Latitude  = "latitude"
	Longitude = "longitude"
)

// Axis is a one-dimensional coordinate variable.
type Axis struct {
	Name   string
	Values []float64
	Bits   int
}

// Align labels the latitude and longitude dimensions of f and attaches the
// coordinate values of lat and lon to them.
//
// A dimension already named after an axis keeps that role. Remaining
// dimensions are matched by length, walking them in declared order: a
// dimension becomes latitude iff its length equals the latitude axis length
// and latitude is still unclaimed, otherwise longitude under the same rule.
// When both axes have the same length this yields the (..., y, x) order:
// first matching dimension is latitude, the next is longitude.
func Align(f *Field, lat, lon Axis) (*Field, error) {
	out := *f
	out.Dims = append([]string(nil), f.Dims...)
	out.Coords = make(map[string][]float64, len(f.Coords)+2)
	for k, v := range f.Coords {
		out.Coords[k] = v
	}

	latIdx, lonIdx := -1, -1
	for i, d := range out.Dims {
		switch {
		case latIdx < 0 && (d == Latitude || d == lat.Name):
			latIdx = i
		case lonIdx < 0 && (d == Longitude || d == lon.Name):
			lonIdx = i
		}
	}
	for i := range out.Dims {
		if i == latIdx || i == lonIdx {
			continue
		}
		switch {
		case latIdx < 0 && out.Shape[i] == len(lat.Values):
			latIdx = i
		case lonIdx < 0 && out.Shape[i] == len(lon.Values):
			lonIdx = i
		}
	}
	if latIdx < 0 || lonIdx < 0 {
		return nil, errors.Wrapf(ErrDimensionMismatch, "%s %v has no dimension of length %d (lat) and %d (lon)",
			f.Name, f.Shape, len(lat.Values), len(lon.Values))
	}

	if err := attach(&out, latIdx, Latitude, lat.Values); err != nil {
		return nil, err
	}
	if err := attach(&out, lonIdx, Longitude, lon.Values); err != nil {
		return nil, err
	}
	out.CoordBits = lat.Bits
	if lon.Bits != lat.Bits {
		out.CoordBits = 64
	}
	return &out, nil
}

func attach(f *Field, idx int, name string, values []float64) error {
	f.Dims[idx] = name
	if existing, ok := f.Coords[name]; ok && len(existing) == f.Shape[idx] {
		return nil
	}
	if f.Shape[idx] != len(values) {
		return errors.Wrapf(ErrDimensionMismatch, "%s: dimension %s has length %d, coordinate has %d",
			f.Name, name, f.Shape[idx], len(values))
	}
	f.Coords[name] = values
	return nil
}

// AmbiguousAxes reports whether size matching cannot tell the axes apart.
func AmbiguousAxes(lat, lon Axis) bool {
	return len(lat.Values) == len(lon.Values)
}
