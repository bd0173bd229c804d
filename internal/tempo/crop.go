package tempo

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// BBox is an inclusive geographic bounding box in degrees.
type BBox struct {
	LonMin float64
	LatMin float64
	LonMax float64
	LatMax float64
}

// NYC is the default region: the five boroughs plus a margin.
var NYC = BBox{LonMin: -74.3, LatMin: 40.4, LonMax: -73.6, LatMax: 41.0}

// ParseBBox parses "lon_min,lat_min,lon_max,lat_max". The empty string and
// "none" yield nil, meaning no cropping.
func ParseBBox(s string) (*BBox, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, errors.Errorf("bbox %q: want lon_min,lat_min,lon_max,lat_max", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bbox %q", s)
		}
		v[i] = f
	}
	b := &BBox{LonMin: v[0], LatMin: v[1], LonMax: v[2], LatMax: v[3]}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate rejects inverted boxes.
func (b BBox) Validate() error {
	if b.LonMin > b.LonMax || b.LatMin > b.LatMax {
		return errors.Errorf("bbox %s: min exceeds max", b)
	}
	return nil
}

// Contains reports whether the point lies in b, bounds included.
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.LatMin && lat <= b.LatMax && lon >= b.LonMin && lon <= b.LonMax
}

func (b BBox) String() string {
	return strings.Join([]string{
		strconv.FormatFloat(b.LonMin, 'f', -1, 64),
		strconv.FormatFloat(b.LatMin, 'f', -1, 64),
		strconv.FormatFloat(b.LonMax, 'f', -1, 64),
		strconv.FormatFloat(b.LatMax, 'f', -1, 64),
	}, ",")
}

// Crop drops every cell of an aligned field that lies outside b. The result
// has smaller latitude/longitude dimensions; a nil box returns f unchanged.
func Crop(f *Field, b *BBox) (*Field, error) {
	if b == nil {
		return f, nil
	}
	latDim, lonDim := f.DimIndex(Latitude), f.DimIndex(Longitude)
	if latDim < 0 || lonDim < 0 {
		return nil, errors.Wrapf(ErrDimensionMismatch, "crop %s: field is not aligned", f.Name)
	}
	lats, lons := f.Coords[Latitude], f.Coords[Longitude]
	keepLat := keepIndices(lats, b.LatMin, b.LatMax)
	keepLon := keepIndices(lons, b.LonMin, b.LonMax)

	out := *f
	out.Shape = append([]int(nil), f.Shape...)
	out.Shape[latDim] = len(keepLat)
	out.Shape[lonDim] = len(keepLon)
	out.Coords = make(map[string][]float64, len(f.Coords))
	for k, v := range f.Coords {
		out.Coords[k] = v
	}
	out.Coords[Latitude] = pick(lats, keepLat)
	out.Coords[Longitude] = pick(lons, keepLon)

	n := 1
	for _, s := range out.Shape {
		n *= s
	}
	out.Values = make([]float64, 0, n)
	if n == 0 {
		return &out, nil
	}
	// Walk the cropped index space and translate back to the source.
	idx := make([]int, len(out.Shape))
	src := make([]int, len(out.Shape))
	strides := stridesOf(f.Shape)
	for {
		copy(src, idx)
		src[latDim] = keepLat[idx[latDim]]
		src[lonDim] = keepLon[idx[lonDim]]
		off := 0
		for d, i := range src {
			off += i * strides[d]
		}
		out.Values = append(out.Values, f.Values[off])
		if !next(idx, out.Shape) {
			break
		}
	}
	return &out, nil
}

func keepIndices(coord []float64, lo, hi float64) []int {
	var keep []int
	for i, c := range coord {
		if c >= lo && c <= hi {
			keep = append(keep, i)
		}
	}
	return keep
}

func pick(vals []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = vals[j]
	}
	return out
}

func stridesOf(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for d := len(shape) - 1; d >= 0; d-- {
		s[d] = acc
		acc *= shape[d]
	}
	return s
}

// next advances a row-major multi-index; it returns false after the last one.
func next(idx, shape []int) bool {
	for d := len(idx) - 1; d >= 0; d-- {
		idx[d]++
		if idx[d] < shape[d] {
			return true
		}
		idx[d] = 0
	}
	return false
}
