package tempo

import (
	"math"
	"slices"
)

// Named pairs a filtered, cropped field with its output column.
type Named struct {
	Column string
	Field  *Field
}

// Origin describes where the rows of a granule come from.
type Origin struct {
	SourceFile string
	// Kind is copied to every record; leave empty to omit product_kind.
	Kind Kind
}

type cellKey struct {
	extra    int
	lat, lon float64
}

// BuildRows flattens main into one record per cell with a non-missing value
// and left-joins each auxiliary field onto it. The join key is (extra
// dimensions, latitude, longitude) when the auxiliary has the same extra
// dimensions as main, typically time, and (latitude, longitude) otherwise.
// Unmatched or missing auxiliary values leave the cell empty; the first
// auxiliary row wins when a key repeats.
func BuildRows(main Named, aux []Named, st Stamp, org Origin) []Record {
	mf := main.Field
	proto := template(main, aux, st, org)
	lookups := make([]map[cellKey]float64, len(aux))
	withExtra := make([]bool, len(aux))
	for i, a := range aux {
		withExtra[i] = sameExtraDims(mf, a.Field)
		lookups[i] = index(a.Field, withExtra[i])
	}

	var recs []Record
	eachCell(mf, func(off int, key cellKey) {
		v := mf.Values[off]
		if math.IsNaN(v) {
			return
		}
		r := proto
		r.Latitude, r.Longitude = key.lat, key.lon
		r.Main.V = v
		if len(aux) > 0 {
			r.Aux = make([]Value, len(aux))
			copy(r.Aux, proto.Aux)
		}
		for i := range aux {
			k := key
			if !withExtra[i] {
				k.extra = 0
			}
			if av, ok := lookups[i][k]; ok {
				r.Aux[i].V = av
			}
		}
		recs = append(recs, r)
	})
	return recs
}

// Schema returns the columns BuildRows emits for the same arguments, also
// when no cell survives.
func Schema(main Named, aux []Named, st Stamp, org Origin) []string {
	r := template(main, aux, st, org)
	cells := r.Cells()
	cols := make([]string, len(cells))
	for i, c := range cells {
		cols[i] = c.Name
	}
	return cols
}

// template is a record carrying everything but the cell values.
func template(main Named, aux []Named, st Stamp, org Origin) Record {
	units := []Column{{Name: "units", Value: main.Field.Attrs.Units}}
	r := Record{
		At:         st.At,
		Time:       st.Columns,
		CoordBits:  main.Field.CoordBits,
		Main:       Value{Name: main.Column, V: math.NaN(), Bits: main.Field.Bits},
		SourceFile: org.SourceFile,
		Kind:       org.Kind,
	}
	if len(aux) > 0 {
		r.Aux = make([]Value, len(aux))
	}
	for i, a := range aux {
		r.Aux[i] = Value{Name: a.Column, V: math.NaN(), Bits: a.Field.Bits}
		if a.Field.Attrs.Units != "" {
			units = append(units, Column{Name: a.Column + "_units", Value: a.Field.Attrs.Units})
		}
	}
	r.Units = units
	return r
}

func index(f *Field, withExtra bool) map[cellKey]float64 {
	m := make(map[cellKey]float64, f.Size())
	eachCell(f, func(off int, key cellKey) {
		if !withExtra {
			key.extra = 0
		}
		if _, dup := m[key]; !dup {
			m[key] = f.Values[off]
		}
	})
	return m
}

// eachCell visits every cell of an aligned field in row-major order. The
// key's extra component is the flattened index over the non-spatial
// dimensions.
func eachCell(f *Field, fn func(off int, key cellKey)) {
	latDim, lonDim := f.DimIndex(Latitude), f.DimIndex(Longitude)
	lats, lons := f.Coords[Latitude], f.Coords[Longitude]
	if f.Size() == 0 || latDim < 0 || lonDim < 0 {
		return
	}
	idx := make([]int, len(f.Shape))
	for off := 0; ; off++ {
		extra := 0
		for d, i := range idx {
			if d != latDim && d != lonDim {
				extra = extra*f.Shape[d] + i
			}
		}
		fn(off, cellKey{extra: extra, lat: lats[idx[latDim]], lon: lons[idx[lonDim]]})
		if !next(idx, f.Shape) {
			return
		}
	}
}

func extraDims(f *Field) ([]string, []int) {
	var names []string
	var sizes []int
	for d, n := range f.Dims {
		if n == Latitude || n == Longitude {
			continue
		}
		names = append(names, n)
		sizes = append(sizes, f.Shape[d])
	}
	return names, sizes
}

func sameExtraDims(a, b *Field) bool {
	an, as := extraDims(a)
	bn, bs := extraDims(b)
	return len(an) > 0 && slices.Equal(an, bn) && slices.Equal(as, bs)
}
