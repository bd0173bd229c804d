package tempo

import (
	"fmt"
	"math"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/pkg/errors"
)

// Attrs are the CF attributes the pipeline cares about.
type Attrs struct {
	Units    string
	Fill     []float64
	ValidMin *float64
	ValidMax *float64
}

// Field is a decoded netCDF variable: a row-major array of float64 values
// with NaN marking missing samples.
type Field struct {
	Name   string
	Dims   []string
	Shape  []int
	Values []float64

	// Bits is 32 when the source type was float32, 64 otherwise. It only
	// affects formatting.
	Bits  int
	Attrs Attrs

	// Coords holds coordinate values for the dimensions that have them.
	Coords map[string][]float64
	// CoordBits is the precision of the attached coordinates.
	CoordBits int
}

// Size returns the number of samples.
func (f *Field) Size() int {
	return len(f.Values)
}

// DimIndex returns the position of dimension name, or -1.
func (f *Field) DimIndex(name string) int {
	for i, d := range f.Dims {
		if d == name {
			return i
		}
	}
	return -1
}

// readField reads and decodes the named variable of g.
func readField(g api.Group, name string) (*Field, error) {
	vr, err := g.GetVariable(name)
	if err != nil {
		return nil, errors.Wrapf(ErrIO, "variable %s: %v", name, err)
	}
	vals, shape, bits, err := flatten(vr.Values)
	if err != nil {
		return nil, errors.Wrapf(err, "variable %s", name)
	}
	dims := vr.Dimensions
	if len(dims) != len(shape) {
		dims = make([]string, len(shape))
		for i := range dims {
			dims[i] = fmt.Sprintf("dim_%d", i)
		}
	}
	f := &Field{
		Name:   name,
		Dims:   append([]string(nil), dims...),
		Shape:  shape,
		Values: vals,
		Bits:   bits,
		Coords: map[string][]float64{},
	}
	decodeAttrs(f, vr.Attributes)
	return f, nil
}

// decodeAttrs fills f.Attrs and unpacks CF-packed values in place.
func decodeAttrs(f *Field, am api.AttributeMap) {
	if am == nil {
		return
	}
	f.Attrs.Units, _ = attrString(am, "units")
	for _, key := range []string{"_FillValue", "missing_value"} {
		if v, ok := attrFloat(am, key); ok {
			f.Attrs.Fill = append(f.Attrs.Fill, v)
		}
	}
	if v, ok := attrFloat(am, "valid_min"); ok {
		f.Attrs.ValidMin = &v
	}
	if v, ok := attrFloat(am, "valid_max"); ok {
		f.Attrs.ValidMax = &v
	}
	if r, ok := attrFloats(am, "valid_range"); ok && len(r) == 2 {
		if f.Attrs.ValidMin == nil {
			f.Attrs.ValidMin = &r[0]
		}
		if f.Attrs.ValidMax == nil {
			f.Attrs.ValidMax = &r[1]
		}
	}

	scale, hasScale := attrFloat(am, "scale_factor")
	offset, hasOffset := attrFloat(am, "add_offset")
	if !hasScale && !hasOffset {
		return
	}
	if !hasScale {
		scale = 1
	}
	unpack := func(v float64) float64 { return v*scale + offset }
	for i, v := range f.Values {
		if isFill(v, f.Attrs.Fill, f.Bits) {
			f.Values[i] = math.NaN()
			continue
		}
		f.Values[i] = unpack(v)
	}
	// Sentinels are already applied; bounds are declared in packed units.
	f.Attrs.Fill = nil
	if f.Attrs.ValidMin != nil {
		v := unpack(*f.Attrs.ValidMin)
		f.Attrs.ValidMin = &v
	}
	if f.Attrs.ValidMax != nil {
		v := unpack(*f.Attrs.ValidMax)
		f.Attrs.ValidMax = &v
	}
	if scale < 0 && f.Attrs.ValidMin != nil && f.Attrs.ValidMax != nil {
		f.Attrs.ValidMin, f.Attrs.ValidMax = f.Attrs.ValidMax, f.Attrs.ValidMin
	}
	f.Bits = 64
}

// readAxis reads a one-dimensional coordinate variable.
func readAxis(g api.Group, name string) (Axis, error) {
	vr, err := g.GetVariable(name)
	if err != nil {
		return Axis{}, errors.Wrapf(ErrIO, "coordinate %s: %v", name, err)
	}
	vals, shape, bits, err := flatten(vr.Values)
	if err != nil {
		return Axis{}, errors.Wrapf(err, "coordinate %s", name)
	}
	if len(shape) != 1 {
		return Axis{}, errors.Wrapf(ErrDimensionMismatch, "coordinate %s has %d dimensions, want 1", name, len(shape))
	}
	return Axis{Name: name, Values: vals, Bits: bits}, nil
}

// flatten converts a (possibly nested) numeric slice, as returned by
// go-native-netcdf, into row-major float64 values and its shape.
func flatten(v any) ([]float64, []int, int, error) {
	if v == nil {
		return nil, nil, 0, errors.New("no values")
	}
	rv := reflect.ValueOf(v)
	t := rv.Type()
	rank := 0
	for t.Kind() == reflect.Slice {
		rank++
		t = t.Elem()
	}
	bits, ok := numericBits(t.Kind())
	if !ok {
		return nil, nil, 0, errors.Errorf("unsupported value type %T", v)
	}
	shape := make([]int, rank)
	cur := rv
	for i := 0; i < rank; i++ {
		shape[i] = cur.Len()
		if cur.Len() == 0 {
			break
		}
		cur = cur.Index(0)
	}
	n := 1
	for _, s := range shape {
		n *= s
	}
	out := make([]float64, 0, n)
	var walk func(reflect.Value, int) error
	walk = func(x reflect.Value, depth int) error {
		if depth == rank {
			out = append(out, numericValue(x))
			return nil
		}
		if x.Len() != shape[depth] {
			return errors.Errorf("ragged array at depth %d: %d != %d", depth, x.Len(), shape[depth])
		}
		for i := 0; i < x.Len(); i++ {
			if err := walk(x.Index(i), depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(rv, 0); err != nil {
		return nil, nil, 0, err
	}
	return out, shape, bits, nil
}

func numericBits(k reflect.Kind) (int, bool) {
	switch k {
	case reflect.Float32:
		return 32, true
	case reflect.Float64,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return 64, true
	}
	return 0, false
}

func numericValue(x reflect.Value) float64 {
	switch x.Kind() {
	case reflect.Float32, reflect.Float64:
		return x.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(x.Int())
	default:
		return float64(x.Uint())
	}
}

func attrFloats(am api.AttributeMap, key string) ([]float64, bool) {
	v, has := am.Get(key)
	if !has || v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		if _, ok := numericBits(rv.Kind()); !ok {
			return nil, false
		}
		return []float64{numericValue(rv)}, true
	}
	if _, ok := numericBits(rv.Type().Elem().Kind()); !ok || rv.Len() == 0 {
		return nil, false
	}
	out := make([]float64, rv.Len())
	for i := range out {
		out[i] = numericValue(rv.Index(i))
	}
	return out, true
}

// attrFloat returns a numeric attribute; one-element arrays count as scalars.
func attrFloat(am api.AttributeMap, key string) (float64, bool) {
	vs, ok := attrFloats(am, key)
	if !ok {
		return 0, false
	}
	return vs[0], true
}

func attrString(am api.AttributeMap, key string) (string, bool) {
	v, has := am.Get(key)
	if !has {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
