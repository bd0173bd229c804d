package tempo

import "math"

// Filter returns a copy of f where invalid samples are replaced by NaN.
// Masks apply in order: declared fill sentinels, the inclusive valid range,
// non-finite values and, when positive is set, values <= 0. Surviving
// samples are never modified.
func Filter(f *Field, positive bool) *Field {
	out := *f
	out.Values = make([]float64, len(f.Values))
	copy(out.Values, f.Values)

	for i, v := range out.Values {
		if isFill(v, f.Attrs.Fill, f.Bits) {
			out.Values[i] = math.NaN()
		}
	}
	if lo := f.Attrs.ValidMin; lo != nil {
		for i, v := range out.Values {
			if v < *lo {
				out.Values[i] = math.NaN()
			}
		}
	}
	if hi := f.Attrs.ValidMax; hi != nil {
		for i, v := range out.Values {
			if v > *hi {
				out.Values[i] = math.NaN()
			}
		}
	}
	for i, v := range out.Values {
		if math.IsInf(v, 0) {
			out.Values[i] = math.NaN()
		}
	}
	if positive {
		for i, v := range out.Values {
			if !(v > 0) {
				out.Values[i] = math.NaN()
			}
		}
	}
	return &out
}

// isFill compares at the source precision so a float32 sample matches a
// sentinel declared as float64.
func isFill(v float64, fills []float64, bits int) bool {
	for _, f := range fills {
		switch {
		case math.IsNaN(f):
			if math.IsNaN(v) {
				return true
			}
		case bits == 32:
			if float32(v) == float32(f) {
				return true
			}
		case v == f:
			return true
		}
	}
	return false
}

// Valid counts the samples that survived filtering.
func (f *Field) Valid() int {
	n := 0
	for _, v := range f.Values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}
