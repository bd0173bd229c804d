package tempo

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadField(t *testing.T) {
	g := newGroup().
		add("packed", []string{"y", "x"}, [][]int16{{-32767, 0}, {100, 1000}},
			"units", "DU", "_FillValue", int16(-32767), "scale_factor", float32(0.5), "add_offset", float64(1),
			"valid_range", []int16{0, 1000}).
		add("inverted", []string{"n"}, []int8{0, 10},
			"scale_factor", float64(-1), "valid_min", int8(0), "valid_max", int8(10)).
		add("plain", []string{"time", "y", "x"}, [][][]float32{{{1, 2, 3}}},
			"missing_value", []float32{-999}, "valid_min", float64(0)).
		add("nodims", nil, [][]float64{{1}, {2}}).
		add("ragged", []string{"y", "x"}, [][]float64{{1, 2}, {3}}).
		add("text", []string{"n"}, []string{"a"})

	t.Run("CF unpacking", func(t *testing.T) {
		f, err := readField(g, "packed")
		require.NoError(t, err)
		assert.Equal(t, []int{2, 2}, f.Shape)
		assert.True(t, math.IsNaN(f.Values[0]))
		assert.Equal(t, []float64{1, 51, 501}, f.Values[1:])
		assert.Nil(t, f.Attrs.Fill)
		require.NotNil(t, f.Attrs.ValidMin)
		require.NotNil(t, f.Attrs.ValidMax)
		assert.Equal(t, 1.0, *f.Attrs.ValidMin)
		assert.Equal(t, 501.0, *f.Attrs.ValidMax)
		assert.Equal(t, "DU", f.Attrs.Units)
		assert.Equal(t, 64, f.Bits)
	})

	t.Run("negative scale swaps bounds", func(t *testing.T) {
		f, err := readField(g, "inverted")
		require.NoError(t, err)
		assert.Equal(t, []float64{0, -10}, f.Values)
		assert.Equal(t, -10.0, *f.Attrs.ValidMin)
		assert.Equal(t, 0.0, *f.Attrs.ValidMax)
	})

	t.Run("unpacked float32", func(t *testing.T) {
		f, err := readField(g, "plain")
		require.NoError(t, err)
		assert.Equal(t, []string{"time", "y", "x"}, f.Dims)
		assert.Equal(t, []int{1, 1, 3}, f.Shape)
		assert.Equal(t, 32, f.Bits)
		assert.Equal(t, []float64{-999}, f.Attrs.Fill)
		assert.Nil(t, f.Attrs.ValidMax)
	})

	t.Run("missing dimension names", func(t *testing.T) {
		f, err := readField(g, "nodims")
		require.NoError(t, err)
		assert.Equal(t, []string{"dim_0", "dim_1"}, f.Dims)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := readField(g, "absent")
		assert.True(t, errors.Is(err, ErrIO))
		_, err = readField(g, "ragged")
		assert.Error(t, err)
		_, err = readField(g, "text")
		assert.Error(t, err)
	})
}

func TestReadAxis(t *testing.T) {
	g := newGroup().
		add("lat", []string{"lat"}, []float32{40, 41}).
		add("lat2d", []string{"y", "x"}, [][]float64{{40}, {41}})

	a, err := readAxis(g, "lat")
	require.NoError(t, err)
	assert.Equal(t, Axis{Name: "lat", Values: []float64{40, 41}, Bits: 32}, a)

	_, err = readAxis(g, "lat2d")
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestFlatten(t *testing.T) {
	vals, shape, bits, err := flatten([][]uint8{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, vals)
	assert.Equal(t, []int{2, 3}, shape)
	assert.Equal(t, 64, bits)

	vals, shape, _, err = flatten([][]float32{})
	require.NoError(t, err)
	assert.Empty(t, vals)
	assert.Equal(t, []int{0, 0}, shape)

	_, _, _, err = flatten(nil)
	assert.Error(t, err)
}
