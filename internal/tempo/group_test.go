package tempo

import (
	"fmt"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// attrMap is an ordered in-memory api.AttributeMap.
type attrMap struct {
	keys []string
	vals map[string]any
}

func attrs(kv ...any) attrMap {
	a := attrMap{vals: map[string]any{}}
	for i := 0; i+1 < len(kv); i += 2 {
		k := kv[i].(string)
		a.keys = append(a.keys, k)
		a.vals[k] = kv[i+1]
	}
	return a
}

func (a attrMap) Keys() []string { return a.keys }

func (a attrMap) Get(key string) (any, bool) {
	v, ok := a.vals[key]
	return v, ok
}

func (a attrMap) GetType(string) (string, bool)   { return "", false }
func (a attrMap) GetGoType(string) (string, bool) { return "", false }

// fakeGroup is an in-memory api.Group that counts Close calls.
type fakeGroup struct {
	attrs  attrMap
	order  []string
	vars   map[string]*api.Variable
	groups map[string]*fakeGroup
	closes int
}

func newGroup(kv ...any) *fakeGroup {
	return &fakeGroup{
		attrs:  attrs(kv...),
		vars:   map[string]*api.Variable{},
		groups: map[string]*fakeGroup{},
	}
}

func (g *fakeGroup) add(name string, dims []string, values any, kv ...any) *fakeGroup {
	g.order = append(g.order, name)
	g.vars[name] = &api.Variable{Values: values, Dimensions: dims, Attributes: attrs(kv...)}
	return g
}

func (g *fakeGroup) sub(name string, s *fakeGroup) *fakeGroup {
	g.groups[name] = s
	return g
}

func (g *fakeGroup) Close()                             { g.closes++ }
func (g *fakeGroup) Attributes() api.AttributeMap       { return g.attrs }
func (g *fakeGroup) ListVariables() []string            { return g.order }
func (g *fakeGroup) ListSubgroups() []string            { return nil }
func (g *fakeGroup) ListTypes() []string                { return nil }
func (g *fakeGroup) GetType(string) (string, bool)      { return "", false }
func (g *fakeGroup) GetGoType(string) (string, bool)    { return "", false }
func (g *fakeGroup) ListDimensions() []string           { return nil }
func (g *fakeGroup) GetDimension(string) (uint64, bool) { return 0, false }

func (g *fakeGroup) GetVariable(name string) (*api.Variable, error) {
	v, ok := g.vars[name]
	if !ok {
		return nil, fmt.Errorf("variable %q not found", name)
	}
	return v, nil
}

func (g *fakeGroup) GetVarGetter(name string) (api.VarGetter, error) {
	return nil, fmt.Errorf("GetVarGetter(%q) not supported", name)
}

func (g *fakeGroup) GetGroup(name string) (api.Group, error) {
	s, ok := g.groups[name]
	if !ok {
		return nil, fmt.Errorf("group %q not found", name)
	}
	return s, nil
}

// opener serves fake granules by path.
type opener map[string]*fakeGroup

func (o opener) open(path string) (api.Group, error) {
	g, ok := o[path]
	if !ok {
		return nil, fmt.Errorf("open %s: no such file", path)
	}
	return g, nil
}

// corruptGroup panics when its variables are listed, the way the decoder
// does on a damaged object header.
type corruptGroup struct{ *fakeGroup }

func (corruptGroup) ListVariables() []string { panic("corrupt object header") }

// openCorrupt serves path as a corrupt granule and every other file as o does.
func (o opener) openCorrupt(path string) OpenFunc {
	return func(p string) (api.Group, error) {
		if p == path {
			return corruptGroup{o[p]}, nil
		}
		return o.open(p)
	}
}

// totalCloses sums Close calls on every root and product group.
func (o opener) totalCloses() (opened, closed int) {
	for _, g := range o {
		opened++
		closed += g.closes
		for _, s := range g.groups {
			opened++
			closed += s.closes
		}
	}
	return opened, closed
}

const fill32 = float32(-1e30)

// no2Granule builds a TEMPO-like NO2 granule: root coordinates and
// coverage attributes, a product group holding (time, latitude, longitude)
// variables.
func no2Granule(lat, lon []float32, trop [][]float32, cloud [][]float32) *fakeGroup {
	root := newGroup(
		"time_coverage_start_since_epoch", float64(1748772000),
		"time_coverage_end_since_epoch", float64(1748775600),
	)
	root.add("latitude", []string{"latitude"}, lat, "units", "degrees_north")
	root.add("longitude", []string{"longitude"}, lon, "units", "degrees_east")
	root.add("time", []string{"time"}, []float64{1.4e9}, "units", "seconds since 1980-01-06T00:00:00Z")

	prod := newGroup()
	dims := []string{"time", "latitude", "longitude"}
	prod.add("vertical_column_troposphere", dims, [][][]float32{trop},
		"units", "molecules/cm^2", "_FillValue", fill32, "valid_min", float32(-1e17), "valid_max", float32(1e18))
	if cloud != nil {
		prod.add("eff_cloud_fraction", dims, [][][]float32{cloud},
			"_FillValue", fill32, "valid_min", float32(0), "valid_max", float32(1))
	}
	prod.add("main_data_quality_flag", dims, [][][]int16{qaGrid(len(lat), len(lon))})
	root.sub("product", prod)
	return root
}

func qaGrid(nlat, nlon int) [][]int16 {
	q := make([][]int16, nlat)
	for i := range q {
		q[i] = make([]int16, nlon)
	}
	return q
}
