package tempo

import (
	"math"
	"strconv"
	"time"
)

// Value is a numeric cell. NaN means the cell is empty.
type Value struct {
	Name string
	V    float64
	Bits int
}

// Record is one retained grid cell of one granule. Records are built once
// and never modified afterwards.
type Record struct {
	// Dimensions
	At        time.Time
	Time      []Column
	Latitude  float64
	Longitude float64
	CoordBits int

	// Metrics
	Main Value
	Aux  []Value

	// Metadata
	Units      []Column
	SourceFile string
	// Kind is empty when the product does not emit a discriminator.
	Kind Kind
}

// Cells returns the record's columns in output order.
func (r *Record) Cells() []Column {
	cells := make([]Column, 0, len(r.Time)+len(r.Aux)+len(r.Units)+5)
	cells = append(cells, r.Time...)
	cells = append(cells,
		Column{Name: Latitude, Value: formatFloat(r.Latitude, r.CoordBits)},
		Column{Name: Longitude, Value: formatFloat(r.Longitude, r.CoordBits)},
		Column{Name: r.Main.Name, Value: formatFloat(r.Main.V, r.Main.Bits)},
	)
	for _, a := range r.Aux {
		cells = append(cells, Column{Name: a.Name, Value: formatFloat(a.V, a.Bits)})
	}
	cells = append(cells, r.Units...)
	cells = append(cells, Column{Name: "source_file", Value: r.SourceFile})
	if r.Kind != "" {
		cells = append(cells, Column{Name: "product_kind", Value: string(r.Kind)})
	}
	return cells
}

func formatFloat(v float64, bits int) string {
	if math.IsNaN(v) {
		return ""
	}
	if bits != 32 {
		bits = 64
	}
	return strconv.FormatFloat(v, 'g', -1, bits)
}

// Table is the concatenation of the record sets of all processed granules.
// Its column set is the union of the granules' columns in order of first
// appearance.
type Table struct {
	batches [][]Record
	columns []string
	seen    map[string]bool
}

// Append adds the records of one granule.
func (t *Table) Append(recs []Record) {
	// Records of one granule share their column set.
	if len(recs) > 0 {
		cells := recs[0].Cells()
		cols := make([]string, len(cells))
		for i, c := range cells {
			cols[i] = c.Name
		}
		t.AddColumns(cols)
	}
	t.batches = append(t.batches, recs)
}

// AddColumns merges cols into the column set without adding records. It
// lets a granule that kept no cells still contribute its header.
func (t *Table) AddColumns(cols []string) {
	if t.seen == nil {
		t.seen = map[string]bool{}
	}
	for _, c := range cols {
		if !t.seen[c] {
			t.seen[c] = true
			t.columns = append(t.columns, c)
		}
	}
}

// Columns returns the union of all record columns.
func (t *Table) Columns() []string {
	return t.columns
}

// Len returns the number of records.
func (t *Table) Len() int {
	n := 0
	for _, b := range t.batches {
		n += len(b)
	}
	return n
}

// Granules returns the number of appended record sets.
func (t *Table) Granules() int {
	return len(t.batches)
}

// Records calls fn for every record in order; it stops at the first error.
func (t *Table) Records(fn func(*Record) error) error {
	for _, b := range t.batches {
		for i := range b {
			if err := fn(&b[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Row returns the cells of r aligned to t.Columns(); absent columns are empty.
func (t *Table) Row(r *Record) []string {
	byName := map[string]string{}
	for _, c := range r.Cells() {
		byName[c.Name] = c.Value
	}
	row := make([]string, len(t.columns))
	for i, c := range t.columns {
		row[i] = byName[c]
	}
	return row
}
