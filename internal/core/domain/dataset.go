package domain

import (
	"math/rand"
)

// Row is a single candidate record: a unique key, domain metadata,
// a fixed schema of feature values and an optional label.
type Row struct {
	// Key uniquely identifies the candidate within the pool.
	Key string `json:"key"`

	// Composition is domain metadata (e.g. a chemical formula).
	Composition string `json:"composition,omitempty"`

	// Features are the feature column values, aligned with
	// Dataset.Columns.
	Features []float64 `json:"features"`

	// Label is the evaluated target value. Only meaningful when
	// Labeled is true.
	Label float64 `json:"label"`

	// Labeled indicates the row has been evaluated.
	Labeled bool `json:"labeled"`
}

// Dataset is an ordered set of uniquely keyed rows sharing one feature
// schema. Operations are value-returning: a Dataset is never mutated in
// place, which keeps seed/candidate transitions explicit and makes the
// snapshot-and-replace persistence discipline possible.
type Dataset struct {
	// Columns are the feature column names, in Row.Features order.
	Columns []string `json:"columns"`

	// Rows are the records, in load order.
	Rows []Row `json:"rows"`
}

// NewDataset creates a dataset with the given feature schema and rows.
func NewDataset(columns []string, rows []Row) Dataset {
	return Dataset{
		Columns: append([]string(nil), columns...),
		Rows:    append([]Row(nil), rows...),
	}
}

// Len returns the number of rows.
func (d Dataset) Len() int {
	return len(d.Rows)
}

// Keys returns the row keys in order.
func (d Dataset) Keys() []string {
	keys := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		keys[i] = row.Key
	}
	return keys
}

// Get returns the row for a key.
func (d Dataset) Get(key string) (Row, bool) {
	for _, row := range d.Rows {
		if row.Key == key {
			return row, true
		}
	}
	return Row{}, false
}

// Contains reports whether a key is present.
func (d Dataset) Contains(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Select returns the rows for the given keys, in the order given.
// Keys not present are skipped.
func (d Dataset) Select(keys []string) []Row {
	rows := make([]Row, 0, len(keys))
	for _, key := range keys {
		if row, ok := d.Get(key); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

// With returns a copy of the dataset with the given rows appended.
// Rows whose keys are already present replace the existing rows.
func (d Dataset) With(rows ...Row) Dataset {
	out := NewDataset(d.Columns, d.Rows)
	for _, row := range rows {
		replaced := false
		for i := range out.Rows {
			if out.Rows[i].Key == row.Key {
				out.Rows[i] = row
				replaced = true
				break
			}
		}
		if !replaced {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Without returns a copy of the dataset with the given keys removed.
func (d Dataset) Without(keys ...string) Dataset {
	drop := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		drop[key] = struct{}{}
	}

	out := Dataset{Columns: append([]string(nil), d.Columns...)}
	for _, row := range d.Rows {
		if _, ok := drop[row.Key]; !ok {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Sample returns n distinct keys drawn uniformly at random without
// replacement. If n exceeds the dataset size, all keys are returned.
func (d Dataset) Sample(n int, rng *rand.Rand) []string {
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	if n <= 0 {
		return nil
	}

	perm := rng.Perm(len(d.Rows))
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = d.Rows[perm[i]].Key
	}
	return keys
}

// Intersect returns the keys present in both datasets.
func (d Dataset) Intersect(other Dataset) []string {
	var keys []string
	for _, row := range d.Rows {
		if other.Contains(row.Key) {
			keys = append(keys, row.Key)
		}
	}
	return keys
}

// Features returns the feature matrix, one row per record.
func (d Dataset) Features() [][]float64 {
	x := make([][]float64, len(d.Rows))
	for i, row := range d.Rows {
		x[i] = row.Features
	}
	return x
}

// Labels returns the label vector. Unlabeled rows contribute their
// zero value; callers working with mixed datasets should check Labeled.
func (d Dataset) Labels() []float64 {
	y := make([]float64, len(d.Rows))
	for i, row := range d.Rows {
		y[i] = row.Label
	}
	return y
}
