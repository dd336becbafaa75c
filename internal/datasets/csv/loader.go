// Package csv loads candidate pools from CSV files.
//
// One column carries the candidate key, one optionally carries the
// composition and one optionally carries a precomputed label; every
// other column must be numeric and becomes a feature. Rows with an
// empty label cell load as unlabeled candidates.
package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/quarry-labs/quarry-cli/internal/core/domain"
	"github.com/quarry-labs/quarry-cli/internal/logger"
)

// Options names the special columns of a pool file.
type Options struct {
	// KeyColumn is the unique candidate identifier column. Required.
	KeyColumn string

	// CompositionColumn carries domain metadata. Optional.
	CompositionColumn string

	// LabelColumn carries precomputed labels. Optional; when set, rows
	// with a non-empty cell load as labeled.
	LabelColumn string
}

// Load reads a candidate pool from the CSV file at path.
func Load(path string, opts Options) (domain.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("opening pool file: %w", err)
	}
	defer f.Close()

	ds, err := Read(f, opts)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("reading pool file %s: %w", path, err)
	}
	logger.Info("Loaded pool %s: %d rows, %d features", path, ds.Len(), len(ds.Columns))
	return ds, nil
}

// Read parses a candidate pool from r.
func Read(r io.Reader, opts Options) (domain.Dataset, error) {
	if opts.KeyColumn == "" {
		return domain.Dataset{}, fmt.Errorf("%w: key column not configured",
			domain.ErrConfiguration)
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("reading header: %w", err)
	}

	keyIdx, compIdx, labelIdx := -1, -1, -1
	var featureIdx []int
	var columns []string
	for i, name := range header {
		switch name {
		case opts.KeyColumn:
			keyIdx = i
		case opts.CompositionColumn:
			compIdx = i
		case opts.LabelColumn:
			labelIdx = i
		default:
			featureIdx = append(featureIdx, i)
			columns = append(columns, name)
		}
	}
	if keyIdx < 0 {
		return domain.Dataset{}, fmt.Errorf("%w: key column %q not in header",
			domain.ErrConfiguration, opts.KeyColumn)
	}
	if opts.LabelColumn != "" && labelIdx < 0 {
		return domain.Dataset{}, fmt.Errorf("%w: label column %q not in header",
			domain.ErrConfiguration, opts.LabelColumn)
	}
	if len(featureIdx) == 0 {
		return domain.Dataset{}, fmt.Errorf("%w: no feature columns in header",
			domain.ErrConfiguration)
	}

	seen := make(map[string]struct{})
	var rows []domain.Row
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return domain.Dataset{}, fmt.Errorf("line %d: %w", line, err)
		}

		key := record[keyIdx]
		if key == "" {
			return domain.Dataset{}, fmt.Errorf("%w: empty key on line %d",
				domain.ErrInvalidInput, line)
		}
		if _, dup := seen[key]; dup {
			return domain.Dataset{}, fmt.Errorf("%w: duplicate key %q on line %d",
				domain.ErrInvalidInput, key, line)
		}
		seen[key] = struct{}{}

		row := domain.Row{Key: key}
		if compIdx >= 0 {
			row.Composition = record[compIdx]
		}

		row.Features = make([]float64, len(featureIdx))
		for j, idx := range featureIdx {
			v, err := strconv.ParseFloat(record[idx], 64)
			if err != nil {
				return domain.Dataset{}, fmt.Errorf("%w: non-numeric feature %q in column %q on line %d",
					domain.ErrInvalidInput, record[idx], header[idx], line)
			}
			row.Features[j] = v
		}

		if labelIdx >= 0 && record[labelIdx] != "" {
			v, err := strconv.ParseFloat(record[labelIdx], 64)
			if err != nil {
				return domain.Dataset{}, fmt.Errorf("%w: non-numeric label %q on line %d",
					domain.ErrInvalidInput, record[labelIdx], line)
			}
			row.Label = v
			row.Labeled = true
		}

		rows = append(rows, row)
	}

	return domain.NewDataset(columns, rows), nil
}
