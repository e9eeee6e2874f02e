package region

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"reformagkh/pkg/models"
	"reformagkh/pkg/utils"
)

const columns = 6

// Resolver looks region ids up in the administrative reference table.
type Resolver struct {
	rows []models.Region
}

// LoadResolver reads the reference table from a CSV file.
func LoadResolver(path string) (*Resolver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open region table '%s': %w", utils.ErrFilesystem, path, err)
	}
	defer f.Close()

	r, err := NewResolver(f)
	if err != nil {
		return nil, fmt.Errorf("region table '%s': %w", path, err)
	}
	return r, nil
}

// NewResolver parses a header-less CSV of
// (level1_name, level2_name, level3_name, level1_id, level2_id, level3_id).
func NewResolver(r io.Reader) (*Resolver, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	res := &Resolver{}
	for line := 1; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: CSV: %w", utils.ErrParsing, err)
		}
		if len(rec) < columns {
			return nil, fmt.Errorf("%w: CSV line %d has %d columns, want %d", utils.ErrParsing, line, len(rec), columns)
		}
		res.rows = append(res.rows, models.Region{
			Level1Name: rec[0], Level2Name: rec[1], Level3Name: rec[2],
			Level1ID: rec[3], Level2ID: rec[4], Level3ID: rec[5],
		})
	}
	return res, nil
}

// Resolve returns the rows to crawl for regionID: every row mentioning the id in
// any column, keeping leaves and rows whose level2 id no other matched row shares.
// An empty result is utils.ErrRegionNotFound.
func (r *Resolver) Resolve(regionID string) ([]models.Region, error) {
	var matched []models.Region
	for _, row := range r.rows {
		if slices.Contains(row.Columns(), regionID) {
			matched = append(matched, row)
		}
	}

	var regions []models.Region
	for _, row := range matched {
		if row.IsLeaf() || mentions(matched, row.Level2ID) == 1 {
			regions = append(regions, row)
		}
	}
	if len(regions) == 0 {
		return nil, fmt.Errorf("%w: %s", utils.ErrRegionNotFound, regionID)
	}
	return regions, nil
}

// mentions counts rows containing id in any column.
func mentions(rows []models.Region, id string) int {
	n := 0
	for _, row := range rows {
		if slices.Contains(row.Columns(), id) {
			n++
		}
	}
	return n
}
