package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andybalholm/cascadia"

	"reformagkh/pkg/models"
	"reformagkh/pkg/utils"
)

// Column names of the attribute map file.
var (
	SectionColumns = [models.SectionLevels]string{
		"section-rus", "subsection-rus", "attribute-rus", "subattribute-rus", "subsubattribute-rus",
	}
	NameSelectorColumn  = "Selector Code for Name"
	ValueSelectorColumn = "Selector Code for Value"
)

const (
	headerRow    = 3 // 1-based; rows 1-2 are metadata
	firstDataRow = 4
)

// AttributeMap is the parsed, immutable attribute map in file order.
type AttributeMap []models.AttributeMapRow

// LoadAttributeMap reads and validates a tab-separated attribute map file.
func LoadAttributeMap(path string) (AttributeMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open attribute map '%s': %w", utils.ErrFilesystem, path, err)
	}
	defer f.Close()

	m, err := ParseAttributeMap(f)
	if err != nil {
		return nil, fmt.Errorf("attribute map '%s': %w", path, err)
	}
	return m, nil
}

// ParseAttributeMap parses the attribute map format: two metadata rows, column
// names on row 3, data from row 4. Columns with empty names are dropped.
// Both selectors are rewritten to nth-of-type and compiled once here.
func ParseAttributeMap(r io.Reader) (AttributeMap, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var (
		m       AttributeMap
		columns map[string]int
		line    int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: TSV: %w", utils.ErrParsing, err)
		}
		line++

		switch {
		case line < headerRow:
			continue
		case line == headerRow:
			if columns, err = headerColumns(record); err != nil {
				return nil, err
			}
		default:
			row, err := mapRow(record, columns)
			if err != nil {
				return nil, fmt.Errorf("%w: TSV row %d: %w", utils.ErrParsing, line, err)
			}
			m = append(m, row)
		}
	}
	if columns == nil {
		return nil, fmt.Errorf("%w: TSV: header row %d missing", utils.ErrParsing, headerRow)
	}
	return m, nil
}

// headerColumns indexes the named columns and checks that every required one is present.
func headerColumns(record []string) (map[string]int, error) {
	columns := make(map[string]int, len(record))
	for i, name := range record {
		name = strings.Trim(name, " ")
		if name == "" {
			continue
		}
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}

	required := append(SectionColumns[:], NameSelectorColumn, ValueSelectorColumn)
	var missing []string
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: TSV header lacks columns %q", utils.ErrParsing, missing)
	}
	return columns, nil
}

func mapRow(record []string, columns map[string]int) (models.AttributeMapRow, error) {
	cell := func(name string) string {
		i := columns[name]
		if i >= len(record) {
			return ""
		}
		return strings.ReplaceAll(strings.Trim(record[i], " "), "\n", "")
	}

	var row models.AttributeMapRow
	for i, name := range SectionColumns {
		row.Sections[i] = cell(name)
	}
	row.NameSelector = typePositional(cell(NameSelectorColumn))
	row.ValueSelector = typePositional(cell(ValueSelectorColumn))

	for _, sel := range []string{row.NameSelector, row.ValueSelector} {
		if sel == "" {
			continue
		}
		if _, err := cascadia.Compile(sel); err != nil {
			return row, fmt.Errorf("selector %q: %w", sel, err)
		}
	}
	return row, nil
}

// typePositional rewrites child-position pseudo-classes to their same-tag form.
func typePositional(selector string) string {
	return strings.ReplaceAll(selector, "nth-child", "nth-of-type")
}
