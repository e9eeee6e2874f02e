package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"reformagkh/pkg/models"
	"reformagkh/pkg/utils"
)

type cellKind int

const (
	valueCell    cellKind = iota // second td of the row, trimmed
	nestedRow                    // Nested-th tr inside the row, trimmed
	rawValueCell                 // second td of the row, untrimmed
)

// PassportField is one passport value addressed by row position.
type PassportField struct {
	Name    string
	Row     int
	Kind    cellKind
	Nested  int
	Shifted bool // moves down by the surplus row count on newer layouts
	Compact bool // ASCII spaces removed (thousands separators in areas)
	Set     func(*models.AttributeRecord, string)
}

// PositionalSchema maps passport panel rows to record fields.
// Pages with more than BaselineRows rows have extra rows inserted before the
// shifted fields, so those fields move down by the surplus.
type PositionalSchema struct {
	BaselineRows int
	Fields       []PassportField
}

// Offset returns how far shifted fields move for a panel with rowCount rows.
func (s PositionalSchema) Offset(rowCount int) int {
	if rowCount > s.BaselineRows {
		return rowCount - s.BaselineRows
	}
	return 0
}

// Apply reads every field from the panel's rows (all descendant tr elements,
// in document order) into rec. A missing row fails the whole extraction.
func (s PositionalSchema) Apply(rows *goquery.Selection, rec *models.AttributeRecord) error {
	offset := s.Offset(rows.Length())
	for _, f := range s.Fields {
		idx := f.Row
		if f.Shifted {
			idx += offset
		}
		if idx >= rows.Length() {
			return fmt.Errorf("%w: passport row %d (%s) missing, panel has %d rows",
				utils.ErrExtractionFailed, idx, f.Name, rows.Length())
		}
		row := rows.Eq(idx)

		var v string
		switch f.Kind {
		case nestedRow:
			v = strings.TrimSpace(row.Find("tr").Eq(f.Nested).Text())
		case rawValueCell:
			v = row.Find("td").Eq(1).Text()
		default:
			v = strings.TrimSpace(row.Find("td").Eq(1).Text())
		}
		if f.Compact {
			v = strings.ReplaceAll(v, " ", "")
		}
		f.Set(rec, v)
	}
	return nil
}

// PassportSchema is the current house passport layout.
var PassportSchema = PositionalSchema{
	BaselineRows: 58,
	Fields: []PassportField{
		{Name: "YEAR", Row: 3, Set: func(r *models.AttributeRecord, v string) { r.Year = v }},
		{Name: "SERIE", Row: 5, Set: func(r *models.AttributeRecord, v string) { r.Serie = v }},
		{Name: "HOUSE_TYPE", Row: 7, Set: func(r *models.AttributeRecord, v string) { r.HouseType = v }},
		{Name: "CAPFOND", Row: 9, Set: func(r *models.AttributeRecord, v string) { r.CapFond = v }},
		{Name: "AVAR", Row: 11, Set: func(r *models.AttributeRecord, v string) { r.Avar = v }},
		{Name: "LEVELS_MAX", Row: 12, Kind: nestedRow, Nested: 1, Set: func(r *models.AttributeRecord, v string) { r.LevelsMax = v }},
		{Name: "LEVELS_MIN", Row: 12, Kind: nestedRow, Nested: 3, Set: func(r *models.AttributeRecord, v string) { r.LevelsMin = v }},
		{Name: "DOORS", Row: 18, Set: func(r *models.AttributeRecord, v string) { r.Doors = v }},
		{Name: "ROOM_COUNT", Row: 23, Set: func(r *models.AttributeRecord, v string) { r.RoomCount = v }},
		{Name: "ROOM_COUNT_LIVE", Row: 26, Set: func(r *models.AttributeRecord, v string) { r.RoomCountLive = v }},
		{Name: "ROOM_COUNT_NONLIVE", Row: 28, Set: func(r *models.AttributeRecord, v string) { r.RoomCountNonLive = v }},
		{Name: "AREA", Row: 31, Compact: true, Set: func(r *models.AttributeRecord, v string) { r.Area = v }},
		{Name: "AREA_LIVE", Row: 34, Compact: true, Set: func(r *models.AttributeRecord, v string) { r.AreaLive = v }},
		{Name: "AREA_NONLIVE", Row: 36, Compact: true, Set: func(r *models.AttributeRecord, v string) { r.AreaNonLive = v }},
		{Name: "AREA_GEN", Row: 38, Compact: true, Set: func(r *models.AttributeRecord, v string) { r.AreaGen = v }},
		{Name: "AREA_LAND", Row: 41, Compact: true, Set: func(r *models.AttributeRecord, v string) { r.AreaLand = v }},
		{Name: "AREA_PARK", Row: 43, Compact: true, Set: func(r *models.AttributeRecord, v string) { r.AreaPark = v }},
		{Name: "CADNO", Row: 44, Kind: rawValueCell, Set: func(r *models.AttributeRecord, v string) { r.CadNo = v }},
		{Name: "ENERGY_CLASS", Row: 48, Shifted: true, Set: func(r *models.AttributeRecord, v string) { r.EnergyClass = v }},
		{Name: "BLAG_PLAYGROUND", Row: 51, Shifted: true, Set: func(r *models.AttributeRecord, v string) { r.BlagPlayground = v }},
		{Name: "BLAG_SPORT", Row: 53, Shifted: true, Set: func(r *models.AttributeRecord, v string) { r.BlagSport = v }},
		{Name: "BLAG_OTHER", Row: 55, Shifted: true, Set: func(r *models.AttributeRecord, v string) { r.BlagOther = v }},
		{Name: "OTHER", Row: 57, Shifted: true, Set: func(r *models.AttributeRecord, v string) { r.Other = v }},
	},
}
