package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"

	"reformagkh/pkg/models"
)

// PathSeparator joins section names into an attribute path.
const PathSeparator = "->"

// DeclarativeExtractor extracts one entry per selector-bearing row of an attribute map.
type DeclarativeExtractor struct {
	attrs AttributeMap
}

// NewDeclarativeExtractor wraps a loaded attribute map.
func NewDeclarativeExtractor(attrs AttributeMap) *DeclarativeExtractor {
	return &DeclarativeExtractor{attrs: attrs}
}

// Extract walks the map in file order. Section names are sticky: a level keeps
// its last non-empty value until a later row overwrites it.
func (e *DeclarativeExtractor) Extract(doc *goquery.Document, id models.HouseID) models.Result[[]models.AttributeEntry] {
	if err := CheckPage(doc); err != nil {
		return models.Failed[[]models.AttributeEntry](err.Error())
	}

	var (
		current  [models.SectionLevels]string
		expected string
		entries  []models.AttributeEntry
	)
	for _, row := range e.attrs {
		for i, name := range row.Sections {
			if name != "" {
				current[i] = name
				expected = name
			}
		}
		if row.NameSelector == "" {
			continue
		}

		entry := models.AttributeEntry{HouseID: id, AttrName: SectionPath(current)}
		label := doc.Find(row.NameSelector).First()
		if label.Length() > 0 {
			found := strings.TrimSpace(label.Text())
			dist := matchr.Levenshtein(expected, found)
			value := models.ValueNotFound
			if v := doc.Find(row.ValueSelector).First(); row.ValueSelector != "" && v.Length() > 0 {
				value = strings.TrimSpace(v.Text())
			}
			entry.FoundName, entry.EditDistance, entry.Value = &found, &dist, &value
		}
		entries = append(entries, entry)
	}
	return models.Ok(entries)
}

// SectionPath joins the non-empty section levels.
func SectionPath(sections [models.SectionLevels]string) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, PathSeparator)
}
