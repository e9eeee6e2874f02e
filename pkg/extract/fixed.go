package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"reformagkh/pkg/models"
	"reformagkh/pkg/utils"
)

const (
	addressSelector  = "span.float-left.loc_name_ohl.width650.word-wrap-break-word"
	generalSelector  = "div.fr"
	passportSelector = "div.numbered"
	coordsMarker     = "center"
)

// coordsScripts are the script indices that have held the map initialisation, tried in order.
var coordsScripts = []int{11, 12}

// FixedExtractor pulls the fixed attribute record out of a house page by position.
type FixedExtractor struct {
	baseURL string
	schema  PositionalSchema
}

// NewFixedExtractor creates an extractor that resolves relative links against baseURL.
func NewFixedExtractor(baseURL string) *FixedExtractor {
	return &FixedExtractor{baseURL: strings.TrimRight(baseURL, "/"), schema: PassportSchema}
}

// Extract returns the record, or Failed when expected markup is absent.
// The same document always yields the same record.
func (e *FixedExtractor) Extract(doc *goquery.Document, id models.HouseID) models.Result[models.AttributeRecord] {
	rec, err := e.extract(doc, id)
	if err != nil {
		return models.Failed[models.AttributeRecord](err.Error())
	}
	return models.Ok(rec)
}

func (e *FixedExtractor) extract(doc *goquery.Document, id models.HouseID) (models.AttributeRecord, error) {
	rec := models.AttributeRecord{HouseID: id}
	if err := CheckPage(doc); err != nil {
		return rec, err
	}

	address := doc.Find(addressSelector).First()
	if address.Length() == 0 {
		return rec, fmt.Errorf("%w: address marker not found", utils.ErrExtractionFailed)
	}
	rec.Address = strings.TrimSpace(address.Text())

	if err := e.general(doc, &rec); err != nil {
		return rec, err
	}

	lat, lon, err := coordinates(doc)
	if err != nil {
		return rec, err
	}
	rec.Lat, rec.Lon = lat, lon

	passport := doc.Find(passportSelector).First()
	if passport.Length() == 0 {
		return rec, fmt.Errorf("%w: passport panel not found", utils.ErrExtractionFailed)
	}
	if err := e.schema.Apply(passport.Find("tr"), &rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// general reads the management company and the questionnaire dates.
func (e *FixedExtractor) general(doc *goquery.Document, rec *models.AttributeRecord) error {
	panel := doc.Find(generalSelector).First()
	if panel.Length() == 0 {
		return fmt.Errorf("%w: general info panel not found", utils.ErrExtractionFailed)
	}
	tables := panel.Find("table")
	if tables.Length() < 2 {
		return fmt.Errorf("%w: general info panel has %d tables, want 2", utils.ErrExtractionFailed, tables.Length())
	}

	company := tables.Eq(0).Find("tr").Eq(0).Find("td").Eq(1)
	if company.Length() == 0 {
		return fmt.Errorf("%w: management company cell not found", utils.ErrExtractionFailed)
	}
	rec.MgmtCompany = strings.TrimSpace(company.Text())
	if href, ok := company.Find("a").First().Attr("href"); ok {
		rec.MgmtCompanyLink = e.absolute(href)
	}

	rows := tables.Eq(1).Find("tr")
	if rows.Length() <= 10 {
		return fmt.Errorf("%w: general info table has %d rows, want 11", utils.ErrExtractionFailed, rows.Length())
	}
	rec.LastUpdate = strings.Join(strings.Fields(strings.ReplaceAll(rows.Eq(8).Find("td").Eq(1).Text(), "\n", "")), " ")
	rec.ServiceDateStart = strings.TrimSpace(rows.Eq(10).Find("td").Eq(1).Text())
	return nil
}

// absolute joins a site link onto the base URL and drops its query string.
func (e *FixedExtractor) absolute(href string) string {
	link := href
	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		link = e.baseURL + href
	}
	link, _, _ = strings.Cut(link, "?")
	return link
}

// coordinates finds the first [lat,lon] literal following the map marker.
func coordinates(doc *goquery.Document) (lat, lon string, err error) {
	scripts := doc.Find("script")
	for _, idx := range coordsScripts {
		text := scripts.Eq(idx).Text()
		start := strings.Index(text, coordsMarker)
		if start < 0 {
			continue
		}
		rest := text[start:]
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			return "", "", fmt.Errorf("%w: no coordinate literal after %q in script %d", utils.ErrExtractionFailed, coordsMarker, idx)
		}
		literal, _, found := strings.Cut(rest[open+1:], "]")
		parts := strings.Split(literal, ",")
		if !found || len(parts) != 2 {
			return "", "", fmt.Errorf("%w: malformed coordinate literal in script %d", utils.ErrExtractionFailed, idx)
		}
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
	}
	return "", "", fmt.Errorf("%w: coordinates marker not found in scripts %v", utils.ErrExtractionFailed, coordsScripts)
}
