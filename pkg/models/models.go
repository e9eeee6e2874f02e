package models

import "time"

// HouseID identifies one house on the registry site. It is opaque; only the site assigns meaning.
type HouseID string

// Region is one row of the administrative reference table (atd.csv).
type Region struct {
	Level1Name string
	Level2Name string
	Level3Name string
	Level1ID   string
	Level2ID   string
	Level3ID   string
}

// IsLeaf reports whether the row names a level-3 unit.
func (r Region) IsLeaf() bool {
	return r.Level3ID != ""
}

// ListingID returns the id whose house listing should be crawled for this row.
func (r Region) ListingID() string {
	if r.IsLeaf() {
		return r.Level3ID
	}
	return r.Level2ID
}

// Columns returns the row in reference-table column order.
func (r Region) Columns() []string {
	return []string{r.Level1Name, r.Level2Name, r.Level3Name, r.Level1ID, r.Level2ID, r.Level3ID}
}

// FixedHeader is the column order of the fixed-schema output file.
// The cadastral number is extracted but deliberately not written.
var FixedHeader = []string{
	"LAT", "LON", "HOUSE_ID", "ADDRESS", "YEAR", "LASTUPDATE", "SERVICEDATE_START", "SERIE",
	"HOUSE_TYPE", "CAPFOND", "MGMT_COMPANY", "MGMT_COMPANY_LINK", "AVAR", "LEVELS_MAX", "LEVELS_MIN",
	"DOORS", "ROOM_COUNT", "ROOM_COUNT_LIVE", "ROOM_COUNT_NONLIVE", "AREA", "AREA_LIVE", "AREA_NONLIVE",
	"AREA_GEN", "AREA_LAND", "AREA_PARK", "ENERGY_CLASS", "BLAG_PLAYGROUND", "BLAG_SPORT", "BLAG_OTHER", "OTHER",
}

// AttributeRecord is the fixed-schema extraction of one house page.
type AttributeRecord struct {
	Lat              string
	Lon              string
	HouseID          HouseID
	Address          string
	Year             string
	LastUpdate       string
	ServiceDateStart string
	Serie            string
	HouseType        string
	CapFond          string
	MgmtCompany      string
	MgmtCompanyLink  string
	Avar             string
	LevelsMax        string
	LevelsMin        string
	Doors            string
	RoomCount        string
	RoomCountLive    string
	RoomCountNonLive string
	Area             string
	AreaLive         string
	AreaNonLive      string
	AreaGen          string
	AreaLand         string
	AreaPark         string
	CadNo            string
	EnergyClass      string
	BlagPlayground   string
	BlagSport        string
	BlagOther        string
	Other            string
}

// Values returns the record as a row matching FixedHeader.
func (r AttributeRecord) Values() []string {
	return []string{
		r.Lat, r.Lon, string(r.HouseID), r.Address, r.Year, r.LastUpdate, r.ServiceDateStart, r.Serie,
		r.HouseType, r.CapFond, r.MgmtCompany, r.MgmtCompanyLink, r.Avar, r.LevelsMax, r.LevelsMin,
		r.Doors, r.RoomCount, r.RoomCountLive, r.RoomCountNonLive, r.Area, r.AreaLive, r.AreaNonLive,
		r.AreaGen, r.AreaLand, r.AreaPark, r.EnergyClass, r.BlagPlayground, r.BlagSport, r.BlagOther, r.Other,
	}
}

// EntryHeader is the column order of declarative-mode output.
var EntryHeader = []string{"HOUSE_ID", "ATTR_NAME", "FOUND_NAME", "ED_DIST", "VALUE"}

// ValueNotFound is stored when the label matched but the value selector did not.
const ValueNotFound = "not found"

// AttributeEntry is one (house, attribute) result of declarative extraction.
// FoundName, EditDistance and Value are all nil when the label selector matched nothing.
type AttributeEntry struct {
	HouseID      HouseID
	AttrName     string
	FoundName    *string
	EditDistance *int
	Value        *string
}

// SectionLevels is the depth of the attribute map's section hierarchy.
const SectionLevels = 5

// AttributeMapRow is one data row of the attribute map file.
type AttributeMapRow struct {
	Sections      [SectionLevels]string // section, subsection, attribute, subattribute, subsubattribute
	NameSelector  string
	ValueSelector string
}

// HouseDBEntry stores the result of processing a house in the ledger database
type HouseDBEntry struct {
	Status      HouseStatus `json:"status"`                 // "success" or "failure"
	ErrorType   string      `json:"error_type,omitempty"`   // Error category (on failure)
	Reason      string      `json:"reason,omitempty"`       // Human-readable failure detail
	ListingID   string      `json:"listing_id"`             // Region listing the house was found in
	ContentHash string      `json:"content_hash,omitempty"` // SHA-256 of the page body that was extracted
	ProcessedAt time.Time   `json:"processed_at,omitempty"` // Timestamp of successful processing
	LastAttempt time.Time   `json:"last_attempt"`           // Timestamp of the last processing attempt
}

// RegionSummary is the per-region tally printed at the end of a run.
type RegionSummary struct {
	Region    Region
	Listed    int
	Processed int
	Skipped   int
	Failed    int
}
