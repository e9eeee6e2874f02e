package sink

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"reformagkh/pkg/config"
	"reformagkh/pkg/models"
	"reformagkh/pkg/utils"
)

// database/sql driver names
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultTable is the declarative output table.
const DefaultTable = "attrvals"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableEntrySink stores declarative entries in a relational table keyed by
// (HOUSE_ID, ATTR_NAME). Re-inserting an existing key is silently ignored.
type TableEntrySink struct {
	db     *sql.DB
	driver string
	table  string
	insert string
	log    *logrus.Entry
}

// NewTableEntrySink opens the database and creates the table if needed.
// For SQLite, dsn is a file path; overwrite mode moves an existing file aside.
// For Postgres, overwrite mode deletes the table's rows.
func NewTableEntrySink(driver, dsn, table, mode string, now time.Time, log *logrus.Entry) (*TableEntrySink, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", utils.ErrConfigValidation, table)
	}
	log = log.WithFields(logrus.Fields{"component": "table_sink", "driver": driver, "table": table})

	if driver == DriverSQLite && dsn != ":memory:" {
		if err := backup(dsn, mode, now, log); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", utils.ErrDatabase, driver, err)
	}
	if driver == DriverSQLite {
		// Each connection to ":memory:" is its own database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", utils.ErrDatabase, driver, err)
	}

	s := &TableEntrySink{
		db:     db,
		driver: driver,
		table:  table,
		log:    log,
		insert: fmt.Sprintf("INSERT INTO %s (HOUSE_ID, ATTR_NAME, FOUND_NAME, ED_DIST, VALUE) VALUES (%s) ON CONFLICT (HOUSE_ID, ATTR_NAME) DO NOTHING",
			table, placeholders(driver, 5)),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if driver == DriverPostgres && mode == config.ModeOverwrite {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: clear %s: %w", utils.ErrDatabase, table, err)
		}
		log.Warn("Overwrite mode: existing rows deleted")
	}
	return s, nil
}

func (s *TableEntrySink) migrate() error {
	_, err := s.db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		HOUSE_ID   TEXT NOT NULL,
		ATTR_NAME  TEXT NOT NULL,
		FOUND_NAME TEXT,
		ED_DIST    INTEGER,
		VALUE      TEXT,
		PRIMARY KEY (HOUSE_ID, ATTR_NAME)
	)`, s.table))
	if err != nil {
		return fmt.Errorf("%w: create table %s: %w", utils.ErrDatabase, s.table, err)
	}
	return nil
}

// WriteEntries inserts one house's entries in a single transaction.
func (s *TableEntrySink) WriteEntries(entries []models.AttributeEntry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin: %w", utils.ErrDatabase, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.Prepare(s.insert)
	if err != nil {
		return fmt.Errorf("%w: prepare insert: %w", utils.ErrDatabase, err)
	}
	defer stmt.Close()

	ignored := 0
	for _, e := range entries {
		res, err := stmt.Exec(string(e.HouseID), e.AttrName, nullString(e.FoundName), nullInt(e.EditDistance), nullString(e.Value))
		if err != nil {
			return fmt.Errorf("%w: insert %s/%s: %w", utils.ErrDatabase, e.HouseID, e.AttrName, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			ignored++
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", utils.ErrDatabase, err)
	}
	if ignored > 0 {
		s.log.WithField("house_id", entries[0].HouseID).Debugf("%d duplicate entries ignored", ignored)
	}
	return nil
}

// Lookup returns the stored entry for a key, or ok=false if there is none.
func (s *TableEntrySink) Lookup(houseID models.HouseID, attrName string) (entry models.AttributeEntry, ok bool, err error) {
	query := fmt.Sprintf("SELECT FOUND_NAME, ED_DIST, VALUE FROM %s WHERE HOUSE_ID = %s AND ATTR_NAME = %s",
		s.table, placeholder(s.driver, 1), placeholder(s.driver, 2))

	var (
		found, value sql.NullString
		dist         sql.NullInt64
	)
	err = s.db.QueryRow(query, string(houseID), attrName).Scan(&found, &dist, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return entry, false, nil
	}
	if err != nil {
		return entry, false, fmt.Errorf("%w: lookup %s/%s: %w", utils.ErrDatabase, houseID, attrName, err)
	}

	entry = models.AttributeEntry{HouseID: houseID, AttrName: attrName}
	if found.Valid {
		entry.FoundName = &found.String
	}
	if dist.Valid {
		d := int(dist.Int64)
		entry.EditDistance = &d
	}
	if value.Valid {
		entry.Value = &value.String
	}
	return entry, true, nil
}

// Close closes the database handle.
func (s *TableEntrySink) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", utils.ErrDatabase, err)
	}
	return nil
}

func placeholder(driver string, n int) string {
	if driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func placeholders(driver string, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = placeholder(driver, i+1)
	}
	return strings.Join(ps, ", ")
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
