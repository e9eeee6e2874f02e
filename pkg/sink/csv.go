package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"reformagkh/pkg/models"
	"reformagkh/pkg/utils"
)

// csvFile is an append-only CSV output that starts with header when it is new or empty.
type csvFile struct {
	f *os.File
	w *csv.Writer
}

func openCSV(path, mode string, header []string, now time.Time, log *logrus.Entry) (*csvFile, error) {
	if err := backup(path, mode, now, log); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open output '%s': %w", utils.ErrFilesystem, path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat output '%s': %w", utils.ErrFilesystem, path, err)
	}

	c := &csvFile{f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := c.write(header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return c, nil
}

// write emits one row and flushes so an interrupted run keeps every finished house.
func (c *csvFile) write(row []string) error {
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("%w: write CSV row: %w", utils.ErrFilesystem, err)
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("%w: flush CSV: %w", utils.ErrFilesystem, err)
	}
	return nil
}

func (c *csvFile) Close() error {
	c.w.Flush()
	flushErr := c.w.Error()
	if err := c.f.Close(); err != nil {
		return fmt.Errorf("%w: close output: %w", utils.ErrFilesystem, err)
	}
	return flushErr
}

// CSVRecordSink writes fixed-schema records under models.FixedHeader.
type CSVRecordSink struct {
	*csvFile
}

// NewCSVRecordSink opens path for appending, backing up any previous file in overwrite mode.
func NewCSVRecordSink(path, mode string, now time.Time, log *logrus.Entry) (*CSVRecordSink, error) {
	c, err := openCSV(path, mode, models.FixedHeader, now, log)
	if err != nil {
		return nil, err
	}
	return &CSVRecordSink{c}, nil
}

// WriteRecord appends one row.
func (s *CSVRecordSink) WriteRecord(rec models.AttributeRecord) error {
	return s.write(rec.Values())
}

// CSVEntrySink writes declarative entries under models.EntryHeader. Absent fields are empty cells.
type CSVEntrySink struct {
	*csvFile
}

// NewCSVEntrySink opens path for appending, backing up any previous file in overwrite mode.
func NewCSVEntrySink(path, mode string, now time.Time, log *logrus.Entry) (*CSVEntrySink, error) {
	c, err := openCSV(path, mode, models.EntryHeader, now, log)
	if err != nil {
		return nil, err
	}
	return &CSVEntrySink{c}, nil
}

// WriteEntries appends one row per entry.
func (s *CSVEntrySink) WriteEntries(entries []models.AttributeEntry) error {
	for _, e := range entries {
		row := []string{string(e.HouseID), e.AttrName, deref(e.FoundName), "", deref(e.Value)}
		if e.EditDistance != nil {
			row[3] = strconv.Itoa(*e.EditDistance)
		}
		if err := s.write(row); err != nil {
			return err
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
