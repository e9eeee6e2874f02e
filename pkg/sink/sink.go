package sink

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"reformagkh/pkg/config"
	"reformagkh/pkg/models"
	"reformagkh/pkg/utils"
)

// RecordSink persists fixed-schema records.
type RecordSink interface {
	WriteRecord(rec models.AttributeRecord) error
	Close() error
}

// EntrySink persists the declarative entries of one house at a time.
type EntrySink interface {
	WriteEntries(entries []models.AttributeEntry) error
	Close() error
}

// backup moves an existing output out of the way in overwrite mode.
func backup(path, mode string, now time.Time, log *logrus.Entry) error {
	if mode != config.ModeOverwrite {
		return nil
	}
	moved, err := utils.MoveOutOfTheWay(path, now)
	if err != nil {
		return fmt.Errorf("%w: back up output: %w", utils.ErrFilesystem, err)
	}
	if moved != "" {
		log.WithField("backup", moved).Info("Previous output backed up")
	}
	return nil
}

// OpenRecordSink opens the fixed-schema sink for the configured output.
func OpenRecordSink(out config.OutputConfig, now time.Time, log *logrus.Entry) (RecordSink, error) {
	if out.Format != config.FormatCSV {
		return nil, fmt.Errorf("%w: %s output requires the %s parser", utils.ErrConfigValidation, out.Format, config.ParserAttrList)
	}
	return NewCSVRecordSink(out.Path, out.Mode, now, log)
}

// OpenEntrySink opens the declarative sink for the configured output.
func OpenEntrySink(out config.OutputConfig, now time.Time, log *logrus.Entry) (EntrySink, error) {
	switch out.Format {
	case config.FormatCSV:
		return NewCSVEntrySink(out.Path, out.Mode, now, log)
	case config.FormatSQLite:
		return NewTableEntrySink(DriverSQLite, out.Path, out.Table, out.Mode, now, log)
	case config.FormatPostgres:
		return NewTableEntrySink(DriverPostgres, out.Path, out.Table, out.Mode, now, log)
	default:
		return nil, fmt.Errorf("%w: unknown output format %q", utils.ErrConfigValidation, out.Format)
	}
}
