package crawler

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"reformagkh/pkg/models"
	"reformagkh/pkg/utils"
)

// Diagnostics owns the two plain-text side streams of a run:
// failed house URLs (errors.txt) and obtained pages (ids.txt).
type Diagnostics struct {
	log *logrus.Entry

	mu        sync.Mutex
	errorsF   *os.File
	idsF      *os.File
	errorsN   int
	fetchedN  int
	errorsLog string
	idsLog    string
}

// OpenDiagnostics truncates and opens both streams.
func OpenDiagnostics(errorsPath, idsPath string, log *logrus.Entry) (*Diagnostics, error) {
	d := &Diagnostics{log: log, errorsLog: errorsPath, idsLog: idsPath}

	var err error
	if d.errorsF, err = openOutputFile(errorsPath); err != nil {
		return nil, err
	}
	if d.idsF, err = openOutputFile(idsPath); err != nil {
		d.errorsF.Close()
		return nil, err
	}
	log.Debugf("Diagnostic streams: errors=%s ids=%s", errorsPath, idsPath)
	return d, nil
}

func openOutputFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open diagnostic file '%s': %w", utils.ErrFilesystem, path, err)
	}
	return f, nil
}

// RecordFailure appends a house URL to the errors stream.
func (d *Diagnostics) RecordFailure(houseURL string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := fmt.Fprintln(d.errorsF, houseURL); err != nil {
		d.log.Errorf("Failed to write to %s: %v", d.errorsLog, err)
		return
	}
	d.errorsN++
}

// RecordFetched appends "url,house_id" to the ids stream.
func (d *Diagnostics) RecordFetched(houseURL string, id models.HouseID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := fmt.Fprintf(d.idsF, "%s,%s\n", houseURL, id); err != nil {
		d.log.Errorf("Failed to write to %s: %v", d.idsLog, err)
		return
	}
	d.fetchedN++
}

// Failures returns how many URLs were written to the errors stream.
func (d *Diagnostics) Failures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errorsN
}

// Fetched returns how many pages were written to the ids stream.
func (d *Diagnostics) Fetched() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fetchedN
}

// Close syncs and closes both streams.
func (d *Diagnostics) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for _, f := range []*os.File{d.errorsF, d.idsF} {
		if f == nil {
			continue
		}
		if err := f.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.errorsF, d.idsF = nil, nil
	if firstErr != nil {
		return fmt.Errorf("%w: close diagnostic files: %w", utils.ErrFilesystem, firstErr)
	}
	return nil
}
