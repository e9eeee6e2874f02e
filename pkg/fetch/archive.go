package fetch

import (
	"fmt"
	"os"
	"path/filepath"

	"reformagkh/pkg/models"
	"reformagkh/pkg/utils"
)

// Archive keeps verbatim copies of fetched house pages so runs can be replayed offline.
type Archive struct {
	dir string
}

// NewArchive creates the archive directory if needed.
func NewArchive(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create originals dir '%s': %w", utils.ErrFilesystem, dir, err)
	}
	return &Archive{dir: dir}, nil
}

// Path returns where a house page is stored.
func (a *Archive) Path(id models.HouseID) string {
	return filepath.Join(a.dir, utils.SanitizeFilename(string(id))+".html")
}

// Has reports whether a page for the house has been archived.
func (a *Archive) Has(id models.HouseID) bool {
	info, err := os.Stat(a.Path(id))
	return err == nil && !info.IsDir()
}

// Read returns the archived page.
func (a *Archive) Read(id models.HouseID) ([]byte, error) {
	data, err := os.ReadFile(a.Path(id))
	if err != nil {
		return nil, fmt.Errorf("%w: read archived page: %w", utils.ErrFilesystem, err)
	}
	return data, nil
}

// Write stores the page body as fetched, replacing any earlier copy.
func (a *Archive) Write(id models.HouseID, body []byte) error {
	if err := os.WriteFile(a.Path(id), body, 0644); err != nil {
		return fmt.Errorf("%w: write archived page: %w", utils.ErrFilesystem, err)
	}
	return nil
}
