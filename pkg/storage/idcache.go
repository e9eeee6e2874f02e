package storage

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"reformagkh/pkg/models"
	"reformagkh/pkg/utils"
)

// houseIDFile is the on-disk form of one listing's house ids.
type houseIDFile struct {
	ListingID string           `yaml:"listing_id"`
	SavedAt   time.Time        `yaml:"saved_at"`
	HouseIDs  []models.HouseID `yaml:"house_ids"`
}

// HouseIDCache persists listing results so a cache-only run can replay them.
type HouseIDCache struct {
	path string
}

// NewHouseIDCache returns a cache backed by path.
func NewHouseIDCache(path string) *HouseIDCache {
	return &HouseIDCache{path: path}
}

// Path returns the cache file location.
func (c *HouseIDCache) Path() string {
	return c.path
}

// Load reads the cached ids. A missing file wraps os.ErrNotExist.
func (c *HouseIDCache) Load() ([]models.HouseID, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read house id cache '%s': %w", utils.ErrFilesystem, c.path, err)
	}
	var f houseIDFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: house id cache '%s': %w", utils.ErrParsing, c.path, err)
	}
	return f.HouseIDs, nil
}

// Exists reports whether the cache file is present.
func (c *HouseIDCache) Exists() bool {
	_, err := os.Stat(c.path)
	return !errors.Is(err, os.ErrNotExist)
}

// Save writes ids, first renaming any previous file to a timestamped backup.
// Returns the backup path, or "" if there was no previous file.
func (c *HouseIDCache) Save(listingID string, ids []models.HouseID, now time.Time) (string, error) {
	backup, err := utils.MoveOutOfTheWay(c.path, now)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(&houseIDFile{ListingID: listingID, SavedAt: now, HouseIDs: ids})
	if err != nil {
		return backup, fmt.Errorf("%w: encode house id cache: %w", utils.ErrParsing, err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return backup, fmt.Errorf("%w: write house id cache '%s': %w", utils.ErrFilesystem, c.path, err)
	}
	return backup, nil
}
