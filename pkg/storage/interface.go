package storage

import (
	"context"
	"time"

	"reformagkh/pkg/models"
)

// HouseStore tracks per-house processing state
type HouseStore interface {
	// MarkHousePending records a listed house as pending
	// Returns true if the house was newly added, false if it already existed
	MarkHousePending(id models.HouseID, listingID string) (bool, error)

	// CheckHouseStatus retrieves the status and details of a house
	// Returns status (HouseStatusSuccess, HouseStatusFailure, HouseStatusPending, HouseStatusNotFound, HouseStatusDBError),
	// the HouseDBEntry if found and parsed, and any error
	CheckHouseStatus(id models.HouseID) (status models.HouseStatus, entry *models.HouseDBEntry, err error)

	// UpdateHouseStatus updates the status and details for a house
	UpdateHouseStatus(id models.HouseID, entry *models.HouseDBEntry) error
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// GetHouseCount returns an approximate count of all houses in the store
	GetHouseCount() (int, error)

	// IncompleteHouses scans the DB for houses that are pending or failed
	IncompleteHouses(ctx context.Context) (ids []models.HouseID, scanErrors int, err error)

	// WriteStateLog writes every house with its status to the specified file path
	WriteStateLog(filePath string) error

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// Ledger combines all store interfaces for components that need full access
type Ledger interface {
	HouseStore
	StoreAdmin
}
