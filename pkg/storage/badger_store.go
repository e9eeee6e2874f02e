package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"reformagkh/pkg/log"
	"reformagkh/pkg/models"
	"reformagkh/pkg/utils"
)

const (
	houseKeyPrefix = "house:"    // Prefix for house id keys in DB
	ledgerDBDir    = "ledger_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements the Ledger interface using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	ctx      context.Context // Parent context
	keyCount atomic.Int64    // Cached key count for O(1) GetHouseCount
}

// NewBadgerStore opens the ledger for one crawl target (usually the requested region id).
// Without resume, any previous ledger for that target is removed.
func NewBadgerStore(ctx context.Context, stateDir, target string, resume bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{
		log: logger,
		ctx: ctx,
	}

	dbPath := filepath.Join(stateDir, utils.SanitizeFilename(target)+"_"+ledgerDBDir)

	if !resume {
		logger.Warnf("Resume flag is false. REMOVING existing state directory: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			// Log error but attempt to continue; Badger might recover or create new files
			logger.Errorf("Failed to remove existing state directory %s: %v", dbPath, err)
		}
	}

	logger.Infof("Initializing house ledger at: %s (Resume: %v)", dbPath, resume)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1) // Only the latest state per house

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	// Initialize key count from existing data (matters for resume mode)
	if resume {
		count, err := store.countKeys()
		if err != nil {
			logger.Warnf("Failed to count existing keys on resume: %v", err)
		} else {
			store.keyCount.Store(int64(count))
			logger.Infof("Loaded existing house count on resume: %d", count)
		}
	}

	logger.Info("House ledger initialized successfully.")
	return store, nil
}

// countKeys performs a one-time full key scan (used only during initialization on resume).
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

func houseKey(id models.HouseID) []byte {
	return []byte(houseKeyPrefix + string(id))
}

// MarkHousePending implements the HouseStore interface
func (s *BadgerStore) MarkHousePending(id models.HouseID, listingID string) (bool, error) {
	if s.db == nil {
		return false, errors.New("ledger not initialized")
	}
	key := houseKey(id)
	value, err := json.Marshal(&models.HouseDBEntry{Status: models.HouseStatusPending, ListingID: listingID})
	if err != nil {
		return false, fmt.Errorf("%w: marshal pending entry: %w", utils.ErrParsing, err)
	}

	added := false
	err = s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			errSet := txn.SetEntry(badger.NewEntry(key, value))
			if errSet == nil {
				added = true
			}
			return errSet
		}
		// Key already exists or another error occurred
		return errGet
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in MarkHousePending: %v", err)
		return false, fmt.Errorf("%w: marking house key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if added {
		s.keyCount.Add(1)
	}
	return added, nil
}

// CheckHouseStatus implements the HouseStore interface
func (s *BadgerStore) CheckHouseStatus(id models.HouseID) (models.HouseStatus, *models.HouseDBEntry, error) {
	status := models.HouseStatusNotFound
	var entry *models.HouseDBEntry
	key := houseKey(id)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil // Key not found is not an error for this function's purpose
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting house key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}

		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				status = models.HouseStatusPending
				return nil
			}
			var decoded models.HouseDBEntry
			if errJson := json.Unmarshal(val, &decoded); errJson != nil {
				s.log.Warnf("Failed to unmarshal HouseDBEntry for key '%s': %v. Treating as 'pending'.", string(key), errJson)
				status = models.HouseStatusPending
				return nil
			}
			if !decoded.Status.IsValid() {
				s.log.Warnf("Ledger entry '%s' has unknown status '%s'. Treating as 'pending'.", string(key), decoded.Status)
				decoded.Status = models.HouseStatusPending
			}
			entry = &decoded
			status = decoded.Status
			return nil
		})
	})

	if errView != nil {
		s.log.Errorf("DB View error in CheckHouseStatus for key '%s': %v", string(key), errView)
		return models.HouseStatusDBError, nil, errView
	}
	return status, entry, nil
}

// UpdateHouseStatus implements the HouseStore interface
func (s *BadgerStore) UpdateHouseStatus(id models.HouseID, entry *models.HouseDBEntry) error {
	if s.db == nil {
		return errors.New("ledger not initialized")
	}
	key := houseKey(id)

	entryBytes, errJson := json.Marshal(entry)
	if errJson != nil {
		wrappedErr := fmt.Errorf("%w: failed to marshal HouseDBEntry for key '%s': %w", utils.ErrParsing, string(key), errJson)
		s.log.Error(wrappedErr)
		return wrappedErr
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			isNew = true
		}
		return txn.SetEntry(badger.NewEntry(key, entryBytes))
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in UpdateHouseStatus: %v", err)
		return fmt.Errorf("%w: failed setting house status for key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}

	s.log.Debugf("Updated house status for key '%s' to '%s'", string(key), entry.Status)
	return nil
}

// GetHouseCount implements the StoreAdmin interface.
func (s *BadgerStore) GetHouseCount() (int, error) {
	return int(s.keyCount.Load()), nil
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Debug("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				s.log.Info("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for {
				if err = s.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection goroutine: %v", ctx.Err())
			return
		}
	}
}

// IncompleteHouses implements the StoreAdmin interface
func (s *BadgerStore) IncompleteHouses(ctx context.Context) ([]models.HouseID, int, error) {
	var ids []models.HouseID
	scanErrors := 0

	scanErr := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(houseKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id := models.HouseID(item.KeyCopy(nil)[len(prefix):])

			errValue := item.Value(func(val []byte) error {
				if len(val) == 0 {
					ids = append(ids, id)
					return nil
				}
				var entry models.HouseDBEntry
				if errJson := json.Unmarshal(val, &entry); errJson != nil {
					s.log.Errorf("Ledger scan: failed to unmarshal entry for '%s': %v. Skipping.", id, errJson)
					scanErrors++
					return nil
				}
				if entry.Status == models.HouseStatusFailure || entry.Status == models.HouseStatusPending {
					ids = append(ids, id)
				}
				return nil
			})
			if errValue != nil {
				s.log.Errorf("Ledger scan: error getting value for '%s': %v", id, errValue)
				scanErrors++
			}
		}
		return nil
	})
	return ids, scanErrors, scanErr
}

// WriteStateLog implements the StoreAdmin interface.
// Each line is "house_id,status,error_type".
func (s *BadgerStore) WriteStateLog(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("%w: create state log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	var writeErr error
	written := 0

	iterErr := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(houseKeyPrefix)

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := s.ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id := string(item.KeyCopy(nil)[len(prefix):])

			var entry models.HouseDBEntry
			if err := item.Value(func(val []byte) error {
				if len(val) == 0 {
					entry.Status = models.HouseStatusPending
					return nil
				}
				return json.Unmarshal(val, &entry)
			}); err != nil {
				s.log.Warnf("Skipping unreadable ledger entry '%s': %v", id, err)
				continue
			}

			if _, err := fmt.Fprintf(writer, "%s,%s,%s\n", id, entry.Status, entry.ErrorType); err != nil && writeErr == nil {
				writeErr = err
			}
			written++
		}
		return nil
	})

	if flushErr := writer.Flush(); flushErr != nil && writeErr == nil {
		writeErr = flushErr
	}
	if iterErr != nil {
		return iterErr
	}
	if writeErr != nil {
		return fmt.Errorf("%w: write state log '%s': %w", utils.ErrFilesystem, filePath, writeErr)
	}
	s.log.Infof("Wrote %d houses to state log: %s", written, filePath)
	return nil
}

// Close implements the StoreAdmin interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Debug("Closing house ledger...")
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing house ledger: %v", err)
			return err
		}
		return nil
	}
	return nil
}
