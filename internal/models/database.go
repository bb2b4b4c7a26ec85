package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// ErrConstraint is returned when a dependent row would reference a download
// record that no longer exists. Callers treat it as "update did not apply".
var ErrConstraint = errors.New("download record referenced by update no longer exists")

// Database wraps the bolthold store
type Database struct {
	store *bolthold.Store
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// EnsureDownload inserts a new record for link unless one already exists.
// The first acquisition record is authoritative: when a record for the same
// link is already present and forceAdd is false, nothing is written and the
// existing record is returned. The lookup and insert run in one write
// transaction so two concurrent adds for the same link cannot both insert.
// Returns the record and whether this call created it.
func (db *Database) EnsureDownload(record *DownloadRecord, forceAdd bool) (*DownloadRecord, bool, error) {
	created := false
	err := db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		if !forceAdd {
			var existing DownloadRecord
			err := db.store.TxGet(tx, record.Link, &existing)
			if err == nil {
				*record = existing
				return nil
			}
			if !errors.Is(err, bolthold.ErrNotFound) {
				return err
			}
		}

		record.UpdatedAt = time.Now()
		if record.DownloadDate.IsZero() {
			record.DownloadDate = record.UpdatedAt
		}
		created = true
		return db.store.TxUpsert(tx, record.Link, record)
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure download record: %w", err)
	}
	return record, created, nil
}

// updateDownload applies mutate to the record for link inside one write
// transaction and reports how many rows were affected. A missing record is
// not an error: the count is 0 and the caller decides how loudly to warn.
func (db *Database) updateDownload(link string, mutate func(*DownloadRecord)) (int, error) {
	affected := 0
	err := db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var record DownloadRecord
		if err := db.store.TxGet(tx, link, &record); err != nil {
			return err
		}
		mutate(&record)
		record.UpdatedAt = time.Now()
		if err := db.store.TxUpdate(tx, link, &record); err != nil {
			return err
		}
		affected = 1
		return nil
	})
	if errors.Is(err, bolthold.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update download record: %w", err)
	}
	return affected, nil
}

// UpdateDownloadState sets the state for link
func (db *Database) UpdateDownloadState(link string, state DownloadState) (int, error) {
	return db.updateDownload(link, func(r *DownloadRecord) {
		r.DownloadState = state
	})
}

// UpdateDownloadStateAndSessionParams sets the state and the resume snapshot
// together. Resuming from a stale snapshot under a mismatched state is a
// correctness hazard, so the pair changes atomically or not at all.
func (db *Database) UpdateDownloadStateAndSessionParams(link string, sessionParams []byte, state DownloadState) (int, error) {
	return db.updateDownload(link, func(r *DownloadRecord) {
		r.DownloadState = state
		r.SessionParams = sessionParams
	})
}

// UpdateDownloadDescription sets the description for link
func (db *Database) UpdateDownloadDescription(link, description string) (int, error) {
	return db.updateDownload(link, func(r *DownloadRecord) {
		r.Description = description
	})
}

// UpdateDownloadName sets the name for link. A blank name never overwrites
// the previously known one.
func (db *Database) UpdateDownloadName(link, name string) (int, error) {
	if name == "" {
		return 0, nil
	}
	return db.updateDownload(link, func(r *DownloadRecord) {
		r.Name = name
	})
}

// UpdateDownloadProgress sets the progress for link
func (db *Database) UpdateDownloadProgress(link string, progress float64) (int, error) {
	return db.updateDownload(link, func(r *DownloadRecord) {
		r.Progress = progress
	})
}

// UpdateDownloadSize sets the total size for link
func (db *Database) UpdateDownloadSize(link string, size int64) (int, error) {
	return db.updateDownload(link, func(r *DownloadRecord) {
		r.Size = size
	})
}

// GetDownload retrieves the record for link, or nil when absent
func (db *Database) GetDownload(link string) (*DownloadRecord, error) {
	var record DownloadRecord
	err := db.store.Get(link, &record)
	if errors.Is(err, bolthold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetDownloadByRequestID retrieves the record created for an acquisition
// request, or nil when absent
func (db *Database) GetDownloadByRequestID(requestID string) (*DownloadRecord, error) {
	var records []*DownloadRecord
	err := db.store.Find(&records, bolthold.Where("DownloadRequestID").Eq(requestID))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// GetAllDownloads retrieves all download records
func (db *Database) GetAllDownloads() ([]*DownloadRecord, error) {
	var records []*DownloadRecord
	err := db.store.Find(&records, nil)
	return records, err
}

// GetDownloadsByState retrieves all records in a given state
func (db *Database) GetDownloadsByState(state DownloadState) ([]*DownloadRecord, error) {
	var records []*DownloadRecord
	err := db.store.Find(&records, bolthold.Where("DownloadState").Eq(state))
	return records, err
}

// DeleteDownload removes the record for link and all of its file rows
func (db *Database) DeleteDownload(link string) (int, error) {
	affected := 0
	err := db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var record DownloadRecord
		err := db.store.TxGet(tx, link, &record)
		if errors.Is(err, bolthold.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := db.store.TxDelete(tx, link, &DownloadRecord{}); err != nil {
			return err
		}
		if err := db.store.TxDeleteMatching(tx, &TorrentFile{}, bolthold.Where("Link").Eq(link)); err != nil {
			return err
		}
		affected = 1
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete download record: %w", err)
	}
	return affected, nil
}

// ReplaceTorrentFiles replaces the whole file set for link. File lists can
// shrink or reorder between engine reports, so a partial merge is never
// correct. The delete and reinsert run in one write transaction; if the
// parent record is gone the operation fails with ErrConstraint and the
// previous file set stays untouched.
func (db *Database) ReplaceTorrentFiles(link string, files []TorrentFile) error {
	err := db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var parent DownloadRecord
		if err := db.store.TxGet(tx, link, &parent); err != nil {
			if errors.Is(err, bolthold.ErrNotFound) {
				return ErrConstraint
			}
			return err
		}
		if err := db.store.TxDeleteMatching(tx, &TorrentFile{}, bolthold.Where("Link").Eq(link)); err != nil {
			return err
		}
		for i := range files {
			files[i].Link = link
			files[i].ID = FileKey(link, files[i].Path)
			if err := db.store.TxUpsert(tx, files[i].ID, &files[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrConstraint) {
		return ErrConstraint
	}
	if err != nil {
		return fmt.Errorf("failed to replace torrent files: %w", err)
	}
	return nil
}

// GetTorrentFiles retrieves all file rows for link
func (db *Database) GetTorrentFiles(link string) ([]*TorrentFile, error) {
	var files []*TorrentFile
	err := db.store.Find(&files, bolthold.Where("Link").Eq(link))
	return files, err
}
