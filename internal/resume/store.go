// Package resume persists per-session resumable state so a restarted
// process can re-add torrents without a fresh metadata fetch or full
// re-verification. The blobs are a performance optimization, not a
// correctness-critical record: every failure path degrades to a cold start.
package resume

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/sirupsen/logrus"
)

// Snapshot is the resumable-session state for one download, bencoded into
// the per-session file and into DownloadRecord.SessionParams.
type Snapshot struct {
	InfoHash  string     `bencode:"info_hash"` // 40-char hex
	Name      string     `bencode:"name,omitempty"`
	Trackers  [][]string `bencode:"trackers,omitempty"`
	MetaInfo  []byte     `bencode:"metainfo,omitempty"` // raw bencoded metainfo when known
	Length    int64      `bencode:"length,omitempty"`
	Completed int64      `bencode:"completed,omitempty"`
}

// Hash parses the snapshot's info hash
func (s *Snapshot) Hash() (metainfo.Hash, error) {
	var h metainfo.Hash
	if err := h.FromHexString(s.InfoHash); err != nil {
		return h, fmt.Errorf("invalid info hash in resume data: %w", err)
	}
	return h, nil
}

// Encode serializes the snapshot
func (s *Snapshot) Encode() ([]byte, error) {
	return bencode.Marshal(s)
}

// Decode parses blob into a snapshot and validates the info hash
func Decode(blob []byte) (*Snapshot, error) {
	var snapshot Snapshot
	if err := bencode.Unmarshal(blob, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse resume data: %w", err)
	}
	if _, err := snapshot.Hash(); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Store reads and writes resume blobs in a dedicated directory, one file
// per session identifier.
type Store struct {
	dir    string
	logger *logrus.Logger
}

// NewStore creates the resume-data directory if needed
func NewStore(dir string, logger *logrus.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create resume data directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

func (s *Store) path(sessionID string) string {
	// Session identifiers are info-hash strings, but never trust them as
	// path components.
	return filepath.Join(s.dir, filepath.Base(sessionID))
}

// Save writes blob to the session's file, overwriting any previous
// snapshot. Failures are logged and returned but must never abort the
// download that produced the snapshot; losing the file only costs
// fast-resume on the next cold start.
func (s *Store) Save(sessionID string, blob []byte) error {
	if err := os.WriteFile(s.path(sessionID), blob, 0644); err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to save resume data")
		return err
	}
	return nil
}

// Load reads and parses the session's snapshot. It returns (nil, false)
// when no file exists, and also on any read or parse failure: a corrupt
// resume file degrades to a fresh start, never an error the caller has to
// handle.
func (s *Store) Load(sessionID string) (*Snapshot, bool) {
	blob, err := os.ReadFile(s.path(sessionID))
	if os.IsNotExist(err) {
		return nil, false
	}
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Warn("Unable to read resume data")
		return nil, false
	}

	snapshot, err := Decode(blob)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Warn("Unable to parse resume data, falling back to cold start")
		return nil, false
	}
	return snapshot, true
}

// Remove deletes the session's snapshot, ignoring absence
func (s *Store) Remove(sessionID string) {
	if err := os.Remove(s.path(sessionID)); err != nil && !os.IsNotExist(err) {
		s.logger.WithError(err).WithField("session_id", sessionID).Warn("Failed to remove resume data")
	}
}
