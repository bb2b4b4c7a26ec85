package models

import "time"

// DownloadRecord is the durable row for one tracked download. The link is
// the magnet URI or torrent-file URL and never changes once the record is
// created; it is also the key every dependent row references.
type DownloadRecord struct {
	Link string `boltholdKey:"Link"`

	Name     string
	Size     int64   // bytes, 0 until the engine resolves metadata
	Progress float64 // last known good value in [0,1]

	DownloadDate      time.Time
	DownloadRequestID string `boltholdIndex:"DownloadRequestID"`
	DownloadState     DownloadState `boltholdIndex:"DownloadState"`

	// Description is free-text metadata surfaced by the engine, typically
	// the torrent comment.
	Description string

	// SessionParams is the last resume snapshot written together with a
	// state transition, so the state and the blob a restart would resume
	// from never diverge.
	SessionParams []byte

	UpdatedAt time.Time
}

// TorrentFile is one file inside a multi-file torrent, identified by
// (Link, Path). The set for a link is always replaced wholesale.
type TorrentFile struct {
	ID   string `boltholdKey:"ID"` // Link + "\x00" + Path
	Link string `boltholdIndex:"Link"`
	Path string
	Size int64
}

// FileKey builds the composite bolthold key for a torrent file row
func FileKey(link, path string) string {
	return link + "\x00" + path
}
