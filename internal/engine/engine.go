// Package engine wraps the BitTorrent engine behind a command-and-event
// boundary. The lifecycle manager only ever sees this interface: commands
// go in, status snapshots come back as events on the engine's own
// goroutines, and anything protocol-level stays on the other side.
package engine

import (
	"context"

	"github.com/amaumene/torrnarr/internal/linkkind"
	"github.com/amaumene/torrnarr/internal/models"
	"github.com/amaumene/torrnarr/internal/resume"
)

// FileInfo is one engine-reported file inside a torrent, relative to the
// torrent's save directory.
type FileInfo struct {
	RelPath string
	Size    int64
}

// Event is one status report from the engine. Each field may be
// independently absent depending on what the engine learned; absent fields
// are nil and must not be interpreted as "reset".
type Event struct {
	Link      string
	SessionID string // info-hash hex once known, "" before metadata resolution

	State       *models.DownloadState
	Progress    *float64
	Size        *int64
	Name        *string
	Description *string
	Files       []FileInfo // nil = no file-list snapshot in this event

	// ResumeData is set on the asynchronous reply to RequestResumeData
	// and on the final snapshot before a remove.
	ResumeData []byte

	// Err marks an explicit engine failure for this download; the
	// Failed state is only ever reached through it.
	Err error
}

// StartRequest asks the engine to start or resume one download session
type StartRequest struct {
	Link     string
	Kind     linkkind.Kind // Magnet or Torrent; Unsupported is rejected upstream
	Snapshot *resume.Snapshot
	Paused   bool // register the session without transferring data
}

// Session is the command sink and event source the lifecycle manager
// requires from the wrapped engine.
type Session interface {
	// Start begins a session from a magnet URI or torrent-file URL,
	// optionally seeded with a previously saved resume snapshot.
	Start(ctx context.Context, req StartRequest) error

	// Pause and Resume toggle data transfer; the resulting state settles
	// asynchronously through the event stream.
	Pause(link string) error
	Resume(link string) error

	// Remove drops the session; payload files are deleted when requested.
	Remove(link string, deleteFiles bool) error

	// RequestResumeData asks for a resumable-session snapshot. The reply
	// arrives later as an Event carrying ResumeData, not as a return
	// value.
	RequestResumeData(link string) error

	// Events is the engine's status/alert stream.
	Events() <-chan Event

	Close() error
}
