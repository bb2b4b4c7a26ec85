package controllers

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/torrnarr/internal/engine"
	"github.com/amaumene/torrnarr/internal/linkkind"
	"github.com/amaumene/torrnarr/internal/metrics"
	"github.com/amaumene/torrnarr/internal/models"
	"github.com/amaumene/torrnarr/internal/resume"
	"github.com/amaumene/torrnarr/internal/utils"
)

// ErrUnsupportedLink marks an acquisition request rejected before any
// engine or database interaction.
var ErrUnsupportedLink = errors.New("link is neither a magnet URI nor a torrent file")

// duplicate acquisition requests within this window are absorbed without
// touching the engine again
const recentAddWindow = 30 * time.Second

// Manager is the torrent download lifecycle manager. It drives the engine
// session, keeps the download records in sync with engine events, and
// persists resume snapshots so downloads survive a process restart. All
// record writes for one link are serialized through a per-link queue;
// writes for different links run concurrently.
type Manager struct {
	db      *models.Database
	session engine.Session
	store   *resume.Store
	queue   *linkQueue
	recent  *cache.Cache
	saveDir string
	logger  *logrus.Logger

	mu           sync.Mutex
	pendingPause map[string]models.DownloadState // link -> pause target awaiting its snapshot
	sessionIDs   map[string]string               // link -> session identifier once known
	active       map[string]struct{}             // links counted in the active-sessions gauge
}

// NewManager creates the lifecycle manager
func NewManager(db *models.Database, session engine.Session, store *resume.Store, saveDir string, logger *logrus.Logger) *Manager {
	return &Manager{
		db:           db,
		session:      session,
		store:        store,
		queue:        newLinkQueue(),
		recent:       cache.New(recentAddWindow, time.Minute),
		saveDir:      saveDir,
		logger:       logger,
		pendingPause: make(map[string]models.DownloadState),
		sessionIDs:   make(map[string]string),
		active:       make(map[string]struct{}),
	}
}

// trackSession counts link in the active-sessions gauge once, no matter how
// many times its engine session gets (re)started.
func (m *Manager) trackSession(link string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[link]; ok {
		return
	}
	m.active[link] = struct{}{}
	metrics.ActiveSessions.Inc()
}

func (m *Manager) untrackSession(link string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[link]; !ok {
		return
	}
	delete(m.active, link)
	metrics.ActiveSessions.Dec()
}

// Run consumes the engine's event stream until ctx is cancelled or the
// engine closes the stream. Events are handed to the per-link queue so
// this loop never blocks on database work.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.queue.Wait()
			return
		case ev, ok := <-m.session.Events():
			if !ok {
				m.queue.Wait()
				return
			}
			m.queue.Submit(ev.Link, func() {
				m.applyEvent(ev)
			})
		}
	}
}

// Add classifies link, records it, and starts an engine session for it.
// Unsupported links are rejected before any engine or database call. A
// repeated add for a link that already has a record is a no-op: the first
// acquisition record is authoritative.
func (m *Manager) Add(ctx context.Context, link, mimetype, name string, forceAdd bool) (*models.DownloadRecord, error) {
	kind := linkkind.Classify(link, mimetype)
	if kind == linkkind.Unsupported {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLink, link)
	}

	// Absorb rapid duplicate requests (a feed client retrying, a user
	// double-clicking) without another engine round trip. Suppression only
	// holds while the record still exists; a cache entry that outlived a
	// remove is stale and the add proceeds normally.
	if !forceAdd {
		if _, seen := m.recent.Get(link); seen {
			record, err := m.db.GetDownload(link)
			if err != nil {
				return nil, err
			}
			if record != nil {
				m.logger.WithField("link", link).Debug("Duplicate add suppressed")
				return record, nil
			}
			m.recent.Delete(link)
		}
	}

	if name == "" {
		name = utils.DeriveNameFromLink(link)
	}

	record := &models.DownloadRecord{
		Link:              link,
		Name:              name,
		DownloadRequestID: uuid.NewString(),
		DownloadState:     models.StateDownloadingMetadata,
	}
	record, created, err := m.db.EnsureDownload(record, forceAdd)
	if err != nil {
		return nil, err
	}
	if !created {
		m.logger.WithFields(logrus.Fields{
			"link": link,
			"name": record.Name,
		}).Info("Download already tracked, keeping original record")
	}

	snapshot := m.decodeSessionParams(record)
	if err := m.session.Start(ctx, engine.StartRequest{
		Link:     link,
		Kind:     kind,
		Snapshot: snapshot,
	}); err != nil {
		return nil, fmt.Errorf("failed to start engine session: %w", err)
	}
	m.trackSession(link)
	m.recent.Set(link, struct{}{}, cache.DefaultExpiration)

	m.logger.WithFields(logrus.Fields{
		"link": link,
		"kind": kind.String(),
		"name": record.Name,
	}).Info("Download started")
	return record, nil
}

// Pause requests a pause for link. The paused state is computed from the
// previous state so pausing a finished download lands in SeedingPaused
// instead of losing its completion information. The resume snapshot the
// engine produces for the pause is stored together with the paused state
// when it arrives.
func (m *Manager) Pause(link string) error {
	record, err := m.db.GetDownload(link)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("no download record for %q", link)
	}

	target := models.ResolvePauseTarget(record.DownloadState)
	if err := m.session.Pause(link); err != nil {
		return err
	}

	m.mu.Lock()
	m.pendingPause[link] = target
	m.mu.Unlock()

	m.queue.Submit(link, func() {
		if affected, err := m.db.UpdateDownloadState(link, target); err != nil {
			m.logger.WithError(err).WithField("link", link).Error("Failed to record paused state")
		} else if affected == 0 {
			m.warnNoRows(link, "state")
		}
	})

	if err := m.session.RequestResumeData(link); err != nil {
		m.logger.WithError(err).WithField("link", link).Warn("Failed to request resume data on pause")
	}

	m.logger.WithFields(logrus.Fields{
		"link":  link,
		"state": target,
	}).Info("Download pausing")
	return nil
}

// Resume restarts data transfer for a paused download. When the engine has
// no live session for the link (paused before a process restart), a new
// session is started from the stored resume snapshot.
func (m *Manager) Resume(ctx context.Context, link string) error {
	record, err := m.db.GetDownload(link)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("no download record for %q", link)
	}

	m.mu.Lock()
	delete(m.pendingPause, link)
	m.mu.Unlock()

	if err := m.session.Resume(link); err != nil {
		// No live session; cold-start from the stored snapshot.
		kind := linkkind.Classify(link, "")
		snapshot := m.decodeSessionParams(record)
		if startErr := m.session.Start(ctx, engine.StartRequest{
			Link:     link,
			Kind:     kind,
			Snapshot: snapshot,
		}); startErr != nil {
			return fmt.Errorf("failed to restart engine session: %w", startErr)
		}
		m.trackSession(link)
	}

	m.logger.WithField("link", link).Info("Download resumed")
	return nil
}

// Remove drops the engine session, deletes the record and its file rows,
// and discards the resume snapshot. deleteFiles also removes the payload.
func (m *Manager) Remove(link string, deleteFiles bool) error {
	if err := m.session.Remove(link, deleteFiles); err != nil {
		m.logger.WithError(err).WithField("link", link).Warn("Failed to drop engine session")
	}
	m.untrackSession(link)
	// Forget the duplicate-add suppression so the link can be re-added
	// immediately.
	m.recent.Delete(link)

	m.mu.Lock()
	sessionID := m.sessionIDs[link]
	delete(m.sessionIDs, link)
	delete(m.pendingPause, link)
	m.mu.Unlock()
	if sessionID != "" {
		m.store.Remove(sessionID)
	}

	affected, err := m.db.DeleteDownload(link)
	if err != nil {
		return err
	}
	if affected == 0 {
		m.logger.WithField("link", link).Warn("Remove found no download record")
	}

	m.logger.WithField("link", link).Info("Download removed")
	return nil
}

// RestoreActive restarts engine sessions for every record that was mid
// lifecycle when the process last stopped. Paused downloads stay paused
// but are registered so their sessions stay warm for a later resume;
// failed downloads are left alone.
func (m *Manager) RestoreActive(ctx context.Context) error {
	records, err := m.db.GetAllDownloads()
	if err != nil {
		return fmt.Errorf("failed to list download records: %w", err)
	}

	restored := 0
	for _, record := range records {
		if record.DownloadState.IsTerminal() {
			continue
		}

		kind := linkkind.Classify(record.Link, "")
		if kind == linkkind.Unsupported {
			m.logger.WithField("link", record.Link).Warn("Stored record has unsupported link, skipping restore")
			continue
		}

		snapshot := m.loadSnapshot(record)
		if err := m.session.Start(ctx, engine.StartRequest{
			Link:     record.Link,
			Kind:     kind,
			Snapshot: snapshot,
			Paused:   record.DownloadState.IsPaused(),
		}); err != nil {
			m.logger.WithError(err).WithField("link", record.Link).Error("Failed to restore download")
			continue
		}
		m.trackSession(record.Link)
		restored++
	}

	if restored > 0 {
		m.logger.WithField("count", restored).Info("Restored downloads from previous run")
	}
	return nil
}

// SnapshotActive requests resume snapshots for every live, unpaused
// download so a hard kill loses at most one snapshot interval of
// fast-resume freshness.
func (m *Manager) SnapshotActive() {
	for _, state := range []models.DownloadState{models.StateDownloading, models.StateSeeding, models.StateCompleted} {
		records, err := m.db.GetDownloadsByState(state)
		if err != nil {
			m.logger.WithError(err).Error("Failed to list downloads for snapshotting")
			return
		}
		for _, record := range records {
			if err := m.session.RequestResumeData(record.Link); err != nil {
				m.logger.WithError(err).WithField("link", record.Link).Debug("No live session to snapshot")
			}
		}
	}
}

// SweepStalled logs downloads that have not produced a record update within
// timeout and nudges their sessions. The record itself is left untouched;
// a stall is an engine condition, not a state transition.
func (m *Manager) SweepStalled(timeout time.Duration) {
	records, err := m.db.GetDownloadsByState(models.StateDownloading)
	if err != nil {
		m.logger.WithError(err).Error("Failed to list downloads for stall sweep")
		return
	}

	now := time.Now()
	for _, record := range records {
		age := now.Sub(record.UpdatedAt)
		if age <= timeout {
			continue
		}
		m.logger.WithFields(logrus.Fields{
			"link":     record.Link,
			"name":     record.Name,
			"stalled":  age.Round(time.Second).String(),
			"progress": record.Progress,
		}).Warn("Download stalled, nudging engine session")
		if err := m.session.Resume(record.Link); err != nil {
			m.logger.WithError(err).WithField("link", record.Link).Warn("Failed to nudge stalled download")
		}
	}
}

// applyEvent maps one engine event onto the download record. Every update
// is idempotent and tolerates the record having been deleted concurrently:
// zero rows affected is a warning, never an error.
func (m *Manager) applyEvent(ev engine.Event) {
	link := ev.Link

	if ev.SessionID != "" {
		m.mu.Lock()
		m.sessionIDs[link] = ev.SessionID
		m.mu.Unlock()
	}

	if ev.Err != nil {
		m.logger.WithError(ev.Err).WithField("link", link).Error("Engine reported failure")
		if affected, err := m.db.UpdateDownloadState(link, models.StateFailed); err != nil {
			m.logger.WithError(err).WithField("link", link).Error("Failed to record failed state")
		} else if affected == 0 {
			m.warnNoRows(link, "state")
		}
		return
	}

	if ev.Name != nil {
		m.applyUpdate(link, "name", func() (int, error) {
			return m.db.UpdateDownloadName(link, *ev.Name)
		})
	}
	if ev.Size != nil {
		m.applyUpdate(link, "size", func() (int, error) {
			return m.db.UpdateDownloadSize(link, *ev.Size)
		})
	}
	if ev.Progress != nil {
		m.applyUpdate(link, "progress", func() (int, error) {
			return m.db.UpdateDownloadProgress(link, *ev.Progress)
		})
	}
	if ev.Description != nil {
		m.applyUpdate(link, "description", func() (int, error) {
			return m.db.UpdateDownloadDescription(link, *ev.Description)
		})
	}
	if ev.Files != nil {
		m.applyFileList(link, ev.Files)
	}
	if ev.State != nil {
		m.applyState(link, *ev.State)
	}
	if ev.ResumeData != nil {
		m.applyResumeData(link, ev.SessionID, ev.ResumeData)
	}
}

func (m *Manager) applyState(link string, state models.DownloadState) {
	// A pause is in flight: status polls racing ahead of the pause must
	// not flip the record back to an active state.
	m.mu.Lock()
	_, pausePending := m.pendingPause[link]
	m.mu.Unlock()
	if pausePending && !state.IsPaused() {
		return
	}

	if state == models.StateCompleted {
		if record, err := m.db.GetDownload(link); err == nil && record != nil {
			m.logger.WithFields(logrus.Fields{
				"link": link,
				"name": record.Name,
				"size": humanize.Bytes(uint64(record.Size)),
			}).Info("Download completed")
		}
	}

	m.applyUpdate(link, "state", func() (int, error) {
		return m.db.UpdateDownloadState(link, state)
	})
}

// applyFileList replaces the whole file set for link. Paths are resolved
// against the save directory. The replacement is all-or-nothing: a failure
// leaves the previous file set authoritative.
func (m *Manager) applyFileList(link string, files []engine.FileInfo) {
	rows := make([]models.TorrentFile, 0, len(files))
	for _, f := range files {
		rows = append(rows, models.TorrentFile{
			Path: filepath.Join(m.saveDir, f.RelPath),
			Size: f.Size,
		})
	}

	err := m.db.ReplaceTorrentFiles(link, rows)
	switch {
	case errors.Is(err, models.ErrConstraint):
		// The download was deleted while this event was in flight.
		m.warnNoRows(link, "files")
	case err != nil:
		m.logger.WithError(err).WithField("link", link).Error("Failed to replace torrent file list")
	default:
		metrics.EventsApplied.WithLabelValues("files").Inc()
	}
}

// applyResumeData persists the snapshot file and writes the session blob
// and the state it belongs to in one record update. A pause that was
// waiting for this snapshot supplies the state; otherwise the record keeps
// the state it already has.
func (m *Manager) applyResumeData(link, sessionID string, blob []byte) {
	if sessionID == "" {
		m.mu.Lock()
		sessionID = m.sessionIDs[link]
		m.mu.Unlock()
	}
	if sessionID != "" {
		if err := m.store.Save(sessionID, blob); err == nil {
			metrics.SnapshotsSaved.Inc()
		}
	} else {
		m.logger.WithField("link", link).Warn("Resume data arrived without a session identifier")
	}

	m.mu.Lock()
	state, pausePending := m.pendingPause[link]
	delete(m.pendingPause, link)
	m.mu.Unlock()

	if !pausePending {
		record, err := m.db.GetDownload(link)
		if err != nil || record == nil {
			m.warnNoRows(link, "session_params")
			return
		}
		state = record.DownloadState
	}

	m.applyUpdate(link, "session_params", func() (int, error) {
		return m.db.UpdateDownloadStateAndSessionParams(link, blob, state)
	})
}

func (m *Manager) applyUpdate(link, field string, update func() (int, error)) {
	affected, err := update()
	switch {
	case errors.Is(err, models.ErrConstraint):
		// Parent row deleted out from under the update; one warning, no
		// retry: the disappearance means the download was removed on
		// purpose.
		m.warnNoRows(link, field)
	case err != nil:
		m.logger.WithError(err).WithFields(logrus.Fields{
			"link":  link,
			"field": field,
		}).Error("Failed to update download record")
	case affected == 0:
		m.warnNoRows(link, field)
	default:
		metrics.EventsApplied.WithLabelValues(field).Inc()
	}
}

func (m *Manager) warnNoRows(link, field string) {
	metrics.UpdatesMissed.Inc()
	m.logger.WithFields(logrus.Fields{
		"link":  link,
		"field": field,
	}).Warn("Record update affected no rows")
}

// decodeSessionParams turns the record's stored session blob into a
// snapshot, or nil when there is nothing usable.
func (m *Manager) decodeSessionParams(record *models.DownloadRecord) *resume.Snapshot {
	if len(record.SessionParams) == 0 {
		return nil
	}
	snapshot, err := resume.Decode(record.SessionParams)
	if err != nil {
		m.logger.WithError(err).WithField("link", record.Link).Warn("Stored session params unusable, starting cold")
		return nil
	}
	return snapshot
}

// loadSnapshot prefers the resume-data file over the record's inline blob:
// the file is written on every snapshot, while the inline blob is only
// written together with state transitions.
func (m *Manager) loadSnapshot(record *models.DownloadRecord) *resume.Snapshot {
	inline := m.decodeSessionParams(record)
	if inline != nil {
		if fromFile, ok := m.store.Load(inline.InfoHash); ok {
			m.mu.Lock()
			m.sessionIDs[record.Link] = inline.InfoHash
			m.mu.Unlock()
			return fromFile
		}
	}
	return inline
}

// Wait blocks until all queued record work has drained
func (m *Manager) Wait() {
	m.queue.Wait()
}
