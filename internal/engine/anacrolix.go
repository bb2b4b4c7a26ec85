package engine

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/amaumene/torrnarr/internal/linkkind"
	"github.com/amaumene/torrnarr/internal/models"
	"github.com/amaumene/torrnarr/internal/proxy"
	"github.com/amaumene/torrnarr/internal/resume"
)

const (
	statusPollInterval = time.Second
	fetchMaxRetries    = 4
	eventBuffer        = 256
)

// Options configures the anacrolix-backed engine client
type Options struct {
	DataDir           string
	DownloadRateLimit int64 // bytes/s, 0 = unlimited
	UploadRateLimit   int64 // bytes/s, 0 = unlimited
	Proxy             *proxy.Config
	Logger            *logrus.Logger
}

// Client implements Session on top of an anacrolix torrent client
type Client struct {
	client     *torrent.Client
	httpClient *http.Client
	dataDir    string
	events     chan Event
	logger     *logrus.Logger

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

type session struct {
	link   string
	t      *torrent.Torrent
	paused atomic.Bool
	stop   chan struct{}
}

// NewClient starts the wrapped engine. The proxy config, when present, is
// applied to the engine's HTTP transport (trackers, web seeds) and to the
// client used for fetching .torrent files.
func NewClient(opts Options) (*Client, error) {
	cfg := torrent.NewDefaultClientConfig()
	cfg.DataDir = opts.DataDir
	if opts.DownloadRateLimit > 0 {
		cfg.DownloadRateLimiter = rate.NewLimiter(rate.Limit(opts.DownloadRateLimit), int(opts.DownloadRateLimit))
	}
	if opts.UploadRateLimit > 0 {
		cfg.UploadRateLimiter = rate.NewLimiter(rate.Limit(opts.UploadRateLimit), int(opts.UploadRateLimit))
	}

	httpTransport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if opts.Proxy != nil {
		proxyURL := opts.Proxy.URL()
		cfg.HTTPProxy = http.ProxyURL(proxyURL)
		httpTransport.Proxy = http.ProxyURL(proxyURL)
	}

	client, err := torrent.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create torrent client: %w", err)
	}

	return &Client{
		client:     client,
		httpClient: &http.Client{Transport: httpTransport, Timeout: 2 * time.Minute},
		dataDir:    opts.DataDir,
		events:     make(chan Event, eventBuffer),
		logger:     opts.Logger,
		sessions:   make(map[string]*session),
	}, nil
}

// Events implements Session
func (c *Client) Events() <-chan Event {
	return c.events
}

// Start implements Session
func (c *Client) Start(ctx context.Context, req StartRequest) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("engine is closed")
	}
	if _, ok := c.sessions[req.Link]; ok {
		c.mu.Unlock()
		return nil // already running, idempotent
	}
	c.mu.Unlock()

	t, err := c.addTorrent(ctx, req)
	if err != nil {
		return err
	}

	s := &session{
		link: req.Link,
		t:    t,
		stop: make(chan struct{}),
	}
	if req.Paused {
		s.paused.Store(true)
		t.DisallowDataDownload()
		t.DisallowDataUpload()
	}

	c.mu.Lock()
	c.sessions[req.Link] = s
	c.mu.Unlock()

	go c.watch(s, req.Snapshot != nil)
	return nil
}

func (c *Client) addTorrent(ctx context.Context, req StartRequest) (*torrent.Torrent, error) {
	// A saved snapshot with full metainfo skips the network entirely; one
	// without it still skips nothing worse than a metadata fetch.
	if req.Snapshot != nil {
		if len(req.Snapshot.MetaInfo) > 0 {
			mi, err := metainfo.Load(bytes.NewReader(req.Snapshot.MetaInfo))
			if err == nil {
				return c.client.AddTorrent(mi)
			}
			c.logger.WithError(err).WithField("link", req.Link).Warn("Resume snapshot metainfo unusable, falling back")
		}
		hash, err := req.Snapshot.Hash()
		if err == nil {
			t, _, err := c.client.AddTorrentSpec(&torrent.TorrentSpec{
				InfoHash:    hash,
				DisplayName: req.Snapshot.Name,
				Trackers:    req.Snapshot.Trackers,
			})
			return t, err
		}
		c.logger.WithError(err).WithField("link", req.Link).Warn("Resume snapshot unusable, starting cold")
	}

	switch req.Kind {
	case linkkind.Magnet:
		t, err := c.client.AddMagnet(req.Link)
		if err != nil {
			return nil, fmt.Errorf("failed to add magnet: %w", err)
		}
		return t, nil
	case linkkind.Torrent:
		mi, err := c.loadMetainfo(ctx, req.Link)
		if err != nil {
			return nil, err
		}
		t, err := c.client.AddTorrent(mi)
		if err != nil {
			return nil, fmt.Errorf("failed to add torrent: %w", err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported link kind for %q", req.Link)
	}
}

// loadMetainfo fetches and parses a .torrent file, retrying transient HTTP
// failures with exponential backoff.
func (c *Client) loadMetainfo(ctx context.Context, link string) (*metainfo.MetaInfo, error) {
	if !isHTTPLink(link) {
		f, err := os.Open(link)
		if err != nil {
			return nil, fmt.Errorf("failed to open torrent file: %w", err)
		}
		defer f.Close()
		mi, err := metainfo.Load(f)
		if err != nil {
			return nil, fmt.Errorf("failed to parse torrent file: %w", err)
		}
		return mi, nil
	}

	var mi *metainfo.MetaInfo
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("torrent fetch rejected: %s", resp.Status))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("torrent fetch failed: %s", resp.Status)
		}
		mi, err = metainfo.Load(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to parse torrent file: %w", err))
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), fetchMaxRetries), ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch torrent from %q: %w", link, err)
	}
	return mi, nil
}

func isHTTPLink(link string) bool {
	return len(link) > 7 && (link[:7] == "http://" || (len(link) > 8 && link[:8] == "https://"))
}

// watch polls one torrent and translates its status into events until the
// session stops.
func (c *Client) watch(s *session, fromSnapshot bool) {
	initial := models.StateDownloadingMetadata
	if fromSnapshot {
		initial = models.StateCheckingResumeData
	}
	c.emit(Event{Link: s.link, SessionID: c.sessionID(s), State: &initial})

	select {
	case <-s.t.GotInfo():
	case <-s.stop:
		return
	}

	c.emitMetadata(s)
	if !s.paused.Load() {
		s.t.DownloadAll()
	}

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	completed := false
	for {
		select {
		case <-s.stop:
			return
		case <-s.t.Closed():
			return
		case <-ticker.C:
			if s.paused.Load() {
				continue
			}
			c.emitStatus(s, &completed)
		}
	}
}

// emitMetadata reports everything that becomes known the moment the engine
// resolves metadata: real name, total size, comment, and the file list.
func (c *Client) emitMetadata(s *session) {
	info := s.t.Info()
	if info == nil {
		return
	}

	name := s.t.Name()
	size := s.t.Length()
	ev := Event{
		Link:      s.link,
		SessionID: c.sessionID(s),
		Name:      &name,
		Size:      &size,
	}

	mi := s.t.Metainfo()
	if mi.Comment != "" {
		comment := mi.Comment
		ev.Description = &comment
	}

	for _, f := range s.t.Files() {
		ev.Files = append(ev.Files, FileInfo{RelPath: f.Path(), Size: f.Length()})
	}

	c.emit(ev)
}

func (c *Client) emitStatus(s *session, completed *bool) {
	length := s.t.Length()
	done := s.t.BytesCompleted()

	progress := 0.0
	if length > 0 {
		progress = float64(done) / float64(length)
	}

	var state models.DownloadState
	switch {
	case length > 0 && done >= length:
		if !*completed {
			*completed = true
			state = models.StateCompleted
		} else {
			state = models.StateSeeding
		}
	default:
		state = models.StateDownloading
	}

	c.emit(Event{
		Link:      s.link,
		SessionID: c.sessionID(s),
		State:     &state,
		Progress:  &progress,
		Size:      &length,
	})
}

func (c *Client) sessionID(s *session) string {
	return s.t.InfoHash().HexString()
}

// emit delivers ev unless the client is closed. Sends happen under the
// client mutex, which is what makes closing the event channel in Close safe
// against emitter goroutines still in flight.
func (c *Client) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		// The manager has stalled badly; drop the oldest event rather
		// than wedging the engine's callback goroutines.
		select {
		case <-c.events:
		default:
		}
		c.events <- ev
	}
}

func (c *Client) lookup(link string) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[link]
	if !ok {
		return nil, fmt.Errorf("no engine session for %q", link)
	}
	return s, nil
}

// Pause implements Session
func (c *Client) Pause(link string) error {
	s, err := c.lookup(link)
	if err != nil {
		return err
	}
	s.paused.Store(true)
	s.t.DisallowDataDownload()
	s.t.DisallowDataUpload()
	return nil
}

// Resume implements Session
func (c *Client) Resume(link string) error {
	s, err := c.lookup(link)
	if err != nil {
		return err
	}
	s.paused.Store(false)
	s.t.AllowDataDownload()
	s.t.AllowDataUpload()
	if s.t.Info() != nil {
		s.t.DownloadAll()
	}
	return nil
}

// RequestResumeData implements Session. The snapshot is built from the live
// torrent and delivered asynchronously on the event stream.
func (c *Client) RequestResumeData(link string) error {
	s, err := c.lookup(link)
	if err != nil {
		return err
	}

	go func() {
		snapshot := &resume.Snapshot{
			InfoHash: s.t.InfoHash().HexString(),
			Name:     s.t.Name(),
		}
		mi := s.t.Metainfo()
		snapshot.Trackers = mi.AnnounceList
		if s.t.Info() != nil {
			snapshot.Length = s.t.Length()
			snapshot.Completed = s.t.BytesCompleted()
			if raw, err := bencode.Marshal(mi); err == nil {
				snapshot.MetaInfo = raw
			}
		}

		blob, err := snapshot.Encode()
		if err != nil {
			// A snapshot failure never fails the download itself.
			c.logger.WithError(err).WithField("link", link).Error("Failed to encode resume snapshot")
			return
		}
		c.emit(Event{Link: link, SessionID: c.sessionID(s), ResumeData: blob})
	}()
	return nil
}

// Remove implements Session
func (c *Client) Remove(link string, deleteFiles bool) error {
	c.mu.Lock()
	s, ok := c.sessions[link]
	if ok {
		delete(c.sessions, link)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}

	close(s.stop)
	info := s.t.Info()
	name := s.t.Name()
	s.t.Drop()

	if deleteFiles && info != nil {
		if err := os.RemoveAll(filepath.Join(c.dataDir, name)); err != nil {
			c.logger.WithError(err).WithField("link", link).Warn("Failed to delete payload files")
		}
	}
	return nil
}

// closeEvents stops all sessions and closes the event stream. It returns
// false when the client was already closed. The channel close happens under
// the same mutex every emit holds while sending, so no emitter can hit a
// closed channel.
func (c *Client) closeEvents() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	for _, s := range c.sessions {
		close(s.stop)
	}
	c.sessions = make(map[string]*session)
	close(c.events)
	return true
}

// Close implements Session
func (c *Client) Close() error {
	if !c.closeEvents() {
		return nil
	}
	c.client.Close()
	return nil
}
