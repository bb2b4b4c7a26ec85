// Package linkkind decides which acquisition path an inbound link uses
// before any engine or database interaction happens.
package linkkind

import "strings"

// Kind is the acquisition mode for a link
type Kind int

const (
	// Unsupported links are rejected before any network or engine call
	Unsupported Kind = iota
	// Magnet links carry the torrent descriptor in the URI itself
	Magnet
	// Torrent links point at a .torrent metainfo file
	Torrent
)

func (k Kind) String() string {
	switch k {
	case Magnet:
		return "magnet"
	case Torrent:
		return "torrent"
	default:
		return "unsupported"
	}
}

// torrent mimetypes seen in the wild, including the misspelled plural
var torrentMimetypes = map[string]bool{
	"application/x-bittorrent":  true,
	"applications/x-bittorrent": true,
}

// IsTorrentMimetype reports whether mimetype declares torrent metainfo content
func IsTorrentMimetype(mimetype string) bool {
	return torrentMimetypes[mimetype]
}

// Classify determines the acquisition mode for link. The mimetype is optional
// and may be empty. A link is Magnet iff it starts with "magnet:". Otherwise
// it is Torrent when the mimetype declares torrent content or the link is an
// http(s) URL whose raw string ends in ".torrent"; a trailing query string
// defeats the suffix match on purpose. Everything else is Unsupported.
func Classify(link, mimetype string) Kind {
	if strings.HasPrefix(link, "magnet:") {
		return Magnet
	}
	if IsTorrentMimetype(mimetype) {
		return Torrent
	}
	if (strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://")) &&
		strings.HasSuffix(link, ".torrent") {
		return Torrent
	}
	return Unsupported
}
