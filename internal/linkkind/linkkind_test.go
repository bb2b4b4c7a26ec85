package linkkind

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		link     string
		mimetype string
		want     Kind
	}{
		{"magnet:?xt=urn:btih:deadbeef", "", Magnet},
		{"magnet:", "", Magnet},
		// A magnet link wins regardless of mimetype.
		{"magnet:?xt=urn:btih:deadbeef", "video/mp4", Magnet},

		{"http://x/y.torrent", "", Torrent},
		{"https://x/y.torrent", "", Torrent},
		{"http://x/y", "application/x-bittorrent", Torrent},
		{"http://x/y", "applications/x-bittorrent", Torrent},

		// The suffix match is anchored at the end of the raw link, so a
		// query string after .torrent defeats it.
		{"http://x/y.torrent?a=b", "", Unsupported},
		// Mimetype matching is exact and case-sensitive.
		{"http://x/y", "Application/X-BitTorrent", Unsupported},
		{"http://x/y", "application/x-bittorrent; charset=utf-8", Unsupported},
		// ftp is not an accepted scheme for .torrent links.
		{"ftp://x/y.torrent", "", Unsupported},
		{"http://x/y.mp4", "", Unsupported},
		{"y.torrent", "", Unsupported},
		{"", "", Unsupported},
	}

	for _, tc := range cases {
		if got := Classify(tc.link, tc.mimetype); got != tc.want {
			t.Errorf("Classify(%q, %q) = %s, want %s", tc.link, tc.mimetype, got, tc.want)
		}
	}
}

func TestIsTorrentMimetype(t *testing.T) {
	if !IsTorrentMimetype("application/x-bittorrent") {
		t.Error("canonical mimetype should match")
	}
	if !IsTorrentMimetype("applications/x-bittorrent") {
		t.Error("plural variant should match")
	}
	if IsTorrentMimetype("") || IsTorrentMimetype("text/html") {
		t.Error("other mimetypes should not match")
	}
}
