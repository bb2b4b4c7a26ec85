package utils

import (
	"net/url"
	"strings"
)

// characters that are unsafe in a filename on at least one supported filesystem
const unsafeFilenameChars = `/\:*?"<>|`

// DeriveNameFromLink produces a fallback display name for a download whose
// metadata the engine has not resolved yet: the substring after the last
// '/', URL-decoded, then sanitized into a filesystem-safe name. The result
// is only a placeholder; it is overwritten once the engine reports the real
// torrent name.
func DeriveNameFromLink(link string) string {
	name := link
	if idx := strings.LastIndex(link, "/"); idx >= 0 {
		name = link[idx+1:]
	}
	if decoded, err := url.QueryUnescape(name); err == nil {
		name = decoded
	}
	return SanitizeFileName(name)
}

// SanitizeFileName replaces characters that are not valid in file names
func SanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(unsafeFilenameChars, r) {
			b.WriteRune('_')
		} else {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
