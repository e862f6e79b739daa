package vfs

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizePath canonicalizes a virtual path: backslashes become forward
// slashes, redundant and surrounding slashes are dropped, the text is
// normalized to Unicode NFC, and the result carries a single leading
// slash. All path-keyed operations normalize first so the key space is
// canonical.
func NormalizePath(path string) (string, error) {
	p := strings.ReplaceAll(path, "\\", "/")
	p = norm.NFC.String(p)

	segments := make([]string, 0, 8)
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			continue
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return "", ErrEmptyPath
	}
	return "/" + strings.Join(segments, "/"), nil
}
