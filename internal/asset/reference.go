package asset

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

// Reference is a parsed photo reference
type Reference struct {
	Raw     string // first link found in the cell
	ID      string // stable cache identifier
	DriveID string // Google Drive file id, when the link is a Drive link
	Bucket  string // Cloud Storage bucket for gs:// links
	Object  string // Cloud Storage object for gs:// links
}

var (
	drivePathPattern = regexp.MustCompile(`/d/([A-Za-z0-9_-]{10,})`)
	driveHosts       = []string{"drive.google.com", "docs.google.com", "googleusercontent.com"}
)

// ParseReference extracts the first link of a photo cell and derives its
// stable identifier. Forms that accept several uploads join them with commas.
func ParseReference(cell string) (Reference, bool) {
	raw := firstLink(cell)
	if raw == "" {
		return Reference{}, false
	}
	ref := Reference{Raw: raw}

	if strings.HasPrefix(raw, "gs://") {
		path := strings.TrimPrefix(raw, "gs://")
		bucket, object, ok := strings.Cut(path, "/")
		if ok && bucket != "" && object != "" {
			ref.Bucket, ref.Object = bucket, object
		}
	}

	if id := driveFileID(raw); id != "" {
		ref.DriveID = id
		ref.ID = id
		return ref, true
	}

	sum := sha256.Sum256([]byte(raw))
	ref.ID = hex.EncodeToString(sum[:])[:24]
	return ref, true
}

func firstLink(cell string) string {
	fields := strings.FieldsFunc(cell, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t'
	})
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			return f
		}
	}
	return ""
}

func driveFileID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	isDrive := false
	for _, h := range driveHosts {
		if strings.HasSuffix(u.Host, h) {
			isDrive = true
			break
		}
	}
	if !isDrive {
		return ""
	}
	if id := u.Query().Get("id"); id != "" {
		return id
	}
	if m := drivePathPattern.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	return ""
}
