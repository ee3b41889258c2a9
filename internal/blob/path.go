package blob

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// DocumentPath builds the storage key for an uploaded document. Keys are
// namespaced per user and prefixed with the upload timestamp so re-uploads
// of the same filename never collide.
func DocumentPath(userID int64, uploadedAt time.Time, originalName string) string {
	name := sanitizeFilename(originalName)
	return path.Join("documents", fmt.Sprintf("%d", userID), fmt.Sprintf("%d_%s", uploadedAt.UnixMilli(), name))
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
