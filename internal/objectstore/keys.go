package objectstore

import (
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const uploadPrefix = "uploads"

var filenameCleaner = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NewObjectName builds a fresh, collision-free object key for an upload
// attempt. Every attempt gets its own key; a failed asset never reuses a dead
// one, which keeps concurrent uploads fully independent.
func NewObjectName(filename string) string {
	return uploadPrefix + "/" + uuid.NewString() + "-" + normalizeFilename(filename)
}

// normalizeFilename strips diacritics and anything unsafe in an object key,
// keeping the extension so content type can still be guessed from the name.
func normalizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "file"
	}
	flattened, _, err := transform.String(filenameCleaner, base)
	if err != nil {
		flattened = base
	}
	var builder strings.Builder
	for _, r := range strings.ToLower(flattened) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteByte('-')
		}
	}
	cleaned := strings.Trim(builder.String(), "-.")
	if cleaned == "" {
		return "file"
	}
	return cleaned
}
