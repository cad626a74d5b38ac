package storage

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	unsafeChars   = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

// GenerateFilename builds "<sanitized-base>-<unix-millis><ext>" from an uploaded file's name.
func GenerateFilename(original string, now time.Time) string {
	original = filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	ext := strings.ToLower(filepath.Ext(original))
	base := strings.TrimSuffix(original, filepath.Ext(original))

	base = whitespaceRun.ReplaceAllString(strings.TrimSpace(base), "-")
	base = unsafeChars.ReplaceAllString(base, "")
	base = strings.Trim(base, ".-")
	if base == "" {
		base = "project"
	}
	if len(base) > 100 {
		base = base[:100]
	}
	ext = unsafeChars.ReplaceAllString(ext, "")

	return fmt.Sprintf("%s-%d%s", base, now.UnixMilli(), ext)
}

// withUniqueSuffix inserts a short random fragment before the extension.
func withUniqueSuffix(name string) string {
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s-%s%s", strings.TrimSuffix(name, ext), uuid.NewString()[:8], ext)
}
