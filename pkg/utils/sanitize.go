package utils

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// --- Filename Sanitization ---
var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)
var consecutiveUnderscores = regexp.MustCompile(`_+`)

const maxFilenameLength = 100

// RunTimestampLayout is the per-job timestamp token; lexicographic order is chronological.
const RunTimestampLayout = "20060102_150405"

// SanitizeFilename cleans a string to be safe for use as a filename component.
func SanitizeFilename(name string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(name, "_")
	sanitized = consecutiveUnderscores.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_ ")

	if len(sanitized) > maxFilenameLength {
		sanitized = strings.Trim(sanitized[:maxFilenameLength], "_ ")
	}
	if sanitized == "" {
		sanitized = "untitled"
	}
	return sanitized
}

// RunBaseName builds "<domain_with_underscores>_<YYYYMMDD_HHMMSS>", the name
// shared by every artifact of one audit run.
func RunBaseName(domain string, startedAt time.Time) string {
	d := strings.ReplaceAll(strings.ToLower(domain), ".", "_")
	d = strings.ReplaceAll(d, ":", "_")
	return SanitizeFilename(d) + "_" + startedAt.Format(RunTimestampLayout)
}

// SafeJoin joins name onto dir, rejecting names that are not a plain file
// name within dir (separators, "..", absolute paths).
func SafeJoin(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) ||
		filepath.IsAbs(name) || filepath.Base(name) != name {
		return "", WrapErrorf(ErrScopeViolation, "invalid file name %q", name)
	}
	return filepath.Join(dir, name), nil
}
