// Package sanitize strips control characters and redacts emails, host
// paths, and name-like tokens from text before it is persisted anywhere.
// The passes are deterministic, stateless, and order-sensitive, and the
// whole transform is idempotent: Clean(Clean(x)) == Clean(x).
package sanitize

import (
	"regexp"
	"strings"
)

// Redaction markers. Stable strings so downstream dedup keys stay stable.
const (
	EmailMarker = "[redacted-email]"
	PathMarker  = "[path]"
	NameMarker  = "[name]"
)

var (
	controlRe = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	emailRe   = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	// Windows absolute paths: C:\Users\bob\... and the forward-slash
	// form C:/Users/bob. The forward-slash form requires a non-slash
	// after the separator so protocol schemes (https://) survive.
	winPathRe     = regexp.MustCompile(`[A-Za-z]:\\[^\s"'<>|]*`)
	winPathFwdRe  = regexp.MustCompile(`\b[A-Za-z]:/[^/\s"'<>|][^\s"'<>|]*`)

	// POSIX paths only redact when suspiciously long; short relative
	// paths are useful provenance.
	posixPathRe = regexp.MustCompile(`/[^\s"'<>|]{120,}`)

	// Two consecutive capitalized words are treated as a personal name.
	// Deliberately aggressive; origin text is corpus content, not prose
	// the user needs back.
	nameRe = regexp.MustCompile(`\b[A-Z][a-z]{1,20} [A-Z][a-z]{1,20}\b`)

	// Surviving drive-letter or UNC fragments after the path passes.
	driveFragRe = regexp.MustCompile(`(?:\\\\[A-Za-z0-9_.\-]+[\\/]?|\b[A-Za-z]:\\)`)
)

// Clean applies the redaction passes in order and returns the result.
func Clean(text string) string {
	if text == "" {
		return ""
	}

	out := controlRe.ReplaceAllString(text, "")
	out = emailRe.ReplaceAllString(out, EmailMarker)
	out = winPathRe.ReplaceAllString(out, PathMarker)
	out = winPathFwdRe.ReplaceAllString(out, PathMarker)
	out = posixPathRe.ReplaceAllString(out, PathMarker)
	out = nameRe.ReplaceAllString(out, NameMarker)
	out = driveFragRe.ReplaceAllString(out, PathMarker)
	return out
}

// OriginFile reduces a path to a safe origin tag: project-relative when
// the path is under root, otherwise the bare basename. The result never
// contains an absolute host path.
func OriginFile(path, root string) string {
	if path == "" {
		return ""
	}
	p := strings.ReplaceAll(path, "\\", "/")
	r := strings.ReplaceAll(root, "\\", "/")
	if r != "" && strings.HasPrefix(p, strings.TrimSuffix(r, "/")+"/") {
		return strings.TrimPrefix(p, strings.TrimSuffix(r, "/")+"/")
	}
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
