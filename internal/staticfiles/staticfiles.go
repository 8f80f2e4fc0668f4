// Package staticfiles serves a single file from a configured document
// root, canonicalizing the request path against it so that traversal
// (".." segments) and symlink tricks cannot escape the root.
//
// There is no teacher file for this concern (the teacher is
// proxy-only); it follows the teacher's general idiom of small pure
// functions plus a thin HTTP-facing wrapper, the way
// internal/proxy/http1.go separates its header helpers from ServeHTTP.
package staticfiles

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// mimeByExtension maps the extensions spec.md §4.6 names explicitly;
// anything else falls back to text/plain.
var mimeByExtension = map[string]string{
	".html": "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".png":  "image/png",
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
}

// ErrNotFound is returned (wrapped or bare) whenever the requested path
// resolves to something other than a servable regular file. Callers
// should translate it to a 404.
var ErrNotFound = errors.New("staticfiles: not found")

// Resolve canonicalizes root and root.join(suffix), verifies that the
// canonical target is still inside the canonical root and is a regular
// file, and returns its absolute path on success. The prefix check
// happens strictly after canonicalization, so symlinks that would
// otherwise escape root are rejected.
func Resolve(root, suffix string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", ErrNotFound
	}
	canonRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", ErrNotFound
	}

	joined := filepath.Join(absRoot, filepath.FromSlash(suffix))
	canonTarget, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", ErrNotFound
	}

	if !withinRoot(canonRoot, canonTarget) {
		return "", ErrNotFound
	}

	info, err := os.Stat(canonTarget)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return canonTarget, nil
}

func withinRoot(canonRoot, canonTarget string) bool {
	if canonTarget == canonRoot {
		return true
	}
	return strings.HasPrefix(canonTarget, canonRoot+string(filepath.Separator))
}

// ContentType infers a MIME type from the path's extension, defaulting
// to text/plain per spec.md §4.6.
func ContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := mimeByExtension[ext]; ok {
		return ct
	}
	return "text/plain"
}

// ServeFile resolves suffix against root and, on success, streams the
// file to w with an inferred Content-Type. Returns ErrNotFound (without
// writing anything) when the path does not resolve to a servable file,
// so the caller can render the canned 404 with the Server header
// stamped consistently.
func ServeFile(w http.ResponseWriter, r *http.Request, root, suffix string) error {
	path, err := Resolve(root, suffix)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return ErrNotFound
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ErrNotFound
	}

	w.Header().Set("Content-Type", ContentType(path))
	http.ServeContent(w, r, path, info.ModTime(), f)
	return nil
}
