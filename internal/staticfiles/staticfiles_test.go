package staticfiles

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestResolve_ServesFileInRoot(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "index.html"), "<html></html>")

	path, err := Resolve(root, "/index.html")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if filepath.Base(path) != "index.html" {
		t.Fatalf("got %q", path)
	}
}

func TestResolve_PathTraversalRejected(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	mustWrite(t, filepath.Join(outside, "secret.txt"), "nope")

	rel, err := filepath.Rel(root, filepath.Join(outside, "secret.txt"))
	if err != nil {
		t.Fatalf("rel: %v", err)
	}
	if _, err := Resolve(root, "/"+rel); err != ErrNotFound {
		t.Fatalf("got err=%v, want ErrNotFound", err)
	}
}

func TestResolve_DotDotRejected(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "public", "index.html"), "ok")
	sub := filepath.Join(root, "public")

	if _, err := Resolve(sub, "/../../etc/passwd"); err != ErrNotFound {
		t.Fatalf("got err=%v, want ErrNotFound", err)
	}
}

func TestResolve_DirectoryRejected(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := Resolve(root, "/sub"); err != ErrNotFound {
		t.Fatalf("got err=%v, want ErrNotFound", err)
	}
}

func TestResolve_SymlinkEscapeRejected(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	mustWrite(t, filepath.Join(outside, "secret.txt"), "nope")

	link := filepath.Join(root, "escape")
	if err := os.Symlink(filepath.Join(outside, "secret.txt"), link); err != nil {
		t.Skipf("symlink unsupported: %v", err)
	}

	if _, err := Resolve(root, "/escape"); err != ErrNotFound {
		t.Fatalf("got err=%v, want ErrNotFound", err)
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"a.html": "text/html",
		"a.css":  "text/css",
		"a.js":   "application/javascript",
		"a.png":  "image/png",
		"a.jpeg": "image/jpeg",
		"a.jpg":  "image/jpeg",
		"a.bin":  "text/plain",
	}
	for path, want := range cases {
		if got := ContentType(path); got != want {
			t.Errorf("ContentType(%q): got %q, want %q", path, got, want)
		}
	}
}

func TestServeFile_200(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "index.html"), "hello")

	r := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	w := httptest.NewRecorder()
	if err := ServeFile(w, r, root, "/index.html"); err != nil {
		t.Fatalf("ServeFile: %v", err)
	}
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if w.Body.String() != "hello" {
		t.Fatalf("body: got %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html" {
		t.Fatalf("content-type: got %q", ct)
	}
}

func TestServeFile_NotFound(t *testing.T) {
	root := t.TempDir()
	r := httptest.NewRequest(http.MethodGet, "/missing.html", nil)
	w := httptest.NewRecorder()
	if err := ServeFile(w, r, root, "/missing.html"); err != ErrNotFound {
		t.Fatalf("got err=%v, want ErrNotFound", err)
	}
}
