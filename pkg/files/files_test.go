package files

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func newTestSandbox(t *testing.T) *Sandbox {
	t.Helper()
	s, err := NewSandbox(filepath.Join(t.TempDir(), "sandbox"))
	if err != nil {
		t.Fatalf("new sandbox: %v", err)
	}
	return s
}

func TestResolveConfinement(t *testing.T) {
	s := newTestSandbox(t)

	for _, p := range []string{"../../etc/passwd", "/../secret", "..", "a/../../b"} {
		if _, err := s.Resolve(p); !errors.Is(err, ErrEscapesRoot) {
			t.Errorf("Resolve(%q) err = %v, want ErrEscapesRoot", p, err)
		}
	}

	abs, err := s.Resolve("a/b/../c")
	if err != nil {
		t.Fatalf("Resolve(a/b/../c): %v", err)
	}
	if abs != filepath.Join(s.Root, "a", "c") {
		t.Fatalf("Resolve(a/b/../c) = %q", abs)
	}

	for _, p := range []string{"", ".", "/"} {
		abs, err := s.Resolve(p)
		if err != nil || abs != s.Root {
			t.Errorf("Resolve(%q) = %q, %v, want root", p, abs, err)
		}
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestSandbox(t)

	if err := s.Put("src/main.go", []byte("package main")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get("src/main.go")
	if err != nil || string(got) != "package main" {
		t.Fatalf("get = %q, %v", got, err)
	}

	// parents are created on demand
	if _, err := os.Stat(filepath.Join(s.Root, "src")); err != nil {
		t.Fatalf("parent dir missing: %v", err)
	}
}

func TestPutTrailingSlashCreatesDirectory(t *testing.T) {
	s := newTestSandbox(t)

	if err := s.Put("logs/", nil); err != nil {
		t.Fatalf("put dir: %v", err)
	}
	info, err := os.Stat(filepath.Join(s.Root, "logs"))
	if err != nil || !info.IsDir() {
		t.Fatalf("logs/ is not a directory: %v", err)
	}

	if _, err := s.Get("logs"); !errors.Is(err, ErrIsDirectory) {
		t.Fatalf("reading a directory: %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestSandbox(t)
	if _, err := s.Get("nope.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	s := newTestSandbox(t)

	if err := s.Put("a.txt", []byte("aa")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put("dir/b.txt", []byte("b")); err != nil {
		t.Fatalf("put: %v", err)
	}

	out, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	paths := make([]string, 0, len(out))
	byPath := map[string]FileInfo{}
	for _, fi := range out {
		paths = append(paths, fi.Path)
		byPath[fi.Path] = fi
	}
	sort.Strings(paths)
	want := []string{"a.txt", "dir", "dir/b.txt"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("paths = %v, want %v", paths, want)
		}
	}
	if !byPath["dir"].IsDir || byPath["dir"].Name != "dir" {
		t.Fatalf("dir entry = %+v", byPath["dir"])
	}
	if byPath["a.txt"].Size != 2 || byPath["a.txt"].IsDir {
		t.Fatalf("a.txt entry = %+v", byPath["a.txt"])
	}
}

func TestDeleteIdempotent(t *testing.T) {
	s := newTestSandbox(t)

	if err := s.Put("doomed/nested.txt", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Delete("doomed"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get("doomed/nested.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("file survived delete: %v", err)
	}
	if err := s.Delete("doomed"); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	// the root itself is not deletable
	if err := s.Delete(""); err == nil {
		t.Fatalf("deleting root succeeded")
	}
}

func TestMove(t *testing.T) {
	s := newTestSandbox(t)

	if err := s.Put("old/name.txt", []byte("content")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Move("old/name.txt", "new/dir/name.txt"); err != nil {
		t.Fatalf("move: %v", err)
	}
	got, err := s.Get("new/dir/name.txt")
	if err != nil || string(got) != "content" {
		t.Fatalf("get after move = %q, %v", got, err)
	}
	if _, err := s.Get("old/name.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("source survived move: %v", err)
	}
}

func TestMoveErrors(t *testing.T) {
	s := newTestSandbox(t)

	if err := s.Move("missing.txt", "dst.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing source: %v", err)
	}
	if err := s.Move("../outside", "dst.txt"); !errors.Is(err, ErrEscapesRoot) {
		t.Fatalf("escaping source: %v", err)
	}
	if err := s.Move("dst.txt", "../outside"); !errors.Is(err, ErrEscapesRoot) {
		t.Fatalf("escaping destination: %v", err)
	}

	// moving a directory onto an existing directory must not merge
	if err := s.Put("a/f.txt", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put("b/g.txt", []byte("y")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Move("a", "b"); err == nil {
		t.Fatalf("directory merge allowed")
	}
}
