package files

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Sandbox confines every operation to a fixed root directory. Paths are
// client-supplied strings interpreted relative to the root; nothing outside
// the root is ever touched.
type Sandbox struct {
	Root string
}

var (
	// ErrEscapesRoot means the cleaned path resolved outside the sandbox.
	ErrEscapesRoot = errors.New("files: path escapes sandbox root")
	// ErrNotFound means the path has no file behind it.
	ErrNotFound = errors.New("files: not found")
	// ErrIsDirectory means a file read hit a directory.
	ErrIsDirectory = errors.New("files: path is a directory")
)

// FileInfo describes one entry of a recursive listing. Path is relative to
// the sandbox root with forward slashes and no leading slash.
type FileInfo struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	IsDir bool   `json:"is_directory"`
	Size  int64  `json:"size"`
}

func NewSandbox(root string) (*Sandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Sandbox{Root: abs}, nil
}

// Resolve cleans a client path and anchors it under the root. The check
// runs before any syscall sees the input. "." and "" resolve to the root
// itself.
func (s *Sandbox) Resolve(rel string) (string, error) {
	rel = strings.TrimPrefix(strings.TrimSpace(rel), "/")
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrEscapesRoot
	}
	abs := filepath.Join(s.Root, cleaned)
	if abs != s.Root && !strings.HasPrefix(abs, s.Root+string(filepath.Separator)) {
		return "", ErrEscapesRoot
	}
	return abs, nil
}

// List walks the whole tree under the root, excluding the root entry
// itself.
func (s *Sandbox) List() ([]FileInfo, error) {
	out := []FileInfo{}
	err := filepath.WalkDir(s.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == s.Root {
			return nil
		}
		rel, rerr := filepath.Rel(s.Root, p)
		if rerr != nil {
			return rerr
		}
		var size int64
		if !d.IsDir() {
			if info, ierr := d.Info(); ierr == nil {
				size = info.Size()
			}
		}
		out = append(out, FileInfo{
			Path:  filepath.ToSlash(rel),
			Name:  d.Name(),
			IsDir: d.IsDir(),
			Size:  size,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get reads a file's content. Directories are not readable as content.
func (s *Sandbox) Get(rel string) ([]byte, error) {
	abs, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrIsDirectory
	}
	return os.ReadFile(abs)
}

// Put writes content, creating parent directories as needed. A trailing
// slash on the path creates a directory placeholder instead of a file.
func (s *Sandbox) Put(rel string, data []byte) error {
	abs, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if strings.HasSuffix(rel, "/") || abs == s.Root {
		return os.MkdirAll(abs, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(abs, data, 0o644)
}

// Delete removes a file or directory tree. Deleting something that does
// not exist succeeds.
func (s *Sandbox) Delete(rel string) error {
	abs, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if abs == s.Root {
		return ErrEscapesRoot
	}
	return os.RemoveAll(abs)
}

// Move renames from one sandboxed path to another, validating both sides
// independently and creating destination parents. Rename is native, so a
// cross-directory move is atomic on the same filesystem and never merges
// directory contents.
func (s *Sandbox) Move(from, to string) error {
	src, err := s.Resolve(from)
	if err != nil {
		return err
	}
	dst, err := s.Resolve(to)
	if err != nil {
		return err
	}
	if _, serr := os.Stat(src); serr != nil {
		if os.IsNotExist(serr) {
			return ErrNotFound
		}
		return serr
	}
	if info, derr := os.Stat(dst); derr == nil && info.IsDir() {
		return errors.New("files: destination already exists")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}
