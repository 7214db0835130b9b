// Package storage is the script-visible filesystem. It is mounted read-only
// until a boot program remounts it; the host's mass-storage role and script
// write access are mutually exclusive.
package storage

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/afero"

	"periphio/errcode"
)

// HostAccess reports whether the host currently holds the volume over USB
// mass storage.
type HostAccess func() bool

type Option func(*Storage)

// WithHostAccess installs the mass-storage check consulted by Remount.
func WithHostAccess(f HostAccess) Option { return func(s *Storage) { s.host = f } }

type Storage struct {
	mu       sync.RWMutex
	base     afero.Fs
	view     afero.Fs
	writable bool
	host     HostAccess
}

// New mounts base read-only.
func New(base afero.Fs, opts ...Option) *Storage {
	s := &Storage{base: base, view: afero.NewReadOnlyFs(base)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Remount switches the script's view. Write access is refused with
// read_only while the host holds the volume.
func (s *Storage) Remount(writable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if writable && s.host != nil && s.host() {
		return errcode.New(errcode.ReadOnly, "storage.Remount", "host has mass storage")
	}
	s.writable = writable
	if writable {
		s.view = s.base
	} else {
		s.view = afero.NewReadOnlyFs(s.base)
	}
	return nil
}

func (s *Storage) Writable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writable
}

// Fs returns the current view. Writes through it fail while read-only.
func (s *Storage) Fs() afero.Fs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// flags parses a mode string: one of r, w, a, optionally followed by +,
// with b accepted anywhere and ignored.
func flags(mode string) (int, error) {
	m := strings.ReplaceAll(mode, "b", "")
	switch m {
	case "r":
		return os.O_RDONLY, nil
	case "r+":
		return os.O_RDWR, nil
	case "w":
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC, nil
	case "w+":
		return os.O_RDWR | os.O_CREATE | os.O_TRUNC, nil
	case "a":
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND, nil
	case "a+":
		return os.O_RDWR | os.O_CREATE | os.O_APPEND, nil
	}
	return 0, errcode.New(errcode.InvalidParams, "storage.Open", "bad mode "+mode)
}

// Open opens path with a script mode string ("r", "w", "a", "rb", "a+" ...).
func (s *Storage) Open(path, mode string) (afero.File, error) {
	fl, err := flags(mode)
	if err != nil {
		return nil, err
	}
	f, err := s.Fs().OpenFile(path, fl, 0o644)
	if err != nil {
		return nil, mapErr("storage.Open", err)
	}
	return f, nil
}

func (s *Storage) ReadFile(path string) ([]byte, error) {
	b, err := afero.ReadFile(s.Fs(), path)
	return b, mapErr("storage.ReadFile", err)
}

func (s *Storage) WriteFile(path string, data []byte) error {
	return mapErr("storage.WriteFile", afero.WriteFile(s.Fs(), path, data, 0o644))
}

func (s *Storage) Remove(path string) error {
	return mapErr("storage.Remove", s.Fs().Remove(path))
}

func (s *Storage) Mkdir(path string) error {
	return mapErr("storage.Mkdir", s.Fs().MkdirAll(path, 0o755))
}

func (s *Storage) Exists(path string) bool {
	ok, _ := afero.Exists(s.Fs(), path)
	return ok
}

// ListDir returns the names in dir, sorted.
func (s *Storage) ListDir(dir string) ([]string, error) {
	infos, err := afero.ReadDir(s.Fs(), dir)
	if err != nil {
		return nil, mapErr("storage.ListDir", err)
	}
	out := make([]string, len(infos))
	for i, fi := range infos {
		out[i] = fi.Name()
	}
	return out, nil
}

// AppendLine appends line plus a newline to path, creating it if needed.
func (s *Storage) AppendLine(path, line string) error {
	f, err := s.Open(path, "a")
	if err != nil {
		return err
	}
	if _, err := io.WriteString(f, line+"\n"); err != nil {
		f.Close()
		return mapErr("storage.AppendLine", err)
	}
	return mapErr("storage.AppendLine", f.Close())
}

// LastLine returns the final non-empty line of path without its newline.
// An empty file yields "".
func (s *Storage) LastLine(path string) (string, error) {
	f, err := s.Open(path, "r")
	if err != nil {
		return "", err
	}
	defer f.Close()
	var last string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if l := bytes.TrimRight(sc.Bytes(), "\r"); len(l) > 0 {
			last = string(l)
		}
	}
	if err := sc.Err(); err != nil {
		return "", mapErr("storage.LastLine", err)
	}
	return last, nil
}

// mapErr translates filesystem errors into the error taxonomy.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var c errcode.Code
	switch {
	case errors.Is(err, fs.ErrNotExist):
		c = errcode.NotFound
	case errors.Is(err, syscall.EPERM), errors.Is(err, syscall.EROFS), errors.Is(err, fs.ErrPermission):
		c = errcode.ReadOnly
	case errors.Is(err, syscall.ENOSPC):
		c = errcode.NoSpace
	default:
		c = errcode.Error
	}
	return errcode.Wrap(c, op, err)
}
