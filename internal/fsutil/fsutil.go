// Package fsutil implements the staged-write discipline used for every record
// the repository persists.
//
// Content is written to a uniquely named file in a staging directory on the
// same filesystem, synced, and then moved into place with a single rename.
// Readers listing the destination directory either see the complete file or
// nothing. Write-once destinations use a no-replace rename so an existing
// record is never overwritten.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Staged is a file being written in the staging directory.
type Staged struct {
	file *os.File
	path string
	done bool
}

// Stage creates a new staging file in dir, creating dir if needed.
func Stage(dir string) (*Staged, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	path := filepath.Join(dir, uuid.NewString()+".tmp")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	return &Staged{file: f, path: path}, nil
}

// Write implements io.Writer.
func (s *Staged) Write(p []byte) (int, error) {
	return s.file.Write(p)
}

// Path returns the staging file's path.
func (s *Staged) Path() string {
	return s.path
}

// Abort discards the staging file. Safe to call after Publish.
func (s *Staged) Abort() {
	if s.done {
		return
	}
	s.done = true
	s.file.Close()
	os.Remove(s.path)
}

func (s *Staged) finish() error {
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync staging file: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close staging file: %w", err)
	}
	return nil
}

// PublishOnce moves the staged file to final without replacing an existing
// file. Returns created=false (and no error) if final already existed; the
// staged copy is then discarded.
func (s *Staged) PublishOnce(final string) (created bool, err error) {
	defer s.Abort()

	if err := s.finish(); err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return false, fmt.Errorf("create destination directory: %w", err)
	}

	err = renameNoReplace(s.path, final)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("publish %s: %w", final, err)
	}
	s.done = true
	return true, nil
}

// Publish moves the staged file to final, replacing any existing file.
func (s *Staged) Publish(final string) error {
	defer s.Abort()

	if err := s.finish(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}
	if err := os.Rename(s.path, final); err != nil {
		return fmt.Errorf("publish %s: %w", final, err)
	}
	s.done = true
	return nil
}

// WriteOnce writes data to final through the staging directory without
// replacing an existing file.
func WriteOnce(stagingDir, final string, data []byte) (created bool, err error) {
	s, err := Stage(stagingDir)
	if err != nil {
		return false, err
	}
	if _, err := s.Write(data); err != nil {
		s.Abort()
		return false, fmt.Errorf("write staging file: %w", err)
	}
	return s.PublishOnce(final)
}

// WriteAtomic writes data to final through the staging directory, replacing
// any existing file.
func WriteAtomic(stagingDir, final string, data []byte) error {
	s, err := Stage(stagingDir)
	if err != nil {
		return err
	}
	if _, err := s.Write(data); err != nil {
		s.Abort()
		return fmt.Errorf("write staging file: %w", err)
	}
	return s.Publish(final)
}

// CopyOnce streams r to final through the staging directory without
// replacing an existing file. The verify callback runs after all content is
// written and before the file is published; returning an error aborts.
func CopyOnce(stagingDir, final string, r io.Reader, verify func() error) (created bool, err error) {
	s, err := Stage(stagingDir)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(s, r); err != nil {
		s.Abort()
		return false, fmt.Errorf("write staging file: %w", err)
	}
	if verify != nil {
		if err := verify(); err != nil {
			s.Abort()
			return false, err
		}
	}
	return s.PublishOnce(final)
}

// linkNoReplace publishes by hard link, which fails if newpath exists, then
// removes the staging name.
func linkNoReplace(oldpath, newpath string) error {
	if err := os.Link(oldpath, newpath); err != nil {
		return err
	}
	return os.Remove(oldpath)
}
