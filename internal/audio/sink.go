package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"babil/internal/models"
)

// ErrNoArtifact is returned when a page has no rendered audio yet.
var ErrNoArtifact = errors.New("no audio artifact")

const artifactExt = ".wav"

// FileSink stores one artifact per page name under Dir.
type FileSink struct {
	Dir string
}

// NewFileSink creates a sink rooted at dir. The directory is created lazily.
func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir}
}

// Path returns where the artifact for pageName lives.
func (s *FileSink) Path(pageName string) string {
	return filepath.Join(s.Dir, pageName+artifactExt)
}

// ensureDir creates the sink directory. Losing a creation race to another
// writer is success.
func (s *FileSink) ensureDir() error {
	err := os.MkdirAll(s.Dir, 0o755)
	if err == nil || errors.Is(err, os.ErrExist) {
		return nil
	}
	return fmt.Errorf("create audio directory: %w", err)
}

// TempPath reserves a file next to the final artifact so the rename that
// publishes it stays on one filesystem.
func (s *FileSink) TempPath(pageName string) (string, error) {
	if err := s.ensureDir(); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(s.Dir, "."+pageName+"-*"+artifactExt)
	if err != nil {
		return "", fmt.Errorf("reserve temp artifact: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// Publish atomically replaces the artifact for pageName with tmp.
func (s *FileSink) Publish(tmp, pageName string) (models.Artifact, error) {
	dst := s.Path(pageName)
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return models.Artifact{}, fmt.Errorf("publish artifact: %w", err)
	}
	return s.Stat(pageName)
}

// Stat describes the artifact for pageName.
func (s *FileSink) Stat(pageName string) (models.Artifact, error) {
	info, err := os.Stat(s.Path(pageName))
	if errors.Is(err, os.ErrNotExist) {
		return models.Artifact{}, ErrNoArtifact
	}
	if err != nil {
		return models.Artifact{}, err
	}
	return models.Artifact{
		PageName:  pageName,
		Path:      s.Path(pageName),
		Size:      info.Size(),
		UpdatedAt: info.ModTime(),
	}, nil
}

// Open returns the artifact bytes for pageName.
func (s *FileSink) Open(pageName string) (io.ReadSeekCloser, time.Time, error) {
	f, err := os.Open(s.Path(pageName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, time.Time{}, ErrNoArtifact
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, time.Time{}, err
	}
	return f, info.ModTime(), nil
}
