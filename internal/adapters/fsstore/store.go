// Package fsstore is the artifact store: a directory per task holding the
// converted markdown plus an assets/ sub-namespace of extracted images.
package fsstore

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"pdf2md/internal/core/domain"
	"pdf2md/internal/core/ports"
)

const (
	markdownFile = "output.md"
	assetsDir    = "assets"

	// bundleAssetDir is the relative path scheme inside a bundle.
	bundleAssetDir = "images"
)

// imageExtensions is the allow-list for files included in a bundle.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// assetRefPattern matches markdown image references in the externally
// addressable form ![alt](/assets/{taskID}/{filename}).
var assetRefPattern = regexp.MustCompile(`!\[([^\]]*)\]\(/assets/[^/)]+/([^)]+)\)`)

type Store struct {
	logger *slog.Logger
	root   string
}

var _ ports.ArtifactStore = (*Store)(nil)

// New creates a store rooted at dir, creating the directory if needed.
func New(logger *slog.Logger, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", dir, err)
	}
	return &Store{logger: logger, root: dir}, nil
}

// TaskDir returns the namespace directory for a task. It does not create it.
func (s *Store) TaskDir(id domain.TaskID) string {
	return filepath.Join(s.root, string(id))
}

// EnsureTaskDir idempotently creates the task namespace and its assets
// sub-namespace.
func (s *Store) EnsureTaskDir(id domain.TaskID) (string, error) {
	dir := s.TaskDir(id)
	if err := os.MkdirAll(filepath.Join(dir, assetsDir), 0o755); err != nil {
		return "", fmt.Errorf("failed to create task dir for %s: %w", id, err)
	}
	return dir, nil
}

func (s *Store) WriteMarkdown(id domain.TaskID, content string) error {
	if _, err := s.EnsureTaskDir(id); err != nil {
		return err
	}
	path := filepath.Join(s.TaskDir(id), markdownFile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write markdown for %s: %w", id, err)
	}
	return nil
}

func (s *Store) ReadMarkdown(id domain.TaskID) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.TaskDir(id), markdownFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", domain.ErrNotReady
		}
		return "", fmt.Errorf("failed to read markdown for %s: %w", id, err)
	}
	return string(data), nil
}

func (s *Store) HasMarkdown(id domain.TaskID) bool {
	_, err := os.Stat(filepath.Join(s.TaskDir(id), markdownFile))
	return err == nil
}

func (s *Store) WriteAsset(id domain.TaskID, filename string, data []byte) error {
	if !safeFilename(filename) {
		return fmt.Errorf("asset name %q: invalid filename", filename)
	}
	if _, err := s.EnsureTaskDir(id); err != nil {
		return err
	}
	path := filepath.Join(s.TaskDir(id), assetsDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write asset %s for %s: %w", filename, id, err)
	}
	return nil
}

// AssetPath resolves an asset filename to an absolute path. Both the task id
// and the filename come straight from the URL, so either one carrying a path
// separator or a parent-directory segment is rejected before any filesystem
// lookup and the task namespace cannot be escaped.
func (s *Store) AssetPath(id domain.TaskID, filename string) (string, error) {
	if !safeFilename(string(id)) || !safeFilename(filename) {
		return "", domain.ErrTaskNotFound
	}
	path := filepath.Join(s.TaskDir(id), assetsDir, filename)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", domain.ErrTaskNotFound
		}
		return "", fmt.Errorf("failed to stat asset %s for %s: %w", filename, id, err)
	}
	return path, nil
}

// Bundle produces a zip archive of the task's markdown and image assets.
// Asset references in the markdown are rewritten from the external
// /assets/{taskID}/{filename} scheme to the local images/{filename} scheme,
// and only allow-listed image files are included.
func (s *Store) Bundle(id domain.TaskID) (io.Reader, error) {
	content, err := s.ReadMarkdown(id)
	if err != nil {
		return nil, err
	}

	content = assetRefPattern.ReplaceAllString(content, "![$1]("+bundleAssetDir+"/$2)")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create(markdownFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create bundle entry: %w", err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		return nil, fmt.Errorf("failed to write bundle markdown: %w", err)
	}

	entries, err := os.ReadDir(filepath.Join(s.TaskDir(id), assetsDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to list assets for %s: %w", id, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.TaskDir(id), assetsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read asset %s: %w", entry.Name(), err)
		}
		w, err := zw.Create(bundleAssetDir + "/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to create bundle entry: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write bundle asset %s: %w", entry.Name(), err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize bundle: %w", err)
	}
	return &buf, nil
}

// DeleteTask removes the entire task namespace. Returns whether anything
// existed to delete.
func (s *Store) DeleteTask(id domain.TaskID) (bool, error) {
	dir := s.TaskDir(id)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat task dir for %s: %w", id, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("failed to delete task dir for %s: %w", id, err)
	}
	s.logger.Info("task artifacts deleted", "task_id", id)
	return true, nil
}

// safeFilename rejects anything that could escape the assets sub-namespace.
func safeFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	return true
}
