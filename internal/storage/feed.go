package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"hostfeed/internal/models"
)

// FeedStore persists the single feed document. Writes replace the file
// atomically so readers see either the previous or the new feed.
type FeedStore struct {
	path   string
	rename func(oldpath, newpath string) error
}

// NewFeedStore prepares the data directory for the feed at path.
func NewFeedStore(path string) (*FeedStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}
	return &FeedStore{path: path, rename: os.Rename}, nil
}

// OpenFeedStore returns a read-side store without touching the filesystem.
func OpenFeedStore(path string) *FeedStore {
	return &FeedStore{path: path, rename: os.Rename}
}

// Path returns the canonical feed location.
func (s *FeedStore) Path() string {
	return s.path
}

// Write serialises feed to a sibling temp file and renames it over the
// canonical path. On any failure the temp file is removed and the
// existing feed is left untouched.
func (s *FeedStore) Write(feed models.Feed) (err error) {
	if feed.Items == nil {
		feed.Items = []models.StatusItem{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(feed); err != nil {
		return fmt.Errorf("encode feed: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp feed: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write temp feed: %w", err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod temp feed: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp feed: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp feed: %w", err)
	}
	if err = s.rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace feed file: %w", err)
	}
	syncDir(filepath.Dir(s.path))
	return nil
}

// Read loads the persisted feed. A feed that was never written reads as
// an empty feed with no update time.
func (s *FeedStore) Read() (models.Feed, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.EmptyFeed(), nil
		}
		return models.Feed{}, fmt.Errorf("read feed: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return models.EmptyFeed(), nil
	}

	var feed models.Feed
	if err := json.Unmarshal(data, &feed); err != nil {
		return models.Feed{}, fmt.Errorf("parse feed: %w", err)
	}
	if feed.Items == nil {
		feed.Items = []models.StatusItem{}
	}
	return feed, nil
}

// syncDir makes the rename durable where the platform allows it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
