package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/carvision/pkg/types"
)

// LocalDocuments stores one JSON file per car in a directory
type LocalDocuments struct {
	root   string
	logger logrus.FieldLogger
	mu     sync.RWMutex
}

// NewLocalDocuments creates the directory if needed
func NewLocalDocuments(root string, logger logrus.FieldLogger) (*LocalDocuments, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create document directory: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LocalDocuments{root: root, logger: logger}, nil
}

func (s *LocalDocuments) path(id string) string {
	return filepath.Join(s.root, id+".json")
}

// List returns every stored car. Unreadable files are skipped with a warning.
func (s *LocalDocuments) List(ctx context.Context) ([]types.Car, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var cars []types.Car
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.root, entry.Name()))
		if err != nil {
			s.logger.WithError(err).WithField("file", entry.Name()).Warn("skipping document")
			continue
		}
		var car types.Car
		if err := json.Unmarshal(data, &car); err != nil {
			s.logger.WithError(err).WithField("file", entry.Name()).Warn("skipping document: invalid JSON")
			continue
		}
		cars = append(cars, car)
	}

	sort.Slice(cars, func(i, j int) bool {
		return cars[i].ID < cars[j].ID
	})

	return cars, nil
}

// Put writes the whole record, replacing any previous version
func (s *LocalDocuments) Put(ctx context.Context, car types.Car) error {
	if err := validateID(car.ID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(car, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path(car.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(car.ID))
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *LocalDocuments) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// LocalObjects stores images as plain files and addresses them by file:// URL
type LocalObjects struct {
	root string
	mu   sync.RWMutex
}

// NewLocalObjects creates the directory if needed
func NewLocalObjects(root string) (*LocalObjects, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create object directory: %w", err)
	}
	return &LocalObjects{root: abs}, nil
}

// Put writes the object and returns its file:// URL
func (s *LocalObjects) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String(), nil
}

// Get reads the object behind a URL returned by Put
func (s *LocalObjects) Get(ctx context.Context, rawURL string) ([]byte, error) {
	path, err := s.resolve(rawURL)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

// Delete removes the object behind a URL returned by Put
func (s *LocalObjects) Delete(ctx context.Context, rawURL string) error {
	path, err := s.resolve(rawURL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *LocalObjects) resolve(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid object URL: %w", err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidKey, u.Scheme)
	}
	path := filepath.Clean(filepath.FromSlash(u.Path))
	if !strings.HasPrefix(path, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside %s", ErrInvalidKey, path, s.root)
	}
	return path, nil
}
