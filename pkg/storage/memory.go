package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/menta2k/carvision/pkg/types"
)

// MemoryDocuments is an in-process DocumentStore
type MemoryDocuments struct {
	mu   sync.RWMutex
	docs map[string]types.Car
}

func NewMemoryDocuments(cars ...types.Car) *MemoryDocuments {
	s := &MemoryDocuments{docs: make(map[string]types.Car)}
	for _, car := range cars {
		s.docs[car.ID] = car
	}
	return s
}

func (s *MemoryDocuments) List(ctx context.Context) ([]types.Car, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cars := make([]types.Car, 0, len(s.docs))
	for _, car := range s.docs {
		cars = append(cars, car)
	}
	sort.Slice(cars, func(i, j int) bool {
		return cars[i].ID < cars[j].ID
	})
	return cars, nil
}

func (s *MemoryDocuments) Put(ctx context.Context, car types.Car) error {
	if err := validateID(car.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[car.ID] = car
	return nil
}

func (s *MemoryDocuments) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

// MemoryObjects is an in-process ObjectStore using mem:// URLs
type MemoryObjects struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryObjects() *MemoryObjects {
	return &MemoryObjects{objects: make(map[string][]byte)}
}

func (s *MemoryObjects) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return "mem://" + key, nil
}

func (s *MemoryObjects) Get(ctx context.Context, url string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[memKey(url)]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (s *MemoryObjects) Delete(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memKey(url)
	if _, ok := s.objects[key]; !ok {
		return ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

// Len reports how many objects are stored
func (s *MemoryObjects) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func memKey(url string) string {
	return strings.TrimPrefix(url, "mem://")
}
