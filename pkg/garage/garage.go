// Package garage keeps the in-memory history of scanned cars in sync with
// the document and object stores and notifies subscribers about changes.
package garage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"

	"github.com/menta2k/carvision/pkg/photo"
	"github.com/menta2k/carvision/pkg/processing"
	"github.com/menta2k/carvision/pkg/storage"
	"github.com/menta2k/carvision/pkg/types"
)

var (
	// ErrCarNotFound is returned when an id is not in the history
	ErrCarNotFound = errors.New("car not found")
	// ErrNoImage is returned when a record has no stored image
	ErrNoImage = errors.New("car has no image")
)

// EventKind names the change an Event reports
type EventKind string

const (
	EventListening EventKind = "listening"
	EventLoaded    EventKind = "loaded"
	EventAdded     EventKind = "added"
	EventUpdated   EventKind = "updated"
	EventDeleted   EventKind = "deleted"
)

// Event is delivered to subscribers after a change has been applied
type Event struct {
	Kind EventKind
	// Car is the affected record, zero for listening and loaded
	Car types.Car
	// Count is the history size after the change
	Count int
}

// Decoder turns downloaded image bytes back into a photo
type Decoder interface {
	DecodePhoto(data []byte) (*photo.Photo, error)
}

// Option configures a Garage
type Option func(*Garage)

// WithLogger sets the logger used for store failures
func WithLogger(logger logrus.FieldLogger) Option {
	return func(g *Garage) {
		g.logger = logger
	}
}

// WithDecoder sets the decoder used by Image
func WithDecoder(decoder Decoder) Option {
	return func(g *Garage) {
		g.decoder = decoder
	}
}

// Garage is the single owner of the car history. It is safe for concurrent
// use; mutations are applied one at a time.
type Garage struct {
	docs    storage.DocumentStore
	objects storage.ObjectStore
	decoder Decoder
	logger  logrus.FieldLogger

	writeMu sync.Mutex

	mu        sync.RWMutex
	history   []types.Car
	listening bool
	subs      map[int]func(Event)
	nextSub   int
}

// New creates an empty garage backed by the given stores
func New(docs storage.DocumentStore, objects storage.ObjectStore, opts ...Option) *Garage {
	g := &Garage{
		docs:    docs,
		objects: objects,
		decoder: processing.NewProcessor(),
		logger:  logrus.StandardLogger(),
		subs:    make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Subscribe registers fn for every future event and returns a function that
// removes the subscription. fn runs on the goroutine that made the change.
func (g *Garage) Subscribe(fn func(Event)) (cancel func()) {
	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.subs, id)
		g.mu.Unlock()
	}
}

func (g *Garage) emit(events ...Event) {
	if len(events) == 0 {
		return
	}

	g.mu.RLock()
	subs := make([]func(Event), 0, len(g.subs))
	for _, fn := range g.subs {
		subs = append(subs, fn)
	}
	g.mu.RUnlock()

	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}

// Listening reports whether Load has been called
func (g *Garage) Listening() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.listening
}

// Load replaces the history with the stored documents, newest first. On
// failure the current history is kept.
func (g *Garage) Load(ctx context.Context) error {
	events, err := g.load(ctx)
	g.emit(events...)
	return err
}

func (g *Garage) load(ctx context.Context) ([]Event, error) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	var events []Event

	g.mu.Lock()
	if !g.listening {
		g.listening = true
		events = append(events, Event{Kind: EventListening, Count: len(g.history)})
	}
	g.mu.Unlock()

	cars, err := g.docs.List(ctx)
	if err != nil {
		g.logger.WithError(err).Error("failed to fetch cars")
		return events, fmt.Errorf("failed to fetch cars: %w", err)
	}
	sortNewestFirst(cars)

	g.mu.Lock()
	g.history = cars
	g.mu.Unlock()

	g.logger.WithField("count", len(cars)).Debug("history loaded")
	return append(events, Event{Kind: EventLoaded, Count: len(cars)}), nil
}

// Add puts the car at the front of the history and writes its document. A
// failed write is logged and returned; the local history keeps the car.
func (g *Garage) Add(ctx context.Context, car types.Car) error {
	events, err := g.add(ctx, car)
	g.emit(events...)
	return err
}

func (g *Garage) add(ctx context.Context, car types.Car) ([]Event, error) {
	if car.ID == "" {
		return nil, fmt.Errorf("car has no id")
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	g.mu.Lock()
	g.history = append([]types.Car{car}, g.history...)
	count := len(g.history)
	g.mu.Unlock()

	events := []Event{{Kind: EventAdded, Car: car, Count: count}}

	if err := g.docs.Put(ctx, car); err != nil {
		g.logger.WithError(err).WithField("id", car.ID).Error("failed to save car")
		return events, fmt.Errorf("failed to save car: %w", err)
	}
	return events, nil
}

// SetFavorite flips the favorite flag and rewrites the whole document
func (g *Garage) SetFavorite(ctx context.Context, id string, favorite bool) error {
	events, err := g.setFavorite(ctx, id, favorite)
	g.emit(events...)
	return err
}

func (g *Garage) setFavorite(ctx context.Context, id string, favorite bool) ([]Event, error) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	g.mu.Lock()
	i := g.indexOf(id)
	if i < 0 {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrCarNotFound, id)
	}
	g.history[i].IsFavorite = favorite
	car := g.history[i]
	count := len(g.history)
	g.mu.Unlock()

	events := []Event{{Kind: EventUpdated, Car: car, Count: count}}

	if err := g.docs.Put(ctx, car); err != nil {
		g.logger.WithError(err).WithField("id", id).Error("failed to update car")
		return events, fmt.Errorf("failed to update car: %w", err)
	}
	return events, nil
}

// Delete removes the car's image, then its document. The image delete is
// best effort. The car leaves the history only once the document is gone.
func (g *Garage) Delete(ctx context.Context, id string) error {
	events, err := g.delete(ctx, id)
	g.emit(events...)
	return err
}

func (g *Garage) delete(ctx context.Context, id string) ([]Event, error) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	car, ok := g.Find(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCarNotFound, id)
	}

	log := g.logger.WithField("id", id)

	if car.ImageURL != "" {
		if err := g.objects.Delete(ctx, car.ImageURL); err != nil {
			log.WithError(err).Warn("failed to delete car image")
		}
	}

	if err := g.docs.Delete(ctx, id); err != nil {
		log.WithError(err).Error("failed to delete car")
		return nil, fmt.Errorf("failed to delete car: %w", err)
	}

	g.mu.Lock()
	if i := g.indexOf(id); i >= 0 {
		g.history = append(g.history[:i], g.history[i+1:]...)
	}
	count := len(g.history)
	g.mu.Unlock()

	return []Event{{Kind: EventDeleted, Car: car, Count: count}}, nil
}

// History returns a copy of all cars, newest first
func (g *Garage) History() []types.Car {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]types.Car(nil), g.history...)
}

// Favorites returns the favorite cars in history order
func (g *Garage) Favorites() []types.Car {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var favs []types.Car
	for _, car := range g.history {
		if car.IsFavorite {
			favs = append(favs, car)
		}
	}
	return favs
}

// Find looks a car up by id
func (g *Garage) Find(id string) (types.Car, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if i := g.indexOf(id); i >= 0 {
		return g.history[i], true
	}
	return types.Car{}, false
}

// Image downloads and decodes the stored photo of a car
func (g *Garage) Image(ctx context.Context, car types.Car) (*photo.Photo, error) {
	if car.ImageURL == "" {
		return nil, ErrNoImage
	}
	data, err := g.objects.Get(ctx, car.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	ph, err := g.decoder.DecodePhoto(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return ph, nil
}

// indexOf must be called with mu held
func (g *Garage) indexOf(id string) int {
	for i := range g.history {
		if g.history[i].ID == id {
			return i
		}
	}
	return -1
}

// Search keeps the cars whose brand or model contains query, ignoring case.
// An empty query returns cars unchanged.
func Search(cars []types.Car, query string) []types.Car {
	if query == "" {
		return cars
	}

	fold := cases.Fold()
	q := fold.String(query)

	var found []types.Car
	for _, car := range cars {
		if strings.Contains(fold.String(car.Brand), q) || strings.Contains(fold.String(car.Model), q) {
			found = append(found, car)
		}
	}
	return found
}

func sortNewestFirst(cars []types.Car) {
	sort.SliceStable(cars, func(i, j int) bool {
		return cars[i].CreatedAt.After(cars[j].CreatedAt)
	})
}
