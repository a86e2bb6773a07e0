// Package carvision identifies cars in photos and keeps a history of them.
//
// A photo is framed through a fixed crop window (pkg/cropper), sent to a
// vision model that answers with one attribute per line (pkg/recognition),
// and the resulting record is stored together with the cropped image
// (pkg/garage, pkg/storage).
//
// Basic usage:
//
//	cfg, _ := config.Load("")
//	app, err := carvision.Open(ctx, cfg, logrus.StandardLogger())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer app.Close()
//
//	car, err := app.ScanFile(ctx, "photo.jpg", cropper.State{Scale: 1.5})
//	if err != nil {
//		fmt.Println(scanner.UserMessage(err))
//		return
//	}
//	fmt.Println(car.Title())
package carvision

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/carvision/internal/config"
	"github.com/menta2k/carvision/pkg/client"
	"github.com/menta2k/carvision/pkg/cropper"
	"github.com/menta2k/carvision/pkg/garage"
	"github.com/menta2k/carvision/pkg/gemini"
	"github.com/menta2k/carvision/pkg/llamacpp"
	"github.com/menta2k/carvision/pkg/ollama"
	"github.com/menta2k/carvision/pkg/photo"
	"github.com/menta2k/carvision/pkg/processing"
	"github.com/menta2k/carvision/pkg/recognition"
	"github.com/menta2k/carvision/pkg/scanner"
	"github.com/menta2k/carvision/pkg/storage"
	"github.com/menta2k/carvision/pkg/types"
)

// Version of the carvision library
const Version = "1.0.0"

// Default server URLs per vision backend
const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultLlamaCppURL = "http://localhost:8080"
)

// App wires the crop, recognition and storage components together
type App struct {
	Config      *config.Config
	Logger      logrus.FieldLogger
	Processor   *processing.Processor
	Transformer *cropper.Transformer
	Recognizer  *recognition.Recognizer
	Garage      *garage.Garage
	Scanner     *scanner.Scanner

	closers []func() error
}

// Open builds the vision client and stores named by cfg and assembles an App
func Open(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*App, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	vision, err := NewVisionClient(cfg.Vision)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}

	var closers []func() error

	docs, closeDocs, err := OpenDocuments(ctx, cfg.Documents, logger)
	if err != nil {
		return nil, err
	}
	if closeDocs != nil {
		closers = append(closers, closeDocs)
	}

	objects, err := OpenObjects(cfg.Objects)
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}

	app := NewWithStores(cfg, logger, vision, docs, objects)
	app.closers = closers
	return app, nil
}

// NewWithStores assembles an App around already constructed ports
func NewWithStores(cfg *config.Config, logger logrus.FieldLogger, vision client.VisionClient, docs storage.DocumentStore, objects storage.ObjectStore) *App {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	processor := processing.NewProcessor()
	processor.SetMinImageSize(cfg.Crop.MinImageSize)

	recognizer := recognition.NewRecognizer(vision, cfg.Vision.Model)
	if cfg.Vision.Prompt != "" {
		recognizer = recognizer.WithPrompt(cfg.Vision.Prompt)
	}

	g := garage.New(docs, objects,
		garage.WithLogger(logger.WithField("component", "garage")),
		garage.WithDecoder(processor),
	)

	return &App{
		Config:      cfg,
		Logger:      logger,
		Processor:   processor,
		Transformer: cropper.NewWithConfig(cfg.CropperConfig()),
		Recognizer:  recognizer,
		Garage:      g,
		Scanner: scanner.New(recognizer, processor, g, objects, cfg.ProcessingOptions(),
			logger.WithField("component", "scanner")),
	}
}

// NewVisionClient creates the client for the configured backend
func NewVisionClient(cfg config.VisionConfig) (client.VisionClient, error) {
	var (
		vision client.VisionClient
		err    error
	)

	switch cfg.Backend {
	case "ollama":
		url := cfg.URL
		if url == "" {
			url = DefaultOllamaURL
		}
		var c *ollama.Client
		if c, err = ollama.NewClient(url); err == nil {
			vision = c
		}
	case "llamacpp":
		url := cfg.URL
		if url == "" {
			url = DefaultLlamaCppURL
		}
		var c *llamacpp.Client
		if c, err = llamacpp.NewClient(url); err == nil {
			vision = c
		}
	case "gemini":
		var c *gemini.Client
		if c, err = gemini.NewClient(cfg.URL, cfg.APIKey); err == nil {
			vision = c
		}
	default:
		err = fmt.Errorf("unknown backend: %s (use 'ollama', 'llamacpp' or 'gemini')", cfg.Backend)
	}

	if err != nil {
		return nil, err
	}
	return vision, nil
}

// OpenDocuments creates the configured document store. The returned close
// function is nil when there is nothing to release.
func OpenDocuments(ctx context.Context, cfg config.DocumentsConfig, logger logrus.FieldLogger) (storage.DocumentStore, func() error, error) {
	switch cfg.Driver {
	case "local":
		docs, err := storage.NewLocalDocuments(cfg.Dir, logger)
		if err != nil {
			return nil, nil, err
		}
		return docs, nil, nil
	case "redis":
		rdb, err := storage.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisDocuments(rdb, cfg.RedisKey, logger), rdb.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown document driver: %s", cfg.Driver)
	}
}

// OpenObjects creates the configured object store
func OpenObjects(cfg config.ObjectsConfig) (storage.ObjectStore, error) {
	switch cfg.Driver {
	case "local":
		objects, err := storage.NewLocalObjects(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return objects, nil
	case "s3":
		objects, err := storage.OpenS3Objects(cfg.S3)
		if err != nil {
			return nil, err
		}
		return objects, nil
	default:
		return nil, fmt.Errorf("unknown object driver: %s", cfg.Driver)
	}
}

// Close releases store connections
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// LoadPhoto reads a photo from a file path or URL
func (a *App) LoadPhoto(source string) (*photo.Photo, error) {
	return a.Processor.LoadImageSmart(source)
}

// Crop cuts the crop window out of ph at the given gesture state
func (a *App) Crop(ph *photo.Photo, state cropper.State) (*photo.Photo, cropper.Region, error) {
	return a.Transformer.Crop(ph, state)
}

// ScanFile loads source, crops it at state and scans the result. A photo
// that cannot be loaded reports scanner.ErrImageUnavailable.
func (a *App) ScanFile(ctx context.Context, source string, state cropper.State) (types.Car, error) {
	ph, err := a.LoadPhoto(source)
	if err != nil {
		a.Logger.WithError(err).WithField("source", source).Warn("failed to load photo")
		return types.Car{}, fmt.Errorf("%w: %v", scanner.ErrImageUnavailable, err)
	}

	cropped, _, err := a.Crop(ph, state)
	if err != nil {
		return types.Car{}, fmt.Errorf("%w: %v", scanner.ErrImageUnavailable, err)
	}

	return a.Scanner.Scan(ctx, cropped)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
