// Package scanner runs the full scan of a cropped photo: recognition,
// image upload and saving the new record to the garage.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/carvision/pkg/cropper"
	"github.com/menta2k/carvision/pkg/garage"
	"github.com/menta2k/carvision/pkg/photo"
	"github.com/menta2k/carvision/pkg/processing"
	"github.com/menta2k/carvision/pkg/recognition"
	"github.com/menta2k/carvision/pkg/storage"
	"github.com/menta2k/carvision/pkg/types"
)

// ErrImageUnavailable is returned when there is no photo to scan
var ErrImageUnavailable = errors.New("image could not be loaded")

// DefaultOptions sends a 1024px JPEG to the model and stores a JPEG
func DefaultOptions() types.ProcessingOptions {
	return types.ProcessingOptions{
		SendFormat:  "jpg",
		SendSize:    1024,
		SendQuality: 85,
		Format:      "jpg",
		Quality:     90,
	}
}

// Scanner turns photos into stored car records
type Scanner struct {
	recognizer *recognition.Recognizer
	processor  *processing.Processor
	garage     *garage.Garage
	objects    storage.ObjectStore
	options    types.ProcessingOptions
	logger     logrus.FieldLogger

	now   func() time.Time
	newID func() string
}

// New creates a scanner writing records to g and images to objects
func New(recognizer *recognition.Recognizer, processor *processing.Processor, g *garage.Garage, objects storage.ObjectStore, options types.ProcessingOptions, logger logrus.FieldLogger) *Scanner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scanner{
		recognizer: recognizer,
		processor:  processor,
		garage:     g,
		objects:    objects,
		options:    options,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Scan recognises the car in ph, uploads the photo and adds the record to
// the garage. Recognition errors leave the garage untouched. A failed upload
// is logged and the record is saved without an image URL.
func (s *Scanner) Scan(ctx context.Context, ph *photo.Photo) (types.Car, error) {
	if ph == nil || ph.Pixels == nil {
		return types.Car{}, ErrImageUnavailable
	}

	imgB64, err := s.processor.PrepareImageForModel(ph, s.options.SendFormat, s.options.SendSize, s.options.SendQuality)
	if err != nil {
		return types.Car{}, fmt.Errorf("failed to prepare image: %w", err)
	}

	car, err := s.recognizer.Recognize(ctx, imgB64)
	if err != nil {
		return types.Car{}, err
	}

	car.ID = s.newID()
	car.CreatedAt = s.now().UTC()

	log := s.logger.WithFields(logrus.Fields{"id": car.ID, "car": car.Title()})
	car.ImageURL = s.upload(ctx, log, car.ID, ph)

	if err := s.garage.Add(ctx, car); err != nil {
		return car, err
	}

	log.Info("car scanned")
	return car, nil
}

func (s *Scanner) upload(ctx context.Context, log logrus.FieldLogger, id string, ph *photo.Photo) string {
	data, ext, err := s.processor.Encode(ph.Normalized(), s.options.Format, s.options.Quality, s.options.Lossless)
	if err != nil {
		log.WithError(err).Warn("failed to encode image for upload")
		return ""
	}

	url, err := s.objects.Put(ctx, storage.ObjectKey(id, ext), data)
	if err != nil {
		log.WithError(err).Warn("failed to upload image")
		return ""
	}
	return url
}

// UserMessage returns the text shown to the user for a scan error
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrImageUnavailable),
		errors.Is(err, photo.ErrNoPixels),
		errors.Is(err, cropper.ErrNoImage):
		return "Image could not be loaded"
	case errors.Is(err, recognition.ErrNoResponse):
		return "No response from the model"
	case errors.Is(err, recognition.ErrIncorrectInformation):
		return "Incorrect information provided"
	default:
		return "Error: " + err.Error()
	}
}
