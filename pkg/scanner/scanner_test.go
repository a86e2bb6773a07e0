package scanner

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/carvision/pkg/client"
	"github.com/menta2k/carvision/pkg/cropper"
	"github.com/menta2k/carvision/pkg/garage"
	"github.com/menta2k/carvision/pkg/photo"
	"github.com/menta2k/carvision/pkg/processing"
	"github.com/menta2k/carvision/pkg/recognition"
	"github.com/menta2k/carvision/pkg/storage"
)

const answer = "Porsche\n911 GT3 RS\n525 hp\n296 km/h\n3.2 s\n6\n3996 cc\nFlat-6\nNaturally aspirated\nShark Blue"

type fakeVision struct {
	text  string
	err   error
	calls int
	image string
}

func (f *fakeVision) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	f.calls++
	f.image = imgB64
	return f.text, f.err
}

type failingObjects struct {
	*storage.MemoryObjects
}

func (failingObjects) Put(ctx context.Context, key string, data []byte) (string, error) {
	return "", errors.New("bucket unavailable")
}

type fixture struct {
	scanner *Scanner
	vision  *fakeVision
	garage  *garage.Garage
	docs    *storage.MemoryDocuments
	objects *storage.MemoryObjects
	hook    *test.Hook
}

func newFixture(t *testing.T, text string, visionErr error) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	vision := &fakeVision{text: text, err: visionErr}
	docs := storage.NewMemoryDocuments()
	objects := storage.NewMemoryObjects()
	g := garage.New(docs, objects, garage.WithLogger(logger))

	s := New(recognition.NewRecognizer(vision, "test-model"), processing.NewProcessor(), g, objects, DefaultOptions(), logger)
	s.newID = func() string { return "11111111-2222-3333-4444-555555555555" }
	s.now = func() time.Time { return time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC) }

	return &fixture{scanner: s, vision: vision, garage: g, docs: docs, objects: objects, hook: hook}
}

func testPhoto() *photo.Photo {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), 80, uint8(y * 5), 255})
		}
	}
	return photo.New(img, photo.Up)
}

func TestScan(t *testing.T) {
	f := newFixture(t, answer, nil)
	ctx := context.Background()

	car, err := f.scanner.Scan(ctx, testPhoto())
	require.NoError(t, err)

	assert.Equal(t, "11111111-2222-3333-4444-555555555555", car.ID)
	assert.Equal(t, "Porsche", car.Brand)
	assert.Equal(t, "Shark Blue", car.ColorName)
	assert.Equal(t, "mem://cars/11111111-2222-3333-4444-555555555555.jpg", car.ImageURL)
	assert.False(t, car.IsFavorite)
	assert.Equal(t, 2024, car.CreatedAt.Year())
	assert.NotEmpty(t, f.vision.image)

	history := f.garage.History()
	require.Len(t, history, 1)
	assert.Equal(t, car, history[0])

	stored, err := f.docs.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, car.ImageURL, stored[0].ImageURL)

	data, err := f.objects.Get(ctx, car.ImageURL)
	require.NoError(t, err)
	assert.True(t, len(data) > 2 && data[0] == 0xFF && data[1] == 0xD8, "expected JPEG data")
}

func TestScanTooFewLinesCreatesNoRecord(t *testing.T) {
	f := newFixture(t, "Porsche\n911 GT3 RS\n525 hp", nil)

	_, err := f.scanner.Scan(context.Background(), testPhoto())
	assert.ErrorIs(t, err, recognition.ErrIncorrectInformation)
	assert.Equal(t, "Incorrect information provided", UserMessage(err))

	assert.Empty(t, f.garage.History())
	assert.Equal(t, 0, f.objects.Len())
	stored, _ := f.docs.List(context.Background())
	assert.Empty(t, stored)
}

func TestScanEmptyResponse(t *testing.T) {
	f := newFixture(t, "", client.ErrEmptyResponse)

	_, err := f.scanner.Scan(context.Background(), testPhoto())
	assert.ErrorIs(t, err, recognition.ErrNoResponse)
	assert.Equal(t, "No response from the model", UserMessage(err))
	assert.Empty(t, f.garage.History())
}

func TestScanWithoutPhoto(t *testing.T) {
	f := newFixture(t, answer, nil)

	_, err := f.scanner.Scan(context.Background(), nil)
	assert.ErrorIs(t, err, ErrImageUnavailable)
	assert.Equal(t, "Image could not be loaded", UserMessage(err))
	assert.Equal(t, 0, f.vision.calls)
}

func TestScanUploadFailureStillSavesRecord(t *testing.T) {
	f := newFixture(t, answer, nil)
	f.scanner.objects = failingObjects{storage.NewMemoryObjects()}

	car, err := f.scanner.Scan(context.Background(), testPhoto())
	require.NoError(t, err)
	assert.Empty(t, car.ImageURL)
	assert.Len(t, f.garage.History(), 1)

	var warned bool
	for _, entry := range f.hook.AllEntries() {
		if strings.Contains(entry.Message, "failed to upload image") {
			warned = true
		}
	}
	assert.True(t, warned, "upload failure should be logged")
}

func TestScanUsesUploadFormat(t *testing.T) {
	f := newFixture(t, answer, nil)
	f.scanner.options.Format = "png"

	car, err := f.scanner.Scan(context.Background(), testPhoto())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(car.ImageURL, ".png"), car.ImageURL)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, "Image could not be loaded", UserMessage(cropper.ErrNoImage))
	assert.Equal(t, "Image could not be loaded", UserMessage(photo.ErrNoPixels))
	assert.Equal(t, "Error: connection refused", UserMessage(errors.New("connection refused")))
}
