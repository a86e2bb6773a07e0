package recognition

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/menta2k/carvision/pkg/client"
	"github.com/menta2k/carvision/pkg/types"
)

// DefaultPrompt asks for one attribute per line, in the order ParseAttributes
// reads them back
const DefaultPrompt = "Provide a complete description of the car including the following details:\n" +
	"Car brand.\n" +
	"Model.\n" +
	"Horsepower (hp).\n" +
	"Top speed in km/h.\n" +
	"0 to 100 km/h acceleration time in seconds.\n" +
	"Number of cylinders.\n" +
	"Engine displacement.\n" +
	"Engine Layouts like flat-6.\n" +
	"Turbo's architecture.\n" +
	"Color code like Boston Green Metallic\n" +
	"Give me each information with the unit in that order per line and nothing more"

// AttributeCount is the number of lines a usable answer must contain
const AttributeCount = 10

// Line positions of each attribute in the model answer
const (
	lineBrand = iota
	lineModel
	lineHorsepower
	lineSpeed
	lineAcceleration
	lineCylinders
	lineDisplacement
	lineArchitecture
	lineTurbo
	lineColor
)

var (
	// ErrNoResponse is returned when the model answered without text
	ErrNoResponse = errors.New("no response from the model")
	// ErrIncorrectInformation is returned when the answer has too few lines
	ErrIncorrectInformation = errors.New("incorrect information provided")
)

// Recognizer extracts car attributes from photos using a vision model
type Recognizer struct {
	client client.VisionClient
	model  string
	prompt string
}

// NewRecognizer creates a recognizer using the default prompt
func NewRecognizer(client client.VisionClient, model string) *Recognizer {
	return &Recognizer{client: client, model: model, prompt: DefaultPrompt}
}

// WithPrompt returns a copy of the recognizer using a custom prompt
func (r *Recognizer) WithPrompt(prompt string) *Recognizer {
	cp := *r
	cp.prompt = prompt
	return &cp
}

// Model returns the model name requests are sent to
func (r *Recognizer) Model() string {
	return r.model
}

// Recognize sends the image to the model and parses its answer. The
// returned record has no ID or image URL yet.
func (r *Recognizer) Recognize(ctx context.Context, imageB64 string) (types.Car, error) {
	text, err := r.client.SimpleQuery(ctx, r.model, r.prompt, imageB64)
	if errors.Is(err, client.ErrEmptyResponse) {
		return types.Car{}, ErrNoResponse
	}
	if err != nil {
		return types.Car{}, fmt.Errorf("vision query failed: %w", err)
	}
	return ParseAttributes(text)
}

// ParseAttributes reads the positional answer: one attribute per line, in
// DefaultPrompt order. Blank lines are skipped and lines past the tenth are
// ignored.
func ParseAttributes(text string) (types.Car, error) {
	text = stripFences(text)
	if text == "" {
		return types.Car{}, ErrNoResponse
	}

	lines := splitLines(text)
	if len(lines) < AttributeCount {
		return types.Car{}, ErrIncorrectInformation
	}

	return types.Car{
		Brand:        lines[lineBrand],
		Model:        lines[lineModel],
		Horsepower:   lines[lineHorsepower],
		Speed:        lines[lineSpeed],
		Acceleration: lines[lineAcceleration],
		Cylinders:    lines[lineCylinders],
		Displacement: lines[lineDisplacement],
		Architecture: lines[lineArchitecture],
		Turbo:        lines[lineTurbo],
		ColorName:    lines[lineColor],
	}, nil
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// stripFences removes a surrounding triple-backtick block if present
func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		} else {
			raw = strings.TrimPrefix(raw, "```")
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	return strings.TrimSpace(raw)
}
