package client

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a backend answers without any text
var ErrEmptyResponse = errors.New("empty response from vision model")

// VisionClient sends an image together with a natural-language instruction
// to a vision model and returns the model's free-text answer
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
}
