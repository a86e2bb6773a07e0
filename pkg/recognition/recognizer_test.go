package recognition

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/menta2k/carvision/pkg/client"
)

const m4Answer = `BMW
M4 Competition
510 hp
290 km/h
3.9 s
6
2993 cc
Inline-6
Twin-turbo
Isle of Man Green Metallic`

type fakeClient struct {
	text   string
	err    error
	prompt string
	model  string
}

func (f *fakeClient) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	f.model = model
	f.prompt = prompt
	return f.text, f.err
}

func TestParseAttributes(t *testing.T) {
	car, err := ParseAttributes(m4Answer)
	if err != nil {
		t.Fatalf("ParseAttributes failed: %v", err)
	}

	checks := map[string][2]string{
		"brand":        {car.Brand, "BMW"},
		"model":        {car.Model, "M4 Competition"},
		"horsepower":   {car.Horsepower, "510 hp"},
		"speed":        {car.Speed, "290 km/h"},
		"acceleration": {car.Acceleration, "3.9 s"},
		"cylinders":    {car.Cylinders, "6"},
		"displacement": {car.Displacement, "2993 cc"},
		"architecture": {car.Architecture, "Inline-6"},
		"turbo":        {car.Turbo, "Twin-turbo"},
		"color":        {car.ColorName, "Isle of Man Green Metallic"},
	}
	for name, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s: expected %q, got %q", name, c[1], c[0])
		}
	}
}

func TestParseAttributesTooFewLines(t *testing.T) {
	lines := strings.Split(m4Answer, "\n")
	for n := 0; n < AttributeCount; n++ {
		_, err := ParseAttributes(strings.Join(lines[:n], "\n"))
		if n == 0 {
			if !errors.Is(err, ErrNoResponse) {
				t.Errorf("empty answer: expected ErrNoResponse, got %v", err)
			}
			continue
		}
		if !errors.Is(err, ErrIncorrectInformation) {
			t.Errorf("%d lines: expected ErrIncorrectInformation, got %v", n, err)
		}
	}
}

func TestParseAttributesSkipsBlankLines(t *testing.T) {
	answer := strings.ReplaceAll(m4Answer, "\n", "\r\n\n")
	car, err := ParseAttributes(answer)
	if err != nil {
		t.Fatalf("ParseAttributes failed: %v", err)
	}
	if car.Model != "M4 Competition" || car.ColorName != "Isle of Man Green Metallic" {
		t.Errorf("unexpected record %+v", car)
	}
}

func TestParseAttributesIgnoresExtraLines(t *testing.T) {
	car, err := ParseAttributes(m4Answer + "\nNote: values are estimates")
	if err != nil {
		t.Fatalf("ParseAttributes failed: %v", err)
	}
	if car.ColorName != "Isle of Man Green Metallic" {
		t.Errorf("unexpected color %q", car.ColorName)
	}
}

func TestParseAttributesStripsFences(t *testing.T) {
	car, err := ParseAttributes("```text\n" + m4Answer + "\n```")
	if err != nil {
		t.Fatalf("ParseAttributes failed: %v", err)
	}
	if car.Brand != "BMW" {
		t.Errorf("expected BMW, got %q", car.Brand)
	}
}

func TestRecognize(t *testing.T) {
	fc := &fakeClient{text: m4Answer}
	r := NewRecognizer(fc, "gemini-1.5-flash")

	car, err := r.Recognize(context.Background(), "aW1n")
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if car.Brand != "BMW" {
		t.Errorf("expected BMW, got %q", car.Brand)
	}
	if fc.prompt != DefaultPrompt || fc.model != "gemini-1.5-flash" {
		t.Errorf("unexpected request model=%q prompt=%q", fc.model, fc.prompt)
	}
}

func TestRecognizeEmptyResponse(t *testing.T) {
	r := NewRecognizer(&fakeClient{err: client.ErrEmptyResponse}, "m")
	if _, err := r.Recognize(context.Background(), ""); !errors.Is(err, ErrNoResponse) {
		t.Errorf("expected ErrNoResponse, got %v", err)
	}
}

func TestRecognizeClientError(t *testing.T) {
	boom := errors.New("connection refused")
	r := NewRecognizer(&fakeClient{err: boom}, "m")
	if _, err := r.Recognize(context.Background(), ""); !errors.Is(err, boom) {
		t.Errorf("expected wrapped client error, got %v", err)
	}
}

func TestWithPrompt(t *testing.T) {
	fc := &fakeClient{text: m4Answer}
	base := NewRecognizer(fc, "m")
	custom := base.WithPrompt("list the car details")

	if _, err := custom.Recognize(context.Background(), ""); err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if fc.prompt != "list the car details" {
		t.Errorf("custom prompt not used: %q", fc.prompt)
	}
	if base.prompt != DefaultPrompt {
		t.Error("WithPrompt modified the original recognizer")
	}
}
