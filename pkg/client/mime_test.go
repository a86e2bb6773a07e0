package client

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"testing"
)

func TestImageMIME(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	if got := ImageMIME(base64.StdEncoding.EncodeToString(buf.Bytes())); got != "image/png" {
		t.Errorf("expected image/png, got %s", got)
	}
	if got := ImageMIME("%%%"); got != "image/jpeg" {
		t.Errorf("expected fallback image/jpeg, got %s", got)
	}
	if got := ImageMIME(base64.StdEncoding.EncodeToString([]byte("plain text"))); got != "image/jpeg" {
		t.Errorf("expected fallback image/jpeg for text, got %s", got)
	}
}
