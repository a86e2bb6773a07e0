package client

import (
	"encoding/base64"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ImageMIME sniffs the media type of a base64 encoded image. Backends that
// embed images as data URLs need it; JPEG is assumed when the payload
// cannot be recognised.
func ImageMIME(imgB64 string) string {
	data, err := base64.StdEncoding.DecodeString(imgB64)
	if err != nil || len(data) == 0 {
		return "image/jpeg"
	}
	mt := mimetype.Detect(data).String()
	if !strings.HasPrefix(mt, "image/") {
		return "image/jpeg"
	}
	return mt
}
