package attendance

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// EncodeImage reads an uploaded attendance sheet photo and returns it as a
// self-contained data URL. maxBytes <= 0 disables the size check.
func EncodeImage(r io.Reader, maxBytes int64) (string, error) {
	if maxBytes > 0 {
		r = io.LimitReader(r, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read attachment: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return "", ErrImageTooLarge
	}
	mt := mimetype.Detect(data)
	// SVG can carry scripts; only raster formats are accepted.
	if !strings.HasPrefix(mt.String(), "image/") || mt.Is("image/svg+xml") {
		return "", fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
	}
	return "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// DecodeImage splits a data URL produced by EncodeImage into its content
// type and raw bytes.
func DecodeImage(dataURL string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, errors.New("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data url has no payload")
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, errors.New("data url is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data url: %w", err)
	}
	return contentType, data, nil
}
