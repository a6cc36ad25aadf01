package domain

import (
	"mime"
	"strings"
)

type MediaKind int

const (
	MediaUnsupported MediaKind = iota
	MediaPDF
	MediaImage
	MediaText
)

var mediaKinds = map[string]MediaKind{
	"application/pdf":    MediaPDF,
	"image/jpeg":         MediaImage,
	"image/jpg":          MediaImage,
	"image/png":          MediaImage,
	"image/tiff":         MediaImage,
	"image/bmp":          MediaImage,
	"image/webp":         MediaImage,
	"text/plain":         MediaText,
	"application/msword": MediaText,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": MediaText,
}

// NormalizeMediaType lowercases the type and strips parameters such as charset.
func NormalizeMediaType(mediaType string) string {
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		return parsed
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func ClassifyMediaType(mediaType string) MediaKind {
	return mediaKinds[NormalizeMediaType(mediaType)]
}

func SupportedMediaType(mediaType string) bool {
	return ClassifyMediaType(mediaType) != MediaUnsupported
}
