package model

import (
	"crypto/sha256"
	"encoding/hex"
)

type ImageSourceKind string

const (
	ImageSourceGallery = ImageSourceKind("gallery")
	ImageSourceCamera  = ImageSourceKind("camera")
	ImageSourceUpload  = ImageSourceKind("upload")
)

type ImagePayload struct {
	Data     []byte
	MIMEType string
	Source   ImageSourceKind
}

// Digest identifies the image content, used as the label cache key.
func (p ImagePayload) Digest() string {
	sum := sha256.Sum256(p.Data)
	return hex.EncodeToString(sum[:])
}
