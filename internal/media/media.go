// Package media stores uploaded images on local disk or in MinIO.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// PathPrefix is the public URL prefix under which stored images are served.
const PathPrefix = "/uploads/images/"

// Name prefixes for generated object names.
const (
	ProfilePicturePrefix = "profile-pic-"
	TweetImagePrefix     = "tweet-"
)

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image too large")
	ErrNotFound        = errors.New("image not found")
	ErrInvalidKey      = errors.New("invalid image name")
)

// allowedTypes maps accepted extensions to their media type.
var allowedTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// sniffLen is how much of an upload is inspected to detect its real type.
const sniffLen = 3072

// Storage is a flat key/value blob store.
type Storage interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Image is an uploaded file as received from a multipart form.
type Image struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Library validates images and stores them under generated names.
type Library struct {
	storage  Storage
	maxBytes int64
}

// NewLibrary creates an image library on top of storage.
func NewLibrary(storage Storage, maxBytes int64) *Library {
	return &Library{storage: storage, maxBytes: maxBytes}
}

// MaxBytes is the upload size limit.
func (l *Library) MaxBytes() int64 {
	return l.maxBytes
}

// Save validates img and stores it as <prefix><uuid><ext>. It returns the
// public path of the stored image.
func (l *Library) Save(ctx context.Context, prefix string, img Image) (string, error) {
	ext, err := ValidateImage(img.Filename, img.ContentType, img.Size, l.maxBytes)
	if err != nil {
		return "", err
	}

	detected, body, err := Sniff(img.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if detected != allowedTypes[ext] {
		log.Warn().Str("filename", img.Filename).Str("detected", detected).Msg("Upload content does not match its extension")
		return "", ErrUnsupportedType
	}

	key := prefix + uuid.New().String() + ext
	if err := l.storage.Upload(ctx, key, body, img.Size, detected); err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	return PathPrefix + key, nil
}

// Open returns the stored image named key and its media type.
func (l *Library) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if err := checkKey(key); err != nil {
		return nil, "", err
	}
	contentType, ok := allowedTypes[strings.ToLower(filepath.Ext(key))]
	if !ok {
		return nil, "", ErrNotFound
	}
	rc, err := l.storage.Download(ctx, key)
	if err != nil {
		return nil, "", err
	}
	return rc, contentType, nil
}

// Remove deletes the image behind a public path. Paths outside PathPrefix are ignored.
func (l *Library) Remove(ctx context.Context, path string) error {
	key, ok := strings.CutPrefix(path, PathPrefix)
	if !ok || checkKey(key) != nil {
		return nil
	}
	return l.storage.Delete(ctx, key)
}

// ValidateImage checks the declared name, media type and size of an upload
// and returns its normalised extension.
func ValidateImage(filename, contentType string, size, maxBytes int64) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	want, ok := allowedTypes[ext]
	if !ok {
		return "", ErrUnsupportedType
	}
	declared := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if declared != want && !(declared == "image/jpg" && want == "image/jpeg") {
		return "", ErrUnsupportedType
	}
	if size > maxBytes {
		return "", ErrTooLarge
	}
	return ext, nil
}

// Sniff detects the media type from the start of r. The returned reader
// yields the full content, including the inspected header.
func Sniff(r io.Reader) (string, io.Reader, error) {
	header := make([]byte, sniffLen)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, err
	}
	header = header[:n]
	mtype := mimetype.Detect(header)
	return mtype.String(), io.MultiReader(bytes.NewReader(header), r), nil
}

func checkKey(key string) error {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return ErrInvalidKey
	}
	return nil
}
