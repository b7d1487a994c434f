package acquisition

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// MaxImageSize is the largest image accepted into the queue
const MaxImageSize = 10 << 20

var (
	// ErrUnsupportedFormat is returned for files that are not bill images
	ErrUnsupportedFormat = errors.New("unsupported format. Supported formats: JPG, PNG, WEBP, BMP, HEIC, PDF")
	// ErrImageTooLarge is returned for files over MaxImageSize
	ErrImageTooLarge = errors.New("file is too large. Maximum size is 10MB")
	// ErrEmptyImage is returned for zero-length files
	ErrEmptyImage = errors.New("file is empty")
)

// Image is a binary image resource waiting to be sent for extraction
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

var supportedTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"image/bmp":       true,
	"image/heic":      true,
	"image/heif":      true,
	"application/pdf": true,
}

// NewImage validates an uploaded or captured file and returns it as an Image
func NewImage(name, contentType string, data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, ErrEmptyImage
	}
	if len(data) > MaxImageSize {
		return Image{}, ErrImageTooLarge
	}
	contentType = ContentTypeFor(name, contentType)
	if !supportedTypes[contentType] {
		return Image{}, fmt.Errorf("%w (got %s)", ErrUnsupportedFormat, contentType)
	}
	return Image{
		Name:        sanitizeFilename(name),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// ContentTypeFor normalises a declared content type, falling back to the file extension
func ContentTypeFor(name, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	switch declared {
	case "", "application/octet-stream":
	case "image/jpg":
		return "image/jpeg"
	default:
		return declared
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// LoadFile reads an image from disk
func LoadFile(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("reading file: %w", err)
	}
	img, err := NewImage(filepath.Base(path), "", data)
	if err != nil {
		return Image{}, fmt.Errorf("loading %s: %w", path, err)
	}
	return img, nil
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeChars.ReplaceAllString(base, "")
	base = spaceRuns.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	// phone cameras produce very long names
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "bill"
	}
	return base + ext
}
