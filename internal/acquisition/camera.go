package acquisition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"
)

// CaptureQuality is the JPEG quality used for captured photos
const CaptureQuality = 80

var (
	// ErrAcquisitionDenied is returned when the camera cannot be opened
	ErrAcquisitionDenied = errors.New("camera access denied or not available")
	// ErrCameraInactive is returned when capturing without a started camera
	ErrCameraInactive = errors.New("camera is not started")
)

// Device opens a live camera stream
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open camera stream. Close releases the device.
type Stream interface {
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// Camera owns at most one open Stream of a Device
type Camera struct {
	mu     sync.Mutex
	device Device
	stream Stream
	now    func() time.Time
}

// NewCamera creates a Camera for device. A nil device makes every Start fail
// with ErrAcquisitionDenied.
func NewCamera(device Device) *Camera {
	return &Camera{device: device, now: time.Now}
}

// Start opens the stream unless one is already open
func (c *Camera) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return nil
	}
	if c.device == nil {
		return ErrAcquisitionDenied
	}
	stream, err := c.device.Open(ctx)
	if err != nil {
		slog.Warn("Camera unavailable", "error", err)
		return fmt.Errorf("%w: %v", ErrAcquisitionDenied, err)
	}
	c.stream = stream
	return nil
}

// Active reports whether a stream is open
func (c *Camera) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

// Capture grabs one frame as a JPEG photo and stops the camera.
// If grabbing or encoding fails the stream stays open so the user can retry.
func (c *Camera) Capture(ctx context.Context) (Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return Image{}, ErrCameraInactive
	}
	frame, err := c.stream.Frame(ctx)
	if err != nil {
		return Image{}, fmt.Errorf("grabbing frame: %w", err)
	}
	photo, err := EncodeCapture(frame, c.now())
	if err != nil {
		return Image{}, err
	}
	c.closeLocked()
	return photo, nil
}

// Stop releases the stream; it is safe to call when nothing is open
func (c *Camera) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Camera) closeLocked() {
	if c.stream == nil {
		return
	}
	if err := c.stream.Close(); err != nil {
		slog.Warn("Failed to close camera stream", "error", err)
	}
	c.stream = nil
}

// EncodeCapture turns a frame into the photo that is queued for extraction
func EncodeCapture(frame image.Image, now time.Time) (Image, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: CaptureQuality}); err != nil {
		return Image{}, fmt.Errorf("encoding JPEG: %w", err)
	}
	return Image{
		Name:        fmt.Sprintf("bill-photo-%d.jpg", now.UnixMilli()),
		ContentType: "image/jpeg",
		Data:        buf.Bytes(),
	}, nil
}
