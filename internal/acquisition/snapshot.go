package acquisition

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"
	"net/http"
	"time"
)

// SnapshotDevice reads still frames from an HTTP snapshot URL, such as the
// /shot.jpg endpoint of a phone webcam app
type SnapshotDevice struct {
	url    string
	client *http.Client
}

// NewSnapshotDevice creates a SnapshotDevice for url
func NewSnapshotDevice(url string) *SnapshotDevice {
	return &SnapshotDevice{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Open checks that the camera answers with an image
func (d *SnapshotDevice) Open(ctx context.Context) (Stream, error) {
	s := &snapshotStream{device: d}
	if _, err := s.Frame(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

type snapshotStream struct {
	device *SnapshotDevice
	closed bool
}

func (s *snapshotStream) Frame(ctx context.Context) (image.Image, error) {
	if s.closed {
		return nil, fmt.Errorf("stream closed")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.device.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := s.device.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling camera: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("camera error (status %d): %s", resp.StatusCode, string(body))
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	return img, nil
}

func (s *snapshotStream) Close() error {
	s.closed = true
	return nil
}
