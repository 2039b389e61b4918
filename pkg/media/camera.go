package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/tinyland-inc/picochat/pkg/logger"
)

// VideoStream is a live camera feed. Close releases the device.
type VideoStream interface {
	Frame() (image.Image, error)
	Close() error
}

type Camera interface {
	Open(ctx context.Context) (VideoStream, error)
}

// ErrCameraClosed is returned by a session whose stream was already released.
var ErrCameraClosed = errors.New("camera closed")

type CameraOption func(*CameraSession)

// WithMaxWidth downscales captured frames wider than w. Zero keeps the
// native width.
func WithMaxWidth(w int) CameraOption {
	return func(s *CameraSession) { s.maxWidth = w }
}

func WithQuality(q int) CameraOption {
	return func(s *CameraSession) {
		if q > 0 && q <= 100 {
			s.quality = q
		}
	}
}

func WithClock(now func() time.Time) CameraOption {
	return func(s *CameraSession) { s.now = now }
}

// CameraSession owns one acquired stream from preview until capture or close.
type CameraSession struct {
	maxWidth int
	quality  int
	now      func() time.Time

	mu     sync.Mutex
	stream VideoStream
}

// OpenCamera acquires the camera for a preview.
func OpenCamera(ctx context.Context, cam Camera, opts ...CameraOption) (*CameraSession, error) {
	s := &CameraSession{
		quality: jpeg.DefaultQuality,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	stream, err := cam.Open(ctx)
	if err != nil {
		logger.WarnCF("media", "Camera unavailable", map[string]any{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("open camera: %w", err)
	}
	s.stream = stream
	return s, nil
}

func (s *CameraSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// Preview returns the current frame without releasing the stream.
func (s *CameraSession) Preview() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil, ErrCameraClosed
	}
	return s.stream.Frame()
}

// Capture snapshots the current frame into a JPEG blob and releases the
// stream, on failure too.
func (s *CameraSession) Capture() (Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return Blob{}, ErrCameraClosed
	}

	frame, err := s.stream.Frame()
	s.releaseLocked()
	if err != nil {
		return Blob{}, fmt.Errorf("capture frame: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaleToWidth(frame, s.maxWidth), &jpeg.Options{Quality: s.quality}); err != nil {
		return Blob{}, fmt.Errorf("encode frame: %w", err)
	}

	return Blob{
		Name: fmt.Sprintf("camera_capture_%d.jpg", s.now().UnixMilli()),
		MIME: "image/jpeg",
		Data: buf.Bytes(),
	}, nil
}

// Close releases the stream. Safe to call more than once.
func (s *CameraSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked()
}

func (s *CameraSession) releaseLocked() error {
	if s.stream == nil {
		return nil
	}
	err := s.stream.Close()
	s.stream = nil
	if err != nil {
		logger.DebugCF("media", "Closing camera stream", map[string]any{"error": err.Error()})
	}
	return err
}

func scaleToWidth(src image.Image, maxWidth int) image.Image {
	b := src.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return src
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
