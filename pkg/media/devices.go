package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"sync"

	// Decoders for still images served by ImageCamera.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// FileMicrophone plays back an audio file as the microphone feed. The file
// is read whole on Open, so a take always holds the complete recording.
type FileMicrophone struct {
	Path string
}

func (m FileMicrophone) Open(_ context.Context) (io.ReadCloser, error) {
	data, err := os.ReadFile(m.Path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// ImageCamera serves a decoded still image as every frame.
type ImageCamera struct {
	Path string
}

func (c ImageCamera) Open(_ context.Context) (VideoStream, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.Path, err)
	}
	return &stillStream{img: img}, nil
}

type stillStream struct {
	mu     sync.Mutex
	img    image.Image
	closed bool
}

func (s *stillStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrCameraClosed
	}
	return s.img, nil
}

func (s *stillStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
