package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/tinyland-inc/picochat/pkg/logger"
)

// Microphone hands out an audio stream. Closing the stream releases the device.
type Microphone interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

type RecorderState int

const (
	Idle RecorderState = iota
	Recording
)

func (s RecorderState) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
)

type RecorderOption func(*Recorder)

func WithAudioMIME(mime string) RecorderOption {
	return func(r *Recorder) {
		if mime != "" {
			r.mime = mime
		}
	}
}

func WithChunkSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// Recorder is the idle/recording state machine around a Microphone. Each
// recording session yields at most one Blob.
type Recorder struct {
	mic       Microphone
	mime      string
	chunkSize int

	mu    sync.Mutex
	state RecorderState
	take  *take
}

// take is one recording session.
type take struct {
	stream  io.ReadCloser
	mu      sync.Mutex
	chunks  [][]byte
	readErr error
	drained chan struct{}
	once    sync.Once
}

func NewRecorder(mic Microphone, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		mic:       mic,
		mime:      "audio/webm",
		chunkSize: 16 << 10,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start acquires the microphone and begins buffering chunks. On acquisition
// failure the recorder stays idle.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Recording {
		return ErrAlreadyRecording
	}

	stream, err := r.mic.Open(ctx)
	if err != nil {
		logger.WarnCF("media", "Microphone unavailable", map[string]any{
			"error": err.Error(),
		})
		return fmt.Errorf("open microphone: %w", err)
	}

	tk := &take{stream: stream, drained: make(chan struct{})}
	r.state = Recording
	r.take = tk
	go tk.drain(r.chunkSize)

	logger.DebugC("media", "Recording started")
	return nil
}

func (tk *take) drain(chunkSize int) {
	defer close(tk.drained)
	for {
		buf := make([]byte, chunkSize)
		n, err := tk.stream.Read(buf)
		if n > 0 {
			tk.mu.Lock()
			tk.chunks = append(tk.chunks, buf[:n])
			tk.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				tk.mu.Lock()
				tk.readErr = err
				tk.mu.Unlock()
			}
			return
		}
	}
}

// release closes the stream exactly once.
func (tk *take) release() {
	tk.once.Do(func() {
		if err := tk.stream.Close(); err != nil {
			logger.DebugCF("media", "Closing microphone stream", map[string]any{"error": err.Error()})
		}
	})
}

// finish waits for the reader and returns everything buffered.
func (tk *take) finish() ([]byte, error) {
	<-tk.drained
	tk.mu.Lock()
	defer tk.mu.Unlock()
	data := bytes.Join(tk.chunks, nil)
	tk.chunks = nil
	return data, tk.readErr
}

// end moves the recorder back to idle and releases the microphone.
func (r *Recorder) end() (*take, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Recording {
		return nil, ErrNotRecording
	}
	tk := r.take
	r.state = Idle
	r.take = nil
	tk.release()
	return tk, nil
}

// Stop releases the microphone and returns a channel that delivers the
// recording exactly once, then closes. An empty recording closes the
// channel without a value.
func (r *Recorder) Stop() (<-chan Blob, error) {
	tk, err := r.end()
	if err != nil {
		return nil, err
	}

	out := make(chan Blob, 1)
	go func() {
		defer close(out)
		data, readErr := tk.finish()
		if readErr != nil && !isClosedErr(readErr) {
			logger.WarnCF("media", "Recording stream error", map[string]any{
				"error": readErr.Error(),
			})
		}
		if len(data) == 0 {
			return
		}
		out <- Blob{
			Name: "audio_" + uuid.NewString() + ExtensionFor(r.mime),
			MIME: r.mime,
			Data: data,
		}
	}()
	return out, nil
}

// Cancel discards the current recording and releases the microphone.
func (r *Recorder) Cancel() {
	tk, err := r.end()
	if err != nil {
		return
	}
	_, _ = tk.finish()
	logger.DebugC("media", "Recording cancelled")
}

// Toggle starts a recording when idle and stops it when recording. The
// returned channel is nil after a start.
func (r *Recorder) Toggle(ctx context.Context) (<-chan Blob, error) {
	if r.State() == Idle {
		return nil, r.Start(ctx)
	}
	return r.Stop()
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed)
}
