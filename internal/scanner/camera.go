package scanner

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // frame formats accepted from uploads
	_ "image/png"
	"io"
	"sync"
)

// FrameSetCamera replays a fixed set of frames, typically captured by a client and
// uploaded in one request. A camera built with Denied reports ErrPermissionDenied.
type FrameSetCamera struct {
	frames []image.Image
	denied bool
}

// NewFrameSetCamera returns a camera that yields frames in order.
func NewFrameSetCamera(frames ...image.Image) *FrameSetCamera {
	return &FrameSetCamera{frames: frames}
}

// NewDeniedCamera returns a camera whose permission request is refused.
func NewDeniedCamera() *FrameSetCamera {
	return &FrameSetCamera{denied: true}
}

// DecodeFrames decodes PNG or JPEG images.
func DecodeFrames(readers ...io.Reader) ([]image.Image, error) {
	frames := make([]image.Image, 0, len(readers))
	for i, r := range readers {
		img, _, err := image.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", i, err)
		}
		frames = append(frames, img)
	}
	return frames, nil
}

// Open implements Camera.
func (c *FrameSetCamera) Open(ctx context.Context) (Stream, error) {
	if c.denied {
		return nil, ErrPermissionDenied
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &frameStream{frames: c.frames}, nil
}

type frameStream struct {
	mu     sync.Mutex
	frames []image.Image
	next   int
	closed bool
}

func (s *frameStream) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("stream closed")
	}
	if s.next >= len(s.frames) {
		return nil, io.EOF
	}
	frame := s.frames[s.next]
	s.next++
	return frame, nil
}

func (s *frameStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream already closed")
	}
	s.closed = true
	return nil
}
