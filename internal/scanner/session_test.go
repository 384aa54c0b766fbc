package scanner

import (
	"context"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taggedFrame struct {
	image.Image
	code string
}

func frame(code string) image.Image {
	return taggedFrame{Image: image.NewGray(image.Rect(0, 0, 1, 1)), code: code}
}

type tagDecoder struct {
	calls int32
}

func (d *tagDecoder) Decode(f image.Image) (string, bool) {
	atomic.AddInt32(&d.calls, 1)
	if t, ok := f.(taggedFrame); ok && t.code != "" {
		return t.code, true
	}
	return "", false
}

// fakeCamera yields frames, then blocks until ctx is done when block is set, else EOF.
type fakeCamera struct {
	frames  []image.Image
	repeat  bool
	block   bool
	openErr error

	closes int32
}

func (c *fakeCamera) Open(ctx context.Context) (Stream, error) {
	if c.openErr != nil {
		return nil, c.openErr
	}
	return &fakeStream{cam: c}, nil
}

func (c *fakeCamera) closeCount() int {
	return int(atomic.LoadInt32(&c.closes))
}

type fakeStream struct {
	cam  *fakeCamera
	mu   sync.Mutex
	next int
}

func (s *fakeStream) Next(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	if s.next < len(s.cam.frames) {
		f := s.cam.frames[s.next]
		s.next++
		s.mu.Unlock()
		return f, nil
	}
	s.mu.Unlock()
	if s.cam.repeat {
		return frame(""), nil
	}
	if s.cam.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, io.EOF
}

func (s *fakeStream) Close() error {
	atomic.AddInt32(&s.cam.closes, 1)
	return nil
}

func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, time.Second, time.Millisecond)
}

func TestSessionDeliversFirstDecodedCode(t *testing.T) {
	cam := &fakeCamera{frames: []image.Image{frame(""), frame("111111"), frame("222222")}}
	decoder := &tagDecoder{}
	var outcomes []string
	session := NewSession("s1", cam, decoder, Options{OnFinish: func(o string) { outcomes = append(outcomes, o) }})

	code, err := session.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "111111", code)
	assert.Equal(t, StateStopped, session.State())
	assert.EqualValues(t, 2, atomic.LoadInt32(&decoder.calls))
	assert.Equal(t, 1, cam.closeCount())
	assert.Equal(t, []string{OutcomeDecoded}, outcomes)

	got, err := session.Result()
	require.NoError(t, err)
	assert.Equal(t, "111111", got)

	_, err = session.Run(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestSessionPermissionDenied(t *testing.T) {
	var outcome string
	session := NewSession("s1", NewDeniedCamera(), &tagDecoder{}, Options{OnFinish: func(o string) { outcome = o }})

	_, err := session.Run(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, StateDenied, session.State())
	assert.Equal(t, OutcomeDenied, outcome)
	select {
	case <-session.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestSessionStreamEndsWithoutCode(t *testing.T) {
	cam := &fakeCamera{frames: []image.Image{frame(""), frame("")}}
	session := NewSession("s1", cam, &tagDecoder{}, Options{})

	_, err := session.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoCode)
	assert.Equal(t, 1, cam.closeCount())
}

func TestSessionMaxFrames(t *testing.T) {
	cam := &fakeCamera{repeat: true}
	decoder := &tagDecoder{}
	session := NewSession("s1", cam, decoder, Options{MaxFrames: 3, FrameInterval: time.Millisecond})

	_, err := session.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(&decoder.calls))
	assert.Equal(t, 1, cam.closeCount())
}

func TestSessionCancelWhileScanningReleasesCamera(t *testing.T) {
	cam := &fakeCamera{frames: []image.Image{frame("")}, block: true}
	session := NewSession("s1", cam, &tagDecoder{}, Options{})

	errCh := make(chan error, 1)
	go func() {
		_, err := session.Run(context.Background())
		errCh <- err
	}()
	waitForState(t, session, StateScanning)

	session.Cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("session did not stop after cancel")
	}
	assert.Equal(t, StateStopped, session.State())
	assert.Equal(t, 1, cam.closeCount())

	session.Cancel()
	assert.Equal(t, 1, cam.closeCount())
}

func TestSessionCancelBeforeRun(t *testing.T) {
	cam := &fakeCamera{frames: []image.Image{frame("111111")}}
	session := NewSession("s1", cam, &tagDecoder{}, Options{})

	session.Cancel()
	<-session.Done()
	_, err := session.Run(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, cam.closeCount())
}

func TestSessionTimeout(t *testing.T) {
	cam := &fakeCamera{block: true}
	var outcome string
	session := NewSession("s1", cam, &tagDecoder{}, Options{Timeout: 20 * time.Millisecond, OnFinish: func(o string) { outcome = o }})

	_, err := session.Run(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, OutcomeTimeout, outcome)
	assert.Equal(t, 1, cam.closeCount())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "requesting_permission", StateRequestingPermission.String())
	assert.Equal(t, "unknown", State(42).String())
}
