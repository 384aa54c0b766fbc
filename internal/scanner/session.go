package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Options tunes a scanning session.
type Options struct {
	// FrameInterval paces decode attempts; zero decodes frames back to back.
	FrameInterval time.Duration
	// MaxFrames stops the session after this many frames; zero means unlimited.
	MaxFrames int
	// Timeout bounds the whole session; zero means no deadline beyond the caller's.
	Timeout time.Duration
	// OnFinish is called once with the session outcome.
	OnFinish func(outcome string)
	Logger   *zap.Logger
}

// Session is a single scanning attempt bound to one camera.
type Session struct {
	id      string
	camera  Camera
	decoder Decoder
	opts    Options
	logger  *zap.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	code   string
	err    error

	done     chan struct{}
	doneOnce sync.Once
}

// NewSession prepares an idle session.
func NewSession(id string, camera Camera, decoder Decoder, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		id:      id,
		camera:  camera,
		decoder: decoder,
		opts:    opts,
		logger:  logger.With(zap.String("session_id", id)),
		state:   StateIdle,
		done:    make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session has stopped and released its camera.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Result returns the decoded code or the terminal error once Done is closed.
func (s *Session) Result() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code, s.err
}

// Cancel stops the session at any point. It is safe to call repeatedly and from any
// goroutine; Done is closed after the camera has been released.
func (s *Session) Cancel() {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.state = StateStopped
		s.err = ErrCancelled
		s.mu.Unlock()
		s.finish()
		return
	case StateStopped, StateDenied:
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run drives the session until a code is decoded, the stream ends, the session is
// cancelled or ctx is done. Only the first decoded code is returned.
func (s *Session) Run(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		if state == StateStopped {
			return "", ErrCancelled
		}
		return "", ErrSessionUsed
	}
	if s.opts.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer timeoutCancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel
	s.state = StateRequestingPermission
	s.mu.Unlock()

	code, err := s.run(ctx)

	s.mu.Lock()
	s.code, s.err = code, err
	if s.state != StateDenied {
		s.state = StateStopped
	}
	s.mu.Unlock()
	s.finish()
	return code, err
}

func (s *Session) run(ctx context.Context) (code string, err error) {
	stream, err := s.camera.Open(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			s.setState(StateDenied)
			return "", ErrPermissionDenied
		}
		if ctxErr := contextError(ctx); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("open camera: %w", err)
	}
	defer func() {
		if closeErr := stream.Close(); closeErr != nil {
			s.logger.Warn("failed to release camera stream", zap.Error(closeErr))
		}
	}()

	if !s.advance(StateRequestingPermission, StateActive) {
		return "", ErrCancelled
	}
	if ctxErr := contextError(ctx); ctxErr != nil {
		return "", ctxErr
	}
	s.setState(StateScanning)

	var tick <-chan time.Time
	if s.opts.FrameInterval > 0 {
		ticker := time.NewTicker(s.opts.FrameInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	frames := 0
	for {
		frame, err := stream.Next(ctx)
		if err != nil {
			if ctxErr := contextError(ctx); ctxErr != nil {
				return "", ctxErr
			}
			if errors.Is(err, io.EOF) {
				return "", ErrNoCode
			}
			return "", fmt.Errorf("read frame: %w", err)
		}
		frames++
		if code, ok := s.decoder.Decode(frame); ok {
			s.logger.Debug("code decoded", zap.Int("frames", frames))
			return code, nil
		}
		if s.opts.MaxFrames > 0 && frames >= s.opts.MaxFrames {
			return "", ErrNoCode
		}
		if tick == nil {
			if ctxErr := contextError(ctx); ctxErr != nil {
				return "", ctxErr
			}
			continue
		}
		select {
		case <-ctx.Done():
			return "", contextError(ctx)
		case <-tick:
		}
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) advance(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *Session) finish() {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		err := s.err
		s.mu.Unlock()
		close(s.done)
		if s.opts.OnFinish != nil {
			s.opts.OnFinish(outcomeFor(err))
		}
	})
}

func contextError(ctx context.Context) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return ErrTimeout
	default:
		return ErrCancelled
	}
}
