// Package session runs one hand tracking WebSocket session: it reads frames, runs them
// through the session's pipeline and writes one result per successfully processed frame,
// in order.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/handstream/internal/app"
	"github.com/ayusman/handstream/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mdobak/go-xerrors"
)

// ErrTransport marks a session that ended because the connection failed.
var ErrTransport = errors.New("transport fault")

// State is the lifecycle state of a session.
type State int32

const (
	StateAccepting State = iota
	StateActive
	StateProcessing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAccepting:
		return "accepting"
	case StateActive:
		return "active"
	case StateProcessing:
		return "processing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Config holds per-session protocol settings.
type Config struct {
	// WriteTimeout bounds a single outbound write. Zero, the default, lets a slow client
	// hold back the read loop for as long as the write takes.
	WriteTimeout time.Duration

	// MaxMessageSize limits inbound message size in bytes. Zero means no limit.
	MaxMessageSize int64

	// ReportErrors sends {"error": "..."} for skipped frames instead of staying silent.
	ReportErrors bool
}

// DefaultConfig returns the settings used by the service.
func DefaultConfig() Config {
	return Config{
		MaxMessageSize: 8 << 20,
	}
}

// Session owns one client connection and the pipeline (and thus detector) serving it.
type Session struct {
	id       string
	conn     *websocket.Conn
	pipeline *app.Pipeline
	config   Config
	log      *slog.Logger
	metrics  *metrics.Metrics

	state       atomic.Int32
	releaseOnce sync.Once
}

// New creates a session in the Accepting state. The session takes ownership of conn
// and pipeline; both are released when Run returns.
func New(conn *websocket.Conn, pipeline *app.Pipeline, config Config, log *slog.Logger, m *metrics.Metrics) *Session {
	id := uuid.NewString()

	s := &Session{
		id:       id,
		conn:     conn,
		pipeline: pipeline,
		config:   config,
		log: log.With(
			slog.String("session_id", id),
			slog.String("remote_addr", conn.RemoteAddr().String()),
		),
		metrics: m,
	}
	s.state.Store(int32(StateAccepting))

	if config.MaxMessageSize > 0 {
		conn.SetReadLimit(config.MaxMessageSize)
	}

	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Run processes frames until the client disconnects, the transport fails or ctx is
// cancelled. It returns nil for a graceful close or cancellation and an error wrapping
// ErrTransport for connection failures. Resources are released before Run returns.
func (s *Session) Run(ctx context.Context) error {
	s.metrics.SessionOpened()
	defer s.release()

	s.state.Store(int32(StateActive))
	s.log.Info("session started")

	// Unblock the pending read when the server shuts down.
	stop := context.AfterFunc(ctx, func() {
		s.Close(websocket.CloseGoingAway, "server shutting down")
	})
	defer stop()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return s.readFailed(ctx, err)
		}

		if err := s.handle(ctx, data); err != nil {
			return err
		}
	}
}

// Close sends a close frame with the given code and closes the connection. It is safe
// to call from any goroutine and more than once.
func (s *Session) Close(code int, reason string) {
	s.state.Store(int32(StateClosed))

	deadline := time.Now().Add(time.Second)
	s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	s.conn.Close()
}

// handle processes one inbound message. A non-nil error means the transport is broken.
func (s *Session) handle(ctx context.Context, data []byte) error {
	if !s.state.CompareAndSwap(int32(StateActive), int32(StateProcessing)) {
		return nil
	}
	defer s.state.CompareAndSwap(int32(StateProcessing), int32(StateActive))

	start := time.Now()
	s.metrics.IncFramesReceived()

	result, err := s.pipeline.Process(ctx, string(data))
	if err != nil {
		return s.skip(ctx, err)
	}

	payload, err := EncodeResult(result)
	if err != nil {
		return s.skip(ctx, fmt.Errorf("%w: encode result: %w", app.ErrProcessing, err))
	}

	if err := s.write(payload); err != nil {
		s.log.Warn("write failed", slog.Any("error", xerrors.New(err)))
		return fmt.Errorf("%w: write: %w", ErrTransport, err)
	}

	gestures := make([]string, 0, len(result.Hands))
	for _, h := range result.Hands {
		gestures = append(gestures, string(h.Gesture))
	}
	s.metrics.ObserveFrame(time.Since(start), gestures)

	return nil
}

// skip drops a frame that could not be processed. The session stays active.
func (s *Session) skip(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		// Abandoned mid-frame; the read loop observes the closed connection next.
		return nil
	}

	reason := metrics.ReasonProcessing
	if errors.Is(err, app.ErrDecode) {
		reason = metrics.ReasonDecode
		s.log.Debug("frame skipped", slog.String("error", err.Error()))
	} else {
		s.log.Error("frame processing failed", slog.Any("error", xerrors.New(err)))
	}
	s.metrics.IncFramesSkipped(reason)

	if !s.config.ReportErrors {
		return nil
	}

	payload, encErr := encodeError(err.Error())
	if encErr != nil {
		return nil
	}
	if werr := s.write(payload); werr != nil {
		return fmt.Errorf("%w: write: %w", ErrTransport, werr)
	}
	return nil
}

func (s *Session) write(payload []byte) error {
	if s.config.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
			return err
		}
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// readFailed classifies a read error into a graceful close or a transport fault.
func (s *Session) readFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		s.log.Info("session closed by server")
		return nil
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		s.log.Info("client disconnected", slog.String("reason", err.Error()))
		return nil
	}

	s.log.Warn("transport fault", slog.Any("error", xerrors.New(err)))
	return fmt.Errorf("%w: read: %w", ErrTransport, err)
}

// release moves the session to Closed and frees the connection and detector.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		s.state.Store(int32(StateClosed))

		if err := s.pipeline.Close(); err != nil {
			s.log.Warn("detector close failed", slog.Any("error", err))
		}
		s.conn.Close()
		s.metrics.SessionClosed()

		s.log.Info("session ended")
	})
}
