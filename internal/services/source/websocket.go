package source

import (
	"context"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ordinex/signalrelay/internal/domain"
)

const (
	initialBackoff   = time.Second
	maxBackoff       = time.Minute
	backoffFactor    = 2.0
	backoffJitter    = 0.2
	handshakeTimeout = 10 * time.Second
	readTimeout      = 90 * time.Second
	batchBuffer      = 16
)

// WebsocketSource consumes candidate batches pushed by an upstream
// analysis pipeline. It reconnects with exponential backoff and drops
// batches when the consumer lags.
type WebsocketSource struct {
	url     string
	logger  *zap.Logger
	batches chan []domain.Candidate
	backoff time.Duration
}

func NewWebsocketSource(url string, logger *zap.Logger) *WebsocketSource {
	return &WebsocketSource{
		url:     url,
		logger:  logger,
		batches: make(chan []domain.Candidate, batchBuffer),
		backoff: initialBackoff,
	}
}

func (s *WebsocketSource) Batches() <-chan []domain.Candidate { return s.batches }

// Run dials, reads and reconnects until ctx is done.
func (s *WebsocketSource) Run(ctx context.Context) error {
	defer close(s.batches)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := s.connect(ctx)
		if err != nil {
			s.logger.Warn("websocket connect failed",
				zap.String("url", s.url),
				zap.Duration("backoff", s.backoff),
				zap.Error(err))
			if err := s.waitBackoff(ctx); err != nil {
				return err
			}
			continue
		}

		s.backoff = initialBackoff
		s.logger.Info("websocket connected", zap.String("url", s.url))

		err = s.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("websocket read loop ended", zap.Error(err))

		if err := s.waitBackoff(ctx); err != nil {
			return err
		}
	}
}

func (s *WebsocketSource) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, resp, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial failed with status %d", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "dial failed")
	}

	return conn, nil
}

func (s *WebsocketSource) readLoop(ctx context.Context, conn *websocket.Conn) error {
	// closing the connection is the only way to unblock a pending read
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return errors.Wrap(err, "set read deadline")
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read message")
		}

		s.dispatch(message)
	}
}

func (s *WebsocketSource) dispatch(message []byte) {
	batch, dropped, err := ParseBatch(message)
	if err != nil {
		s.logger.Warn("discarding malformed batch", zap.Error(err))
		return
	}
	if dropped > 0 {
		s.logger.Warn("dropped invalid candidates", zap.Int("count", dropped))
	}
	if len(batch) == 0 {
		return
	}

	select {
	case s.batches <- batch:
	default:
		s.logger.Warn("consumer busy, dropping candidate batch", zap.Int("size", len(batch)))
	}
}

func (s *WebsocketSource) waitBackoff(ctx context.Context) error {
	jitter := time.Duration(float64(s.backoff) * backoffJitter * (rand.Float64()*2 - 1))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.backoff + jitter):
	}

	s.backoff = time.Duration(float64(s.backoff) * backoffFactor)
	if s.backoff > maxBackoff {
		s.backoff = maxBackoff
	}

	return nil
}
