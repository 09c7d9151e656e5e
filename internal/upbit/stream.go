package upbit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const streamURL = "wss://api.upbit.com/websocket/v1"

// TickerEvent is a realtime trade price update from the websocket stream.
type TickerEvent struct {
	Type           string  `json:"type"`
	Code           string  `json:"code"`
	TradePrice     float64 `json:"trade_price"`
	TradeTimestamp int64   `json:"trade_timestamp"`
}

// TickerStream maintains a websocket subscription to realtime tickers and
// feeds each event to a handler. Reconnects with capped attempts on read
// failure.
type TickerStream struct {
	markets []string
	handler func(TickerEvent)
	logger  zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewTickerStream creates a stream for the given markets.
func NewTickerStream(markets []string, handler func(TickerEvent)) *TickerStream {
	return &TickerStream{
		markets: markets,
		handler: handler,
		logger:  log.With().Str("component", "upbit_stream").Logger(),
	}
}

// Run connects, subscribes and reads events until ctx is cancelled.
func (s *TickerStream) Run(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		s.mu.Lock()
		conn, closed := s.conn, s.closed
		s.mu.Unlock()
		if closed {
			return nil
		}
		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || s.isClosed() {
				return nil
			}
			s.logger.Warn().Err(err).Msg("stream read failed, reconnecting")
			s.reconnect(ctx)
			continue
		}

		var ev TickerEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			s.logger.Warn().Err(err).Msg("stream message unmarshal failed")
			continue
		}
		if ev.Type == "ticker" && s.handler != nil {
			s.handler(ev)
		}
	}
}

func (s *TickerStream) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return err
	}

	// Upbit subscription frame: [{ticket}, {type, codes}]
	sub := []any{
		map[string]string{"ticket": uuid.NewString()},
		map[string]any{"type": "ticker", "codes": s.markets},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

func (s *TickerStream) reconnect(ctx context.Context) {
	for i := 0; i < 5; i++ {
		time.Sleep(time.Second)
		if ctx.Err() != nil || s.isClosed() {
			return
		}
		if err := s.connect(ctx); err != nil {
			s.logger.Warn().Err(err).Int("attempt", i+1).Msg("stream reconnect failed")
			continue
		}
		s.logger.Info().Int("attempts", i+1).Msg("stream reconnected")
		return
	}
	s.logger.Error().Msg("stream reconnect attempts exhausted")
	s.Close()
}

func (s *TickerStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close terminates the stream.
func (s *TickerStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.conn != nil {
		s.conn.Close()
	}
}
