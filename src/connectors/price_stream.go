package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

const (
	streamReconnectBase = time.Second
	streamReconnectMax  = 30 * time.Second
	streamReadTimeout   = 90 * time.Second
)

// priceTick is one message on the stream.
type priceTick struct {
	Token     string  `json:"token"`
	Venue     string  `json:"venue"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

type streamEntry struct {
	price      float64
	observedAt time.Time
}

// PriceStream consumes a live price websocket and keeps the latest price per
// (token, venue) market in memory. It satisfies the detector's price source.
type PriceStream struct {
	url string
	log *logger.Entry

	mu     sync.RWMutex
	latest map[string]streamEntry
}

func NewPriceStream(url string) *PriceStream {
	return &PriceStream{
		url:    url,
		log:    logger.WithField("component", "PriceStream"),
		latest: map[string]streamEntry{},
	}
}

// Run consumes the stream until the context is cancelled, reconnecting with
// backoff on every failure.
func (s *PriceStream) Run(ctx context.Context) error {
	if strings.TrimSpace(s.url) == "" {
		return fmt.Errorf("price stream URL not set")
	}

	backoff := streamReconnectBase
	for {
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.WithError(err).Warnf("Stream dropped, reconnecting in %s", backoff)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > streamReconnectMax {
			backoff = streamReconnectMax
		}
	}
}

func (s *PriceStream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()

	s.log.WithField("url", s.url).Info("Price stream connected")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(streamReadTimeout)); err != nil {
			return err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var tick priceTick
		if err := json.Unmarshal(msg, &tick); err != nil {
			s.log.WithError(err).Warn("Unparseable stream message, skipping")
			continue
		}
		if tick.Token == "" || tick.Price <= 0 {
			continue
		}
		s.record(tick)
	}
}

func (s *PriceStream) record(tick priceTick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[streamKey(tick.Token, tick.Venue)] = streamEntry{
		price:      tick.Price,
		observedAt: time.Now(),
	}
}

// LatestPrice returns the most recent streamed price for the market.
func (s *PriceStream) LatestPrice(_ context.Context, token, venue string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.latest[streamKey(token, venue)]
	if !ok {
		return 0, false
	}
	return entry.price, true
}

func streamKey(token, venue string) string {
	return token + "|" + venue
}
