package connectors_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yieldlooper/src/connectors"
)

func wsServer(t *testing.T, messages []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func waitForPrice(t *testing.T, stream *connectors.PriceStream, token, venue string) float64 {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		if price, ok := stream.LatestPrice(context.Background(), token, venue); ok {
			return price
		}
		select {
		case <-deadline:
			t.Fatalf("no price observed for %s/%s", token, venue)
			return 0
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPriceStreamRecordsLatestTick(t *testing.T) {
	srv := wsServer(t, []string{
		`{"token":"WETH","venue":"aave-v3","price":2400,"timestamp":1700000000}`,
		`not json`,
		`{"token":"WETH","venue":"aave-v3","price":2450,"timestamp":1700000060}`,
		`{"token":"","venue":"aave-v3","price":99}`,
	})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := connectors.NewPriceStream("ws" + strings.TrimPrefix(srv.URL, "http"))
	go func() { _ = stream.Run(ctx) }()

	assert.Eventually(t, func() bool {
		price, ok := stream.LatestPrice(ctx, "WETH", "aave-v3")
		return ok && price == 2450
	}, 3*time.Second, 10*time.Millisecond, "latest tick should win")

	_, ok := stream.LatestPrice(ctx, "WBTC", "aave-v3")
	assert.False(t, ok)
}

func TestPriceStreamReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var connections int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := atomic.AddInt32(&connections, 1)
		if n == 1 {
			// First connection dies immediately, forcing a reconnect.
			conn.Close()
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"token":"SOL","venue":"drift","price":150,"timestamp":1700000000}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := connectors.NewPriceStream("ws" + strings.TrimPrefix(srv.URL, "http"))
	go func() { _ = stream.Run(ctx) }()

	price := waitForPrice(t, stream, "SOL", "drift")
	assert.Equal(t, 150.0, price)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&connections), int32(2))
}

func TestPriceStreamRequiresURL(t *testing.T) {
	stream := connectors.NewPriceStream("  ")
	err := stream.Run(context.Background())
	require.Error(t, err)
}
