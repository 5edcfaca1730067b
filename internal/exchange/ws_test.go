package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polygo/internal/auth"
	"polygo/pkg/types"
)

// wsServer upgrades every connection, forwards the first frame (the
// subscription) to handshakes and hands the connection to serve.
func wsServer(t *testing.T, handshakes chan<- []byte, serve func(conn *websocket.Conn, n int)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	var conns atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := int(conns.Add(1))

		_, first, err := conn.ReadMessage()
		if err != nil {
			return
		}
		handshakes <- first
		serve(conn, n)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func drainUntilClosed(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestMarketFeedHandshakeAndFanOut(t *testing.T) {
	t.Parallel()

	handshakes := make(chan []byte, 4)
	url := wsServer(t, handshakes, func(conn *websocket.Conn, _ int) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"event_type":"book","asset_id":"a"},{"event_type":"price_change","asset_id":"b"}]`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("PONG"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event_type":"last_trade_price","price":"0.5"}`))
		drainUntilClosed(conn)
	})

	feed := NewMarketFeed(url, quietLogger())
	require.NoError(t, feed.Subscribe([]string{"b", "a"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()

	select {
	case hs := <-handshakes:
		assert.JSONEq(t, `{"assets_ids":["a","b"],"type":"market"}`, string(hs))
	case <-time.After(5 * time.Second):
		t.Fatal("no handshake")
	}

	var got []types.WSMessage
	for len(got) < 3 {
		select {
		case msg := <-feed.Messages():
			got = append(got, msg)
		case <-time.After(5 * time.Second):
			t.Fatalf("received %d messages, want 3", len(got))
		}
	}
	assert.Equal(t, "book", got[0].EventType)
	assert.Equal(t, "price_change", got[1].EventType)
	assert.Equal(t, "last_trade_price", got[2].EventType)
	assert.JSONEq(t, `{"event_type":"book","asset_id":"a"}`, string(got[0].Data))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	_, open := <-feed.Messages()
	assert.False(t, open, "messages channel closes when Run returns")
}

func TestUserFeedHandshakeCarriesAuth(t *testing.T) {
	t.Parallel()

	handshakes := make(chan []byte, 1)
	url := wsServer(t, handshakes, func(conn *websocket.Conn, _ int) { drainUntilClosed(conn) })

	feed, err := NewUserFeed(url, auth.Credentials{ApiKey: "k", Secret: "s", Passphrase: "p"}, quietLogger())
	require.NoError(t, err)
	require.NoError(t, feed.Subscribe([]string{"0xcond"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = feed.Run(ctx) }()

	select {
	case hs := <-handshakes:
		assert.JSONEq(t, `{"markets":["0xcond"],"auth":{"apiKey":"k","secret":"s","passphrase":"p"},"type":"user"}`, string(hs))
	case <-time.After(5 * time.Second):
		t.Fatal("no handshake")
	}
}

func TestUserFeedRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewUserFeed("", auth.Credentials{ApiKey: "k"}, quietLogger())
	require.Error(t, err)
}

func TestFeedDefaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultMarketWSURL, NewMarketFeed("", nil).url)
	feed, err := NewUserFeed("", auth.Credentials{ApiKey: "k", Secret: "s", Passphrase: "p"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultUserWSURL, feed.url)
}

func TestFeedReconnectsAndResubscribes(t *testing.T) {
	t.Parallel()

	handshakes := make(chan []byte, 4)
	url := wsServer(t, handshakes, func(conn *websocket.Conn, n int) {
		if n == 1 {
			// drop the first connection right after the handshake
			return
		}
		drainUntilClosed(conn)
	})

	feed := NewMarketFeed(url, quietLogger())
	feed.initialRetry = 10 * time.Millisecond
	require.NoError(t, feed.Subscribe([]string{"a"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = feed.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case hs := <-handshakes:
			var msg types.WSSubscribeMsg
			require.NoError(t, json.Unmarshal(hs, &msg))
			assert.Equal(t, []string{"a"}, msg.AssetIDs)
			assert.Equal(t, "market", msg.Type)
		case <-time.After(5 * time.Second):
			t.Fatalf("handshake %d missing", i+1)
		}
	}
}

func TestSubscribeWhileDisconnected(t *testing.T) {
	t.Parallel()

	feed := NewMarketFeed("ws://127.0.0.1:1/ws", quietLogger())
	require.NoError(t, feed.Subscribe([]string{"z", "a"}))
	require.NoError(t, feed.Subscribe(nil))
	assert.Equal(t, []string{"a", "z"}, feed.Subscribed())

	require.NoError(t, feed.Unsubscribe([]string{"z"}))
	assert.Equal(t, []string{"a"}, feed.Subscribed())
	assert.True(t, errors.Is(feed.writeJSON("x"), errNotConnected))
}

func TestDispatchSkipsNoise(t *testing.T) {
	t.Parallel()

	feed := NewMarketFeed("", quietLogger())
	ctx := context.Background()

	for _, frame := range []string{"", "PONG", "not json", `{"no_type":true}`, `[1,2`, `[{"event_type":"tick_size_change"}]`} {
		feed.dispatch(ctx, []byte(frame))
	}

	require.Len(t, feed.messages, 1)
	msg := <-feed.messages
	assert.Equal(t, "tick_size_change", msg.EventType)
}
