// ws.go implements WebSocket feeds for real-time Polymarket data.
//
// Two independent channels exist:
//
//   - Market feed (public): subscribes by asset ID (token ID).
//   - User feed (authenticated): subscribes by condition ID and carries the
//     L2 credentials in the handshake.
//
// Only the handshake is modelled. Events are forwarded raw, tagged with their
// event_type, and consumers decode the payloads they care about.
//
// Both feeds auto-reconnect with exponential backoff (1s → 30s max) and
// re-subscribe to all tracked IDs on reconnection. A read deadline (90s)
// ensures silent server failures are detected within ~2 missed pings.

package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"polygo/internal/auth"
	"polygo/pkg/types"
)

const (
	DefaultMarketWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	DefaultUserWSURL   = "wss://ws-subscriptions-clob.polymarket.com/ws/user"

	pingInterval     = 50 * time.Second // how often we send PING to keep alive
	readTimeout      = 90 * time.Second // ~2 missed pings triggers reconnect
	maxReconnectWait = 30 * time.Second // cap on exponential backoff
	writeTimeout     = 10 * time.Second // deadline for outgoing messages
	messageBuffer    = 256
)

const (
	channelMarket = "market"
	channelUser   = "user"
)

var errNotConnected = errors.New("websocket not connected")

// WSFeed manages a single WebSocket connection (market or user channel).
// It handles connection lifecycle, subscription tracking, message routing,
// and automatic reconnection with exponential backoff.
type WSFeed struct {
	url         string
	conn        *websocket.Conn
	connMu      sync.Mutex // protects conn writes
	creds       *auth.Credentials
	channelType string

	subscribedMu sync.RWMutex
	subscribed   map[string]bool // asset IDs (market) or condition IDs (user)

	messages chan types.WSMessage

	dialer       *websocket.Dialer
	pingEvery    time.Duration
	initialRetry time.Duration

	logger *slog.Logger
}

// NewMarketFeed creates a WebSocket feed for the market channel (public).
func NewMarketFeed(wsURL string, logger *slog.Logger) *WSFeed {
	if wsURL == "" {
		wsURL = DefaultMarketWSURL
	}
	return newFeed(wsURL, channelMarket, nil, logger)
}

// NewUserFeed creates a WebSocket feed for the user channel. The credentials
// are sent in the subscription handshake.
func NewUserFeed(wsURL string, creds auth.Credentials, logger *slog.Logger) (*WSFeed, error) {
	if !creds.Complete() {
		return nil, fmt.Errorf("user feed: incomplete L2 credentials")
	}
	if wsURL == "" {
		wsURL = DefaultUserWSURL
	}
	return newFeed(wsURL, channelUser, &creds, logger), nil
}

func newFeed(wsURL, channel string, creds *auth.Credentials, logger *slog.Logger) *WSFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSFeed{
		url:          wsURL,
		creds:        creds,
		channelType:  channel,
		subscribed:   make(map[string]bool),
		messages:     make(chan types.WSMessage, messageBuffer),
		dialer:       websocket.DefaultDialer,
		pingEvery:    pingInterval,
		initialRetry: time.Second,
		logger:       logger.With("component", "ws_"+channel),
	}
}

// Messages returns every event received, tagged by event_type. The channel is
// closed when Run returns.
func (f *WSFeed) Messages() <-chan types.WSMessage { return f.messages }

// Subscribed returns the tracked IDs in sorted order.
func (f *WSFeed) Subscribed() []string {
	f.subscribedMu.RLock()
	ids := make([]string, 0, len(f.subscribed))
	for id := range f.subscribed {
		ids = append(ids, id)
	}
	f.subscribedMu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Run connects and maintains the WebSocket connection with auto-reconnect.
// Blocks until ctx is cancelled.
func (f *WSFeed) Run(ctx context.Context) error {
	defer close(f.messages)
	backoff := f.initialRetry

	for {
		connected, err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = f.initialRetry
		}

		f.logger.Warn("websocket disconnected, reconnecting",
			"error", err,
			"backoff", backoff,
		)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		// Exponential backoff: 1s, 2s, 4s, 8s, ..., 30s max
		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Subscribe adds asset IDs (market channel) or condition IDs (user channel).
// IDs added before the first connection go out in the initial handshake.
func (f *WSFeed) Subscribe(ids []string) error {
	return f.update("subscribe", ids, true)
}

// Unsubscribe removes IDs from the subscription.
func (f *WSFeed) Unsubscribe(ids []string) error {
	return f.update("unsubscribe", ids, false)
}

func (f *WSFeed) update(op string, ids []string, add bool) error {
	if len(ids) == 0 {
		return nil
	}
	f.subscribedMu.Lock()
	for _, id := range ids {
		if add {
			f.subscribed[id] = true
		} else {
			delete(f.subscribed, id)
		}
	}
	f.subscribedMu.Unlock()

	msg := types.WSUpdateMsg{Operation: op}
	if f.channelType == channelMarket {
		msg.AssetIDs = ids
	} else {
		msg.Markets = ids
	}

	err := f.writeJSON(msg)
	if errors.Is(err, errNotConnected) {
		return nil
	}
	return err
}

// Close gracefully closes the connection.
func (f *WSFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

// connectAndRead reports whether the handshake succeeded before the error.
func (f *WSFeed) connectAndRead(ctx context.Context) (bool, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.writeJSON(f.subscription()); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	f.logger.Info("websocket connected", "channel", f.channelType, "ids", len(f.Subscribed()))

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	// unblock ReadMessage on cancellation
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		f.dispatch(ctx, msg)
	}
}

func (f *WSFeed) subscription() types.WSSubscribeMsg {
	ids := f.Subscribed()
	if f.channelType == channelMarket {
		return types.WSSubscribeMsg{Type: channelMarket, AssetIDs: ids}
	}
	return types.WSSubscribeMsg{
		Type:    channelUser,
		Auth:    f.creds.WSAuth(),
		Markets: ids,
	}
}

// dispatch forwards one frame. The server batches events into JSON arrays
// and answers keepalives with a bare PONG.
func (f *WSFeed) dispatch(ctx context.Context, data []byte) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("PONG")) {
		return
	}

	var events []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &events); err != nil {
			f.logger.Debug("ignoring malformed ws batch", "error", err)
			return
		}
	} else {
		events = []json.RawMessage{data}
	}

	for _, raw := range events {
		var envelope struct {
			EventType string `json:"event_type"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			f.logger.Debug("ignoring non-json ws message", "data", string(raw))
			continue
		}
		if envelope.EventType == "" {
			f.logger.Debug("ws message without event_type", "data", string(raw))
			continue
		}

		select {
		case f.messages <- types.WSMessage{EventType: envelope.EventType, Data: raw}:
		case <-ctx.Done():
			return
		default:
			f.logger.Warn("message channel full, dropping event", "type", envelope.EventType)
		}
	}
}

func (f *WSFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(f.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.TextMessage, []byte("PING")); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *WSFeed) writeJSON(v any) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return errNotConnected
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *WSFeed) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return errNotConnected
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}
