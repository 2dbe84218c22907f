package okx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	reconnectDelay = 3 * time.Second
	pingInterval   = 20 * time.Second // OKX closes idle connections after 30s
)

// WSClient handles the WebSocket connection to OKX and message routing.
type WSClient struct {
	url         string
	instruments []string
	handler     func([]byte)
	logger      *zap.Logger

	mu   sync.Mutex // guards conn for writes and swaps
	conn *websocket.Conn
}

// NewWSClient creates a new WebSocket client subscribing to the trades
// channel for the given instruments.
func NewWSClient(url string, instruments []string, logger *zap.Logger) *WSClient {
	return &WSClient{
		url:         url,
		instruments: instruments,
		logger:      logger,
	}
}

// SetMessageHandler sets the function to handle incoming messages.
func (c *WSClient) SetMessageHandler(h func([]byte)) {
	c.handler = h
}

// Connect establishes the WebSocket connection and subscribes to the trades
// channel for all configured instruments. It does not start the listener.
func (c *WSClient) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		c.logger.Error("Failed to connect to WebSocket", zap.String("url", c.url), zap.Error(err))
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.logger.Info("WebSocket connected", zap.String("url", c.url))

	if err := c.subscribe(); err != nil {
		c.logger.Error("Failed to send subscription", zap.Error(err))
		return err
	}

	return nil
}

// subscribe sends the trades subscription for every instrument.
func (c *WSClient) subscribe() error {
	args := make([]subscribeArg, 0, len(c.instruments))
	for _, instID := range c.instruments {
		args = append(args, subscribeArg{Channel: "trades", InstID: instID})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	return c.conn.WriteJSON(subscribeRequest{Op: "subscribe", Args: args})
}

// Listen reads frames until ctx is cancelled, reconnecting and
// resubscribing on read errors. Aggregation state upstream is unaffected by
// reconnects; a lost connection just means no new events for a while.
func (c *WSClient) Listen(ctx context.Context) {
	go c.keepalive(ctx)

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			c.logger.Error("WebSocket read error", zap.Error(err))

			// Retry reconnecting until ctx is cancelled
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(reconnectDelay):
				}
				if err := c.reconnectAndResubscribe(); err != nil {
					c.logger.Warn("Retrying reconnect...", zap.Error(err))
					continue
				}
				c.logger.Info("Reconnected successfully")
				break
			}
			continue // Start listening again with the new connection
		}

		if c.handler != nil {
			c.handler(msg)
		}
	}
}

// keepalive sends the OKX application-level "ping" on a fixed cadence until
// ctx is cancelled, then closes the connection so Listen unblocks.
func (c *WSClient) keepalive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.conn != nil {
				// Write errors surface in the read loop, which reconnects
				_ = c.conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			}
			c.mu.Unlock()
		}
	}
}

func (c *WSClient) reconnectAndResubscribe() error {
	newConn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	// Close the old connection if it exists
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = newConn
	c.mu.Unlock()

	if err := c.subscribe(); err != nil {
		return fmt.Errorf("websocket subscribe failed: %w", err)
	}

	return nil
}

// Close closes the current connection.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
