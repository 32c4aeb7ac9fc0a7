// Package websocket provides a reusable WebSocket client with automatic
// reconnection, used to subscribe to exchange account streams.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"algoengine/internal/logging"
)

// MessageHandler handles incoming WebSocket messages.
type MessageHandler func(message []byte)

// Client is a resilient WebSocket client that reconnects with exponential
// backoff whenever the connection drops, whether on initial dial failure
// or after a live read fails.
type Client struct {
	url     string
	handler MessageHandler

	minBackoff time.Duration
	maxBackoff time.Duration

	conn *websocket.Conn
	mu   sync.Mutex

	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a new WebSocket client. Backoff starts at 500ms and
// doubles up to a 30s ceiling on every consecutive failure, resetting to
// the floor as soon as a dial succeeds.
func NewClient(url string, handler MessageHandler, logger logging.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:        url,
		handler:    handler,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start connects and begins listening for messages.
func (c *Client) Start() {
	c.wg.Add(1)
	go c.runLoop()
}

// Stop closes the connection and stops the loop.
func (c *Client) Stop() {
	c.cancel()
	c.wg.Wait()
	c.closeConn()
}

func (c *Client) runLoop() {
	defer c.wg.Done()

	backoff := c.minBackoff
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		if err := c.connect(); err != nil {
			if c.logger != nil {
				c.logger.Error("websocket connect failed", "error", err, "url", c.url, "backoff", backoff)
			}
			if !c.sleep(backoff) {
				return
			}
			backoff = nextBackoff(backoff, c.maxBackoff)
			continue
		}

		backoff = c.minBackoff
		c.readLoop()

		if !c.sleep(backoff) {
			return
		}
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func (c *Client) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, c.url, nil)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) readLoop() {
	defer c.closeConn()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			if c.conn == nil {
				return
			}

			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if c.logger != nil {
					c.logger.Warn("websocket read failed, reconnecting", "error", err, "url", c.url)
				}
				return
			}

			if c.handler != nil {
				c.handler(message)
			}
		}
	}
}
