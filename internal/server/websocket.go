package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/kode4food/caravan/topic"

	"github.com/richvergo/subtract-sub005/internal/events"
	"github.com/richvergo/subtract-sub005/pkg/api"
	"github.com/richvergo/subtract-sub005/pkg/log"
)

type (
	// Client represents a WebSocket client connection for run event
	// streaming
	Client struct {
		conn     *websocket.Conn
		consumer topic.Consumer[*api.RunEvent]
		filter   events.Filter
		getRun   RunFunc
		done     chan struct{}
		once     sync.Once
	}

	// RunFunc retrieves the persisted record of a run, sent to clients that
	// subscribe to a single run so they can catch up on its current state
	RunFunc func(context.Context, api.RunID) (*api.RunRecord, error)
)

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 512
	wsBufferSize       = 1024
	incomingBufferSize = 16

	msgSubscribe  = "subscribe"
	msgSubscribed = "subscribed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket upgrades an HTTP connection to WebSocket and starts
// streaming run events based on client subscriptions. Nothing is sent
// until the client subscribes
func HandleWebSocket(
	hub *events.Hub, w http.ResponseWriter, r *http.Request, getRun RunFunc,
) *Client {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed",
			log.Error(err))
		return nil
	}

	client := &Client{
		conn:     conn,
		consumer: hub.NewConsumer(),
		filter:   events.FromSubscription(nil),
		getRun:   getRun,
		done:     make(chan struct{}),
	}

	go client.run()
	return client
}

func (s *Server) handleWebSocket(c *gin.Context) {
	client := HandleWebSocket(s.hub, c.Writer, c.Request, s.engine.GetRun)
	if client == nil {
		return
	}
	s.registerWebSocket(client)
	go func() {
		<-client.done
		s.unregisterWebSocket(client)
	}()
}

// Close terminates the client's connection and event consumer
func (c *Client) Close() {
	c.once.Do(func() {
		c.consumer.Close()
		_ = c.conn.Close()
	})
}

func (c *Client) run() {
	defer func() {
		c.Close()
		close(c.done)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	incoming := make(chan []byte, incomingBufferSize)
	go c.readMessages(incoming)

	for {
		select {
		case message, ok := <-incoming:
			if !ok {
				return
			}
			if !c.handleSubscribe(message) {
				return
			}

		case event, ok := <-c.consumer.Receive():
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.sendEventIfMatched(event) {
				return
			}

		case <-ticker.C:
			if !c.sendPing() {
				return
			}
		}
	}
}

func (c *Client) readMessages(incoming chan []byte) {
	defer close(incoming)
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		incoming <- message
	}
}

func (c *Client) handleSubscribe(message []byte) bool {
	var sub api.SubscribeRequest
	if err := json.Unmarshal(message, &sub); err != nil {
		slog.Error("Failed to parse WebSocket message",
			log.Error(err))
		return true
	}

	if sub.Type != msgSubscribe {
		return true
	}

	c.filter = events.FromSubscription(&sub.Data)
	return c.sendSubscribed(sub.Data.RunID)
}

func (c *Client) sendSubscribed(runID api.RunID) bool {
	msg := api.SubscribedResult{Type: msgSubscribed}
	if runID != "" && c.getRun != nil {
		rec, err := c.getRun(context.Background(), runID)
		if err != nil {
			slog.Warn("Failed to get run for subscription",
				log.RunID(runID),
				log.Error(err))
		}
		msg.Record = rec
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		slog.Error("WebSocket write failed",
			slog.String("context", msgSubscribed),
			log.Error(err))
		return false
	}
	return true
}

func (c *Client) sendEventIfMatched(ev *api.RunEvent) bool {
	if !c.filter(ev) {
		return true
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(ev); err != nil {
		slog.Error("WebSocket write failed",
			log.Error(err))
		return false
	}
	return true
}

func (c *Client) sendPing() bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteMessage(websocket.PingMessage, nil)
	return err == nil
}
