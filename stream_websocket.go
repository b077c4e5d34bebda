package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cwsl/sdgateway/frame"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamHub fans decoded messages out to websocket subscribers. Peers
// receive the same JSON payloads the MQTT publisher emits; slow peers
// are dropped rather than allowed to stall the pipeline.
type StreamHub struct {
	register   chan *streamClient
	unregister chan *streamClient
	broadcast  chan []byte
	clients    map[*streamClient]bool
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewStreamHub creates the hub; call Run to start it.
func NewStreamHub() *StreamHub {
	return &StreamHub{
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		broadcast:  make(chan []byte, 256),
		clients:    make(map[*streamClient]bool),
	}
}

// Run processes hub events until the context ends.
func (h *StreamHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				client.conn.Close()
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("Stream: client connected (%d total)", len(h.clients))
		case client := <-h.unregister:
			if h.clients[client] {
				delete(h.clients, client)
				close(client.send)
				log.Printf("Stream: client disconnected (%d total)", len(h.clients))
			}
		case data := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Client cannot keep up; drop it.
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// Publish queues one decoded message for all subscribers.
func (h *StreamHub) Publish(msg frame.DecodedMessage) {
	payload := messagePayload{
		ProtocolID: msg.ProtocolID,
		Payload:    msg.Payload,
		BitLength:  msg.Metadata.BitLength,
		RSSI:       msg.Metadata.RSSI,
		FreqAFC:    msg.Metadata.FreqAFC,
		Clock:      msg.Metadata.Clock,
		ReceivedAt: msg.Raw.Timestamp.Unix(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Println("Stream: broadcast queue full, dropping message")
	}
}

// ServeHTTP upgrades a subscriber connection.
func (h *StreamHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Stream: upgrade failed: %v", err)
		return
	}
	client := &streamClient{conn: conn, send: make(chan []byte, 64)}
	h.register <- client

	go client.writeLoop()
	go client.readLoop(h)
}

func (c *streamClient) writeLoop() {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// readLoop discards client input; the stream is one-way. It exists to
// notice closed connections.
func (c *streamClient) readLoop(h *StreamHub) {
	defer func() { h.unregister <- c }()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// StartStreamServer serves the websocket endpoint on its own listener.
func StartStreamServer(ctx context.Context, config *StreamConfig, hub *StreamHub) {
	mux := http.NewServeMux()
	mux.Handle("/stream", hub)

	server := &http.Server{Addr: config.Listen, Handler: mux}
	go func() {
		<-ctx.Done()
		server.Close()
	}()
	go func() {
		log.Printf("Stream: listening on %s", config.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Stream ERROR: %v", err)
		}
	}()
}
