package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"
)

// Transport maintains the line-oriented link to the receiver, either a
// TCP connection to a ser2net bridge or a local serial device. Received
// lines are pushed to the Lines channel; writes are serialized.
type Transport struct {
	config *DeviceConfig

	mu     sync.Mutex
	conn   lineConn
	closed bool

	// Lines receives every complete line from the device, framing
	// bytes included. Closed when the transport shuts down.
	Lines chan string
}

// lineConn abstracts the two link types.
type lineConn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// NewTransport creates a transport for the configured device link.
func NewTransport(config *DeviceConfig) *Transport {
	return &Transport{
		config: config,
		Lines:  make(chan string, 256),
	}
}

// Run connects to the device and reads lines until the context ends,
// reconnecting with the configured interval after link loss.
func (t *Transport) Run(ctx context.Context) {
	defer close(t.Lines)

	interval := time.Duration(t.config.ReconnectInterval) * time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := t.dial(ctx)
		if err != nil {
			log.Printf("Transport: connect failed: %v (retrying in %v)", err, interval)
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
			continue
		}

		t.mu.Lock()
		t.conn = conn
		t.mu.Unlock()
		log.Printf("Transport: connected to %s", t.target())

		t.readLoop(ctx, conn)

		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Printf("Transport: connection lost, reconnecting in %v", interval)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (t *Transport) target() string {
	if t.config.TCP != "" {
		return t.config.TCP
	}
	return t.config.Serial
}

func (t *Transport) dial(ctx context.Context) (lineConn, error) {
	if t.config.TCP != "" {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", t.config.TCP)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	// Serial device. The port is expected to be configured for raw
	// 8N1 operation at the right baud rate (stty or ser2net); the
	// firmware default is 57600.
	f, err := os.OpenFile(t.config.Serial, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", t.config.Serial, err)
	}
	return f, nil
}

func (t *Transport) readLoop(ctx context.Context, conn lineConn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		select {
		case t.Lines <- line:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Printf("Transport: read error: %v", err)
	}
}

// WriteLine sends one command line to the device, appending the line
// terminator the firmware expects.
func (t *Transport) WriteLine(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return fmt.Errorf("transport: not connected")
	}
	_, err := t.conn.Write([]byte(line + "\n"))
	return err
}
