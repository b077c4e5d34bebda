package main

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/cwsl/sdgateway/frame"
	"github.com/cwsl/sdgateway/sdproto"
)

// Observer receives every decoded message, in the order the source
// lines arrived.
type Observer interface {
	Publish(msg frame.DecodedMessage)
}

// Gateway wires the transport, the decoding pipeline and the
// observers together. Lines are parsed by a single goroutine, so
// messages are emitted in arrival order.
type Gateway struct {
	config    *Config
	transport *Transport
	decoder   *sdproto.Decoder
	commands  *CommandManager
	metrics   *PipelineMetrics
	observers []Observer
	mqtt      *MQTTPublisher
}

// NewGateway assembles a gateway from its parts.
func NewGateway(config *Config, decoder *sdproto.Decoder, metrics *PipelineMetrics) *Gateway {
	transport := NewTransport(&config.Device)
	return &Gateway{
		config:    config,
		transport: transport,
		decoder:   decoder,
		commands:  NewCommandManager(transport),
		metrics:   metrics,
	}
}

// AddObserver registers a decoded message observer.
func (g *Gateway) AddObserver(o Observer) {
	g.observers = append(g.observers, o)
}

// Commands exposes the command manager (used by the MQTT command
// handler and startup checks).
func (g *Gateway) Commands() *CommandManager { return g.commands }

// Run starts the transport and processes lines until the context ends.
func (g *Gateway) Run(ctx context.Context) {
	go g.transport.Run(ctx)
	go g.initDevice(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-g.transport.Lines:
			if !ok {
				return
			}
			g.handleLine(line)
		}
	}
}

// initDevice sends the configured init commands and runs the firmware
// version gate once the link is up.
func (g *Gateway) initDevice(ctx context.Context) {
	// Give the link a moment to come up; commands fail harmlessly and
	// the next reconnect repeats nothing, so a single attempt with a
	// short delay is enough.
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
	}

	if g.config.Firmware.CheckOnStart {
		banner, err := g.commands.Send(CmdVersion)
		if err != nil {
			log.Printf("Firmware: version query failed: %v", err)
		} else if info, err := ParseVersionBanner(banner); err != nil {
			log.Printf("Firmware: %v", err)
		} else {
			log.Printf("Firmware: %s %s", info.Variant, info.Version)
			if err := info.CheckMinimum(g.config.Firmware.MinVersion); err != nil {
				log.Printf("Firmware WARNING: %v", err)
			}
		}
	}

	for _, raw := range g.config.Device.InitCommands {
		if err := g.transport.WriteLine(raw); err != nil {
			log.Printf("Gateway: init command %q failed: %v", raw, err)
		}
	}
}

func (g *Gateway) handleLine(line string) {
	payload, ok := frame.ExtractPayload(line)
	if !ok {
		if !g.commands.HandleLine(line) {
			log.Printf("Gateway: ignoring line without frame markers: %q", line)
		}
		return
	}

	fields, err := frame.Split(payload)
	if err != nil {
		g.metrics.ParseErrors.Inc()
		log.Printf("Gateway: %v", err)
		return
	}
	g.metrics.FramesTotal.WithLabelValues(fields.Type).Inc()

	raw := frame.RawFrame{
		Line:        payload,
		MessageType: fields.Type,
		Timestamp:   time.Now(),
	}

	start := time.Now()
	msgs := g.decoder.Decode(fields, raw)
	g.metrics.DecodeDuration.Observe(time.Since(start).Seconds())

	if len(msgs) == 0 {
		g.metrics.DroppedFrames.Inc()
		return
	}
	for _, msg := range msgs {
		g.metrics.DecodedTotal.WithLabelValues(msg.ProtocolID).Inc()
		for _, o := range g.observers {
			o.Publish(msg)
		}
	}
}

// HandleMQTTCommand executes a command received over MQTT and
// publishes the result.
func (g *Gateway) HandleMQTTCommand(name, payload string) {
	var result string
	var err error

	switch name {
	case "version":
		result, err = g.commands.Send(CmdVersion)
	case "ping":
		result, err = g.commands.Send(CmdPing)
	case "freeram":
		result, err = g.commands.Send(CmdFreeRAM)
	case "uptime":
		result, err = g.commands.Send(CmdUptime)
	case "config":
		result, err = g.commands.Send(CmdConfig)
	case "set_frequency":
		var mhz float64
		mhz, err = strconv.ParseFloat(payload, 64)
		if err == nil {
			_, err = g.commands.Send(SetFrequency(mhz))
			result = fmt.Sprintf("frequency set to %v MHz", mhz)
		}
	case "raw":
		err = g.transport.WriteLine(payload)
		result = "sent"
	default:
		err = fmt.Errorf("unknown command %q", name)
	}

	if err != nil {
		log.Printf("Gateway: MQTT command %s failed: %v", name, err)
		result = "error: " + err.Error()
	}
	if g.mqtt != nil {
		g.mqtt.PublishResult(name, result)
	}
}

// logObserver writes every decoded message to the process log.
type logObserver struct{}

func (logObserver) Publish(msg frame.DecodedMessage) {
	rssi := ""
	if msg.Metadata.RSSI != nil {
		rssi = fmt.Sprintf(" rssi=%.1f", *msg.Metadata.RSSI)
	}
	log.Printf("Decoded: protocol=%s payload=%s bits=%d%s",
		msg.ProtocolID, msg.Payload, msg.Metadata.BitLength, rssi)
}

// decoderLogAdapter converts the core's leveled log sink to the
// process log, filtered by the configured verbosity.
func decoderLogAdapter(maxLevel int) sdproto.LogFunc {
	names := map[int]string{1: "ERROR", 2: "WARN", 3: "INFO", 4: "VERBOSE", 5: "TRACE"}
	return func(message string, level int) {
		if level > maxLevel {
			return
		}
		name := names[level]
		if name == "" {
			name = "INFO"
		}
		log.Printf("Decoder %s: %s", name, message)
	}
}
