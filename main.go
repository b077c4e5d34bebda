package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cwsl/sdgateway/frame"
	"github.com/cwsl/sdgateway/sdproto"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	tcpAddr := flag.String("tcp", "", "device TCP address (host:port, e.g. a ser2net bridge)")
	serialPort := flag.String("serial", "", "device serial port (e.g. /dev/ttyUSB0)")
	baud := flag.Int("baud", 0, "serial baud rate")
	logLevel := flag.Int("log-level", 0, "decoder log level 1=error .. 5=trace")
	flag.Parse()

	var config *Config
	var err error
	if *configPath != "" {
		config, err = LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Config: %v", err)
		}
	} else {
		config = DefaultConfig()
	}

	// Flags override the file for the connection basics.
	if *tcpAddr != "" {
		config.Device.TCP = *tcpAddr
		config.Device.Serial = ""
	}
	if *serialPort != "" {
		config.Device.Serial = *serialPort
		config.Device.TCP = ""
	}
	if *baud != 0 {
		config.Device.Baud = *baud
	}
	if *logLevel != 0 {
		config.Logging.Level = *logLevel
	}
	if config.Device.TCP == "" && config.Device.Serial == "" {
		log.Fatal("Config: no device given; use -tcp, -serial or a config file")
	}

	log.Printf("sdgateway %s starting", Version)

	var catalog *sdproto.Catalog
	if config.Decoder.CatalogFile != "" {
		data, err := os.ReadFile(config.Decoder.CatalogFile)
		if err != nil {
			log.Fatalf("Catalog: %v", err)
		}
		catalog, err = sdproto.Load(data)
		if err != nil {
			log.Fatalf("Catalog: %v", err)
		}
	} else {
		catalog, err = sdproto.LoadDefault()
		if err != nil {
			log.Fatalf("Catalog: %v", err)
		}
	}
	catalog.SetLogFunc(decoderLogAdapter(config.Logging.Level))
	log.Printf("Catalog: %d protocols loaded", len(catalog.IDs()))

	// Warn about catalog entries referencing unknown handlers.
	for _, id := range catalog.IDsWith("method") {
		if err := sdproto.ResolveMethod(catalog.Get(id).Method); err != nil {
			log.Printf("Catalog WARNING: protocol %s: %v", id, err)
		}
	}
	for _, id := range catalog.IDsWith("postDemodulation") {
		if err := sdproto.ResolveMethod(catalog.Get(id).PostDemodulation); err != nil {
			log.Printf("Catalog WARNING: protocol %s: %v", id, err)
		}
	}

	decoder := sdproto.NewDecoder(catalog)
	decoder.RFMode = config.Device.RFMode

	metrics := NewPipelineMetrics()
	gateway := NewGateway(config, decoder, metrics)
	gateway.AddObserver(logObserver{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Prometheus.Enabled {
		StartMetricsServer(ctx, &config.Prometheus)
		metrics.StartResourceCollector(ctx)
	}

	if config.Stream.Enabled {
		hub := NewStreamHub()
		go hub.Run(ctx)
		StartStreamServer(ctx, &config.Stream, hub)
		gateway.AddObserver(hub)
	}

	if config.MQTT.Enabled {
		clientID := GetOrCreateClientID(config.MQTT.IDFile)
		mqtt, err := NewMQTTPublisher(&config.MQTT, clientID, gateway.HandleMQTTCommand)
		if err != nil {
			log.Fatalf("MQTT: %v", err)
		}
		defer mqtt.Close()
		gateway.mqtt = mqtt
		gateway.AddObserver(mqttObserver{mqtt})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Shutting down on %v", sig)
		cancel()
	}()

	gateway.Run(ctx)
}

// mqttObserver adapts the MQTT publisher to the observer interface.
type mqttObserver struct {
	mp *MQTTPublisher
}

func (o mqttObserver) Publish(msg frame.DecodedMessage) {
	o.mp.Publish(msg)
}
