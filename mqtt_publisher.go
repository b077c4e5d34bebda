package main

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cwsl/sdgateway/frame"
)

// MQTTPublisher publishes decoded messages and listens for commands.
type MQTTPublisher struct {
	client    mqtt.Client
	config    *MQTTConfig
	onCommand func(name, payload string)
}

// messagePayload is the JSON shape published per decoded message.
type messagePayload struct {
	ProtocolID string   `json:"protocol_id"`
	Payload    string   `json:"payload"`
	BitLength  int      `json:"bit_length"`
	RSSI       *float64 `json:"rssi,omitempty"`
	FreqAFC    *float64 `json:"freq_afc,omitempty"`
	Clock      float64  `json:"clock,omitempty"`
	ReceivedAt int64    `json:"received_at"`
}

// NewMQTTPublisher connects to the broker. onCommand is invoked for
// every message on <base_topic>/commands/<name>.
func NewMQTTPublisher(config *MQTTConfig, clientID string, onCommand func(name, payload string)) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(clientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetWill(config.BaseTopic+"/status", "offline", config.QoS, true)

	mp := &MQTTPublisher{config: config, onCommand: onCommand}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Println("MQTT: Connected to broker")
		client.Publish(config.BaseTopic+"/status", config.QoS, true, "online")
		mp.subscribeCommands(client)
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT: Connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		log.Println("MQTT: Attempting to reconnect...")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	mp.client = client

	log.Printf("MQTT: Successfully connected to broker: %s", config.Broker)
	return mp, nil
}

func (mp *MQTTPublisher) subscribeCommands(client mqtt.Client) {
	topic := mp.config.BaseTopic + "/commands/#"
	token := client.Subscribe(topic, mp.config.QoS, func(client mqtt.Client, msg mqtt.Message) {
		parts := strings.Split(msg.Topic(), "/")
		name := parts[len(parts)-1]
		if name == "" || name == "commands" {
			log.Printf("MQTT: command without a name on topic %s", msg.Topic())
			return
		}
		if mp.onCommand != nil {
			mp.onCommand(name, string(msg.Payload()))
		}
	})
	if token.Wait() && token.Error() != nil {
		log.Printf("MQTT ERROR: subscribe to %s failed: %v", topic, token.Error())
		return
	}
	log.Printf("MQTT: Subscribed to %s", topic)
}

// Publish sends one decoded message to <base_topic>/messages/<id>.
func (mp *MQTTPublisher) Publish(msg frame.DecodedMessage) {
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
		log.Printf("MQTT ERROR: marshal failed: %v", err)
		return
	}
	topic := mp.config.BaseTopic + "/messages/" + msg.ProtocolID
	mp.client.Publish(topic, mp.config.QoS, mp.config.Retain, data)
}

// PublishResult sends a command result to
// <base_topic>/messages/result/<name>.
func (mp *MQTTPublisher) PublishResult(name, result string) {
	topic := mp.config.BaseTopic + "/messages/result/" + name
	mp.client.Publish(topic, mp.config.QoS, false, result)
}

// Close publishes the offline status and disconnects.
func (mp *MQTTPublisher) Close() {
	mp.client.Publish(mp.config.BaseTopic+"/status", mp.config.QoS, true, "offline")
	mp.client.Disconnect(250)
}
