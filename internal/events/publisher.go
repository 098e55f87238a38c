// Package events publishes report, job and stock changes to an MQTT broker.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Event types.
const (
	ReportSubmitted = "report.submitted"
	ReportApproved  = "report.approved"
	ReportDeclined  = "report.declined"
	JobAccepted     = "job.accepted"
	JobUpdated      = "job.updated"
	JobCompleted    = "job.completed"
	PartAdjusted    = "part.adjusted"
	PartLowStock    = "part.low_stock"
)

var ErrNoBroker = errors.New("MQTT broker is not configured")

// Event is one published change.
type Event struct {
	Type     string    `json:"type"`
	ReportID int64     `json:"report_id,omitempty"`
	JobID    int64     `json:"job_id,omitempty"`
	PartID   string    `json:"part_id,omitempty"`
	Status   string    `json:"status,omitempty"`
	Actor    string    `json:"actor,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Stock    *int      `json:"stock,omitempty"`
	MinStock *int      `json:"min_stock,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher sends events somewhere.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close()
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close()                               {}

// mqttClient is the part of mqtt.Client the publisher uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes JSON events under a topic prefix.
type MQTTPublisher struct {
	client mqttClient
	prefix string
	qos    byte
}

// NewMQTTPublisher connects to broker and returns a publisher for prefix.
func NewMQTTPublisher(broker, clientID, prefix string) (*MQTTPublisher, error) {
	if strings.TrimSpace(broker) == "" {
		return nil, ErrNoBroker
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}

	log.WithFields(log.Fields{
		"broker": broker,
		"prefix": prefix,
	}).Info("Connected to MQTT broker")
	return newMQTTPublisher(client, prefix), nil
}

func newMQTTPublisher(client mqttClient, prefix string) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: strings.Trim(prefix, "/"), qos: 1}
}

// Topic is the topic an event is published on, e.g. fleet/maintenance/report/approved.
func (p *MQTTPublisher) Topic(e Event) string {
	suffix := strings.ReplaceAll(e.Type, ".", "/")
	if p.prefix == "" {
		return suffix
	}
	return p.prefix + "/" + suffix
}

// Publish sends e and waits for the broker acknowledgement or ctx.
func (p *MQTTPublisher) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	topic := p.Topic(e)
	token := p.client.Publish(topic, p.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}
	log.WithFields(log.Fields{"topic": topic, "type": e.Type}).Debug("Published event")
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
