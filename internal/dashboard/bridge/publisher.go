// Package bridge connects the dashboard to kafka: it mirrors fan-out events
// onto a topic for external consumers and ingests coordinator target-state
// updates from a feed topic.
package bridge

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"dut-dashboard-service/internal/dashboard/config"
	"dut-dashboard-service/internal/dashboard/events"
)

// Publisher mirrors every fan-out event to the events topic, keyed by target
// name so per-target ordering survives partitioning. Publish failures are
// logged and dropped; kafka consumers reconcile like websocket clients do.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(settings config.Settings) *Publisher {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      settings.KafkaBrokers,
		Topic:        settings.EventsTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: int(kafka.RequireOne),
		Async:        false,
	})
	log.Printf("Kafka event bridge configured for topic: %s", settings.EventsTopic)
	return &Publisher{writer: writer}
}

// Broadcast implements events.Broadcaster.
func (p *Publisher) Broadcast(targetName string, ev events.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Kafka bridge: failed to marshal %s event: %v", ev.Type, err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := kafka.Message{Key: []byte(targetName), Value: payload}
	if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
		log.Printf("Kafka bridge: failed to publish %s event for %q: %v", ev.Type, targetName, err)
	}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
