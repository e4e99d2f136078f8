// state-agent runs next to the lab network, polls the coordinator for place
// states and publishes changes to the target-state kafka topic consumed by
// the dashboard.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"dut-dashboard-service/internal/dashboard/config"
	"dut-dashboard-service/internal/dashboard/gateway"
	"dut-dashboard-service/internal/dashboard/models"
)

func main() {
	log.Println("Starting DUT state agent...")

	settings := config.Load()
	gw := gateway.New(settings)

	producer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      settings.KafkaBrokers,
		Topic:        settings.TargetStateTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: int(kafka.RequireOne),
		Async:        false,
	})
	defer producer.Close()
	log.Printf("State agent kafka producer configured for topic: %s", settings.TargetStateTopic)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := <-signals
		log.Printf("State agent: shutdown signal received (%s). Cancelling context...", sig)
		cancel()
	}()

	lastSeen := make(map[string]models.TargetStateUpdate)

	publish := func(update models.TargetStateUpdate) {
		payload, err := json.Marshal(update)
		if err != nil {
			log.Printf("State agent: error marshalling update for %q: %v", update.Name, err)
			return
		}
		writeCtx, writeCancel := context.WithTimeout(ctx, 10*time.Second)
		defer writeCancel()
		msg := kafka.Message{Key: []byte(update.Name), Value: payload}
		if err := producer.WriteMessages(writeCtx, msg); err != nil {
			log.Printf("State agent: error publishing update for %q: %v", update.Name, err)
			return
		}
		log.Printf("State agent: published %s -> %s", update.Name, update.Status)
	}

	pollOnce := func() {
		targets, err := gw.Places(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("State agent: failed to list places: %v", err)
			}
			return
		}

		seen := make(map[string]bool, len(targets))
		for _, t := range targets {
			seen[t.Name] = true
			update := models.TargetStateUpdate{Name: t.Name, Status: t.Status, AcquiredBy: t.AcquiredBy}
			if last, ok := lastSeen[t.Name]; ok && last == update {
				continue
			}
			lastSeen[t.Name] = update
			publish(update)
		}

		// Places that disappeared from the coordinator are reported offline.
		for name := range lastSeen {
			if seen[name] {
				continue
			}
			update := models.TargetStateUpdate{Name: name, Status: models.StatusOffline}
			if lastSeen[name] == update {
				continue
			}
			lastSeen[name] = update
			publish(update)
		}
	}

	log.Printf("State agent polling every %s...", settings.PollInterval)
	pollOnce()
	ticker := time.NewTicker(settings.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("State agent: context cancelled. Exiting poll loop.")
			return
		case <-ticker.C:
			pollOnce()
		}
	}
}
