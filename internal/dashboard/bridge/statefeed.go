package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"dut-dashboard-service/internal/dashboard/config"
	"dut-dashboard-service/internal/dashboard/coordinator"
	"dut-dashboard-service/internal/dashboard/models"
)

// StateFeed consumes coordinator target-state updates
// ({name, status, acquired_by}) from kafka and applies them to the registry.
type StateFeed struct {
	reader   *kafka.Reader
	registry *coordinator.Registry

	// OnChange is invoked for every update that changed a target's state.
	OnChange func(target models.Target)
}

func NewStateFeed(settings config.Settings, registry *coordinator.Registry) *StateFeed {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        settings.KafkaBrokers,
		GroupID:        settings.StateFeedGroupID,
		Topic:          settings.TargetStateTopic,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        3 * time.Second,
	})
	log.Printf("Kafka state feed configured for topic: %s, groupID: %s", settings.TargetStateTopic, settings.StateFeedGroupID)
	return &StateFeed{reader: reader, registry: registry}
}

// StartConsuming reads feed messages until the context is cancelled.
func (f *StateFeed) StartConsuming(ctx context.Context) {
	log.Println("State feed starting to consume target updates...")
	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Println("State feed: context cancelled, stopping consumer.")
				return
			default:
				readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				msg, err := f.reader.ReadMessage(readCtx)
				cancel()

				if err == context.DeadlineExceeded {
					continue
				}
				if err == context.Canceled {
					log.Println("State feed: read context cancelled.")
					return
				}
				if err == io.EOF {
					log.Println("State feed: kafka reader closed (EOF), stopping consumption.")
					return
				}
				if err != nil {
					log.Printf("State feed: error reading message: %v", err)
					time.Sleep(1 * time.Second)
					continue
				}

				var update models.TargetStateUpdate
				if err := json.Unmarshal(msg.Value, &update); err != nil {
					log.Printf("State feed: error unmarshalling update: %v. Value: %s", err, string(msg.Value))
					continue
				}
				if update.Name == "" {
					log.Printf("State feed: dropping update without target name: %s", string(msg.Value))
					continue
				}

				target, changed := f.registry.Apply(update)
				if changed && f.OnChange != nil {
					f.OnChange(target)
				}
			}
		}
	}()
}

func (f *StateFeed) Close() {
	if f.reader != nil {
		log.Println("State feed: closing kafka reader.")
		f.reader.Close()
	}
}
