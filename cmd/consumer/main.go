package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/config"
	appkafka "gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/kafka"
)

const groupID = "order-events-consumer-group"

// Standalone reader for the order event trail. Useful during development to
// watch transitions flow through the topic.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	brokers := cfg.KafkaBrokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	log.Println("Starting order-events consumer...")

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          appkafka.OrderEventsTopic,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        3 * time.Second,
	})
	defer func() {
		log.Println("Closing Kafka reader...")
		if err := r.Close(); err != nil {
			log.Printf("Error closing Kafka reader: %v", err)
		}
	}()

	log.Printf("Consumer connected to topic '%s' on brokers %s",
		appkafka.OrderEventsTopic, strings.Join(brokers, ","))

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("Shutdown signal received, stopping consumer.")
				return
			}
			log.Printf("Error reading message: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		fmt.Printf("[%s] partition=%d offset=%d order=%s %s\n",
			m.Time.Format(time.RFC3339), m.Partition, m.Offset, string(m.Key), string(m.Value))
	}
}
