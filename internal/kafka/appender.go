package kafka

import (
	"context"
	"log"
	"sync"
	"time"
)

// OrderEventsTopic is the audit trail of committed order transitions.
const OrderEventsTopic = "order_events"

const sendTimeout = 5 * time.Second

type record struct {
	key     []byte
	payload []byte
}

// Appender buffers committed order events and ships them to Kafka off the
// commit path. Append never blocks the caller; when the buffer is full the
// record is dropped and logged, never retried.
type Appender struct {
	producer Producer
	topic    string

	input      chan record
	shutdownCh chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
}

func NewAppender(producer Producer, topic string, bufSize int) *Appender {
	return &Appender{
		producer:   producer,
		topic:      topic,
		input:      make(chan record, bufSize),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Append queues one event keyed by order id.
func (a *Appender) Append(orderID string, payload []byte) {
	select {
	case a.input <- record{key: []byte(orderID), payload: payload}:
	default:
		log.Printf("ERROR: audit appender buffer full, dropping event for order %s", orderID)
	}
}

// Run consumes the buffer until shutdown, draining what is already queued.
func (a *Appender) Run(ctx context.Context) {
	log.Println("Starting order-event appender...")
	defer close(a.done)

	for {
		select {
		case rec := <-a.input:
			a.send(rec)
		case <-a.shutdownCh:
			a.drain()
			return
		case <-ctx.Done():
			a.drain()
			return
		}
	}
}

func (a *Appender) drain() {
	for {
		select {
		case rec := <-a.input:
			a.send(rec)
		default:
			return
		}
	}
}

func (a *Appender) send(rec record) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := a.producer.SendMessage(ctx, a.topic, rec.key, rec.payload); err != nil {
		log.Printf("ERROR: failed to append order event for key %s: %v", rec.key, err)
	}
}

// Shutdown stops Run and waits for the queue to drain.
func (a *Appender) Shutdown() {
	a.stopOnce.Do(func() {
		log.Println("Initiating order-event appender shutdown...")
		close(a.shutdownCh)

		select {
		case <-a.done:
			log.Println("Order-event appender shutdown complete.")
		case <-time.After(30 * time.Second):
			log.Println("WARN: order-event appender shutdown timed out.")
		}

		if err := a.producer.Close(); err != nil {
			log.Printf("ERROR: failed to close Kafka producer: %v", err)
		}
	})
}
