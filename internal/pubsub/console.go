package pubsub

import (
	"context"
	"log"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/realtime"
)

// ConsoleBridge logs publishes instead of reaching Redis. Single-instance
// development fallback.
type ConsoleBridge struct{}

func NewConsoleBridge() *ConsoleBridge {
	log.Println("Initialized console pub/sub bridge (single instance mode)")
	return &ConsoleBridge{}
}

func (b *ConsoleBridge) Publish(_ context.Context, room realtime.Room, payload []byte) error {
	log.Printf("PUBSUB (CONSOLE): room=%s payload=%s", room, payload)
	return nil
}

func (b *ConsoleBridge) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
