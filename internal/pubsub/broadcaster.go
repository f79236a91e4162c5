package pubsub

import "context"

// Broadcaster publishes outbound messages; data is JSON-encoded unless it is already []byte
type Broadcaster interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Health(ctx context.Context) error
}

// Handler receives one inbound message
type Handler func(ctx context.Context, subject string, data []byte)
