package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Handler processes one message received on a channel.
type Handler func(ctx context.Context, payload []byte) error

// Consume subscribes to channel and feeds every message to handle until ctx
// is cancelled. Handler errors go to onError and do not stop consumption.
func Consume(ctx context.Context, broker Broker, channel string, handle Handler, onError func(error)) error {
	messages, err := broker.Subscribe(ctx, channel)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			if err := handle(ctx, msg); err != nil && onError != nil {
				onError(err)
			}
		}
	}()
	return nil
}
