package relay

import "context"

type Message struct {
	Subject string
	Payload []byte
}

// Broker carries encoded market data to other processes. Delivery is
// at-most-once: slow subscribers lose messages rather than stall the publisher.
type Broker interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	// Subscribe accepts NATS-style patterns ("md.trade.*", "md.>"). The
	// channel closes when ctx is done.
	Subscribe(ctx context.Context, subjects []string) (<-chan Message, error)
	Close() error
}
