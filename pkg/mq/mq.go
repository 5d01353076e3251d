package mq

import "context"

// Publisher fans task events out to whoever is listening. Implementations
// must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Subscriber delivers messages for a topic until ctx is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler func([]byte) error) error
}

type Noop struct{}

func (Noop) Publish(context.Context, string, []byte) error { return nil }

func (Noop) Subscribe(ctx context.Context, _ string, _ func([]byte) error) error {
	<-ctx.Done()
	return nil
}
