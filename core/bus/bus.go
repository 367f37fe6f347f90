// Package bus abstracts the topic-addressed publish/subscribe medium that
// couples the coordinator, the taxi engines and the customers once a taxi
// is past the handshake phase. The broker itself is external; this
// package only defines the relay contract and the topic naming scheme.
package bus

// Handler consumes one message delivered on a subscribed topic. Delivery
// is at-least-once and ordered only within a single topic.
type Handler func(topic string, payload []byte)

// Bus is the relay contract consumed by the core.
type Bus interface {
	// EnsureTopic makes the named topic exist. It is idempotent.
	EnsureTopic(name string) error

	// Publish sends payload on the named topic.
	Publish(topic string, payload []byte) error

	// Subscribe registers h for every message arriving on topic. Each
	// subscription runs on its own worker.
	Subscribe(topic string, h Handler) error

	// Close releases the underlying broker connection.
	Close()
}
