package events

// Subscriber delivers raw draft event payloads from the bus. kb watch reads
// them through this interface; NATSSubscriber is the production source.
type Subscriber interface {
	// Subscribe delivers payloads published on topic (wildcards allowed).
	// The returned cancel func unsubscribes and closes the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}

var _ Subscriber = (*NATSSubscriber)(nil)
