package bus

import "sync"

// MockBus is an in-memory Bus used in tests. Publish delivers
// synchronously to the registered handlers and records every message.
type MockBus struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	topics   map[string]bool

	// Published maps topic to the payloads published on it, in order.
	Published map[string][][]byte
}

// NewMockBus returns an empty MockBus.
func NewMockBus() *MockBus {
	return &MockBus{
		handlers:  map[string][]Handler{},
		topics:    map[string]bool{},
		Published: map[string][][]byte{},
	}
}

func (m *MockBus) EnsureTopic(name string) error {
	m.mu.Lock()
	m.topics[name] = true
	m.mu.Unlock()
	return nil
}

// HasTopic reports whether EnsureTopic was called for name.
func (m *MockBus) HasTopic(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.topics[name]
}

func (m *MockBus) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	m.Published[topic] = append(m.Published[topic], payload)
	hs := append([]Handler(nil), m.handlers[topic]...)
	m.mu.Unlock()
	for _, h := range hs {
		h(topic, payload)
	}
	return nil
}

func (m *MockBus) Subscribe(topic string, h Handler) error {
	m.mu.Lock()
	m.handlers[topic] = append(m.handlers[topic], h)
	m.mu.Unlock()
	return nil
}

func (m *MockBus) Close() {}

// Messages returns the payloads published on topic.
func (m *MockBus) Messages(topic string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.Published[topic]...)
}

// LastMessage returns the most recent payload published on topic.
func (m *MockBus) LastMessage(topic string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.Published[topic]
	if len(msgs) == 0 {
		return nil, false
	}
	return msgs[len(msgs)-1], true
}
