package medgraph

import "github.com/ZanzyTHEbar/medgraph-genkit/internal/eventbus"

// WithEventBus sets the event bus component.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(m *MedGraph) {
		m.eventBus = bus
	}
}
