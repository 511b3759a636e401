package ws

import (
	"time"

	"go_maintenance/internal/maintenance/lifecycle"
)

// Broadcaster sends an event to every connected client
type Broadcaster interface {
	BroadcastToAll(event string, data interface{})
}

// Update is the payload of EventUpdate
type Update struct {
	lifecycle.Event
	Timestamp time.Time `json:"timestamp"`
}

// Publisher forwards committed lifecycle changes to connected clients.
// Broadcast failures never affect the mutation that caused them.
type Publisher struct {
	out Broadcaster
	now func() time.Time
}

// NewPublisher creates a lifecycle notifier backed by out
func NewPublisher(out Broadcaster) *Publisher {
	return &Publisher{out: out, now: time.Now}
}

// Notify implements lifecycle.Notifier
func (p *Publisher) Notify(ev lifecycle.Event) {
	if p.out == nil {
		return
	}
	p.out.BroadcastToAll(EventUpdate, Update{Event: ev, Timestamp: p.now()})
}
