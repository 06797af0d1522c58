package events

import "time"

// Event is anything published on the training bus.
type Event interface {
	Type() string
	Timestamp() time.Time
	// RunID is the experiment id (training.xpid).
	RunID() string
}

// header carries the fields every training event shares.
type header struct {
	EventType string    `json:"type"`
	Time      time.Time `json:"timestamp"`
	Run       string    `json:"run_id"`
}

func newHeader(eventType, runID string) header {
	return header{EventType: eventType, Time: time.Now(), Run: runID}
}

func (h header) Type() string         { return h.EventType }
func (h header) Timestamp() time.Time { return h.Time }
func (h header) RunID() string        { return h.Run }

// EventHandler handles one event. Handlers run on the publishing goroutine,
// often a learner, and must not block.
type EventHandler func(Event)

// Subscriber receives every event type it is interested in.
type Subscriber interface {
	ID() string
	HandleEvent(Event)
	InterestedIn(eventType string) bool
}

// Publisher is what workers need from the bus. A nil Publisher in a
// worker's deps disables publishing.
type Publisher interface {
	Publish(Event)
}
