package outbox

import "time"

const (
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusFailed    = "failed"
)

// Message is the outbox row persisted inside the same transaction as pool
// state changes. The worker relay reads pending rows in insertion order and
// publishes them to the event sink.
type Message struct {
	ID           string
	EventType    string
	PartitionKey string
	Payload      []byte
	Status       string
	RetryCount   int
	CreatedAt    time.Time
	PublishedAt  *time.Time
}
