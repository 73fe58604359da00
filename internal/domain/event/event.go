package event

import (
	"encoding/json"
	"fmt"
)

const (
	TopicNewURLs   = "new-urls"
	TopicURLClicks = "update-urls"
)

const (
	HeaderContentType = "content-type"
	HeaderEventID     = "event_id"
	HeaderEventType   = "event_type"

	ContentTypeJSON = "application/json"
)

// Event is a message published on one of the pipeline topics.
type Event interface {
	// EventID is the message id. Click events carry their idempotence key here.
	EventID() string
	// EventName is sent as the event_type header.
	EventName() string
	// Topic the event is routed to.
	Topic() string
	// PartitionKey groups events of the same url.
	PartitionKey() string
}

// Headers returns the transport headers every event carries.
func Headers(e Event) map[string]string {
	return map[string]string{
		HeaderContentType: ContentTypeJSON,
		HeaderEventID:     e.EventID(),
		HeaderEventType:   e.EventName(),
	}
}

// Encode serializes an event payload.
func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.EventName(), err)
	}
	return data, nil
}

// Decode parses a payload produced by Encode.
func Decode[T Event](payload []byte) (T, error) {
	var e T
	if err := json.Unmarshal(payload, &e); err != nil {
		return e, fmt.Errorf("decode %T: %w", e, err)
	}
	return e, nil
}
