// Package mail sends outbound email. Dispatch is fire-and-forget from the
// caller's point of view: a failed delivery is logged and never surfaced
// back to the request that triggered it.
package mail

import (
	"context"
	"encoding/json"
)

// Message is a single outbound email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Mailer delivers or enqueues a message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Encode serializes a message for the queue path.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode parses a queued message payload.
func Decode(data []byte) (Message, error) {
	var msg Message
	err := json.Unmarshal(data, &msg)
	return msg, err
}
