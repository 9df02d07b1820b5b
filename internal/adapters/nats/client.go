package natsadapter

import (
	"context"
	"encoding/json"
	"time"

	nats "github.com/nats-io/nats.go"
)

// EventClient publishes account lifecycle events. The notification module
// of the portfolio backend consumes them to greet new users.
type EventClient struct {
	conn    *nats.Conn
	subject string
}

func NewEventClient(conn *nats.Conn, subject string) *EventClient {
	return &EventClient{conn: conn, subject: subject}
}

func (c *EventClient) UserRegistered(ctx context.Context, userID, email string) error {
	payload := map[string]interface{}{
		"user_id":       userID,
		"email":         email,
		"registered_at": time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.conn.Publish(c.subject, data)
}
