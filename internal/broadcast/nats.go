package broadcast

import (
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher pushes serialized notifications to remote subscribers. No
// delivery acknowledgment is required from the core's perspective.
type Publisher interface {
	Publish(subject string, payload []byte) error
}

// NATS implements Publisher on a core NATS connection.
type NATS struct {
	conn *nats.Conn
}

func Connect(url string, reconnectWait time.Duration, maxReconnects int) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("curvefeed listener"),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
	)
	if err != nil {
		return nil, err
	}
	return &NATS{conn: conn}, nil
}

func (n *NATS) Publish(subject string, payload []byte) error {
	return n.conn.Publish(subject, payload)
}

func (n *NATS) Close() {
	n.conn.Close()
}
