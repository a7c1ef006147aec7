package suitcap

// Contains the StatusPublisher object, which publishes JSON-encoded messages
// giving the latest capture state to any ZMQ subscriber.

import (
	"encoding/json"
	"fmt"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// Tags that head each published message.
const (
	StatusTag  = "STATUS"
	SessionTag = "SESSION"
)

// Publisher receives status messages. A nil *StatusPublisher is a valid
// Publisher that discards everything.
type Publisher interface {
	Publish(tag string, v any) error
}

// StatusPublisher owns a ZMQ PUB socket.
type StatusPublisher struct {
	sock *zmq.Socket
	Port int
}

// NewStatusPublisher binds a PUB socket on all interfaces at port.
func NewStatusPublisher(port int) (*StatusPublisher, error) {
	sock, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, err
	}
	// Never let Close block on unsent status messages.
	if err := sock.SetLinger(0); err != nil {
		sock.Close()
		return nil, err
	}
	hostname := fmt.Sprintf("tcp://*:%d", port)
	if err := sock.Bind(hostname); err != nil {
		sock.Close()
		return nil, fmt.Errorf("could not bind status publisher to %s: %w", hostname, err)
	}
	return &StatusPublisher{sock: sock, Port: port}, nil
}

// Publish sends v as JSON in a two-part message: the tag, then the payload.
func (p *StatusPublisher) Publish(tag string, v any) error {
	if p == nil || p.sock == nil {
		return nil
	}
	message, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = p.sock.SendMessage(tag, message)
	return err
}

// Close closes the socket.
func (p *StatusPublisher) Close() error {
	if p == nil || p.sock == nil {
		return nil
	}
	err := p.sock.Close()
	p.sock = nil
	return err
}

// SessionMessage is published with SessionTag whenever a session opens or closes.
type SessionMessage struct {
	RunID    string
	Event    string // "open" or "close"
	Index    int
	Sessions int
	Path     string
	Accepted int
	Expected int
	Time     string
}

// newSessionMessage describes session for the status publisher.
func newSessionMessage(runID, event string, session *CaptureSession, nsessions int, now time.Time) SessionMessage {
	return SessionMessage{
		RunID:    runID,
		Event:    event,
		Index:    session.Index,
		Sessions: nsessions,
		Path:     session.Path,
		Accepted: session.AcceptedRecords,
		Expected: session.ExpectedRecords,
		Time:     now.Format(ReceiptTimeLayout),
	}
}
