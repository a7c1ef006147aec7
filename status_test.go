package suitcap

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	zmq "github.com/pebbe/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilPublisher(t *testing.T) {
	var p *StatusPublisher
	assert.NoError(t, p.Publish(StatusTag, StatusReport{}))
	assert.NoError(t, p.Close())
}

func TestStatusPublisher(t *testing.T) {
	const port = 35871
	pub, err := NewStatusPublisher(port)
	if err != nil {
		t.Skipf("cannot bind ZMQ publisher: %v", err)
	}
	defer pub.Close()

	sub, err := zmq.NewSocket(zmq.SUB)
	require.NoError(t, err)
	defer sub.Close()
	require.NoError(t, sub.Connect(fmt.Sprintf("tcp://localhost:%d", port)))
	require.NoError(t, sub.SetSubscribe(SessionTag))
	require.NoError(t, sub.SetRcvtimeo(100*time.Millisecond))

	session := &CaptureSession{Index: 1, Path: "a.0001.bin", ExpectedRecords: 8, AcceptedRecords: 8}
	msg := newSessionMessage("RUN", "close", session, 3, time.Now())

	// PUB drops messages until the subscription has propagated, so keep
	// publishing until one arrives.
	var parts []string
	for i := 0; i < 50 && len(parts) == 0; i++ {
		require.NoError(t, pub.Publish(SessionTag, msg))
		parts, _ = sub.RecvMessage(0)
	}
	require.Len(t, parts, 2, "no SESSION message received")
	assert.Equal(t, SessionTag, parts[0])
	var got SessionMessage
	require.NoError(t, json.Unmarshal([]byte(parts[1]), &got))
	assert.Equal(t, msg, got)
	assert.NoError(t, pub.Close())
	assert.NoError(t, pub.Close())
}
