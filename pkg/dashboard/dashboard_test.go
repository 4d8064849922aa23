package dashboard

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cyrilix/robocar-arcourse/pkg/vehicle"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stateMessage struct {
	MessageType string           `json:"type"`
	Body        vehicle.Snapshot `json:"body"`
}

func readState(t *testing.T, conn *websocket.Conn) stateMessage {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg stateMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestServer_StreamSnapshots(t *testing.T) {
	s := New("127.0.0.1:0")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	s.PublishSnapshot(vehicle.Snapshot{Speed: 1, MaxSpeed: 5})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := readState(t, conn)
	assert.Equal(t, "state", msg.MessageType)
	assert.Equal(t, 1., msg.Body.Speed)

	s.PublishSnapshot(vehicle.Snapshot{Speed: 2, MaxSpeed: 5, LeftPassed: true})
	msg = readState(t, conn)
	assert.Equal(t, 2., msg.Body.Speed)
	assert.True(t, msg.Body.LeftPassed)
}

func TestServer_ClientGone(t *testing.T) {
	s := New("127.0.0.1:0")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	s.PublishSnapshot(vehicle.Snapshot{})
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	readState(t, conn)
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		s.muClients.Lock()
		defer s.muClients.Unlock()
		return len(s.clients) == 0
	}, time.Second, 10*time.Millisecond)

	s.PublishSnapshot(vehicle.Snapshot{Speed: 3})
}
