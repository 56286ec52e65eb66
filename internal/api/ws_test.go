package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/wanghui5801/fleetmon/internal/models"
)

func dialWS(t *testing.T, ts *testServer) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWSReceivesStatusChanges(t *testing.T) {
	ts := newTestServer(t, false)
	conn := dialWS(t, ts)

	resp := ts.do(t, http.MethodPost, "/api/nodes/update", "", updateBody("edge-1"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	msg := readMessage(t, conn)
	require.Equal(t, "status_changed", msg.Type)
	var ev models.StatusChange
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	require.Equal(t, models.NodeID("edge-1"), ev.NodeID)
	require.Equal(t, models.StatusRunning, ev.NewStatus)
}

func TestWSAcceptsInlineUpdates(t *testing.T) {
	ts := newTestServer(t, false)
	conn := dialWS(t, ts)

	data, err := json.Marshal(updateBody("edge-1"))
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(wsMessage{Type: "update", Data: data}))

	// The update lands in the registry and fans back out to this
	// same connection.
	msg := readMessage(t, conn)
	require.Equal(t, "status_changed", msg.Type)

	node, err := ts.reg.Get(models.NodeID("edge-1"))
	require.NoError(t, err)
	require.Equal(t, models.StatusRunning, node.Status)
}

func TestWSRejectedUpdateReturnsError(t *testing.T) {
	ts := newTestServer(t, true)
	conn := dialWS(t, ts)

	data, err := json.Marshal(updateBody("intruder"))
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(wsMessage{Type: "update", Data: data}))

	msg := readMessage(t, conn)
	require.Equal(t, "error", msg.Type)
	require.Empty(t, ts.reg.List())
}

func TestWSIgnoresUnknownMessageTypes(t *testing.T) {
	ts := newTestServer(t, false)
	conn := dialWS(t, ts)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "ping"}))

	// The connection stays up and still delivers later events.
	ts.do(t, http.MethodPost, "/api/nodes/update", "", updateBody("edge-1"))
	msg := readMessage(t, conn)
	require.Equal(t, "status_changed", msg.Type)
}
