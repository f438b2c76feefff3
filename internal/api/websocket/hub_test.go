package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/OpenPendantBridge/internal/machine"
	"github.com/KevinKickass/OpenPendantBridge/internal/types"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type staticStatus struct{}

func (staticStatus) GetStatus() any {
	return map[string]string{"display_mode": "machine"}
}

func startHub(t *testing.T) (*Hub, *gorilla.Conn) {
	t.Helper()

	hub := NewHub(zaptest.NewLogger(t))
	hub.SetStatusProvider(staticStatus{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)
	return hub, conn
}

func readMessage(t *testing.T, conn *gorilla.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubSendsStatusOnConnect(t *testing.T) {
	_, conn := startHub(t)

	msg := readMessage(t, conn)
	assert.Equal(t, "bridge_status", msg["type"])
	assert.Equal(t, map[string]any{"display_mode": "machine"}, msg["data"])
}

func TestHubBroadcastsBridgeEvents(t *testing.T) {
	hub, conn := startHub(t)
	readMessage(t, conn)

	hub.OnCommand(types.NewLine(types.SourceButton, "$X"), false)
	hub.OnDiagnostic(errors.New("cannot home in state Run"))
	hub.OnDisplayMode(true)

	msg := readMessage(t, conn)
	assert.Equal(t, "command", msg["type"])
	assert.Equal(t, map[string]any{"source": "button", "text": "$X", "dry_run": false}, msg["data"])

	msg = readMessage(t, conn)
	assert.Equal(t, "diagnostic", msg["type"])
	assert.Equal(t, "cannot home in state Run", msg["data"].(map[string]any)["message"])

	msg = readMessage(t, conn)
	assert.Equal(t, "display_mode", msg["type"])
	assert.Equal(t, "work", msg["data"].(map[string]any)["mode"])
}

func TestHubWatchTransitions(t *testing.T) {
	hub, conn := startHub(t)
	readMessage(t, conn)

	ch := make(chan machine.Transition, 1)
	go hub.WatchTransitions(context.Background(), ch)

	ch <- machine.Transition{From: machine.StateIdle, To: machine.StateRun}
	close(ch)

	msg := readMessage(t, conn)
	assert.Equal(t, "machine_state", msg["type"])
	assert.Equal(t, map[string]any{"state": "Run", "previous_state": "Idle"}, msg["data"])
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub, conn := startHub(t)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestMessageJSON(t *testing.T) {
	data, err := json.Marshal(NewDisplayModeMessage(false))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"display_mode"`)
	assert.Contains(t, string(data), `"mode":"machine"`)
}
