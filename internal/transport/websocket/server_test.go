package websocket

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/tictactoe/internal/config"
	"github.com/cory-johannsen/tictactoe/internal/game/session"
	"github.com/cory-johannsen/tictactoe/internal/gameserver"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:           "127.0.0.1",
		Port:           0,
		PongWait:       5 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     32,
		AllowedOrigins: []string{"http://allowed.example"},
	}
}

type harness struct {
	srv  *Server
	http *httptest.Server
	reg  *session.Registry
}

func newHarness(t *testing.T, cfg config.ServerConfig, tweaks ...func(*Server)) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	reg := session.NewRegistry()
	hub := NewHub(logger)
	svc := gameserver.NewService(reg, hub, nil, logger)
	srv := NewServer(cfg, hub, svc, logger)
	for _, tweak := range tweaks {
		tweak(srv)
	}
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		srv.Stop()
		ts.Close()
	})
	return &harness{srv: srv, http: ts, reg: reg}
}

func (h *harness) dial(t *testing.T) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *gorilla.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func expect(t *testing.T, conn *gorilla.Conn, event string) json.RawMessage {
	t.Helper()
	f := readFrame(t, conn)
	require.Equal(t, event, f.Event, "payload: %s", f.Data)
	return f.Data
}

func sendFrame(t *testing.T, conn *gorilla.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

func TestServer_RoundTrip(t *testing.T) {
	h := newHarness(t, testServerConfig())

	alice := h.dial(t)
	var hello gameserver.ConnectedPayload
	require.NoError(t, json.Unmarshal(expect(t, alice, gameserver.EventConnected), &hello))
	require.NotEmpty(t, hello.ClientID)

	sendFrame(t, alice, gameserver.EventCreateRoom, map[string]any{"player_name": "Alice", "grid_size": 3})
	var created gameserver.RoomCreatedPayload
	require.NoError(t, json.Unmarshal(expect(t, alice, gameserver.EventRoomCreated), &created))
	assert.Len(t, created.RoomID, 8)
	assert.Equal(t, hello.ClientID, created.PlayerID)

	bob := h.dial(t)
	expect(t, bob, gameserver.EventConnected)
	sendFrame(t, bob, gameserver.EventJoinRoom, map[string]any{"room_id": created.RoomID, "player_name": "Bob"})
	expect(t, bob, gameserver.EventRoomJoined)
	expect(t, bob, gameserver.EventGameStart)
	expect(t, alice, gameserver.EventPlayerJoined)
	expect(t, alice, gameserver.EventGameStart)

	sendFrame(t, alice, gameserver.EventMakeMove, map[string]any{"room_id": created.RoomID, "position": 4})
	var moved gameserver.MoveMadePayload
	require.NoError(t, json.Unmarshal(expect(t, bob, gameserver.EventMoveMade), &moved))
	assert.Equal(t, 4, moved.Position)
	assert.Equal(t, "Alice", moved.PlayerName)
	expect(t, alice, gameserver.EventMoveMade)

	sendFrame(t, bob, gameserver.EventMakeMove, map[string]any{"room_id": created.RoomID, "position": 4})
	var bad gameserver.ErrorPayload
	require.NoError(t, json.Unmarshal(expect(t, bob, gameserver.EventError), &bad))
	assert.Equal(t, "Invalid move", bad.Message)

	require.NoError(t, alice.Close())
	var term gameserver.SessionTerminatedPayload
	require.NoError(t, json.Unmarshal(expect(t, bob, gameserver.EventSessionTerminated), &term))
	assert.Equal(t, gameserver.ReasonPlayerDisconnect, term.Reason)

	require.Eventually(t, func() bool { return h.reg.RoomCount() == 0 && h.srv.hub.Count() == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestServer_MalformedFrame(t *testing.T) {
	h := newHarness(t, testServerConfig())
	conn := h.dial(t)
	expect(t, conn, gameserver.EventConnected)

	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte("{nope")))
	var e gameserver.ErrorPayload
	require.NoError(t, json.Unmarshal(expect(t, conn, gameserver.EventError), &e))
	assert.Equal(t, "Malformed message", e.Message)
}

func TestServer_RejectsForeignOrigin(t *testing.T) {
	h := newHarness(t, testServerConfig())
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"

	_, resp, err := gorilla.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := gorilla.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://allowed.example"}})
	require.NoError(t, err)
	_ = conn.Close()
}

func TestServer_Health(t *testing.T) {
	h := newHarness(t, testServerConfig(), func(s *Server) {
		s.now = func() time.Time { return time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC) }
	})

	resp, err := http.Get(h.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"healthy","timestamp":"2026-05-06T07:08:09Z"}`, string(body))
}

func TestServer_StaticFallsBackToIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))

	cfg := testServerConfig()
	cfg.StaticDir = dir
	h := newHarness(t, cfg)

	get := func(path string) string {
		resp, err := http.Get(h.http.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(b)
	}

	assert.Equal(t, "console.log(1)", get("/app.js"))
	assert.Equal(t, "<html>app</html>", get("/"))
	assert.Equal(t, "<html>app</html>", get("/room/ABCD1234"))
}

func TestServer_ListenAndServeStop(t *testing.T) {
	logger := zaptest.NewLogger(t)
	hub := NewHub(logger)
	svc := gameserver.NewService(session.NewRegistry(), hub, nil, logger)
	srv := NewServer(testServerConfig(), hub, svc, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	require.Eventually(t, func() bool { return srv.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	conn, _, err := gorilla.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws", nil)
	require.NoError(t, err)
	expect(t, conn, gameserver.EventConnected)

	srv.Stop()
	require.NoError(t, <-errCh)
	assert.Equal(t, 0, hub.Count())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "connection is closed on stop")
}

func TestServer_AdmitRefusesAfterStop(t *testing.T) {
	logger := zaptest.NewLogger(t)
	hub := NewHub(logger)
	srv := NewServer(testServerConfig(), hub, gameserver.NewService(session.NewRegistry(), hub, nil, logger), logger)

	early := detachedClient(t, "early", 4)
	require.True(t, srv.admit(early))
	assert.Equal(t, 1, hub.Count())

	srv.Stop()
	select {
	case <-early.done:
	default:
		t.Fatal("registered connection was left open")
	}

	// Upgraded while Stop was closing every registered client.
	late := detachedClient(t, "late", 4)
	assert.False(t, srv.admit(late))
	hub.mu.RLock()
	_, registered := hub.clients["late"]
	hub.mu.RUnlock()
	assert.False(t, registered)
	select {
	case <-late.done:
	default:
		t.Fatal("late connection was left open")
	}
}
