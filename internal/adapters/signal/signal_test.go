package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/StreamRelay/internal/app"
	"github.com/dkeye/StreamRelay/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func testConfig() Config {
	return Config{
		ReadLimit:  4096,
		PingPeriod: time.Second,
		PongWait:   2 * time.Second,
		WriteWait:  time.Second,
		SendBuffer: 8,
	}
}

func newServer(t *testing.T) (*app.Orchestrator, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := core.NewSubscriberRegistry()
	orch := app.NewOrchestrator(core.NewSessionTable(), reg, app.NewDispatcher(reg, nil, nil), nil)
	ctl := NewSignalWSController(orch, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return orch, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readJSON(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("bad frame %q: %v", data, err)
	}
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSubscriberReceivesLifecycle(t *testing.T) {
	orch, url := newServer(t)
	ws := dial(t, url)

	hello := readJSON(t, ws)
	if hello["type"] != core.MessageHello || hello["subscriber_id"] == "" {
		t.Fatalf("hello = %v", hello)
	}
	waitFor(t, "registration", func() bool { return orch.Registry.Len() == 1 })

	if err := orch.OnPrePublish("/live/cam1", "pub"); err != nil {
		t.Fatal(err)
	}
	orch.OnDonePublish("/live/cam1", "pub")

	started := readJSON(t, ws)
	ended := readJSON(t, ws)
	if started["status"] != core.StatusStarted || ended["status"] != core.StatusEnded {
		t.Fatalf("got %v then %v", started, ended)
	}
	if started["path"] != "/live/cam1" || started["type"] != core.NotificationType {
		t.Fatalf("started = %v", started)
	}
}

func TestClientMessages(t *testing.T) {
	orch, url := newServer(t)
	orch.OnPrePublish("/live/a", "pub")
	ws := dial(t, url)
	readJSON(t, ws) // hello

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatal(err)
	}
	if m := readJSON(t, ws); m["type"] != core.MessagePong {
		t.Fatalf("ping reply = %v", m)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"list"}`)); err != nil {
		t.Fatal(err)
	}
	m := readJSON(t, ws)
	if m["type"] != core.MessageStreams || len(m["streams"].([]any)) != 1 {
		t.Fatalf("list reply = %v", m)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatal(err)
	}
	if m := readJSON(t, ws); m["type"] != core.MessageError {
		t.Fatalf("bad payload reply = %v", m)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	orch, url := newServer(t)
	ws := dial(t, url)
	readJSON(t, ws)
	waitFor(t, "registration", func() bool { return orch.Registry.Len() == 1 })

	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ws.Close()

	waitFor(t, "unregistration", func() bool { return orch.Registry.Len() == 0 })
}

func TestTrySendBackpressure(t *testing.T) {
	c := &WsSignalConn{id: "x", send: make(chan core.Frame, 1)}
	if err := c.TrySend(core.Frame("a")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := c.TrySend(core.Frame("b")); !errors.Is(err, ErrBackpressure) {
		t.Fatalf("err = %v, want ErrBackpressure", err)
	}
	c.closed = true
	if err := c.TrySend(core.Frame("c")); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestStreamListsHidePublisherID(t *testing.T) {
	orch, url := newServer(t)
	if err := orch.OnPrePublish("/live/a", "rtmp-conn-secret"); err != nil {
		t.Fatal(err)
	}
	ws := dial(t, url)

	hello := readJSON(t, ws)
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"list"}`)); err != nil {
		t.Fatal(err)
	}
	list := readJSON(t, ws)

	for _, m := range []map[string]any{hello, list} {
		streams := m["streams"].([]any)
		if len(streams) != 1 {
			t.Fatalf("%v: streams = %v", m["type"], streams)
		}
		if id, ok := streams[0].(map[string]any)["publisher_id"]; ok {
			t.Fatalf("%v exposes publisher id %v", m["type"], id)
		}
	}
}
