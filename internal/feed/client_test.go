package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ScalpPulse/pkg/logger"
)

// wsServer is a controllable feed endpoint: every accepted connection is
// pushed on conns, and every control frame it receives is pushed on control.
type wsServer struct {
	srv     *httptest.Server
	conns   chan *websocket.Conn
	control chan controlFrame
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	ws := &wsServer{
		conns:   make(chan *websocket.Conn, 4),
		control: make(chan controlFrame, 16),
	}
	upgrader := websocket.Upgrader{}
	ws.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.conns <- conn
		for {
			var frame controlFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			ws.control <- frame
		}
	}))
	t.Cleanup(ws.srv.Close)
	return ws
}

func (ws *wsServer) url() string {
	return "ws" + strings.TrimPrefix(ws.srv.URL, "http")
}

func (ws *wsServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ws.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func (ws *wsServer) nextControl(t *testing.T) controlFrame {
	t.Helper()
	select {
	case frame := <-ws.control:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("no control frame received")
		return controlFrame{}
	}
}

func testClient(ws *wsServer) *Client {
	return New(Config{
		URL:                  ws.url(),
		ReconnectDelay:       10 * time.Millisecond,
		MaxReconnectDelay:    20 * time.Millisecond,
		MaxReconnectAttempts: 3,
	}, "test-token", logger.Nop())
}

func TestReadDeliversTypedEventsAndDropsMalformed(t *testing.T) {
	ws := newWSServer(t)
	client := testClient(ws)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()
	serverConn := ws.accept(t)

	if err := client.Subscribe(ctx, []string{"NSE_INDEX|Nifty Bank"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if frame := ws.nextControl(t); frame.Action != "subscribe" {
		t.Fatalf("control action = %q, want subscribe", frame.Action)
	}

	events, _ := client.Read(ctx)

	writes := []string{
		`{not json`,
		`{"type":"heartbeat"}`,
		`{"type":"tick","instrument_key":"NSE_INDEX|Nifty Bank","ltp":44120.5,"ts":1704445500000}`,
		`{"type":"candle","instrument_key":"NSE_INDEX|Nifty Bank","open":44100,"high":44160,"low":44090,"close":44150,"volume":1200,"ts":1704445560000}`,
	}
	for _, w := range writes {
		if err := serverConn.WriteMessage(websocket.TextMessage, []byte(w)); err != nil {
			t.Fatalf("server write: %v", err)
		}
	}

	ev := <-events
	if ev.Tick == nil || ev.Tick.LTP != 44120.5 {
		t.Fatalf("first event = %+v, want tick ltp 44120.5", ev)
	}
	ev = <-events
	if ev.Candle == nil || ev.Candle.Close != 44150 {
		t.Fatalf("second event = %+v, want candle close 44150", ev)
	}
	if ev.Candle.Interval != "1m" {
		t.Fatalf("candle interval = %q, want default 1m", ev.Candle.Interval)
	}
}

func TestReconnectReissuesSubscriptionSet(t *testing.T) {
	ws := newWSServer(t)
	client := testClient(ws)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()
	first := ws.accept(t)

	subs := []string{"NSE_INDEX|Nifty Bank", "OPT|44100CE", "OPT|44100PE"}
	if err := client.Subscribe(ctx, subs); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	ws.nextControl(t)

	events, errs := client.Read(ctx)
	first.Close() // drop the link under the client

	// The replacement connection must be re-armed with the same set.
	second := ws.accept(t)
	frame := ws.nextControl(t)
	if frame.Action != "subscribe" {
		t.Fatalf("reconnect control action = %q, want subscribe", frame.Action)
	}
	got := append([]string(nil), frame.Instruments...)
	sort.Strings(got)
	want := append([]string(nil), subs...)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("reissued %d instruments, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("reissued set %v, want %v", got, want)
		}
	}

	// And the stream keeps flowing.
	msg := `{"type":"tick","instrument_key":"OPT|44100CE","ltp":180,"ts":1704445620000}`
	if err := second.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("server write: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Tick == nil || ev.Tick.LTP != 180 {
			t.Fatalf("post-reconnect event = %+v, want tick ltp 180", ev)
		}
	case err := <-errs:
		t.Fatalf("unexpected stream error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("no event after reconnect")
	}

	if got := client.State(); got != StateConnected {
		t.Fatalf("state = %v, want CONNECTED", got)
	}
}

func TestReconnectGivesUpAfterAttemptBudget(t *testing.T) {
	ws := newWSServer(t)
	client := testClient(ws)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()
	ws.accept(t)

	_, errs := client.Read(ctx)
	ws.srv.CloseClientConnections()
	ws.srv.Close() // every redial now fails

	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("expected terminal reconnect error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no terminal error after exhausting reconnect attempts")
	}
	if got := client.State(); got != StateFailed {
		t.Fatalf("state = %v, want FAILED", got)
	}
}
