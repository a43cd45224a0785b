package emulator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vovakirdan/wiredrone/internal/auth"
	"github.com/vovakirdan/wiredrone/internal/metrics"
)

func startTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()

	hub := startHub(t, cfg)
	reg := prometheus.NewRegistry()
	router := NewRouter(hub, reg, metrics.New(reg, "emulator"), nil)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts
}

func dialWS(t *testing.T, ts *httptest.Server) (*websocket.Conn, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn, ctx
}

type frame map[string]any

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, f frame) {
	t.Helper()
	if err := wsjson.Write(ctx, conn, f); err != nil {
		t.Fatalf("write %v: %v", f, err)
	}
}

func recv(t *testing.T, ctx context.Context, conn *websocket.Conn) frame {
	t.Helper()
	var f frame
	if err := wsjson.Read(ctx, conn, &f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func TestHealthEndpoint(t *testing.T) {
	ts := startTestServer(t, Config{})

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketSession(t *testing.T) {
	ts := startTestServer(t, Config{})
	conn, ctx := dialWS(t, ts)

	send(t, ctx, conn, frame{"type": "handshake", "channel": "ch", "callback": 1, "client_data": frame{"name": "alice"}})
	reply := recv(t, ctx, conn)
	clientID, _ := reply["client_id"].(string)
	if reply["callback"] != float64(1) || clientID == "" {
		t.Fatalf("unexpected handshake reply: %v", reply)
	}

	send(t, ctx, conn, frame{"type": "subscribe", "room": "observable-lobby", "callback": 2})
	if reply := recv(t, ctx, conn); reply["callback"] != float64(2) || reply["error"] != nil {
		t.Fatalf("unexpected subscribe reply: %v", reply)
	}

	members := recv(t, ctx, conn)
	if members["type"] != "observable_members" || members["room"] != "observable-lobby" {
		t.Fatalf("expected member snapshot, got %v", members)
	}
	list, _ := members["data"].([]any)
	if len(list) != 1 {
		t.Fatalf("expected one member, got %v", members["data"])
	}
	self, _ := list[0].(map[string]any)
	data, _ := self["clientData"].(map[string]any)
	if self["id"] != clientID || data["name"] != "alice" {
		t.Fatalf("unexpected member record: %v", self)
	}

	send(t, ctx, conn, frame{"type": "publish", "room": "observable-lobby", "message": frame{"text": "hi"}})
	msg := recv(t, ctx, conn)
	body, _ := msg["message"].(map[string]any)
	if msg["type"] != "publish" || msg["client_id"] != clientID || body["text"] != "hi" {
		t.Fatalf("unexpected publish event: %v", msg)
	}
}

func TestWebSocketRejectsBadFrames(t *testing.T) {
	ts := startTestServer(t, Config{})
	conn, ctx := dialWS(t, ts)

	if err := conn.Write(ctx, websocket.MessageText, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := recv(t, ctx, conn); f["error"] != "malformed frame" || f["callback"] != nil {
		t.Fatalf("unexpected malformed reply: %v", f)
	}

	send(t, ctx, conn, frame{"type": "teleport", "callback": 5})
	if f := recv(t, ctx, conn); f["callback"] != float64(5) || f["error"] != "unknown message type" {
		t.Fatalf("unexpected unknown-type reply: %v", f)
	}

	send(t, ctx, conn, frame{"type": "subscribe", "room": "general", "callback": 6})
	if f := recv(t, ctx, conn); f["callback"] != float64(6) || f["error"] != "handshake required" {
		t.Fatalf("expected handshake required, got %v", f)
	}
}

func TestWebSocketPublishRate(t *testing.T) {
	ts := startTestServer(t, Config{PublishRate: 1})
	conn, ctx := dialWS(t, ts)

	send(t, ctx, conn, frame{"type": "handshake", "channel": "ch", "callback": 1})
	recv(t, ctx, conn)
	send(t, ctx, conn, frame{"type": "subscribe", "room": "general", "callback": 2})
	recv(t, ctx, conn)

	send(t, ctx, conn, frame{"type": "publish", "room": "general", "message": "one"})
	if f := recv(t, ctx, conn); f["type"] != "publish" || f["message"] != "one" {
		t.Fatalf("first publish must be delivered, got %v", f)
	}

	send(t, ctx, conn, frame{"type": "publish", "room": "general", "message": "two", "callback": 3})
	if f := recv(t, ctx, conn); f["callback"] != float64(3) || f["error"] != "rate limit exceeded" {
		t.Fatalf("expected rate limit error, got %v", f)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := startTestServer(t, Config{})
	conn, ctx := dialWS(t, ts)

	send(t, ctx, conn, frame{"type": "handshake", "channel": "ch", "callback": 1})
	recv(t, ctx, conn)

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{"wiredrone_emulator_connections 1", `wiredrone_emulator_frames_received_total{kind="handshake"} 1`} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestRoomEndpoints(t *testing.T) {
	jwtCfg := &auth.JWTConfig{Secret: []byte("testsecret"), TTL: time.Minute}
	ts := startTestServer(t, Config{JWT: jwtCfg})
	conn, ctx := dialWS(t, ts)

	send(t, ctx, conn, frame{"type": "handshake", "channel": "ch", "callback": 1})
	recv(t, ctx, conn)
	send(t, ctx, conn, frame{"type": "subscribe", "room": "alerts", "callback": 2})
	recv(t, ctx, conn)

	resp, err := ts.Client().Get(ts.URL + "/rooms")
	if err != nil {
		t.Fatalf("rooms request failed: %v", err)
	}
	var rooms []RoomInfo
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	resp.Body.Close()
	if len(rooms) != 1 || rooms[0] != (RoomInfo{Name: "alerts", Members: 1}) {
		t.Fatalf("unexpected rooms: %+v", rooms)
	}

	publish := func(token, body string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/rooms/alerts/publish", strings.NewReader(body))
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := ts.Client().Do(req)
		if err != nil {
			t.Fatalf("publish request failed: %v", err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	if resp := publish("", `{"level":"high"}`); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	readOnly, err := auth.GenerateToken(jwtCfg, auth.Claims{Permissions: map[string]auth.Permission{".*": {Subscribe: true}}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp := publish(readOnly, `{"level":"high"}`); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without publish permission, got %d", resp.StatusCode)
	}

	token, err := auth.GenerateToken(jwtCfg, auth.Claims{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp := publish(token, `not json`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid body, got %d", resp.StatusCode)
	}

	resp = publish(token, `{"level":"high"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out PublishResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Recipients != 1 {
		t.Fatalf("unexpected publish response %+v: %v", out, err)
	}

	msg := recv(t, ctx, conn)
	if msg["type"] != "publish" || msg["room"] != "alerts" || msg["client_id"] != nil {
		t.Fatalf("unexpected relayed message: %v", msg)
	}
}
