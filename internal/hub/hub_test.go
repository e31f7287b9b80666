package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// dialTestClient connects a real websocket client to h and returns the
// client-side connection.
func dialTestClient(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		h.Register(NewSafeConn(conn))
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestEmitBroadcastsEnvelope(t *testing.T) {
	h := New()
	client := dialTestClient(t, h)

	h.Emit("gemini-result", map[string]any{"success": true, "sessionId": "abc"})

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	if got["type"] != "gemini-result" || got["success"] != true || got["sessionId"] != "abc" {
		t.Errorf("envelope=%v", got)
	}
}

func TestEmitReachesAllClients(t *testing.T) {
	h := New()
	a := dialTestClient(t, h)
	b := dialTestClient(t, h)

	if n := h.ClientCount(); n != 2 {
		t.Fatalf("ClientCount=%d, want 2", n)
	}

	h.Emit("sessions-updated", map[string]any{"projectPath": "/p"})

	for _, client := range []*websocket.Conn{a, b} {
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var got map[string]any
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatal(err)
		}
		if got["type"] != "sessions-updated" {
			t.Errorf("envelope=%v", got)
		}
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	h := New()
	sc := NewSafeConn(nil)

	h.Register(sc)
	h.Unregister(sc)

	if n := h.ClientCount(); n != 0 {
		t.Errorf("ClientCount=%d, want 0", n)
	}
	// Emitting with no clients must not touch the nil connection.
	h.Emit("gemini-output", map[string]any{"text": "x"})
}
