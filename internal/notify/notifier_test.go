// Package notify tests for notification fan-out and the WebSocket hub.
package notify

import (
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// recorder captures notifications.
type recorder struct {
	kinds []Kind
	msgs  []string
}

func (r *recorder) Notify(kind Kind, message string) {
	r.kinds = append(r.kinds, kind)
	r.msgs = append(r.msgs, message)
}

// TestMulti verifies fan-out to every sink.
func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, b}

	m.Notify(KindSyncFailed, "saving failed")

	for i, r := range []*recorder{a, b} {
		if len(r.kinds) != 1 || r.kinds[0] != KindSyncFailed {
			t.Errorf("sink %d kinds = %v, want [sync.failed]", i, r.kinds)
		}
		if r.msgs[0] != "saving failed" {
			t.Errorf("sink %d message = %q", i, r.msgs[0])
		}
	}
}

// TestLogNotifier verifies it never panics; output goes to the log.
func TestLogNotifier(t *testing.T) {
	LogNotifier{}.Notify(KindConflictResolved, "replaced by a newer version")
}

// TestHub_broadcast verifies a connected client receives an envelope.
func TestHub_broadcast(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	// Registration races with the broadcast; give the hub a beat.
	time.Sleep(50 * time.Millisecond)

	hub.Notify(KindOwnership, "task belongs to another document")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("envelope is not JSON: %v", err)
	}
	if env.Type != string(KindOwnership) {
		t.Errorf("type = %q, want %q", env.Type, KindOwnership)
	}
	if env.Message != "task belongs to another document" {
		t.Errorf("message = %q", env.Message)
	}
	if env.Timestamp == 0 {
		t.Error("timestamp missing")
	}
}

// TestHub_connectAfterStop verifies a late connection is turned away
// promptly instead of parking a goroutine on the register channel.
func TestHub_connectAfterStop(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	hub.Stop()
	time.Sleep(20 * time.Millisecond) // let Run drain

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		// Upgrade refused outright is fine too.
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("stopped hub should close the connection")
	} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
		t.Fatal("stopped hub left the connection open")
	}
}

// TestHub_disconnectAfterStop verifies a client hanging up after Stop
// does not block on the unregister channel.
func TestHub_disconnectAfterStop(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	time.Sleep(50 * time.Millisecond) // let registration land

	hub.Stop()

	// Run closes the server side; the client sees it promptly rather
	// than timing out against a wedged read pump.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected closed connection after Stop")
	} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
		t.Fatal("connection still open after Stop")
	}
	conn.Close()
}

// TestHub_notifyWithoutClients verifies Notify never blocks even with
// nobody connected and a full buffer.
func TestHub_notifyWithoutClients(t *testing.T) {
	hub := NewHub() // Run intentionally not started

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Notify(KindSyncFailed, "buffered")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked with a full broadcast buffer")
	}
}
