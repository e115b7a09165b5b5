package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/goleak"

	"labourpanel/internal/domain/labour"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type countingGauge struct {
	open int32
}

func (g *countingGauge) LiveClientConnected()    { atomic.AddInt32(&g.open, 1) }
func (g *countingGauge) LiveClientDisconnected() { atomic.AddInt32(&g.open, -1) }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishReachesSubscribers(t *testing.T) {
	gauge := &countingGauge{}
	hub := NewHub(nil, gauge, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, r.URL.Query().Get("key"))
	}))
	defer srv.Close()
	defer hub.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?key=s1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.Count("s1") == 1 })
	if atomic.LoadInt32(&gauge.open) != 1 {
		t.Fatal("expected gauge incremented")
	}

	hub.Publish("other", labour.Snapshot{})
	hub.Publish("s1", labour.Snapshot{Labourers: []labour.Labourer{{ID: "1", Name: "Raju", TotalPaid: 40}}})

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Type string          `json:"type"`
		Data labour.Snapshot `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "labour.snapshot" || len(msg.Data.Labourers) != 1 || msg.Data.Labourers[0].TotalPaid != 40 {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestClientDisconnectUnsubscribes(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "k")
	}))
	defer srv.Close()
	defer hub.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, func() bool { return hub.Count("k") == 1 })
	_ = conn.Close()
	waitFor(t, func() bool { return hub.Count("k") == 0 })
}

func TestDropClosesSockets(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "k")
	}))
	defer srv.Close()
	defer hub.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, func() bool { return hub.Count("k") == 1 })

	hub.Drop("k")
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected socket closed")
	}
}
