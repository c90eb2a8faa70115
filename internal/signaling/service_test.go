package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const readTimeout = 2 * time.Second

type testServer struct {
	svc *Service
	reg *Registry
	url string
}

func newTestServer(t *testing.T, notifyPeerLeft bool, presence PresenceTracker) *testServer {
	t.Helper()
	reg := NewRegistry(Options{NotifyPeerLeft: notifyPeerLeft})
	svc := NewService(ServiceConfig{
		Registry:        reg,
		Presence:        presence,
		SendBufferSize:  1024,
		MaxMessageBytes: 64 * 1024,
	})
	ts := httptest.NewServer(svc)
	t.Cleanup(ts.Close)
	return &testServer{
		svc: svc,
		reg: reg,
		url: "ws" + strings.TrimPrefix(ts.URL, "http") + "/signal",
	}
}

func (s *testServer) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	u := s.url
	if query != "" {
		u += "?" + query
	}
	c, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", u, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readText(t *testing.T, c *websocket.Conn) string {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(readTimeout))
	_, msg, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return string(msg)
}

func expectText(t *testing.T, c *websocket.Conn, want string) {
	t.Helper()
	if got := readText(t, c); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

// expectSilence leaves c unusable for further reads; call it last.
func expectSilence(t *testing.T, c *websocket.Conn) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, msg, err := c.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, got %q", msg)
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("expected read timeout, got %v", err)
	}
}

func send(t *testing.T, c *websocket.Conn, msg string) {
	t.Helper()
	if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func members(reg *Registry, roomID string) int {
	room, ok := reg.Lookup(roomID)
	if !ok {
		return 0
	}
	return room.Len()
}

func TestResolveRoomID(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"", DefaultRoomID},
		{"room=", DefaultRoomID},
		{"room=r1", "r1"},
		{"room=A-b_c.d~9", "A-b_c.d~9"},
		{"room=has%20space", DefaultRoomID},
		{"room=sl%2Fash", DefaultRoomID},
		{"room=" + strings.Repeat("x", maxRoomIDLength), strings.Repeat("x", maxRoomIDLength)},
		{"room=" + strings.Repeat("x", maxRoomIDLength+1), DefaultRoomID},
		{"other=1&room=second", "second"},
	}
	for _, tt := range tests {
		q, err := url.ParseQuery(tt.query)
		if err != nil {
			t.Fatalf("ParseQuery(%q): %v", tt.query, err)
		}
		if got := ResolveRoomID(q); got != tt.want {
			t.Errorf("ResolveRoomID(%q)=%q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestSignalingScenario(t *testing.T) {
	s := newTestServer(t, false, nil)

	x := s.dial(t, "room=r1")
	expectText(t, x, `{"type":"role","role":"initiator"}`)

	y := s.dial(t, "room=r1")
	expectText(t, x, `{"type":"peer-joined"}`)
	expectText(t, y, `{"type":"role","role":"responder"}`)

	offer := `{"sdp":"offer..."}`
	send(t, x, offer)
	expectText(t, y, offer)

	// An echo of the offer would have been queued for x ahead of the answer.
	answer := `{"type":"description","sdp":{"type":"answer","sdp":"v=0"}}`
	send(t, y, answer)
	expectText(t, x, answer)

	_ = y.Close()
	eventually(t, "y to be evicted", func() bool { return members(s.reg, "r1") == 1 })

	// x is alone now; relaying to nobody is not an error.
	send(t, x, `{"candidate":"late"}`)
	expectSilence(t, x)

	_ = x.Close()
	eventually(t, "r1 to be removed", func() bool {
		_, ok := s.reg.Lookup("r1")
		return !ok
	})
}

func TestRoleResetsAfterRoomEmpties(t *testing.T) {
	s := newTestServer(t, false, nil)

	first := s.dial(t, "room=again")
	expectText(t, first, `{"type":"role","role":"initiator"}`)
	_ = first.Close()
	eventually(t, "room to be removed", func() bool { return s.reg.Len() == 0 })

	second := s.dial(t, "room=again")
	expectText(t, second, `{"type":"role","role":"initiator"}`)
}

func TestPeerLeftNotification(t *testing.T) {
	s := newTestServer(t, true, nil)

	x := s.dial(t, "room=r1")
	expectText(t, x, `{"type":"role","role":"initiator"}`)
	y := s.dial(t, "room=r1")
	expectText(t, x, `{"type":"peer-joined"}`)
	expectText(t, y, `{"type":"role","role":"responder"}`)

	_ = y.Close()
	expectText(t, x, `{"type":"peer-left"}`)
}

func TestDefaultRoomWhenNoneGiven(t *testing.T) {
	s := newTestServer(t, false, nil)

	a := s.dial(t, "")
	expectText(t, a, `{"type":"role","role":"initiator"}`)
	b := s.dial(t, "room=not%20valid")
	expectText(t, a, `{"type":"peer-joined"}`)
	expectText(t, b, `{"type":"role","role":"responder"}`)

	if n := members(s.reg, DefaultRoomID); n != 2 {
		t.Fatalf("default room members=%d, want 2", n)
	}

	send(t, b, "ping from b")
	expectText(t, a, "ping from b")
}

func TestRoomsAreIsolated(t *testing.T) {
	s := newTestServer(t, false, nil)

	a1 := s.dial(t, "room=A")
	expectText(t, a1, `{"type":"role","role":"initiator"}`)
	a2 := s.dial(t, "room=A")
	expectText(t, a1, `{"type":"peer-joined"}`)
	expectText(t, a2, `{"type":"role","role":"responder"}`)

	b := s.dial(t, "room=B")
	expectText(t, b, `{"type":"role","role":"initiator"}`)

	send(t, a1, "for room A only")
	expectText(t, a2, "for room A only")
	expectSilence(t, b)
}

func TestBurstIsDeliveredInOrder(t *testing.T) {
	s := newTestServer(t, false, nil)

	x := s.dial(t, "room=burst")
	expectText(t, x, `{"type":"role","role":"initiator"}`)
	y := s.dial(t, "room=burst")
	expectText(t, x, `{"type":"peer-joined"}`)
	expectText(t, y, `{"type":"role","role":"responder"}`)

	const n = 1000
	go func() {
		for i := 0; i < n; i++ {
			if err := x.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"seq":%d}`, i))); err != nil {
				return
			}
		}
	}()

	for i := 0; i < n; i++ {
		want := fmt.Sprintf(`{"seq":%d}`, i)
		if got := readText(t, y); got != want {
			t.Fatalf("message %d=%q, want %q", i, got, want)
		}
	}
}

func TestBinaryFramesAreNotRelayed(t *testing.T) {
	s := newTestServer(t, false, nil)

	x := s.dial(t, "room=bin")
	expectText(t, x, `{"type":"role","role":"initiator"}`)
	y := s.dial(t, "room=bin")
	expectText(t, x, `{"type":"peer-joined"}`)
	expectText(t, y, `{"type":"role","role":"responder"}`)

	if err := x.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	send(t, x, "text after binary")
	expectText(t, y, "text after binary")
}

func TestShutdownClosesConnections(t *testing.T) {
	s := newTestServer(t, false, nil)

	x := s.dial(t, "room=r1")
	expectText(t, x, `{"type":"role","role":"initiator"}`)

	// The client never echoes the close frame, so the server side must tear
	// down on its own.
	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()
	if err := s.svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	_ = x.SetReadDeadline(time.Now().Add(readTimeout))
	if _, _, err := x.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
	if s.reg.Len() != 0 {
		t.Fatalf("registry not empty after shutdown: %+v", s.reg.Snapshot())
	}

	late, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		t.Fatalf("dial after shutdown: %v", err)
	}
	defer late.Close()
	_ = late.SetReadDeadline(time.Now().Add(readTimeout))
	if _, _, err := late.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
}

type recordingPresence struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPresence) Join(_ context.Context, roomID, peerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "join "+roomID)
	return nil
}

func (p *recordingPresence) Leave(_ context.Context, roomID, peerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "leave "+roomID)
	return errors.New("redis down")
}

func (p *recordingPresence) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func TestPresenceIsMirrored(t *testing.T) {
	presence := &recordingPresence{}
	s := newTestServer(t, false, presence)

	x := s.dial(t, "room=p1")
	expectText(t, x, `{"type":"role","role":"initiator"}`)
	_ = x.Close()

	eventually(t, "presence leave", func() bool { return len(presence.snapshot()) == 2 })
	got := presence.snapshot()
	if got[0] != "join p1" || got[1] != "leave p1" {
		t.Fatalf("presence events=%v", got)
	}
	// A failing tracker must not keep the room alive.
	if s.reg.Len() != 0 {
		t.Fatalf("registry not empty: %+v", s.reg.Snapshot())
	}
}
