package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-voice-gateway/internal/protocol"
	"ai-voice-gateway/internal/service/generation"
	genmock "ai-voice-gateway/internal/service/generation/mock"
	"ai-voice-gateway/internal/service/registry"
	"ai-voice-gateway/internal/service/session"
)

func newTestServer(t *testing.T, maxSessions int) (*httptest.Server, *registry.Registry) {
	t.Helper()
	srv, reg, _ := newCustomServer(t,
		registry.Config{MaxSessions: maxSessions},
		&genmock.Backend{},
		Config{HeartbeatInterval: time.Second, CloseTimeout: time.Second},
	)
	return srv, reg
}

func newCustomServer(t *testing.T, regCfg registry.Config, backend *genmock.Backend, cfg Config) (*httptest.Server, *registry.Registry, *Server) {
	t.Helper()
	reg := registry.New(regCfg, session.Deps{Generator: generation.New(backend)})
	gw := NewServer(cfg, reg)
	srv := httptest.NewServer(gw)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = reg.Shutdown(ctx)
		srv.Close()
	})
	return srv, reg, gw
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) protocol.Event {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev protocol.Event
	require.NoError(t, ws.ReadJSON(&ev))
	return ev
}

func readUntil(t *testing.T, ws *websocket.Conn, typ string) []protocol.Event {
	t.Helper()
	var evs []protocol.Event
	for {
		ev := readEvent(t, ws)
		evs = append(evs, ev)
		if ev.Type == typ {
			return evs
		}
	}
}

func send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))
}

func TestGateway_TextConversation(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	ws := dial(t, srv)

	assert.Equal(t, protocol.Status(protocol.StatusConnected), readEvent(t, ws))

	send(t, ws, map[string]string{"action": "send_text", "text": "hello"})
	evs := readUntil(t, ws, protocol.TypeResponseComplete)

	assert.Equal(t, protocol.Status(protocol.StatusProcessing), evs[0])
	last := evs[len(evs)-1]
	assert.Equal(t, "You said: hello", last.TextValue())

	var streamed strings.Builder
	for _, ev := range evs {
		if ev.Type == protocol.TypeResponseChunk {
			streamed.WriteString(ev.TextValue())
		}
	}
	assert.Equal(t, last.TextValue(), streamed.String())
}

func TestGateway_InvalidMessageKeepsSession(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	ws := dial(t, srv)
	readEvent(t, ws)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	ev := readEvent(t, ws)
	assert.Equal(t, protocol.TypeError, ev.Type)
	assert.True(t, strings.HasPrefix(ev.Message, "Invalid message: "), ev.Message)

	send(t, ws, map[string]string{"action": "dance"})
	ev = readEvent(t, ws)
	assert.Equal(t, protocol.TypeError, ev.Type)

	send(t, ws, map[string]string{"action": "send_text", "text": "still here"})
	evs := readUntil(t, ws, protocol.TypeResponseComplete)
	assert.Equal(t, "You said: still here", evs[len(evs)-1].TextValue())
}

func TestGateway_ExitClosesConnection(t *testing.T) {
	srv, reg := newTestServer(t, 0)
	ws := dial(t, srv)
	readEvent(t, ws)

	send(t, ws, map[string]string{"action": "exit"})
	assert.Equal(t, protocol.Status(protocol.StatusSessionEnded), readEvent(t, ws))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())

	require.Eventually(t, func() bool { return reg.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestGateway_DisconnectClosesSession(t *testing.T) {
	srv, reg := newTestServer(t, 0)
	ws := dial(t, srv)
	readEvent(t, ws)
	require.Equal(t, 1, reg.Len())

	ws.Close()
	require.Eventually(t, func() bool { return reg.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestGateway_RefusesWhenFull(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	ws := dial(t, srv)
	readEvent(t, ws)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGateway_SessionsAreIsolated(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	a := dial(t, srv)
	b := dial(t, srv)
	readEvent(t, a)
	readEvent(t, b)

	send(t, a, map[string]string{"action": "send_text", "text": "from a"})
	send(t, b, map[string]string{"action": "send_text", "text": "from b"})

	evsA := readUntil(t, a, protocol.TypeResponseComplete)
	evsB := readUntil(t, b, protocol.TypeResponseComplete)
	assert.Equal(t, "You said: from a", evsA[len(evsA)-1].TextValue())
	assert.Equal(t, "You said: from b", evsB[len(evsB)-1].TextValue())
}

func TestCheckOrigin(t *testing.T) {
	s := NewServer(Config{AllowedOrigins: []string{"app.example.com"}}, nil)

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{name: "no origin", origin: "", want: true},
		{name: "allowed host", origin: "https://app.example.com", want: true},
		{name: "other host", origin: "https://evil.example.com", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, s.checkOrigin(r))
		})
	}
}

func TestGateway_ExitBehindFullQueue(t *testing.T) {
	srv, reg, _ := newCustomServer(t,
		registry.Config{Session: session.Config{InboundQueue: 1}},
		&genmock.Backend{Chunks: []string{"thinking"}, Block: true},
		Config{HeartbeatInterval: time.Second, CloseTimeout: time.Second},
	)
	ws := dial(t, srv)
	readEvent(t, ws)

	send(t, ws, map[string]string{"action": "send_text", "text": "a"})
	readUntil(t, ws, protocol.TypeResponseChunk)

	// "a" is generating, "b" fills the queue, "c" is dropped.
	send(t, ws, map[string]string{"action": "send_text", "text": "b"})
	send(t, ws, map[string]string{"action": "send_text", "text": "c"})
	send(t, ws, map[string]string{"action": "exit"})

	for {
		if ev := readEvent(t, ws); ev.Message == protocol.StatusSessionEnded {
			break
		}
	}
	require.Eventually(t, func() bool { return reg.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestGateway_CloseDeadlineIgnoresClientTraffic(t *testing.T) {
	srv, _, gw := newCustomServer(t,
		registry.Config{},
		&genmock.Backend{},
		Config{HeartbeatInterval: time.Second, HeartbeatTimeout: 5 * time.Second, CloseTimeout: 300 * time.Millisecond},
	)
	ws := dial(t, srv)
	readEvent(t, ws)

	send(t, ws, map[string]string{"action": "exit"})

	// Keep streaming audio without ever reading the close frame.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := ws.WriteMessage(websocket.BinaryMessage, make([]byte, 320)); err != nil {
					return
				}
			}
		}
	}()

	finished := make(chan struct{})
	go func() {
		gw.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("handler still running after close timeout")
	}
}
