package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/safeshare/internal/logging"
	"github.com/dmitrijs2005/safeshare/internal/proto"
	"github.com/dmitrijs2005/safeshare/internal/server/config"
	"github.com/dmitrijs2005/safeshare/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/safeshare/internal/server/services"
	"github.com/dmitrijs2005/safeshare/internal/server/signaling"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, store Pinger) (*HTTPServer, *httptest.Server) {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()

	svc := services.NewSessionService(sessions.NewMemoryRepository(), cfg, logging.Discard()).
		WithCodeGenerator(services.SequenceCodes("AB12CD"))
	coord := signaling.NewCoordinator(svc, signaling.NewHub(), logging.Discard())

	s := NewHTTPServer(cfg, logging.Discard(), store, coord)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestBanner(t *testing.T) {
	_, ts := newTestServer(t, fakePinger{})

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "WebRTC Signaling server is running", string(body))
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"store reachable", nil, http.StatusOK, `{"status":"ok"}`},
		{"store down", errors.New("connection refused"), http.StatusServiceUnavailable, `{"status":"unavailable"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := newTestServer(t, fakePinger{err: tt.err})

			resp, err := http.Get(ts.URL + "/healthz")
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.JSONEq(t, tt.wantBody, string(body))
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	_, ts := newTestServer(t, fakePinger{})

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, ts *httptest.Server, origin string) *websocket.Conn {
	t.Helper()
	h := http.Header{}
	if origin != "" {
		h.Set("Origin", origin)
	}
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts), h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	return ws
}

func writeEnv(t *testing.T, ws *websocket.Conn, event string, id uint64, payload any) {
	t.Helper()
	env, err := proto.NewEnvelope(event, id, payload)
	require.NoError(t, err)
	b, err := env.Marshal()
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, b))
}

func readEnv(t *testing.T, ws *websocket.Conn) *proto.Envelope {
	t.Helper()
	kind, data, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	env, err := proto.ParseEnvelope(data)
	require.NoError(t, err)
	return env
}

func TestWebSocket_CreateAndJoin(t *testing.T) {
	_, ts := newTestServer(t, fakePinger{})

	sender := dial(t, ts, "http://localhost:3000")
	writeEnv(t, sender, proto.EventCreateTransfer, 1, proto.CreateTransfer{
		SenderID:     "s1",
		FileMetadata: proto.FileMetadata{Name: "a.txt", SizeBytes: 128000},
	})

	env := readEnv(t, sender)
	require.Equal(t, proto.EventAck, env.Event)
	assert.Equal(t, uint64(1), env.ID)
	var ack proto.Ack
	require.NoError(t, env.Decode(&ack))
	require.True(t, ack.Success)
	assert.Equal(t, "AB12CD", ack.Code)

	writeEnv(t, sender, proto.EventSendOffer, 0, proto.SendOffer{Code: "AB12CD", SenderID: "s1", Offer: []byte(`{"sdp":"o"}`)})

	receiver := dial(t, ts, "")
	require.NoError(t, receiver.WriteMessage(websocket.TextMessage, []byte("garbage")))
	writeEnv(t, receiver, proto.EventJoinTransfer, 2, proto.JoinTransfer{Code: "ab12cd", ReceiverID: "r1"})

	env = readEnv(t, receiver)
	require.NoError(t, env.Decode(&ack))
	require.True(t, ack.Success, ack.Message)
	assert.Equal(t, "application/octet-stream", ack.Session.FileMetadata.MimeType)

	assert.Equal(t, proto.EventReceiverJoined, readEnv(t, sender).Event)
}

func TestWebSocket_ForeignOriginRejected(t *testing.T) {
	_, ts := newTestServer(t, fakePinger{})

	h := http.Header{}
	h.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), h)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.EndpointAddrHTTP = "127.0.0.1:0"
	s := NewHTTPServer(cfg, logging.Discard(), fakePinger{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
