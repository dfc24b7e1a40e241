package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/modbot/internal/protocol"
	"github.com/whisper/modbot/internal/transport"
)

const testToken = "s3cret"

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	config := DefaultServerConfig()
	config.Token = testToken
	s := NewServer(config, logger)
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		hs.Close()
	})
	return s, hs
}

func dial(t *testing.T, hs *httptest.Server, token string) (net.Conn, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dialer := ws.Dialer{
		Header: ws.HandshakeHeaderHTTP(http.Header{"Authorization": []string{"Bearer " + token}}),
	}
	conn, _, _, err := dialer.Dial(ctx, "ws"+strings.TrimPrefix(hs.URL, "http")+Path)
	return conn, err
}

func writeFrame(t *testing.T, conn net.Conn, msgType string, payload interface{}) {
	t.Helper()
	data, err := protocol.NewMessage(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, wsutil.WriteClientMessage(conn, ws.OpText, data))
}

func readFrame(t *testing.T, conn net.Conn) (string, interface{}) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	data, _, err := wsutil.ReadServerData(conn)
	require.NoError(t, err)
	msgType, msg, err := protocol.Parse(data)
	require.NoError(t, err)
	return msgType, msg
}

var testHello = protocol.HelloMsg{
	Self: transport.User{ID: "bot", Name: "Group 7 Bot"},
	Guilds: []transport.Guild{{
		ID:   "g1",
		Name: "CS152",
		Channels: []transport.Channel{
			{ID: "c1", Name: "group-7"},
			{ID: "c2", Name: "group-7-mod"},
		},
	}},
}

func TestGateway_RejectsBadToken(t *testing.T) {
	_, hs := newTestServer(t)

	_, err := dial(t, hs, "wrong")
	assert.Error(t, err)
}

func TestGateway_HelloEventsAndSends(t *testing.T) {
	s, hs := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := dial(t, hs, testToken)
	require.NoError(t, err)
	defer conn.Close()

	writeFrame(t, conn, protocol.TypeHello, testHello)

	dir, err := s.Hello(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Group 7 Bot", dir.Self.Name)
	require.Len(t, dir.Guilds, 1)
	assert.Len(t, dir.Guilds[0].Channels, 2)

	events := make(chan transport.Event, 1)
	go s.Run(ctx, func(_ context.Context, ev transport.Event) { events <- ev })

	writeFrame(t, conn, protocol.TypeEvent, protocol.EventMsg{
		Kind: transport.EventMessage,
		Message: transport.Message{
			Ref:     transport.MessageRef{ChannelID: "dm1", MessageID: "m1"},
			Author:  transport.User{ID: "u1", Name: "alice"},
			Content: "report",
		},
	})
	select {
	case ev := <-events:
		assert.Equal(t, "report", ev.Message.Content)
		assert.True(t, ev.Message.IsDirect())
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}

	require.NoError(t, s.Send(ctx, "dm1", "Thank you for starting the reporting process."))
	msgType, msg := readFrame(t, conn)
	require.Equal(t, protocol.TypeSend, msgType)
	assert.Equal(t, "dm1", msg.(protocol.SendMsg).ChannelID)

	ref := transport.MessageRef{GuildID: "g1", ChannelID: "c1", MessageID: "m9"}
	require.NoError(t, s.React(ctx, ref, transport.MarkerDeprioritize))
	msgType, msg = readFrame(t, conn)
	require.Equal(t, protocol.TypeReact, msgType)
	assert.Equal(t, ref, msg.(protocol.ReactMsg).Ref)
	assert.Equal(t, transport.MarkerDeprioritize, msg.(protocol.ReactMsg).Marker)
}

func TestGateway_SendWithoutBridge(t *testing.T) {
	s, _ := newTestServer(t)

	err := s.Send(context.Background(), "c1", "hi")
	assert.ErrorIs(t, err, ErrNoBridge)
	err = s.React(context.Background(), transport.MessageRef{}, transport.MarkerWarning)
	assert.ErrorIs(t, err, ErrNoBridge)
}

func TestGateway_HelloHonorsContext(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.Hello(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGateway_MalformedFrameAndPing(t *testing.T) {
	_, hs := newTestServer(t)

	conn, err := dial(t, hs, testToken)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wsutil.WriteClientMessage(conn, ws.OpText, []byte(`{broken`)))
	msgType, msg := readFrame(t, conn)
	require.Equal(t, protocol.TypeError, msgType)
	assert.Equal(t, "parse_error", msg.(protocol.ErrorMsg).Code)

	writeFrame(t, conn, protocol.TypeSend, protocol.SendMsg{ChannelID: "c", Text: "x"})
	msgType, msg = readFrame(t, conn)
	require.Equal(t, protocol.TypeError, msgType)
	assert.Equal(t, "unsupported_type", msg.(protocol.ErrorMsg).Code)

	writeFrame(t, conn, protocol.TypePing, protocol.PingMsg{})
	msgType, _ = readFrame(t, conn)
	assert.Equal(t, protocol.TypePong, msgType)
}

func TestGateway_DisconnectClearsActiveBridge(t *testing.T) {
	s, hs := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := dial(t, hs, testToken)
	require.NoError(t, err)
	writeFrame(t, conn, protocol.TypeHello, testHello)
	_, err = s.Hello(ctx)
	require.NoError(t, err)

	conn.Close()
	assert.Eventually(t, func() bool {
		return s.activeConn() == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, s.Send(ctx, "c1", "hi"), ErrNoBridge)
}

func TestGateway_Health(t *testing.T) {
	_, hs := newTestServer(t)

	resp, err := http.Get(hs.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Ready       bool   `json:"ready"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 0, body.Connections)
	assert.False(t, body.Ready)
}
