package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/rtcsignal/internal/config"
	"github.com/1ureka/rtcsignal/internal/protocol"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// relayStub is an in-process WebSocket endpoint. The upgrade is held until
// release is called, so tests control exactly when the client's connection
// opens. Every frame the client writes is forwarded to frames.
type relayStub struct {
	srv    *httptest.Server
	frames chan string
	conns  chan *websocket.Conn

	gate     chan struct{}
	gateOnce sync.Once
}

func newRelayStub(t *testing.T) *relayStub {
	t.Helper()
	s := &relayStub{
		frames: make(chan string, 64),
		conns:  make(chan *websocket.Conn, 1),
		gate:   make(chan struct{}),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		select {
		case <-s.gate:
		case <-r.Context().Done():
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				close(s.frames)
				return
			}
			s.frames <- string(data)
		}
	}))
	t.Cleanup(func() {
		s.release()
		s.srv.Close()
	})
	return s
}

func (s *relayStub) host() string {
	return strings.TrimPrefix(s.srv.URL, "http://")
}

func (s *relayStub) release() {
	s.gateOnce.Do(func() { close(s.gate) })
}

func (s *relayStub) nextFrame(t *testing.T) string {
	t.Helper()
	select {
	case f, ok := <-s.frames:
		if !ok {
			t.Fatal("connection closed before expected frame")
		}
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return ""
}

func (s *relayStub) serverConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for connection")
	}
	return nil
}

func testSession() config.Session {
	return config.Session{RoomID: "room1", ClientID: "alice"}
}

func innerMessage(t *testing.T, frame string) protocol.Message {
	t.Helper()
	env, err := protocol.DecodeEnvelope([]byte(frame))
	if err != nil {
		t.Fatalf("DecodeEnvelope(%s): %v", frame, err)
	}
	if env.Cmd != protocol.CmdSend {
		t.Fatalf("frame %s: cmd = %q, want send", frame, env.Cmd)
	}
	msg, err := protocol.Decode([]byte(env.Msg))
	if err != nil {
		t.Fatalf("Decode(%s): %v", env.Msg, err)
	}
	return msg
}

func TestSendBeforeOpenIsDeliveredInOrderAfterRegistration(t *testing.T) {
	stub := newRelayStub(t)

	ch := Open(context.Background(), Options{
		Session:   testSession(),
		RelayHost: stub.host(),
	})
	defer ch.Shutdown()

	sent := []protocol.Message{
		protocol.Candidate{Label: 0, ID: "0", Candidate: "candidate:1 1 udp 1 10.0.0.1 1000 typ host"},
		protocol.Candidate{Label: 1, ID: "1", Candidate: "candidate:2 1 udp 1 10.0.0.1 1001 typ host"},
		protocol.Answer{SDP: "v=0"},
	}
	for _, m := range sent {
		ch.Send(m)
	}

	select {
	case <-ch.openSignal:
		t.Fatal("channel opened before the relay accepted the upgrade")
	default:
	}

	stub.release()

	register, err := protocol.DecodeEnvelope([]byte(stub.nextFrame(t)))
	if err != nil {
		t.Fatalf("decode register: %v", err)
	}
	if register.Cmd != protocol.CmdRegister || register.RoomID != "room1" || register.ClientID != "alice" {
		t.Fatalf("first frame = %+v, want registration", register)
	}

	for i, want := range sent {
		if got := innerMessage(t, stub.nextFrame(t)); got != want {
			t.Fatalf("frame %d = %#v, want %#v", i, got, want)
		}
	}

	// Frames sent after open go straight out, still in order.
	ch.Send(protocol.Bye{})
	if got := innerMessage(t, stub.nextFrame(t)); got != (protocol.Bye{}) {
		t.Fatalf("post-open frame = %#v", got)
	}
}

func TestInboundMessagesAreDecodedAndMalformedDropped(t *testing.T) {
	stub := newRelayStub(t)
	stub.release()

	received := make(chan protocol.Message, 8)
	ch := Open(context.Background(), Options{
		Session:   testSession(),
		RelayHost: stub.host(),
		OnMessage: func(m protocol.Message) { received <- m },
	})
	defer ch.Shutdown()

	conn := stub.serverConn(t)
	frames := []string{
		`{"msg":"{\"type\":\"offer\",\"sdp\":\"v=0\"}"}`,
		`not json`,
		`{"msg":"{\"type\":\"rollback\"}"}`,
		`{"msg":"","error":"room full"}`,
		`{"msg":"{\"type\":\"bye\"}"}`,
	}
	for _, f := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	want := []protocol.Message{protocol.Offer{SDP: "v=0"}, protocol.Bye{}}
	for i, w := range want {
		select {
		case got := <-received:
			if got != w {
				t.Fatalf("message %d = %#v, want %#v", i, got, w)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}

	select {
	case extra := <-received:
		t.Fatalf("unexpected extra message %#v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestShutdownFlushesQueuedFramesAndIsIdempotent(t *testing.T) {
	stub := newRelayStub(t)
	stub.release()

	ch := Open(context.Background(), Options{
		Session:   testSession(),
		RelayHost: stub.host(),
	})

	select {
	case <-ch.openSignal:
	case <-time.After(5 * time.Second):
		t.Fatal("channel never opened")
	}
	stub.nextFrame(t) // registration

	ch.Send(protocol.Bye{})
	ch.Shutdown()
	ch.Shutdown()

	if got := innerMessage(t, stub.nextFrame(t)); got != (protocol.Bye{}) {
		t.Fatalf("frame = %#v, want bye", got)
	}

	// Dropped, not queued: the writer has stopped.
	ch.Send(protocol.Bye{})
	select {
	case f, ok := <-stub.frames:
		if ok {
			t.Fatalf("frame written after shutdown: %s", f)
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestShutdownBeforeOpen(t *testing.T) {
	stub := newRelayStub(t) // never released

	ch := Open(context.Background(), Options{
		Session:   testSession(),
		RelayHost: stub.host(),
	})
	ch.Send(protocol.Answer{SDP: "v=0"})

	done := make(chan struct{})
	go func() {
		ch.Shutdown()
		ch.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown blocked on a connection that never opened")
	}
}

func TestDialFailureKeepsBufferingWithoutReconnect(t *testing.T) {
	var attempts atomic.Int32
	failed := make(chan struct{})
	dialer := &websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if attempts.Add(1) == 1 {
				close(failed)
			}
			return nil, errors.New("connection refused")
		},
	}

	ch := Open(context.Background(), Options{
		Session:   testSession(),
		RelayHost: "relay.invalid",
		Dialer:    dialer,
	})
	select {
	case <-failed:
	case <-time.After(5 * time.Second):
		t.Fatal("dial was never attempted")
	}

	ch.Send(protocol.Candidate{Label: 0, ID: "0", Candidate: "candidate:1 1 udp 1 10.0.0.1 9 typ host"})
	ch.Send(protocol.Bye{})
	ch.writer.mu.Lock()
	queued := ch.writer.pending.Len()
	ch.writer.mu.Unlock()
	if queued != 2 {
		t.Fatalf("queued frames = %d, want 2", queued)
	}
	select {
	case <-ch.openSignal:
		t.Fatal("channel reported open after a failed dial")
	default:
	}

	done := make(chan struct{})
	go func() {
		ch.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown blocked after a failed dial")
	}
	if n := attempts.Load(); n != 1 {
		t.Fatalf("dial attempts = %d, want 1", n)
	}
}

type recordedPost struct {
	path        string
	query       string
	contentType string
	msgField    string
	body        string
}

func newPostRecorder(t *testing.T, status int) (*httptest.Server, <-chan recordedPost) {
	t.Helper()
	posts := make(chan recordedPost, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		rec := recordedPost{
			path:        r.URL.Path,
			query:       r.URL.RawQuery,
			contentType: r.Header.Get("Content-Type"),
		}
		if strings.HasPrefix(rec.contentType, "application/x-www-form-urlencoded") {
			rec.msgField = r.FormValue("msg")
		} else {
			b, _ := io.ReadAll(r.Body)
			rec.body = string(b)
		}
		posts <- rec
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, posts
}

func TestDeliverViaPrimaryPostsFormEncodedMessage(t *testing.T) {
	srv, posts := newPostRecorder(t, http.StatusOK)

	ch := Open(context.Background(), Options{
		Session:   testSession(),
		RelayHost: strings.TrimPrefix(srv.URL, "http://"),
	})
	defer ch.Shutdown()

	sdp := "v=0\r\na=candidate:1 1 udp 1 10.0.0.1 9 typ host+x&y\r\n"
	ch.DeliverViaPrimary(protocol.Answer{SDP: sdp})
	ch.Wait()

	rec := <-posts
	if rec.path != "/room1/alice" {
		t.Errorf("path = %q, want /room1/alice", rec.path)
	}
	msg, err := protocol.Decode([]byte(rec.msgField))
	if err != nil {
		t.Fatalf("msg field %q: %v", rec.msgField, err)
	}
	if msg != (protocol.Answer{SDP: sdp}) {
		t.Errorf("delivered %#v", msg)
	}
}

func TestDeliverViaSecondaryPostsRawJSON(t *testing.T) {
	srv, posts := newPostRecorder(t, http.StatusOK)

	ch := Open(context.Background(), Options{
		Session:       testSession(),
		RelayHost:     "127.0.0.1:1",
		RoomServerURL: srv.URL + "/",
	})
	defer ch.Shutdown()

	ch.DeliverViaSecondary(protocol.Offer{SDP: "v=0"})
	ch.Wait()

	rec := <-posts
	if rec.path != "/wssmessage" {
		t.Errorf("path = %q, want /wssmessage", rec.path)
	}
	if rec.query != "r=room1&u=alice" {
		t.Errorf("query = %q", rec.query)
	}
	if rec.body != `{"type":"offer","sdp":"v=0"}` {
		t.Errorf("body = %q", rec.body)
	}
}

func TestDeliveryFailureIsReported(t *testing.T) {
	srv, posts := newPostRecorder(t, http.StatusInternalServerError)

	ch := &Channel{
		session:       testSession(),
		roomServerURL: srv.URL,
		httpClient:    srv.Client(),
	}

	err := ch.postSecondary(context.Background(), []byte(`{"type":"bye"}`))
	if !errors.Is(err, ErrPeerUnreachable) || !strings.Contains(err.Error(), "500") {
		t.Fatalf("postSecondary error = %v, want 500 failure", err)
	}
	<-posts
}
