package transport

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/goliatone/go-broker/core"
)

// socketDir keeps socket paths short enough for sun_path.
func socketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "broker-test-*")
	if err != nil {
		t.Fatalf("create socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return directory
}

type recordingListener struct {
	mu           sync.Mutex
	connected    chan core.ChannelHandle
	disconnected []error
}

func newRecordingListener() *recordingListener {
	return &recordingListener{connected: make(chan core.ChannelHandle, 4)}
}

func (l *recordingListener) OnConnected(handle core.ChannelHandle) {
	if l.connected != nil {
		l.connected <- handle
	}
}

func (l *recordingListener) OnDisconnected(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnected = append(l.disconnected, err)
}

func (l *recordingListener) disconnects() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.disconnected)
}

func (l *recordingListener) await(t *testing.T) core.ChannelHandle {
	t.Helper()
	select {
	case handle := <-l.connected:
		return handle
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for connection")
		return nil
	}
}

type staticStore struct {
	records []core.CacheRecord
}

func (s staticStore) ListRecordsForAccount(_ context.Context, homeAccountID string) ([]core.CacheRecord, error) {
	out := []core.CacheRecord{}
	for _, record := range s.records {
		if homeAccountID == "" || record.Header().HomeAccountID == homeAccountID {
			out = append(out, record)
		}
	}
	return out, nil
}

func testRecords(expiresOn string) []core.CacheRecord {
	header := core.RecordHeader{HomeAccountID: "uid.utid", Environment: "login.example.com", Realm: "tenant-1"}
	return []core.CacheRecord{
		core.AccountRecord{RecordHeader: header, Username: "ada@example.com", LocalAccountID: "local-1"},
		core.AccessTokenRecord{
			RecordHeader: header,
			ClientID:     "client-1",
			Secret:       "access-secret",
			Target:       "user.read",
			TokenType:    "Bearer",
			CachedAt:     "1700000000",
			ExpiresOn:    expiresOn,
		},
	}
}

func startServer(t *testing.T, handler FrameHandler) string {
	t.Helper()
	socketPath := filepath.Join(socketDir(t), "broker.sock")
	server := NewSocketServer(socketPath, handler, nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(ctx); err != nil {
			t.Errorf("serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	select {
	case <-server.Ready():
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not start")
	}
	return socketPath
}

func TestUnixTransport_ClientRoundTripThroughSocketServer(t *testing.T) {
	backend := core.NewCacheBackend(
		staticStore{records: testRecords("1700003600")},
		core.WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
		core.WithSharedDevice(true),
	)
	responder, err := core.NewResponder(backend, core.WithBrokerProtocolVersion("15.0"))
	if err != nil {
		t.Fatalf("new responder: %v", err)
	}
	socketPath := startServer(t, responder.Handle)

	cfg := core.DefaultConfig()
	cfg.Transport.SocketPath = socketPath
	client, err := core.NewClient(cfg, core.WithTransport(NewUnixTransport(cfg.Transport, nil)))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	negotiation, err := client.Hello(context.Background())
	if err != nil {
		t.Fatalf("hello: %v", err)
	}
	if negotiation.Version != "15.0" || !negotiation.Supported {
		t.Fatalf("unexpected negotiation %+v", negotiation)
	}

	result, err := client.AcquireTokenSilent(context.Background(), core.AcquireTokenRequest{
		ClientID:      "client-1",
		Scopes:        []string{"user.read"},
		HomeAccountID: "uid.utid",
	})
	if err != nil {
		t.Fatalf("acquire token silent: %v", err)
	}
	if result.AccessToken != "access-secret" || result.Username != "ada@example.com" {
		t.Fatalf("unexpected result %+v", result)
	}

	shared, err := client.GetDeviceMode(context.Background())
	if err != nil || !shared {
		t.Fatalf("expected shared device mode, got %v %v", shared, err)
	}
}

func TestUnixTransport_ChannelCarriesSeveralFrames(t *testing.T) {
	var calls int
	var mu sync.Mutex
	socketPath := startServer(t, func(_ context.Context, request []byte) ([]byte, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return request, nil
	})

	listener := newRecordingListener()
	transport := &UnixTransport{SocketPath: socketPath}
	if err := transport.Bind(context.Background(), listener); err != nil {
		t.Fatalf("bind: %v", err)
	}
	channel := listener.await(t)
	defer channel.Close()

	for _, value := range []any{"first", map[string]any{"n": 2}, []any{1, 2, 3}} {
		frame, err := cbor.Marshal(value)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		echoed, err := channel.Send(context.Background(), frame)
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		if !bytes.Equal(echoed, frame) {
			t.Fatalf("expected echo %x, got %x", frame, echoed)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Fatalf("expected three frames on one connection, got %d", calls)
	}
}

func TestUnixTransport_ServerRejectionReportsDisconnect(t *testing.T) {
	socketPath := startServer(t, func(context.Context, []byte) ([]byte, error) {
		return nil, errors.New("unsupported frame")
	})

	listener := newRecordingListener()
	if err := (&UnixTransport{SocketPath: socketPath}).Bind(context.Background(), listener); err != nil {
		t.Fatalf("bind: %v", err)
	}
	channel := listener.await(t)
	frame, _ := cbor.Marshal("hello")
	if _, err := channel.Send(context.Background(), frame); err == nil {
		t.Fatalf("expected send to fail after the server closes")
	}
	if listener.disconnects() != 1 {
		t.Fatalf("expected one disconnect event, got %d", listener.disconnects())
	}
	if _, err := channel.Send(context.Background(), frame); err == nil {
		t.Fatalf("expected closed channel to refuse sends")
	}
}

func TestUnixTransport_SendHonoursContext(t *testing.T) {
	release := make(chan struct{})
	socketPath := startServer(t, func(ctx context.Context, request []byte) ([]byte, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return request, nil
	})
	defer close(release)

	listener := newRecordingListener()
	if err := (&UnixTransport{SocketPath: socketPath}).Bind(context.Background(), listener); err != nil {
		t.Fatalf("bind: %v", err)
	}
	channel := listener.await(t)
	defer channel.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	frame, _ := cbor.Marshal("slow")
	if _, err := channel.Send(ctx, frame); err == nil {
		t.Fatalf("expected deadline to interrupt the exchange")
	}
}

func TestReadFrame_Limits(t *testing.T) {
	frame, _ := cbor.Marshal("0123456789")
	if _, err := readFrame(bytes.NewReader(frame), 4); !errors.Is(err, errFrameTooLarge) {
		t.Fatalf("expected frame too large, got %v", err)
	}

	first, _ := cbor.Marshal("a")
	second, _ := cbor.Marshal(map[string]any{"b": 1})
	stream := bytes.NewReader(append(append([]byte{}, first...), second...))
	got, err := readFrame(stream, 64)
	if err != nil || !bytes.Equal(got, first) {
		t.Fatalf("expected first frame, got %x %v", got, err)
	}
}

func TestMemoryTransport_BindsAndServes(t *testing.T) {
	transport := NewMemoryTransport(func(_ context.Context, request []byte) ([]byte, error) {
		return append([]byte("re:"), request...), nil
	})
	listener := newRecordingListener()
	if err := transport.Bind(context.Background(), listener); err != nil {
		t.Fatalf("bind: %v", err)
	}
	channel := listener.await(t)
	reply, err := channel.Send(context.Background(), []byte("x"))
	if err != nil || string(reply) != "re:x" {
		t.Fatalf("unexpected reply %q %v", reply, err)
	}
	_ = channel.Close()
	if _, err := channel.Send(context.Background(), []byte("x")); err == nil {
		t.Fatalf("expected closed channel error")
	}
	if transport.Binds() != 1 {
		t.Fatalf("expected one bind, got %d", transport.Binds())
	}
}
