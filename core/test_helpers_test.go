package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func (l *captureLogger) count(level string, msg string) int {
	total := 0
	for _, record := range l.snapshot() {
		if record.level == level && record.msg == msg {
			total++
		}
	}
	return total
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []string
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, _ float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, name)
}

func (m *captureMetricsRecorder) counter(name string) (capturedCounter, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, counter := range m.counters {
		if counter.name == name {
			return counter, true
		}
	}
	return capturedCounter{}, false
}

// stubChannel answers Send through handler.
type stubChannel struct {
	id      string
	handler func(ctx context.Context, request []byte) ([]byte, error)
	closed  atomic.Bool
}

func (c *stubChannel) ID() string { return c.id }

func (c *stubChannel) Send(ctx context.Context, request []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("channel %s is closed", c.id)
	}
	return c.handler(ctx, request)
}

func (c *stubChannel) Close() error {
	c.closed.Store(true)
	return nil
}

// responderTransport connects every Bind to a channel served by responder.
type responderTransport struct {
	responder *Responder
	bindErr   error
	attempts  atomic.Int64
}

func (t *responderTransport) Bind(_ context.Context, listener ConnectionListener) error {
	if t.bindErr != nil {
		return t.bindErr
	}
	id := t.attempts.Add(1)
	channel := &stubChannel{
		id:      fmt.Sprintf("channel-%d", id),
		handler: t.responder.Handle,
	}
	go listener.OnConnected(channel)
	return nil
}

// silentTransport accepts Bind and never connects.
type silentTransport struct {
	listener ConnectionListener
	mu       sync.Mutex
}

func (t *silentTransport) Bind(_ context.Context, listener ConnectionListener) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = listener
	return nil
}

func (t *silentTransport) current() ConnectionListener {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listener
}

type memoryCacheStore struct {
	records []CacheRecord
	err     error
}

func (s memoryCacheStore) ListRecordsForAccount(_ context.Context, homeAccountID string) ([]CacheRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]CacheRecord, 0, len(s.records))
	for _, record := range s.records {
		if homeAccountID == "" || record.Header().HomeAccountID == homeAccountID {
			out = append(out, record)
		}
	}
	return out, nil
}

func sampleHeader() RecordHeader {
	return RecordHeader{
		HomeAccountID: "uid.utid",
		Environment:   "login.example.com",
		Realm:         "tenant-1",
	}
}

func sampleRecords(expiresOn int64) []CacheRecord {
	return []CacheRecord{
		AccountRecord{
			RecordHeader:   sampleHeader(),
			LocalAccountID: "local-1",
			Username:       "ada@example.com",
			AuthorityType:  "MSSTS",
			ClientInfo:     "eyJ1aWQiOiJ1aWQifQ",
		},
		AccessTokenRecord{
			RecordHeader:      sampleHeader(),
			ClientID:          "client-1",
			Secret:            "access-secret",
			Target:            "user.read openid",
			TokenType:         "Bearer",
			Authority:         "https://login.example.com/tenant-1",
			CachedAt:          "1700000000",
			ExpiresOn:         fmt.Sprint(expiresOn),
			ExtendedExpiresOn: fmt.Sprint(expiresOn + 3600),
		},
		RefreshTokenRecord{
			RecordHeader: sampleHeader(),
			ClientID:     "client-1",
			Secret:       "refresh-secret",
			FamilyID:     "1",
		},
		IDTokenRecord{
			RecordHeader: sampleHeader(),
			ClientID:     "client-1",
			Secret:       "id-token",
			Authority:    "https://login.example.com/tenant-1",
		},
	}
}

func sampleResult() AuthenticationResult {
	return AuthenticationResult{
		AccessToken:       "access-secret",
		IDToken:           "id-token",
		RefreshToken:      "refresh-secret",
		HomeAccountID:     "uid.utid",
		LocalAccountID:    "local-1",
		Username:          "ada@example.com",
		ClientInfo:        "eyJ1aWQiOiJ1aWQifQ",
		TokenType:         "Bearer",
		ClientID:          "client-1",
		Scope:             "user.read openid",
		Authority:         "https://login.example.com/tenant-1",
		Environment:       "login.example.com",
		TenantID:          "tenant-1",
		CachedAt:          1700000000,
		ExpiresOn:         1700003600,
		ExtendedExpiresOn: 1700007200,
		FamilyID:          "1",
		SpeRing:           "ring-0",
		RefreshTokenAge:   "12",
		TenantProfiles:    sampleRecords(1700003600),
	}
}

func newTestResponder(t *testing.T, backend BrokerBackend, opts ...ResponderOption) *Responder {
	t.Helper()
	responder, err := NewResponder(backend, opts...)
	if err != nil {
		t.Fatalf("new responder: %v", err)
	}
	return responder
}

func fixedClock(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}

// missingAccountsBackend reports every account lookup as failed.
type missingAccountsBackend struct {
	*CacheBackend
}

func (missingAccountsBackend) Accounts(context.Context, string) ([]CacheRecord, error) {
	return nil, noAccountFoundError()
}
