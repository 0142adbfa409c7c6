package redissink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yanayukhimuk/Logging/core"
)

// fakeClient records XADD calls
type fakeClient struct {
	mu      sync.Mutex
	adds    []*redis.XAddArgs
	addErr  error
	pingErr error
	closed  bool
}

func (f *fakeClient) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return redis.NewStringResult("", f.addErr)
	}
	f.adds = append(f.adds, a)
	return redis.NewStringResult("1700000000000-0", nil)
}

func (f *fakeClient) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.pingErr)
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeClient) Adds() []*redis.XAddArgs {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*redis.XAddArgs(nil), f.adds...)
}

func newTestSink(t *testing.T, config Config, client *fakeClient) *RedisSink {
	t.Helper()
	if config.Stream == "" {
		config.Stream = "brainstorm:logs"
	}
	sink, err := newRedisSink("redis", &config)
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}
	sink.client = client
	return sink
}

func TestNewRedisSink(t *testing.T) {
	sink, err := NewRedisSink("", Config{Stream: "brainstorm:logs"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sink.Close()

	if sink.Name() != "redis" {
		t.Errorf("expected default name, got %s", sink.Name())
	}
	if sink.config.Addr != "localhost:6379" || sink.config.PoolSize != 10 || sink.config.WriteTimeout != 3*time.Second {
		t.Errorf("unexpected defaults %+v", sink.config)
	}
	if _, ok := sink.client.(*redis.Client); !ok {
		t.Errorf("expected *redis.Client, got %T", sink.client)
	}
}

func TestNewRedisSink_InvalidConfig(t *testing.T) {
	_, err := NewRedisSink("audit", Config{})
	var missing *core.MissingConfigurationError
	if !errors.As(err, &missing) || missing.Field != "stream" || missing.Sink != "audit" {
		t.Errorf("expected missing stream, got %v", err)
	}

	tests := []struct {
		name   string
		config Config
	}{
		{name: "negative db", config: Config{Stream: "s", DB: -1}},
		{name: "negative max len", config: Config{Stream: "s", MaxLen: -5}},
		{name: "negative pool", config: Config{Stream: "s", PoolSize: -1}},
		{name: "unknown level", config: Config{Stream: "s", MinimumLevel: "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRedisSink("audit", tt.config); err == nil {
				t.Error("expected error but got none")
			}
		})
	}
}

func TestRedisSink_Accept(t *testing.T) {
	client := &fakeClient{}
	sink := newTestSink(t, Config{MinimumLevel: "Warning", MaxLen: 1000}, client)

	sink.Accept(mustRecord(t, core.LevelInformation, nil))
	record := mustRecord(t, core.LevelError, errors.New("model state invalid"))
	sink.Accept(record)

	adds := client.Adds()
	if len(adds) != 1 {
		t.Fatalf("expected 1 XADD, got %d", len(adds))
	}
	args := adds[0]
	if args.Stream != "brainstorm:logs" || args.ID != "*" || args.MaxLen != 1000 || !args.Approx {
		t.Errorf("unexpected XADD args %+v", args)
	}

	values, ok := args.Values.(map[string]any)
	if !ok {
		t.Fatalf("expected map values, got %T", args.Values)
	}
	if values["id"] != record.ID() || values["level"] != "Error" || values["logger"] != "Ideas" {
		t.Errorf("unexpected values %v", values)
	}
	if values["error"] != "model state invalid" || values["field.session"] != "3" {
		t.Errorf("expected error and prefixed fields, got %v", values)
	}

	if stats := sink.Stats(); stats.Accepted != 1 || stats.Written != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestRedisSink_AcceptFailure(t *testing.T) {
	client := &fakeClient{addErr: errors.New("READONLY You can't write against a read only replica")}
	sink := newTestSink(t, Config{}, client)

	sink.Accept(mustRecord(t, core.LevelError, nil))

	if stats := sink.Stats(); stats.Failed != 1 || stats.Written != 0 {
		t.Errorf("expected one failure, got %+v", stats)
	}
}

func TestRedisSink_Unbounded(t *testing.T) {
	client := &fakeClient{}
	sink := newTestSink(t, Config{}, client)

	sink.Accept(mustRecord(t, core.LevelDebug, nil))

	if args := client.Adds()[0]; args.MaxLen != 0 || args.Approx {
		t.Errorf("expected no trimming without max_len, got %+v", args)
	}
}

func TestRedisSink_CheckHealth(t *testing.T) {
	client := &fakeClient{}
	sink := newTestSink(t, Config{}, client)

	if err := sink.CheckHealth(context.Background()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}
	client.pingErr = errors.New("connection refused")
	if err := sink.CheckHealth(context.Background()); err == nil {
		t.Error("expected unhealthy")
	}
}

func TestRedisSink_Close(t *testing.T) {
	client := &fakeClient{}
	sink := newTestSink(t, Config{}, client)

	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	_ = sink.Close()
	if !client.closed {
		t.Error("expected client to be closed")
	}

	sink.Accept(mustRecord(t, core.LevelError, nil))
	if stats := sink.Stats(); stats.Dropped != 1 || len(client.Adds()) != 0 {
		t.Errorf("expected record dropped after close, got %+v", stats)
	}
}

func TestRedisSinkFromConfig(t *testing.T) {
	if !core.IsBufferedByDefault("redis") {
		t.Error("expected redis sinks to be buffered by default")
	}

	sink, err := core.CreateSink("redis", "stream", map[string]any{
		"addr":     "cache:6380",
		"db":       2,
		"stream":   "brainstorm:logs",
		"max_len":  5000,
		"password": "secret",
	})
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}
	defer sink.Close()

	rs := sink.(*RedisSink)
	if rs.config.Addr != "cache:6380" || rs.config.DB != 2 || rs.config.MaxLen != 5000 {
		t.Errorf("unexpected config %+v", rs.config)
	}
}

func mustRecord(t *testing.T, level core.Level, err error) *core.Record {
	t.Helper()
	record, recErr := core.NewRecord(level, "Ideas", "Expected Error messages in the logs", err, map[string]string{"session": "3"})
	if recErr != nil {
		t.Fatalf("NewRecord failed: %v", recErr)
	}
	return record
}
