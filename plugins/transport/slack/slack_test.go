package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/yanayukhimuk/Logging/core"
)

func newRecord(t *testing.T, level core.Level, message string, err error, fields map[string]string) *core.Record {
	t.Helper()
	ts := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	record, recErr := core.NewRecordAt(ts, level, "Ideas", message, err, fields)
	if recErr != nil {
		t.Fatalf("NewRecordAt failed: %v", recErr)
	}
	return record
}

func TestNewSlackTransport(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name: "valid config",
			config: Config{
				WebhookURL: "https://hooks.slack.com/services/xxx",
				Username:   "BrainstormBot",
				Channel:    "#alerts",
				Timeout:    10 * time.Second,
			},
			expectError: false,
		},
		{
			name:        "missing webhook URL",
			config:      Config{},
			expectError: true,
		},
		{
			name:        "malformed webhook URL",
			config:      Config{WebhookURL: "not a url"},
			expectError: true,
		},
		{
			name: "default timeout",
			config: Config{
				WebhookURL: "https://hooks.slack.com/services/xxx",
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport, err := NewSlackTransport(tt.config)
			if tt.expectError {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if transport.client.Timeout == 0 {
				t.Error("expected a client timeout")
			}
		})
	}
}

func TestNewSlackTransport_MissingWebhook(t *testing.T) {
	_, err := NewSlackTransportFromConfig(map[string]any{"channel": "#alerts"})
	var missing *core.MissingConfigurationError
	if !errors.As(err, &missing) || missing.Field != "webhook_url" {
		t.Errorf("expected missing webhook_url, got %v", err)
	}
}

func TestSlackTransport_Send(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Message
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST request, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
		}

		var message Message
		if err := json.NewDecoder(r.Body).Decode(&message); err != nil {
			t.Errorf("failed to decode message: %v", err)
			return
		}
		mu.Lock()
		received = append(received, message)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport, err := NewSlackTransport(Config{
		WebhookURL: server.URL,
		Username:   "BrainstormBot",
		Channel:    "#alerts",
		IconEmoji:  ":fire:",
	})
	if err != nil {
		t.Fatalf("failed to create Slack transport: %v", err)
	}

	msg := core.AlertMessage{
		Subject: "[Critical] Log alerts (2)",
		Records: []*core.Record{
			newRecord(t, core.LevelError, "Expected Error messages in the logs", errors.New("model state invalid"), nil),
			newRecord(t, core.LevelCritical, "Database unavailable", nil, map[string]string{"session": "7"}),
		},
	}

	if err := transport.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected one webhook post per batch, got %d", len(received))
	}
	message := received[0]
	if message.Text != msg.Subject || message.Username != "BrainstormBot" || message.Channel != "#alerts" {
		t.Errorf("unexpected message header %+v", message)
	}
	if len(message.Attachments) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(message.Attachments))
	}

	first := message.Attachments[0]
	if first.Color != "danger" || first.Title != "Error - Ideas" || first.Text != "Expected Error messages in the logs" {
		t.Errorf("unexpected first attachment %+v", first)
	}
	if len(first.Fields) != 3 || first.Fields[2].Value != "model state invalid" {
		t.Errorf("expected level, timestamp and error fields, got %+v", first.Fields)
	}

	second := message.Attachments[1]
	if second.Color != "#8B0000" {
		t.Errorf("expected critical color, got %s", second.Color)
	}
	if len(second.Fields) != 3 || second.Fields[2].Title != "session" || second.Fields[2].Value != "7" {
		t.Errorf("expected record fields to be attached, got %+v", second.Fields)
	}
	if second.Timestamp != time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC).Unix() {
		t.Errorf("unexpected timestamp %d", second.Timestamp)
	}
}

func TestSlackTransport_SendHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	transport, err := NewSlackTransport(Config{WebhookURL: server.URL})
	if err != nil {
		t.Fatalf("failed to create Slack transport: %v", err)
	}

	msg := core.AlertMessage{Subject: "s", Records: []*core.Record{newRecord(t, core.LevelError, "boom", nil, nil)}}
	if err := transport.Send(context.Background(), msg); err == nil {
		t.Error("expected error due to HTTP 500 response")
	}
}

func TestSlackTransport_SendHonoursContext(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	transport, err := NewSlackTransport(Config{WebhookURL: server.URL})
	if err != nil {
		t.Fatalf("failed to create Slack transport: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	msg := core.AlertMessage{Subject: "s", Records: []*core.Record{newRecord(t, core.LevelError, "boom", nil, nil)}}
	if err := transport.Send(ctx, msg); err == nil {
		t.Error("expected deadline error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Send ignored the context deadline (%v)", elapsed)
	}
}

func TestSlackTransport_Close(t *testing.T) {
	transport, err := NewSlackTransport(Config{WebhookURL: "https://hooks.slack.com/services/xxx"})
	if err != nil {
		t.Fatalf("failed to create Slack transport: %v", err)
	}

	if err := transport.Close(); err != nil {
		t.Errorf("unexpected error on close: %v", err)
	}
	if err := transport.Close(); err != nil {
		t.Errorf("unexpected error on second close: %v", err)
	}

	msg := core.AlertMessage{Subject: "s", Records: []*core.Record{newRecord(t, core.LevelError, "late", nil, nil)}}
	if err := transport.Send(context.Background(), msg); err == nil {
		t.Error("expected error when sending after close")
	}
}

func TestColorForLevel(t *testing.T) {
	tests := []struct {
		level core.Level
		color string
	}{
		{core.LevelCritical, "#8B0000"},
		{core.LevelError, "danger"},
		{core.LevelWarning, "warning"},
		{core.LevelInformation, "good"},
		{core.LevelDebug, "#808080"},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if color := colorForLevel(tt.level); color != tt.color {
				t.Errorf("expected color %s for level %s, got %s", tt.color, tt.level, color)
			}
		})
	}
}
