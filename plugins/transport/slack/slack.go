package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/yanayukhimuk/Logging/core"
)

func init() {
	// Auto-register this transport
	core.RegisterTransport("slack", NewSlackTransportFromConfig)
}

// Config represents slack transport configuration
type Config struct {
	WebhookURL string        `yaml:"webhook_url"`          // Required: Slack webhook URL
	Username   string        `yaml:"username,omitempty"`   // Optional: Username to post as
	Channel    string        `yaml:"channel,omitempty"`    // Optional: Channel to post to
	IconEmoji  string        `yaml:"icon_emoji,omitempty"` // Optional: Emoji icon
	IconURL    string        `yaml:"icon_url,omitempty"`   // Optional: URL icon
	Timeout    time.Duration `yaml:"timeout,omitempty"`    // Optional: HTTP timeout (default 30s)
}

// Validate validates the Config
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.WebhookURL, validation.Required, is.URL),
		validation.Field(&c.IconURL, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0)).Error("must not be negative")),
	)
}

// NewSlackTransportFromConfig creates a slack transport from configuration map
func NewSlackTransportFromConfig(config map[string]any) (core.Transport, error) {
	var cfg Config
	if err := core.GetPluginConfig(config, &cfg); err != nil {
		return nil, err
	}

	return NewSlackTransport(cfg)
}

// SlackTransport posts alert batches to a Slack incoming webhook
type SlackTransport struct {
	config     Config
	client     *http.Client
	closeMutex sync.Mutex
	closed     bool
}

// Message represents a Slack message payload
type Message struct {
	Text        string       `json:"text,omitempty"`
	Username    string       `json:"username,omitempty"`
	Channel     string       `json:"channel,omitempty"`
	IconEmoji   string       `json:"icon_emoji,omitempty"`
	IconURL     string       `json:"icon_url,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a Slack message attachment, one per record
type Attachment struct {
	Fallback   string  `json:"fallback"`
	Color      string  `json:"color"`
	AuthorName string  `json:"author_name,omitempty"`
	Title      string  `json:"title"`
	Text       string  `json:"text"`
	Fields     []Field `json:"fields,omitempty"`
	Timestamp  int64   `json:"ts,omitempty"`
}

// Field represents a field in a Slack attachment
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short,omitempty"`
}

// NewSlackTransport creates a new Slack transport
func NewSlackTransport(config Config) (*SlackTransport, error) {
	if config.WebhookURL == "" {
		return nil, &core.MissingConfigurationError{Field: "webhook_url"}
	}

	// Set defaults
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid slack transport config: %w", err)
	}

	return &SlackTransport{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Name returns the transport name
func (s *SlackTransport) Name() string { return "slack" }

// Send posts one webhook message for the whole batch
func (s *SlackTransport) Send(ctx context.Context, msg core.AlertMessage) error {
	s.closeMutex.Lock()
	closed := s.closed
	s.closeMutex.Unlock()
	if closed {
		return fmt.Errorf("slack transport is closed")
	}

	jsonData, err := json.Marshal(s.createMessage(msg))
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Slack message: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// createMessage builds the webhook payload for an alert message
func (s *SlackTransport) createMessage(msg core.AlertMessage) Message {
	message := Message{
		Text:      msg.Subject,
		Username:  s.config.Username,
		Channel:   s.config.Channel,
		IconEmoji: s.config.IconEmoji,
		IconURL:   s.config.IconURL,
	}

	for _, record := range msg.Records {
		message.Attachments = append(message.Attachments, s.createAttachment(record))
	}

	return message
}

func (s *SlackTransport) createAttachment(record *core.Record) Attachment {
	attachment := Attachment{
		Fallback:   fmt.Sprintf("[%s] %s", record.Level(), record.Message()),
		Color:      colorForLevel(record.Level()),
		AuthorName: record.LoggerName(),
		Title:      fmt.Sprintf("%s - %s", record.Level(), record.LoggerName()),
		Text:       record.Message(),
		Timestamp:  record.Timestamp().Unix(),
		Fields: []Field{
			{Title: "Level", Value: record.Level().String(), Short: true},
			{Title: "Timestamp", Value: record.Timestamp().Format("2006-01-02 15:04:05.000 -07:00"), Short: true},
		},
	}

	if err := record.Err(); err != nil {
		attachment.Fields = append(attachment.Fields, Field{Title: "Error", Value: err.Error()})
	}

	fields := record.Fields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attachment.Fields = append(attachment.Fields, Field{Title: k, Value: fields[k], Short: true})
	}

	return attachment
}

// colorForLevel returns the attachment color for a level
func colorForLevel(level core.Level) string {
	switch level {
	case core.LevelCritical:
		return "#8B0000"
	case core.LevelError:
		return "danger"
	case core.LevelWarning:
		return "warning"
	case core.LevelInformation:
		return "good"
	default:
		return "#808080"
	}
}

// Close closes the Slack transport
func (s *SlackTransport) Close() error {
	s.closeMutex.Lock()
	defer s.closeMutex.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.client.CloseIdleConnections()
	return nil
}
