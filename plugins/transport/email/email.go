package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
	"github.com/yanayukhimuk/Logging/core"
	"github.com/yanayukhimuk/Logging/pkg/tlsconfig"
)

func init() {
	// Auto-register this transport
	core.RegisterTransport("email", NewEmailTransportFromConfig)
}

// Config represents SMTP transport configuration. Username and Password
// default to empty, which sends without authentication.
type Config struct {
	Recipient string            `yaml:"recipient"`           // Required: one address or a comma separated list
	From      string            `yaml:"from,omitempty"`      // Default: noreply@localhost
	Host      string            `yaml:"host,omitempty"`      // Default: localhost
	Port      int               `yaml:"port,omitempty"`      // Default: 25
	Username  string            `yaml:"username,omitempty"`  // PLAIN auth when set
	Password  string            `yaml:"password,omitempty"`
	Subject   string            `yaml:"subject,omitempty"`   // Overrides the generated subject
	TLS       *tlsconfig.Config `yaml:"tls,omitempty"`       // Implicit TLS (SMTPS)
	StartTLS  bool              `yaml:"start_tls,omitempty"` // Upgrade a plain connection with STARTTLS
	Timeout   time.Duration     `yaml:"timeout,omitempty"`   // Dial and session deadline when the caller sets none
}

// Validate validates the Config after defaults are applied
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Recipient, validation.Required, validation.By(func(value interface{}) error {
			for _, addr := range splitRecipients(c.Recipient) {
				if err := is.EmailFormat.Validate(addr); err != nil {
					return fmt.Errorf("%q: %w", addr, err)
				}
			}
			return nil
		})),
		validation.Field(&c.From, validation.Required, validation.By(func(value interface{}) error {
			if err := mail.NewMsg().From(c.From); err != nil {
				return errors.New("must be a valid email address")
			}
			return nil
		})),
		validation.Field(&c.Host, validation.Required),
		validation.Field(&c.Port, validation.Min(1).Error("must be no less than 1"), validation.Max(65535).Error("must be no greater than 65535")),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0)).Error("must not be negative")),
		validation.Field(&c.TLS),
	)
}

// NewEmailTransportFromConfig creates an email transport from configuration map
func NewEmailTransportFromConfig(config map[string]any) (core.Transport, error) {
	var cfg Config
	if err := core.GetPluginConfig(config, &cfg); err != nil {
		return nil, err
	}
	return NewEmailTransport(cfg)
}

// EmailTransport sends one email per alert message over SMTP
type EmailTransport struct {
	config     Config
	recipients []string
	tlsConfig  *tls.Config
}

// NewEmailTransport creates a new SMTP transport
func NewEmailTransport(config Config) (*EmailTransport, error) {
	if strings.TrimSpace(config.Recipient) == "" {
		return nil, &core.MissingConfigurationError{Field: "recipient"}
	}

	// Set defaults
	if config.From == "" {
		config.From = "noreply@localhost"
	}
	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port == 0 {
		config.Port = 25
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid email transport config: %w", err)
	}

	t := &EmailTransport{
		config:     config,
		recipients: splitRecipients(config.Recipient),
	}

	if (config.TLS != nil && config.TLS.Enabled) || config.StartTLS {
		tlsCfg := config.TLS
		if tlsCfg == nil || !tlsCfg.Enabled {
			tlsCfg = &tlsconfig.Config{Enabled: true}
		}
		built, err := tlsCfg.ClientFor(config.Host)
		if err != nil {
			return nil, fmt.Errorf("invalid email transport TLS config: %w", err)
		}
		t.tlsConfig = built
	}

	return t, nil
}

// Name returns the transport name
func (t *EmailTransport) Name() string { return "email" }

// Recipients returns the parsed recipient list
func (t *EmailTransport) Recipients() []string {
	return append([]string(nil), t.recipients...)
}

// Send delivers msg as a single plain-text email to every recipient
func (t *EmailTransport) Send(ctx context.Context, msg core.AlertMessage) error {
	if len(msg.Records) == 0 && msg.Body == "" {
		return nil
	}

	message, err := t.compose(msg)
	if err != nil {
		return err
	}
	client, err := t.client(ctx)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(t.config.Host, strconv.Itoa(t.config.Port))
	if err := client.DialAndSendWithContext(ctx, message); err != nil {
		return fmt.Errorf("failed to send alert email via %s: %w", addr, err)
	}
	return nil
}

// CheckHealth opens a session (including TLS and authentication) and
// closes it again
func (t *EmailTransport) CheckHealth(ctx context.Context) error {
	client, err := t.client(ctx)
	if err != nil {
		return err
	}
	if err := client.DialWithContext(ctx); err != nil {
		return fmt.Errorf("SMTP session with %s:%d failed: %w", t.config.Host, t.config.Port, err)
	}
	return client.Close()
}

// Close releases the transport. Each Send uses its own connection.
func (t *EmailTransport) Close() error { return nil }

// client builds a go-mail client for one session. The caller's deadline
// wins over the configured timeout.
func (t *EmailTransport) client(ctx context.Context) (*mail.Client, error) {
	timeout := t.config.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, ctx.Err()
		}
	}

	opts := []mail.Option{
		mail.WithPort(t.config.Port),
		mail.WithTimeout(timeout),
	}
	switch {
	case t.config.StartTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory), mail.WithTLSConfig(t.tlsConfig))
	case t.tlsConfig != nil:
		opts = append(opts, mail.WithSSL(), mail.WithTLSConfig(t.tlsConfig))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if t.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.config.Username),
			mail.WithPassword(t.config.Password),
		)
	}

	client, err := mail.NewClient(t.config.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP client settings: %w", err)
	}
	return client, nil
}

// compose builds the plain-text message; the Message-ID uses the sender's
// domain
func (t *EmailTransport) compose(msg core.AlertMessage) (*mail.Msg, error) {
	subject := msg.Subject
	if t.config.Subject != "" {
		subject = t.config.Subject
	}

	domain := t.config.Host
	if at := strings.LastIndex(t.config.From, "@"); at >= 0 {
		domain = strings.TrimSuffix(t.config.From[at+1:], ">")
	}

	m := mail.NewMsg(mail.WithCharset(mail.CharsetUTF8), mail.WithEncoding(mail.NoEncoding))
	if err := m.From(t.config.From); err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	if err := m.To(t.recipients...); err != nil {
		return nil, fmt.Errorf("invalid recipients: %w", err)
	}
	m.Subject(subject)
	m.SetDate()
	m.SetMessageIDWithValue(uuid.NewString() + "@" + domain)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

func splitRecipients(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
