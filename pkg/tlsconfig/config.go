// Package tlsconfig builds client-side TLS settings for sinks and alert
// transports that talk to remote services (SMTP, Kafka, Redis).
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log"
	"os"
)

// Config represents client TLS options as they appear in sink configuration
type Config struct {
	Enabled bool `yaml:"enabled,omitempty"`

	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty"` // development only
	CACert             string `yaml:"ca_cert,omitempty"`              // Path to a PEM CA bundle
	CACertData         string `yaml:"ca_cert_data,omitempty"`         // Inline PEM CA bundle

	ClientCert     string `yaml:"client_cert,omitempty"`
	ClientCertData string `yaml:"client_cert_data,omitempty"`
	ClientKey      string `yaml:"client_key,omitempty"`
	ClientKeyData  string `yaml:"client_key_data,omitempty"`

	MinVersion string `yaml:"min_version,omitempty"` // "1.0" to "1.3", default "1.2"
	MaxVersion string `yaml:"max_version,omitempty"`
	ServerName string `yaml:"server_name,omitempty"` // SNI, defaults to the dialed host
}

// pemSource is a PEM blob configured either as a path or inline
type pemSource struct {
	what string
	path string
	data string
}

func (p pemSource) set() bool { return p.path != "" || p.data != "" }

func (p pemSource) load() ([]byte, error) {
	switch {
	case p.path != "":
		data, err := os.ReadFile(p.path) // #nosec G304 - path comes from operator configuration
		if err != nil {
			return nil, fmt.Errorf("failed to read %s file: %w", p.what, err)
		}
		return data, nil
	case p.data != "":
		return []byte(p.data), nil
	default:
		return nil, fmt.Errorf("no %s provided", p.what)
	}
}

func (c *Config) caSource() pemSource {
	return pemSource{what: "CA certificate", path: c.CACert, data: c.CACertData}
}

func (c *Config) certSource() pemSource {
	return pemSource{what: "client certificate", path: c.ClientCert, data: c.ClientCertData}
}

func (c *Config) keySource() pemSource {
	return pemSource{what: "client key", path: c.ClientKey, data: c.ClientKeyData}
}

// Validate checks the TLS options without touching the filesystem
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	if c.CACert != "" && c.CACertData != "" {
		return errors.New("cannot specify both ca_cert and ca_cert_data")
	}
	if c.ClientCert != "" && c.ClientCertData != "" {
		return errors.New("cannot specify both client_cert and client_cert_data")
	}
	if c.ClientKey != "" && c.ClientKeyData != "" {
		return errors.New("cannot specify both client_key and client_key_data")
	}
	if c.certSource().set() != c.keySource().set() {
		return errors.New("both client certificate and key must be provided")
	}

	for _, v := range []string{c.MinVersion, c.MaxVersion} {
		if v == "" {
			continue
		}
		if _, err := parseTLSVersion(v); err != nil {
			return err
		}
	}
	return nil
}

// NewTLSConfig creates a *tls.Config, or nil when TLS is disabled
func (c *Config) NewTLSConfig() (*tls.Config, error) {
	return c.ClientFor("")
}

// ClientFor creates a *tls.Config for dialing host. host is used as the
// server name when none is configured.
func (c *Config) ClientFor(host string) (*tls.Config, error) {
	if c == nil || !c.Enabled {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if c.InsecureSkipVerify {
		log.Printf("[TLS] WARNING: certificate verification is disabled for %s", host)
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: c.InsecureSkipVerify, // #nosec G402 - intentionally configurable for development
		ServerName:         c.ServerName,
		MinVersion:         tls.VersionTLS12,
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = host
	}

	if c.MinVersion != "" {
		version, err := parseTLSVersion(c.MinVersion)
		if err != nil {
			return nil, fmt.Errorf("invalid min_version: %w", err)
		}
		tlsConfig.MinVersion = version
	}
	if c.MaxVersion != "" {
		version, err := parseTLSVersion(c.MaxVersion)
		if err != nil {
			return nil, fmt.Errorf("invalid max_version: %w", err)
		}
		tlsConfig.MaxVersion = version
	}

	if c.caSource().set() {
		pool, err := c.loadCACertPool()
		if err != nil {
			return nil, fmt.Errorf("failed to load CA certificate: %w", err)
		}
		tlsConfig.RootCAs = pool
	}

	if c.certSource().set() {
		cert, err := c.loadClientCertificate()
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func (c *Config) loadCACertPool() (*x509.CertPool, error) {
	data, err := c.caSource().load()
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, errors.New("failed to parse CA certificate")
	}
	return pool, nil
}

func (c *Config) loadClientCertificate() (tls.Certificate, error) {
	certData, err := c.certSource().load()
	if err != nil {
		return tls.Certificate{}, err
	}
	keyData, err := c.keySource().load()
	if err != nil {
		return tls.Certificate{}, err
	}
	cert, err := tls.X509KeyPair(certData, keyData)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load key pair: %w", err)
	}
	return cert, nil
}

func parseTLSVersion(version string) (uint16, error) {
	switch version {
	case "1.0":
		return tls.VersionTLS10, nil
	case "1.1":
		return tls.VersionTLS11, nil
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unknown TLS version: %s (supported: 1.0, 1.1, 1.2, 1.3)", version)
	}
}
