package tlsconfig

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// selfSigned returns a PEM encoded self-signed CA certificate and its key
func selfSigned(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "brainstorm-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "nil config", config: nil, wantErr: false},
		{name: "disabled ignores conflicts", config: &Config{CACert: "a", CACertData: "b"}, wantErr: false},
		{name: "insecure", config: &Config{Enabled: true, InsecureSkipVerify: true}, wantErr: false},
		{name: "both ca sources", config: &Config{Enabled: true, CACert: "/ca.pem", CACertData: "pem"}, wantErr: true},
		{name: "both cert sources", config: &Config{Enabled: true, ClientCert: "/c.pem", ClientCertData: "pem", ClientKey: "/k.pem"}, wantErr: true},
		{name: "both key sources", config: &Config{Enabled: true, ClientCert: "/c.pem", ClientKey: "/k.pem", ClientKeyData: "pem"}, wantErr: true},
		{name: "cert without key", config: &Config{Enabled: true, ClientCert: "/c.pem"}, wantErr: true},
		{name: "key without cert", config: &Config{Enabled: true, ClientKeyData: "pem"}, wantErr: true},
		{name: "valid versions", config: &Config{Enabled: true, MinVersion: "1.2", MaxVersion: "1.3"}, wantErr: false},
		{name: "bad min version", config: &Config{Enabled: true, MinVersion: "2.0"}, wantErr: true},
		{name: "bad max version", config: &Config{Enabled: true, MaxVersion: "ssl3"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ClientFor(t *testing.T) {
	t.Run("disabled returns nil", func(t *testing.T) {
		cfg, err := (&Config{}).ClientFor("smtp.example.com")
		if err != nil || cfg != nil {
			t.Errorf("expected nil config, got %v, %v", cfg, err)
		}
	})

	t.Run("server name defaults to host", func(t *testing.T) {
		cfg, err := (&Config{Enabled: true}).ClientFor("smtp.example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.ServerName != "smtp.example.com" {
			t.Errorf("expected server name from host, got %q", cfg.ServerName)
		}
		if cfg.MinVersion != tls.VersionTLS12 {
			t.Errorf("expected TLS 1.2 minimum, got %x", cfg.MinVersion)
		}
	})

	t.Run("explicit server name and versions", func(t *testing.T) {
		cfg, err := (&Config{Enabled: true, ServerName: "mail", MinVersion: "1.3", MaxVersion: "1.3"}).ClientFor("10.0.0.1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.ServerName != "mail" {
			t.Errorf("expected configured server name, got %q", cfg.ServerName)
		}
		if cfg.MinVersion != tls.VersionTLS13 || cfg.MaxVersion != tls.VersionTLS13 {
			t.Errorf("unexpected versions %x-%x", cfg.MinVersion, cfg.MaxVersion)
		}
	})

	t.Run("invalid config is rejected", func(t *testing.T) {
		if _, err := (&Config{Enabled: true, ClientCert: "/c.pem"}).ClientFor("h"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestConfig_Certificates(t *testing.T) {
	certPEM, keyPEM := selfSigned(t)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, certPEM, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
		t.Fatal(err)
	}

	t.Run("ca from file", func(t *testing.T) {
		cfg, err := (&Config{Enabled: true, CACert: certFile}).NewTLSConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.RootCAs == nil {
			t.Error("expected root CAs")
		}
	})

	t.Run("ca from data", func(t *testing.T) {
		cfg, err := (&Config{Enabled: true, CACertData: string(certPEM)}).NewTLSConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.RootCAs == nil {
			t.Error("expected root CAs")
		}
	})

	t.Run("invalid ca data", func(t *testing.T) {
		if _, err := (&Config{Enabled: true, CACertData: "not a certificate"}).NewTLSConfig(); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("missing ca file", func(t *testing.T) {
		if _, err := (&Config{Enabled: true, CACert: filepath.Join(dir, "missing.pem")}).NewTLSConfig(); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("client pair from files", func(t *testing.T) {
		cfg, err := (&Config{Enabled: true, ClientCert: certFile, ClientKey: keyFile}).NewTLSConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Certificates) != 1 {
			t.Errorf("expected one client certificate, got %d", len(cfg.Certificates))
		}
	})

	t.Run("client pair from data", func(t *testing.T) {
		cfg, err := (&Config{Enabled: true, ClientCertData: string(certPEM), ClientKeyData: string(keyPEM)}).NewTLSConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Certificates) != 1 {
			t.Errorf("expected one client certificate, got %d", len(cfg.Certificates))
		}
	})

	t.Run("mismatched pair", func(t *testing.T) {
		_, otherKey := selfSigned(t)
		if _, err := (&Config{Enabled: true, ClientCertData: string(certPEM), ClientKeyData: string(otherKey)}).NewTLSConfig(); err == nil {
			t.Error("expected key pair error")
		}
	})
}
