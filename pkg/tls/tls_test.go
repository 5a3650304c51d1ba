package tls

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

// writeCerts creates a self-signed CA and a leaf signed by it.
func writeCerts(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	dir := t.TempDir()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "morepork-test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatal(err)
	}

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "trainer"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, caTmpl, &leafKey.PublicKey, caKey)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(leafKey)
	if err != nil {
		t.Fatal(err)
	}

	caFile = writePEM(t, filepath.Join(dir, "ca.pem"), "CERTIFICATE", caDER)
	certFile = writePEM(t, filepath.Join(dir, "cert.pem"), "CERTIFICATE", leafDER)
	keyFile = writePEM(t, filepath.Join(dir, "key.pem"), "EC PRIVATE KEY", keyDER)
	return certFile, keyFile, caFile
}

func writePEM(t *testing.T, path, typ string, der []byte) string {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfig_Validate(t *testing.T) {
	cert, key, ca := writeCerts(t)

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "disabled", cfg: Config{}},
		{name: "complete", cfg: Config{Enabled: true, CertFile: cert, KeyFile: key, CAFile: ca}},
		{name: "missing ca", cfg: Config{Enabled: true, CertFile: cert, KeyFile: key}, wantErr: true},
		{name: "nonexistent file", cfg: Config{Enabled: true, CertFile: cert, KeyFile: key, CAFile: "/nonexistent/ca.pem"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewClientTLSConfig(t *testing.T) {
	cert, key, ca := writeCerts(t)

	cfg, err := NewClientTLSConfig(cert, key, ca)
	if err != nil {
		t.Fatalf("NewClientTLSConfig() error = %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS13 {
		t.Errorf("MinVersion = %x, want TLS 1.3", cfg.MinVersion)
	}
	if len(cfg.Certificates) != 1 || cfg.RootCAs == nil {
		t.Error("client config must carry a certificate and root CAs")
	}
}

func TestNewServerTLSConfig(t *testing.T) {
	cert, key, ca := writeCerts(t)

	cfg, err := NewServerTLSConfig(cert, key, ca)
	if err != nil {
		t.Fatalf("NewServerTLSConfig() error = %v", err)
	}
	if cfg.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Errorf("ClientAuth = %v, want RequireAndVerifyClientCert", cfg.ClientAuth)
	}
	if cfg.ClientCAs == nil || len(cfg.Certificates) != 1 {
		t.Error("server config must carry a certificate and client CAs")
	}
}

func TestNewClientTLSConfig_BadCA(t *testing.T) {
	cert, key, _ := writeCerts(t)
	bad := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(bad, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewClientTLSConfig(cert, key, bad); err == nil {
		t.Fatal("expected error for unparsable CA")
	}
}

func TestConfig_TransportCredentials(t *testing.T) {
	creds, err := Config{}.TransportCredentials()
	if err != nil {
		t.Fatalf("TransportCredentials() error = %v", err)
	}
	if got := creds.Info().SecurityProtocol; got != "insecure" {
		t.Errorf("disabled SecurityProtocol = %q, want insecure", got)
	}

	cert, key, ca := writeCerts(t)
	creds, err = Config{Enabled: true, CertFile: cert, KeyFile: key, CAFile: ca}.TransportCredentials()
	if err != nil {
		t.Fatalf("TransportCredentials() error = %v", err)
	}
	if got := creds.Info().SecurityProtocol; got != "tls" {
		t.Errorf("enabled SecurityProtocol = %q, want tls", got)
	}
}
