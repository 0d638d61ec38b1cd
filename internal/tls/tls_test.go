package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func TestSetup_Disabled(t *testing.T) {
	c, err := Setup(Config{})
	if err != nil || c != nil {
		t.Fatalf("expected nil config, got %v %v", c, err)
	}
}

func TestSetup_NoCertificate(t *testing.T) {
	if _, err := Setup(Config{Enabled: true}); err == nil {
		t.Fatalf("expected error without certificate settings")
	}
}

func TestSetup_AutoGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	c, err := Setup(Config{Enabled: true, Dir: dir, AutoGenerate: true, Hosts: []string{"mc.example", "10.0.0.5"}, MinVersion: "1.2"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if c.MinVersion != tls.VersionTLS12 {
		t.Fatalf("min version %x", c.MinVersion)
	}
	cert, err := c.GetCertificate(&tls.ClientHelloInfo{})
	if err != nil || cert == nil {
		t.Fatalf("GetCertificate: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, tlsCrt))
	if err != nil {
		t.Fatal(err)
	}
	block, _ := pem.Decode(raw)
	x, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(x.DNSNames) != 1 || x.DNSNames[0] != "mc.example" || len(x.IPAddresses) != 1 {
		t.Fatalf("unexpected SANs: %v %v", x.DNSNames, x.IPAddresses)
	}
	if info, err := os.Stat(filepath.Join(dir, tlsKey)); err != nil || info.Mode().Perm() != 0o600 {
		t.Fatalf("key file mode: %v %v", info, err)
	}
}

func TestSetup_ExplicitFilesAndBadVersion(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := filepath.Join(dir, "a.crt"), filepath.Join(dir, "a.key")
	if err := GenerateSelfSigned(certPath, keyPath, nil, 0); err != nil {
		t.Fatalf("generate: %v", err)
	}
	c, err := Setup(Config{Enabled: true, CertFile: certPath, KeyFile: keyPath})
	if err != nil || c.MinVersion != tls.VersionTLS13 {
		t.Fatalf("Setup: %v %v", c, err)
	}
	if _, err := Setup(Config{Enabled: true, CertFile: certPath, KeyFile: keyPath, MinVersion: "1.1"}); err == nil {
		t.Fatalf("expected error for TLS 1.1")
	}
	if _, err := Setup(Config{Enabled: true, CertFile: certPath, KeyFile: filepath.Join(dir, "missing.key")}); err == nil {
		t.Fatalf("expected error for missing key")
	}
}
