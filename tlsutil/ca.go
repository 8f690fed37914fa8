package tlsutil

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"strings"
	"time"
)

const (
	// DefaultCAName is the common name used when GenerateCA gets none.
	DefaultCAName = "robotrpc-ca"
	// DefaultClientName is the common name used when IssueClient gets none.
	DefaultClientName = "robotrpc-client"
	// DefaultServerName is the common name used when IssueServer gets none.
	DefaultServerName = "robot"
)

// CA holds a certificate authority keypair.
type CA struct {
	Cert    *x509.Certificate
	CertPEM []byte
	Key     ed25519.PrivateKey
	KeyPEM  []byte
}

// Issued is a certificate and private key issued by a CA.
type Issued struct {
	CertPEM []byte
	KeyPEM  []byte
}

// GenerateCA creates a self-signed ed25519 certificate authority.
func GenerateCA(commonName string, validity time.Duration) (*CA, error) {
	if validity <= 0 {
		validity = 10 * 365 * 24 * time.Hour
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ca key: %w", err)
	}
	tmpl, err := template(defaultString(commonName, DefaultCAName), validity)
	if err != nil {
		return nil, err
	}
	tmpl.IsCA = true
	tmpl.BasicConstraintsValid = true
	tmpl.MaxPathLenZero = true
	tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, priv)
	if err != nil {
		return nil, fmt.Errorf("create ca certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse ca certificate: %w", err)
	}
	keyPEM, err := encodeKey(priv)
	if err != nil {
		return nil, err
	}
	return &CA{
		Cert:    cert,
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		Key:     priv,
		KeyPEM:  keyPEM,
	}, nil
}

// IssueServer issues a robot server certificate valid for hosts. IP literals
// become IP SANs and everything else a DNS SAN.
func (ca *CA) IssueServer(commonName string, hosts []string, validity time.Duration) (Issued, error) {
	tmpl, err := template(defaultString(commonName, DefaultServerName), validity)
	if err != nil {
		return Issued{}, err
	}
	tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	for _, host := range hosts {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		if ip := net.ParseIP(host); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, host)
		}
	}
	return ca.issue(tmpl)
}

// IssueClient issues a client certificate for mutual TLS.
func (ca *CA) IssueClient(commonName string, validity time.Duration) (Issued, error) {
	tmpl, err := template(defaultString(commonName, DefaultClientName), validity)
	if err != nil {
		return Issued{}, err
	}
	tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	return ca.issue(tmpl)
}

// EncodeCA concatenates the CA certificate and key into one PEM document.
func (ca *CA) EncodeCA() []byte {
	var buf bytes.Buffer
	buf.Write(ca.CertPEM)
	buf.Write(ca.KeyPEM)
	return buf.Bytes()
}

// LoadCA reads a CA certificate and ed25519 key from path.
func LoadCA(path string) (*CA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ca bundle: %w", err)
	}
	return ParseCA(data)
}

// ParseCA parses a PEM document written by EncodeCA.
func ParseCA(data []byte) (*CA, error) {
	ca := &CA{}
	for rest := data; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			if ca.Cert != nil {
				continue
			}
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse ca certificate: %w", err)
			}
			ca.Cert = cert
			ca.CertPEM = pem.EncodeToMemory(block)
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			key, err := parsePrivateKey(block)
			if err != nil {
				return nil, fmt.Errorf("parse ca private key: %w", err)
			}
			edKey, ok := key.(ed25519.PrivateKey)
			if !ok {
				return nil, fmt.Errorf("ca private key must be ed25519, got %T", key)
			}
			ca.Key = edKey
			ca.KeyPEM = pem.EncodeToMemory(block)
		}
	}
	switch {
	case ca.Cert == nil:
		return nil, errors.New("ca certificate not found")
	case ca.Key == nil:
		return nil, errors.New("ca private key not found")
	case !ca.Cert.IsCA:
		return nil, errors.New("certificate is not a CA")
	}
	return ca, nil
}

func (ca *CA) issue(tmpl *x509.Certificate) (Issued, error) {
	if ca == nil {
		return Issued{}, errors.New("ca is nil")
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Issued{}, fmt.Errorf("generate key: %w", err)
	}
	tmpl.KeyUsage = x509.KeyUsageDigitalSignature
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.Cert, pub, ca.Key)
	if err != nil {
		return Issued{}, fmt.Errorf("create certificate %q: %w", tmpl.Subject.CommonName, err)
	}
	keyPEM, err := encodeKey(priv)
	if err != nil {
		return Issued{}, err
	}
	return Issued{
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:  keyPEM,
	}, nil
}

func template(commonName string, validity time.Duration) (*x509.Certificate, error) {
	if validity <= 0 {
		validity = 365 * 24 * time.Hour
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}
	now := time.Now().UTC()
	return &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(validity),
	}, nil
}

func encodeKey(priv ed25519.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
