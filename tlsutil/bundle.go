// Package tlsutil loads the PEM bundles robotrpc clients authenticate with and
// issues small ed25519 certificate authorities for development robots and
// tests.
package tlsutil

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// ClientBundle is a parsed client PEM bundle: the CA certificates that sign
// the robot's server certificate plus the client certificate and its key.
type ClientBundle struct {
	Certificate   tls.Certificate
	ClientCert    *x509.Certificate
	ClientCertPEM []byte
	ClientKeyPEM  []byte
	CACerts       []*x509.Certificate
	CAPool        *x509.CertPool
}

// LoadClientBundle reads and parses a client bundle from path.
func LoadClientBundle(path string) (*ClientBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read client bundle: %w", err)
	}
	return ParseClientBundle(data)
}

type keyBlock struct {
	signer crypto.Signer
	pem    []byte
}

// ParseClientBundle parses a client bundle. Non-CA certificates after the
// first are treated as intermediates of the client certificate; the private
// key is matched against the client certificate's public key.
func ParseClientBundle(data []byte) (*ClientBundle, error) {
	b := &ClientBundle{CAPool: x509.NewCertPool()}
	var keys []keyBlock
	for rest := data; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("client bundle: parse certificate: %w", err)
			}
			switch {
			case cert.IsCA:
				b.CACerts = append(b.CACerts, cert)
				b.CAPool.AddCert(cert)
			case b.ClientCert == nil:
				b.ClientCert = cert
				b.ClientCertPEM = pem.EncodeToMemory(block)
			default:
				b.ClientCertPEM = append(b.ClientCertPEM, pem.EncodeToMemory(block)...)
			}
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			key, err := parsePrivateKey(block)
			if err != nil {
				return nil, fmt.Errorf("client bundle: parse private key: %w", err)
			}
			keys = append(keys, keyBlock{signer: key, pem: pem.EncodeToMemory(block)})
		}
	}
	if b.ClientCert == nil {
		return nil, errors.New("client bundle: client certificate not found")
	}
	for _, k := range keys {
		if publicKeysEqual(b.ClientCert.PublicKey, k.signer.Public()) {
			b.ClientKeyPEM = k.pem
			break
		}
	}
	if len(b.ClientKeyPEM) == 0 {
		return nil, errors.New("client bundle: matching private key not found")
	}
	if len(b.CACerts) == 0 {
		return nil, errors.New("client bundle: CA certificate required")
	}
	pair, err := tls.X509KeyPair(b.ClientCertPEM, b.ClientKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("client bundle: build key pair: %w", err)
	}
	b.Certificate = pair
	return b, nil
}

// TLSConfig returns a client TLS configuration presenting the bundle's
// certificate and trusting only the bundle's CAs. serverName overrides the
// name verified against the robot certificate when non-empty.
func (b *ClientBundle) TLSConfig(serverName string) *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{b.Certificate},
		RootCAs:      b.CAPool,
		ServerName:   serverName,
	}
}

// EncodeClientBundle concatenates the CA certificate, client certificate and
// client key into one PEM document.
func EncodeClientBundle(caCertPEM, clientCertPEM, clientKeyPEM []byte) ([]byte, error) {
	if len(clientCertPEM) == 0 || len(clientKeyPEM) == 0 {
		return nil, errors.New("encode client bundle: missing components")
	}
	var buf bytes.Buffer
	buf.Write(caCertPEM)
	buf.Write(clientCertPEM)
	buf.Write(clientKeyPEM)
	return buf.Bytes(), nil
}

func parsePrivateKey(block *pem.Block) (crypto.Signer, error) {
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
			return k, nil
		}
		if k, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
			return k, nil
		}
		return nil, err
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
	switch signer.(type) {
	case ed25519.PrivateKey, *rsa.PrivateKey, *ecdsa.PrivateKey:
		return signer, nil
	default:
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
}

func publicKeysEqual(a, b crypto.PublicKey) bool {
	type equaler interface {
		Equal(crypto.PublicKey) bool
	}
	ak, ok := a.(equaler)
	return ok && ak.Equal(b)
}
