package secure

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/ValentinKolb/dInv/rpc/common"
)

// SelfSigned creates a self-signed ECDSA certificate valid for the given hosts (DNS names or IPs).
// The certificate is its own CA and is valid for both server and client authentication.
func SelfSigned(validFor time.Duration, hosts ...string) (certPEM, keyPEM []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"dInv"}, CommonName: "dinv"},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal key: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}

// WriteSelfSigned writes a self-signed certificate (cert.pem) and key (key.pem) into dir.
// The returned TLSConf uses the certificate as its own CA, so it works for both ends of a connection.
func WriteSelfSigned(dir string, validFor time.Duration, hosts ...string) (common.TLSConf, error) {
	certPEM, keyPEM, err := SelfSigned(validFor, hosts...)
	if err != nil {
		return common.TLSConf{}, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return common.TLSConf{}, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	conf := common.TLSConf{
		CertFile: filepath.Join(dir, "cert.pem"),
		KeyFile:  filepath.Join(dir, "key.pem"),
	}
	conf.CAFile = conf.CertFile

	if err := os.WriteFile(conf.CertFile, certPEM, 0644); err != nil {
		return common.TLSConf{}, fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := os.WriteFile(conf.KeyFile, keyPEM, 0600); err != nil {
		return common.TLSConf{}, fmt.Errorf("failed to write key: %w", err)
	}
	return conf, nil
}
