package intercom

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// Material holds the TLS configurations for both directions of the channel: serving inbound
// connections and dialing the wallet peers. Both sides verify the other against the shared CA.
type Material struct {
	Server *tls.Config
	Client *tls.Config
}

// LoadTLS reads the certificate layout under <confDir>/cert: CA.pem at the root and server.key,
// server.pem, client.key, client.pem under <confDir>/cert/<sitename>/. Private keys may be
// passphrase protected.
func LoadTLS(confDir, sitename, passphrase string) (*Material, error) {
	caPEM, err := os.ReadFile(filepath.Join(confDir, "cert", "CA.pem"))
	if err != nil {
		return nil, fmt.Errorf("cannot read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no usable certificates in CA.pem")
	}

	dir := filepath.Join(confDir, "cert", sitename)

	srv, err := loadKeyPair(filepath.Join(dir, "server.pem"), filepath.Join(dir, "server.key"), passphrase)
	if err != nil {
		return nil, fmt.Errorf("cannot load server key pair: %w", err)
	}

	cli, err := loadKeyPair(filepath.Join(dir, "client.pem"), filepath.Join(dir, "client.key"), passphrase)
	if err != nil {
		return nil, fmt.Errorf("cannot load client key pair: %w", err)
	}

	return &Material{
		Server: &tls.Config{
			Certificates: []tls.Certificate{srv},
			ClientCAs:    pool,
			ClientAuth:   tls.RequireAndVerifyClientCert,
			MinVersion:   tls.VersionTLS12,
		},
		Client: &tls.Config{
			Certificates: []tls.Certificate{cli},
			RootCAs:      pool,
			MinVersion:   tls.VersionTLS12,
		},
	}, nil
}

// loadKeyPair loads an X.509 key pair, decrypting the private key when it carries RFC 1423
// encryption headers. The wallet deployments still ship keys in that legacy format.
func loadKeyPair(certFile, keyFile, passphrase string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return tls.Certificate{}, fmt.Errorf("no PEM block in %s", keyFile)
	}

	if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck // legacy RFC 1423 keys in the field
		der, err := x509.DecryptPEMBlock(block, []byte(passphrase)) //nolint:staticcheck // see above
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("cannot decrypt %s: %w", keyFile, err)
		}

		keyPEM = pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der})
	}

	return tls.X509KeyPair(certPEM, keyPEM)
}
