package proto

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	// CertFileName and KeyFileName are the identity files inside the config
	// directory.
	CertFileName = "peer.crt"
	KeyFileName  = "peer.key"
	// KnownPeersFileName holds pinned peer fingerprints.
	KnownPeersFileName = "known_peers"
)

// ErrUntrustedPeer is returned when a peer's certificate is neither signed by
// the configured CA nor pinned in the known peers file.
var ErrUntrustedPeer = errors.New("untrusted peer certificate")

// ConfigDir returns $XDG_CONFIG_HOME/beamsync (or the platform equivalent).
func ConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "beamsync")
}

// GenerateSelfSignedCert creates a self-signed P-256 ECDSA certificate valid
// for both ends of a mutual TLS session. It is valid for 10 years.
func GenerateSelfSignedCert(commonName string) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-1 * time.Hour),
		NotAfter:     time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return tls.Certificate{}, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	return tls.X509KeyPair(certPEM, keyPEM)
}

// LoadOrGenerateCert loads a TLS cert/key from disk, or generates and persists
// a new self-signed pair if they don't exist. Returns the certificate and its
// fingerprint. Empty paths select the files in ConfigDir.
func LoadOrGenerateCert(certPath, keyPath string) (tls.Certificate, string, error) {
	if certPath == "" {
		certPath = filepath.Join(ConfigDir(), CertFileName)
	}
	if keyPath == "" {
		keyPath = filepath.Join(ConfigDir(), KeyFileName)
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err == nil {
		fp, fpErr := CertFingerprint(cert)
		if fpErr != nil {
			return tls.Certificate{}, "", fpErr
		}
		return cert, fp, nil
	}
	if _, statErr := os.Stat(certPath); statErr == nil {
		// A cert exists but does not load; never overwrite an identity.
		return tls.Certificate{}, "", fmt.Errorf("load identity %s: %w", certPath, err)
	}

	host, _ := os.Hostname() //nolint:errcheck // cosmetic common name
	cert, err = GenerateSelfSignedCert("beamsync " + host)
	if err != nil {
		return tls.Certificate{}, "", fmt.Errorf("generate cert: %w", err)
	}

	if persistErr := persistCert(cert, certPath, keyPath); persistErr != nil {
		return tls.Certificate{}, "", fmt.Errorf("persist cert: %w", persistErr)
	}

	fp, err := CertFingerprint(cert)
	if err != nil {
		return tls.Certificate{}, "", err
	}
	return cert, fp, nil
}

func persistCert(cert tls.Certificate, certPath, keyPath string) error {
	if err := os.MkdirAll(filepath.Dir(certPath), 0o700); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return err
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: leaf.Raw})
	//nolint:gosec // G306: TLS cert is public data; only key needs restricted perms
	if writeErr := os.WriteFile(certPath, certPEM, 0o644); writeErr != nil {
		return fmt.Errorf("write cert: %w", writeErr)
	}

	ecKey, ok := cert.PrivateKey.(*ecdsa.PrivateKey)
	if !ok {
		return errors.New("expected ECDSA private key")
	}
	keyDER, err := x509.MarshalECPrivateKey(ecKey)
	if err != nil {
		return err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}

	return nil
}

// Fingerprint formats the SHA256 fingerprint of a DER certificate as
// "SHA256:<base64>".
func Fingerprint(der []byte) string {
	h := sha256.Sum256(der)
	return "SHA256:" + base64.StdEncoding.EncodeToString(h[:])
}

// CertFingerprint returns the fingerprint of a TLS certificate's leaf.
func CertFingerprint(cert tls.Certificate) (string, error) {
	if len(cert.Certificate) == 0 {
		return "", errors.New("no certificate data")
	}
	return Fingerprint(cert.Certificate[0]), nil
}

// PeerFingerprint returns the fingerprint of the certificate the peer
// presented during the handshake.
func PeerFingerprint(state tls.ConnectionState) (string, error) {
	if len(state.PeerCertificates) == 0 {
		return "", errors.New("no peer certificates")
	}
	return Fingerprint(state.PeerCertificates[0].Raw), nil
}

// LoadCAPool reads a PEM bundle of trusted CA certificates.
func LoadCAPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("CA bundle %s: no certificates found", path)
	}
	return pool, nil
}

// Trust decides which peer certificates are accepted. With a CA pool, peers
// must present a chain to it; otherwise their fingerprint must be pinned in
// Known, or TOFU must be on, in which case new peers are pinned on first
// contact.
type Trust struct {
	CAs   *x509.CertPool
	Known *KnownPeers
	TOFU  bool
}

func (t *Trust) verify(name string, rawCerts [][]byte, usage x509.ExtKeyUsage) error {
	if len(rawCerts) == 0 {
		return fmt.Errorf("%w: no certificate presented", ErrUntrustedPeer)
	}
	if t.CAs != nil {
		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			c, err := x509.ParseCertificate(raw)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrUntrustedPeer, err)
			}
			certs = append(certs, c)
		}
		inter := x509.NewCertPool()
		for _, c := range certs[1:] {
			inter.AddCert(c)
		}
		_, err := certs[0].Verify(x509.VerifyOptions{
			Roots:         t.CAs,
			Intermediates: inter,
			KeyUsages:     []x509.ExtKeyUsage{usage},
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUntrustedPeer, err)
		}
		return nil
	}
	if t.Known == nil {
		return fmt.Errorf("%w: no CA or known peers configured", ErrUntrustedPeer)
	}
	return t.Known.Verify(name, Fingerprint(rawCerts[0]), t.TOFU)
}

// ServerTLSConfig returns the listener's TLS config. Clients must present a
// certificate accepted by trust; inbound peers are known by their IP.
func ServerTLSConfig(cert tls.Certificate, trust *Trust) *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS13,
		GetConfigForClient: func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
			name := ""
			if hello.Conn != nil {
				name = hostOf(hello.Conn.RemoteAddr().String())
			}
			return &tls.Config{
				MinVersion:   tls.VersionTLS13,
				Certificates: []tls.Certificate{cert},
				ClientAuth:   tls.RequireAnyClientCert,
				VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
					return trust.verify(name, rawCerts, x509.ExtKeyUsageClientAuth)
				},
			}, nil
		},
	}
}

// ClientTLSConfig returns the TLS config for dialing peer, presenting cert
// as the client identity. Go's hostname verification is skipped; the peer
// certificate is checked against trust instead.
func ClientTLSConfig(cert tls.Certificate, trust *Trust, peer string) *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS13,
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: true, //nolint:gosec // verified by VerifyPeerCertificate
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			return trust.verify(peer, rawCerts, x509.ExtKeyUsageServerAuth)
		},
	}
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// KnownPeers is a pin store for peer certificate fingerprints. Format: one
// "name fingerprint" per line, where name is the peer address as configured
// (outbound) or the peer's IP (inbound). Safe for concurrent use.
type KnownPeers struct {
	entries map[string]string // name → fingerprint
	path    string
	mu      sync.Mutex
}

// DefaultKnownPeersPath returns the known_peers file in ConfigDir.
func DefaultKnownPeersPath() string {
	return filepath.Join(ConfigDir(), KnownPeersFileName)
}

// LoadKnownPeers reads the known_peers file. Returns an empty store if the
// file doesn't exist.
func LoadKnownPeers(path string) (*KnownPeers, error) {
	if path == "" {
		path = DefaultKnownPeersPath()
	}
	kp := &KnownPeers{path: path, entries: make(map[string]string)}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return kp, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) == 2 {
			kp.entries[parts[0]] = parts[1]
		}
	}
	return kp, scanner.Err()
}

// Len returns the number of pinned peers.
func (kp *KnownPeers) Len() int {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	return len(kp.entries)
}

// Contains reports whether fingerprint is pinned under any name.
func (kp *KnownPeers) Contains(fingerprint string) bool {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	return kp.containsLocked(fingerprint)
}

func (kp *KnownPeers) containsLocked(fingerprint string) bool {
	for _, fp := range kp.entries {
		if fp == fingerprint {
			return true
		}
	}
	return false
}

// Verify checks fingerprint for the peer called name. A name pinned to a
// different fingerprint is always rejected. An unknown name is accepted when
// the fingerprint is pinned under another name, or, with tofu, recorded as a
// new pin.
func (kp *KnownPeers) Verify(name, fingerprint string, tofu bool) error {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	if existing, ok := kp.entries[name]; ok && name != "" {
		if existing != fingerprint {
			return fmt.Errorf(
				"%w: identification of %s has changed (expected %s, got %s); "+
					"remove the entry from %s to accept the new key",
				ErrUntrustedPeer, name, existing, fingerprint, kp.path,
			)
		}
		return nil
	}
	if kp.containsLocked(fingerprint) {
		return nil
	}
	if !tofu || name == "" {
		return fmt.Errorf("%w: %s %s is not in %s", ErrUntrustedPeer, name, fingerprint, kp.path)
	}

	kp.entries[name] = fingerprint
	return kp.saveLocked()
}

// Add pins fingerprint under name and saves the file.
func (kp *KnownPeers) Add(name, fingerprint string) error {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	kp.entries[name] = fingerprint
	return kp.saveLocked()
}

func (kp *KnownPeers) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(kp.path), 0o700); err != nil {
		return err
	}

	names := make([]string, 0, len(kp.entries))
	for name := range kp.entries {
		names = append(names, name)
	}
	slices.Sort(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s %s\n", name, kp.entries[name])
	}
	return os.WriteFile(kp.path, []byte(b.String()), 0o600)
}
