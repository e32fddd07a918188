// ABOUTME: Node signing identity: persistent Ed25519 keypair and payload signatures
// ABOUTME: Signs canonical JSON so logically identical payloads always verify

package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// Signer owns the node's Ed25519 keypair. Posts, ledger transactions, and
// event log entries are all signed by the node, not by individual agents;
// the key lives for the lifetime of the node with no rotation.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// LoadOrCreate loads a PEM-encoded Ed25519 key from path, generating and
// persisting a fresh one if no key exists yet. Parent directories are
// created as needed.
func LoadOrCreate(path string) (*Signer, error) {
	if data, err := os.ReadFile(path); err == nil {
		return fromPEM(data)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading node key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating node key: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("encoding node key: %w", err)
	}
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	if err := os.WriteFile(path, pemData, 0600); err != nil {
		return nil, fmt.Errorf("persisting node key: %w", err)
	}

	slog.Default().Info("generated node signing key", "path", path)
	return &Signer{priv: priv, pub: pub}, nil
}

// fromPEM parses a PKCS8 PEM block into a Signer.
func fromPEM(data []byte) (*Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("node key file is not PEM")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing node key: %w", err)
	}

	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("node key is %T, want Ed25519", key)
	}

	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Sign canonicalizes the payload and returns a base64 Ed25519 signature.
// Payloads that are logically identical sign to byte-identical signatures
// regardless of field construction order.
func (s *Signer) Sign(payload any) (string, error) {
	canon, err := CanonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalizing payload: %w", err)
	}
	sig := ed25519.Sign(s.priv, canon)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify reports whether a base64 signature matches the payload under the
// node's public key.
func (s *Signer) Verify(payload any, signature string) bool {
	canon, err := CanonicalJSON(payload)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(s.pub, canon, sig)
}

// PublicKey returns the raw Ed25519 public key.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.pub
}

// PublicKeyPEM exports the public key as a PEM SubjectPublicKeyInfo block,
// the form published for third-party verification.
func (s *Signer) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(s.pub)
	if err != nil {
		return "", fmt.Errorf("encoding public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// Fingerprint returns the SHA256 fingerprint of the public key in the
// OpenSSH format (SHA256:...), handy for logs and the node identity endpoint.
func (s *Signer) Fingerprint() (string, error) {
	sshPub, err := ssh.NewPublicKey(s.pub)
	if err != nil {
		return "", fmt.Errorf("converting public key: %w", err)
	}
	return ssh.FingerprintSHA256(sshPub), nil
}
