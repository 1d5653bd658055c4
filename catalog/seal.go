package catalog

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/veraison/go-cose"
)

// SealContentType tags the payload of a sealed catalog.
const SealContentType = "application/vnd.boxauction.catalog+cbor+zstd"

// ErrInvalidSeal is returned when a sealed catalog fails signature verification.
var ErrInvalidSeal = errors.New("invalid catalog seal")

// GenerateSealingKey creates a new P-256 key for sealing catalogs.
func GenerateSealingKey() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate sealing key: %w", err)
	}
	return key, nil
}

// Seal compresses the catalog artifact and wraps it in a COSE_Sign1 message
// signed with ES256.
func (c *Catalog) Seal(key *ecdsa.PrivateKey) ([]byte, error) {
	artifact, err := c.MarshalArtifact()
	if err != nil {
		return nil, err
	}
	payload, err := Compress(artifact)
	if err != nil {
		return nil, err
	}

	signer, err := cose.NewSigner(cose.AlgorithmES256, key)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES256)
	msg.Headers.Protected[cose.HeaderLabelContentType] = SealContentType
	msg.Payload = payload

	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		return nil, fmt.Errorf("sign catalog: %w", err)
	}

	sealed, err := msg.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("encode sealed catalog: %w", err)
	}
	return sealed, nil
}

// OpenSealed verifies a sealed catalog against pub and rebuilds it.
func OpenSealed(sealed []byte, pub *ecdsa.PublicKey) (*Catalog, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(sealed); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidSeal, err)
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES256, pub)
	if err != nil {
		return nil, fmt.Errorf("create verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeal, err)
	}

	if ct, ok := msg.Headers.Protected[cose.HeaderLabelContentType].(string); !ok || ct != SealContentType {
		return nil, fmt.Errorf("%w: unexpected content type %v", ErrInvalidSeal, msg.Headers.Protected[cose.HeaderLabelContentType])
	}

	artifact, err := Decompress(msg.Payload)
	if err != nil {
		return nil, err
	}
	return UnmarshalArtifact(artifact)
}

// MarshalPrivateKeyPEM encodes a sealing key as a PKCS#8 PEM block.
func MarshalPrivateKeyPEM(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// MarshalPublicKeyPEM encodes a verification key as a PKIX PEM block.
func MarshalPublicKeyPEM(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePrivateKeyPEM decodes a PKCS#8 PEM ECDSA key.
func ParsePrivateKeyPEM(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want ECDSA", key)
	}
	return ecKey, nil
}

// ParsePublicKeyPEM decodes a PKIX PEM ECDSA key.
func ParsePublicKeyPEM(data []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want ECDSA", key)
	}
	return ecKey, nil
}
